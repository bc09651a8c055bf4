// Package color styles terminal output of the management CLI.
package color

import (
	"github.com/fatih/color"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	infoColor    = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	methodColor  = color.New(color.FgHiYellow, color.Bold)
)

func ColorHeading(s string) string {
	return headingColor.Sprint(s)
}

func ColorInfo(s string) string {
	return infoColor.Sprint(s)
}

func ColorWarning(s string) string {
	return warningColor.Sprint(s)
}

func ColorError(s string) string {
	return errorColor.Sprint(s)
}

func ColorMethod(s string) string {
	return methodColor.Sprint(s)
}

// Disable turns styling off, e.g. when output is not a terminal.
func Disable() {
	color.NoColor = true
}
