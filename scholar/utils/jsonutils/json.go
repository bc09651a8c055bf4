package jsonutils

import (
	"regexp"
	"strings"
)

var (
	reFence         = regexp.MustCompile("(?s)```(?:json)?(.*?)```")
	reObject        = regexp.MustCompile(`(?s)\{.*\}`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ExtractJSON pulls the JSON object out of model output.
//
// Priority:
// 1. Triple-backtick fenced block
// 2. The outermost {...} span
//
// It also strips BOM and zero-width characters, model-escaped quotes and
// trailing commas before closing brackets.
func ExtractJSON(input string) string {
	input = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '\uFEFF' || r == '\u200B' || r == '\u200C' || r == '\u200D' {
			return -1
		}
		return r
	}, input))

	if match := reFence.FindStringSubmatch(input); len(match) > 1 {
		input = strings.TrimSpace(match[1])
	}
	if match := reObject.FindString(input); match != "" {
		input = match
	}

	input = strings.ReplaceAll(input, `\\`, `\`)
	input = strings.ReplaceAll(input, `\"`, `"`)
	input = reTrailingComma.ReplaceAllString(input, "$1")
	return strings.TrimSpace(input)
}
