// Command manage runs maintenance tasks against the configured database.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"scholar/scholar/app"
	"scholar/scholar/config"
	"scholar/scholar/sources/db"
	"scholar/scholar/utils/color"
	"scholar/scholar/utils/logging"

	"github.com/go-chi/chi/v5"
)

// shellContext names what an interactive session gets preloaded.
var shellContext = []string{"app", "db", "User", "PaperMetadata", "ChatMessage", "ChatSession"}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	profile := config.ProfileFromEnv()

	var err error
	switch args[0] {
	case "migrate":
		err = migrate(ctx, profile, args[1:], stdout)
	case "create-all":
		err = withDatabase(profile, func(d *db.Database) error {
			if err := d.CreateAll(ctx); err != nil {
				return err
			}
			fmt.Fprintln(stdout, color.ColorInfo("tables created"))
			return nil
		})
	case "routes":
		err = printRoutes(ctx, profile, stdout)
	case "shell-context":
		for _, name := range shellContext {
			fmt.Fprintln(stdout, name)
		}
	default:
		usage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, color.ColorError("error: ")+err.Error())
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, color.ColorHeading("manage usage:"))
	fmt.Fprintln(w, "  manage migrate up|down|version   # versioned schema migrations (postgres)")
	fmt.Fprintln(w, "  manage create-all                # create missing tables from the models")
	fmt.Fprintln(w, "  manage routes                    # list registered routes")
	fmt.Fprintln(w, "  manage shell-context             # names exposed to an interactive shell")
	fmt.Fprintln(w, "The profile comes from APP_CONFIG (or FLASK_CONFIG), default dev.")
}

func withDatabase(profile string, fn func(*db.Database) error) error {
	cfg, err := config.Load(profile)
	if err != nil {
		return err
	}
	if _, err := logging.InitLogger(cfg.Paths().Logs, cfg.Debug); err != nil {
		fmt.Fprintln(os.Stderr, color.ColorWarning("file logging disabled: ")+err.Error())
	}
	if cfg.UsesSQLiteFile() && cfg.Name != config.ProfileProd {
		if err := os.MkdirAll(cfg.Paths().Instance, 0o755); err != nil {
			return err
		}
	}
	database, err := db.NewDatabase(cfg.DatabaseURI, cfg.Debug)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(database)
}

func migrate(ctx context.Context, profile string, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("migrate needs one of up, down, version")
	}
	return withDatabase(profile, func(d *db.Database) error {
		m := db.NewMigrator(d)
		switch args[0] {
		case "up":
			if err := m.Up(); err != nil {
				return err
			}
		case "down":
			if err := m.Down(); err != nil {
				return err
			}
		case "version":
		default:
			return fmt.Errorf("unknown migrate command %q", args[0])
		}
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		state := color.ColorInfo("clean")
		if dirty {
			state = color.ColorWarning("dirty")
		}
		fmt.Fprintf(stdout, "schema version %d (%s)\n", version, state)
		return nil
	})
}

func printRoutes(ctx context.Context, profile string, stdout io.Writer) error {
	a, err := app.New(ctx, profile)
	if err != nil {
		return err
	}
	defer a.Close()

	var lines []string
	err = chi.Walk(a.Router, func(method, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		lines = append(lines, fmt.Sprintf("%-7s %s", method, strings.Replace(route, "/*/", "/", -1)))
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(lines)
	for _, l := range lines {
		method, route, _ := strings.Cut(l, " ")
		fmt.Fprintln(stdout, color.ColorMethod(method)+" "+route)
	}
	return nil
}
