// Package logging configures the process-wide zerolog logger and hands out
// component-scoped child loggers.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Level mirrors the subset of zerolog levels the runtime's config exposes.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config controls global logger construction.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Root is the process-wide logger; Init replaces it, every other logger in
// the runtime is derived from it via With().
var Root zerolog.Logger

func init() {
	Root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// Init configures Root from cfg. Call once at process startup.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var w io.Writer = out
	if !cfg.JSONOutput {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	Root = zerolog.New(w).With().Timestamp().Logger()
}

func parseLevel(l Level) zerolog.Level {
	switch strings.ToLower(string(l)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ForApp returns a child logger tagged with the owning app's name.
func ForApp(app string) zerolog.Logger {
	return Root.With().Str("app", app).Logger()
}

// ForFlow returns a child logger tagged with the owning flow's name.
func ForFlow(app, flow string) zerolog.Logger {
	return Root.With().Str("app", app).Str("flow", flow).Logger()
}

// ForComponent returns a child logger tagged with app/flow/component/instance.
func ForComponent(app, flow, component string, instance int) zerolog.Logger {
	return Root.With().
		Str("app", app).
		Str("flow", flow).
		Str("component", component).
		Int("instance", instance).
		Logger()
}
