package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages can accept a logger without
// importing the third-party module directly.
type Logger = zerolog.Logger

// NewLogger builds the service logger. Development runs get debug level and
// human readable console output; everything else logs JSON at info.
func NewLogger(appEnv string) Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "studio").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// ComponentLogger returns logger scoped to a component, or a discard logger
// when logger is nil.
func ComponentLogger(logger *Logger, component string) *Logger {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		return &discard
	}
	scoped := logger.With().Str("component", component).Logger()
	return &scoped
}

// NewCLILogger writes human readable logs to w. Only warnings and errors are
// shown unless verbose is set.
func NewCLILogger(w io.Writer, verbose bool) Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
