package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init replaces the global logger and sets the process wide level.
// Unknown or empty levels fall back to info.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerolog())
	Logger = newLogger(cfg).With().Timestamp().Logger()
}

func (l Level) zerolog() zerolog.Level {
	lvl, err := zerolog.ParseLevel(string(l))
	if err != nil || l == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func newLogger(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out)
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithInstance creates a child logger with instance_id field
func WithInstance(l zerolog.Logger, instanceID int) zerolog.Logger {
	return l.With().Int("instance_id", instanceID).Logger()
}
