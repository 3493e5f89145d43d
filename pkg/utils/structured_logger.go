package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogFormat defines the output format for logs
type LogFormat int

const (
	FormatText LogFormat = iota
	FormatJSON
)

// ParseLogFormat accepts "text"/"console" and "json".
func ParseLogFormat(format string) (LogFormat, error) {
	switch strings.ToLower(format) {
	case "", "text", "console":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("invalid log format: %s", format)
	}
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level         LogLevel
	Output        io.Writer
	Format        LogFormat
	IncludeCaller bool
	App           string
}

// DefaultLoggerConfig returns default configuration
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:         INFO,
		Output:        os.Stdout,
		Format:        FormatText,
		IncludeCaller: false,
		App:           "amrmeta",
	}
}

// NewLogger builds a zerolog logger from config. Text format goes through
// zerolog's console writer; JSON is written as-is.
func NewLogger(config *LoggerConfig) zerolog.Logger {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	if config.Format == FormatText {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}

	ctx := zerolog.New(out).Level(config.Level.Zerolog()).With().Timestamp()
	if config.App != "" {
		ctx = ctx.Str("app", config.App)
	}
	if config.IncludeCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// WithComponent returns a logger with a component field
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithRank returns a logger tagged with the process rank and group size
func WithRank(logger zerolog.Logger, rank, size int) zerolog.Logger {
	return logger.With().Int("rank", rank).Int("size", size).Logger()
}
