package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig selects the level and an optional rotating log file.
type LogConfig struct {
	Level      string
	File       string // Empty logs to stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	output       io.Writer = os.Stdout
	defaultLevel           = zerolog.InfoLevel
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup directs every logger created afterwards to stdout and, when a file is
// configured, to a lumberjack-rotated file as well. The returned closer
// releases the file.
func Setup(cfg LogConfig) io.Closer {
	if cfg.Level != "" {
		defaultLevel = parseLogLevel(cfg.Level)
	}
	if cfg.File == "" {
		output = os.Stdout
		return nopCloser{}
	}
	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	output = zerolog.MultiLevelWriter(os.Stdout, rotating)
	return rotating
}

// NewLogger creates a structured JSON logger for one component.
// BASKET_LOG_LEVEL overrides the configured level; the default is info.
func NewLogger(component string) zerolog.Logger {
	level := defaultLevel
	if env := os.Getenv("BASKET_LOG_LEVEL"); env != "" {
		level = parseLogLevel(env)
	}
	return NewLoggerWithLevel(component, level)
}

// NewLoggerWithLevel creates a logger with an explicit level.
func NewLoggerWithLevel(component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func parseLogLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
