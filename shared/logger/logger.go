// Package logger builds the slog logger shared by the binaries: tint on a
// terminal, JSON everywhere else, with secret-bearing attributes masked.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Redacted replaces the value of any attribute whose key is redacted.
const Redacted = "[REDACTED]"

// DefaultRedactKeys are masked unless Config.RedactKeys says otherwise.
var DefaultRedactKeys = []string{
	"client_secret",
	"authorization",
	"stripe_signature",
	"api_key",
	"service_key",
	"webhook_secret",
	"password",
}

// Config holds logger configuration
type Config struct {
	Level        string // debug, info, warn, error
	Format       string // json, console
	Output       string // stdout, stderr, or file path
	EnableSource bool
	TimeFormat   string // console only
	NoColor      bool

	// RedactKeys lists attribute keys, matched case-insensitively, whose
	// values are never written. Nil means DefaultRedactKeys.
	RedactKeys []string

	// writer overrides Output; used by tests to capture records.
	writer io.Writer
}

// Logger wraps slog.Logger and owns the log file, if any.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New creates a new logger instance
func New(config *Config) (*Logger, error) {
	level := parseLevel(config.Level)

	writer, closer, err := openOutput(config)
	if err != nil {
		return nil, err
	}

	replace := redactor(config.RedactKeys)

	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "console", "":
		timeFormat := config.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}
		handler = tint.NewHandler(writer, &tint.Options{
			Level:       level,
			AddSource:   config.EnableSource,
			TimeFormat:  timeFormat,
			NoColor:     config.NoColor || closer != nil,
			ReplaceAttr: replace,
		})
	default:
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level:       level,
			AddSource:   config.EnableSource,
			ReplaceAttr: replace,
		})
	}

	return &Logger{Logger: slog.New(handler), closer: closer}, nil
}

// Close releases the log file when Output named one.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func openOutput(config *Config) (io.Writer, io.Closer, error) {
	if config.writer != nil {
		return config.writer, nil, nil
	}

	switch config.Output {
	case "stderr":
		return os.Stderr, nil, nil
	case "stdout", "":
		return os.Stdout, nil, nil
	}

	f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", config.Output, err)
	}
	return f, f, nil
}

func redactor(keys []string) func([]string, slog.Attr) slog.Attr {
	if keys == nil {
		keys = DefaultRedactKeys
	}
	if len(keys) == 0 {
		return nil
	}

	masked := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		masked[strings.ToLower(k)] = struct{}{}
	}

	return func(_ []string, a slog.Attr) slog.Attr {
		if _, ok := masked[strings.ToLower(a.Key)]; ok && a.Value.Kind() != slog.KindGroup {
			return slog.String(a.Key, Redacted)
		}
		return a
	}
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
