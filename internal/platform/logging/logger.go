// Package logging provides the structured logger shared by every component
// of the hub.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/homehub/hearth-core/internal/platform/config"
)

// Logger wraps slog.Logger with hub-specific defaults plus a level that
// can be raised or lowered after construction without rebuilding the
// handler — useful for turning on debug logging on a running hearthd
// without a restart.
//
// Thread Safety: all methods, including SetLevel, are safe for
// concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// outputWriters maps a config.LoggingConfig.Output value to its
// destination; anything unrecognised falls back to stdout.
var outputWriters = map[string]io.Writer{
	"stdout": os.Stdout,
	"stderr": os.Stderr,
}

func resolveOutput(name string) io.Writer {
	if w, ok := outputWriters[strings.ToLower(name)]; ok {
		return w
	}
	return os.Stdout
}

func buildHandler(format string, output io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.ToLower(format) == "text" {
		return slog.NewTextHandler(output, opts)
	}
	return slog.NewJSONHandler(output, opts)
}

// New creates a Logger from the logging section of the configuration.
func New(cfg config.LoggingConfig, version string) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	handler := buildHandler(cfg.Format, resolveOutput(cfg.Output), &slog.HandlerOptions{Level: level})
	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "hearthd"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler), level: level}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetLevel adjusts the minimum level this logger, and every Logger
// derived from it via With, emits from this point on. A Logger built
// directly (rather than through New) has no adjustable level and
// SetLevel is a no-op on it.
func (l *Logger) SetLevel(level string) {
	if l.level != nil {
		l.level.Set(parseLevel(level))
	}
}

// With returns a new Logger with additional default attributes, sharing
// the parent's adjustable level.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Default returns a logger usable before configuration has been loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
