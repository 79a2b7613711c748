package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/HenriqueJoanoni/smart-home-iot/internal/infrastructure/config"
)

// serviceName is stamped on every entry so logs from both binaries can be
// merged into one stream and still be told apart.
const serviceName = "smarthome"

// Logger is a slog.Logger carrying the service defaults. Safe for
// concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the config file. Format
// is "json" or "text", output is "stdout" or "stderr"; anything
// unrecognised falls back to JSON on stdout. Every entry carries the
// service name and build version.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel maps a config string to a slog.Level. Unknown values mean
// info rather than an error; a typo in config.yaml should not silence
// the log.
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

// With returns a child Logger with extra default attributes, typically a
// component tag:
//
//	busLog := logger.With("component", "realtime")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used before the config file has been read: JSON
// to stdout at info level, version "dev".
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
