package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/si3lab/lidarlink/internal/infrastructure/config"
)

// serviceName is attached to every record as "service".
const serviceName = "lidarlink"

// Logger is the process logger. It embeds *slog.Logger, so Info, Warn,
// Error and Debug are slog's; every record carries service and version.
//
// Loggers derived with With share the level of their root, so SetLevel on
// any of them applies to all.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates a Logger writing to the destination named by cfg.Output
// (stdout, stderr or discard; stdout when unrecognised).
//
// Parameters:
//   - cfg: Logging section of the configuration
//   - version: Build version recorded on every record
//
// Returns:
//   - *Logger: Ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, outputFor(cfg.Output))
}

// NewWithWriter is New with an explicit destination. The operator console
// passes its prompt-safe writer here.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler), level: level}
}

// Default is the logger used before configuration is loaded: JSON at info
// on stdout.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// With returns a child logger carrying args on every record, e.g.
// logger.With("component", "session").
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// SetLevel changes the minimum level of this logger and every logger
// derived from the same root.
//
// Returns:
//   - error: If name is not debug, info, warn or error
func (l *Logger) SetLevel(name string) error {
	lvl, ok := lookupLevel(name)
	if !ok {
		return fmt.Errorf("unknown log level %q (want debug, info, warn or error)", name)
	}
	l.level.Set(lvl)
	return nil
}

func outputFor(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}

// parseLevel maps a configured level name to slog, falling back to info.
func parseLevel(name string) slog.Level {
	if lvl, ok := lookupLevel(name); ok {
		return lvl
	}
	return slog.LevelInfo
}

func lookupLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
