package pkg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Component identifies a subsystem for log filtering.
type Component string

// Bridge component identifiers.
const (
	ComponentSDC    Component = "sdc"
	ComponentACSI   Component = "acsi"
	ComponentLink   Component = "link"
	ComponentFS     Component = "fatfs"
	ComponentSys    Component = "sys"
	ComponentBrowse Component = "browse"
	ComponentCLI    Component = "cli"
)

// Logger returns the current logger tagged with the component.
func (c Component) Logger() *slog.Logger {
	return logger.Load().With("component", string(c))
}

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // key=value (default)
	LogFormatJSON
)

func (f LogFormat) String() string {
	if f == LogFormatJSON {
		return "json"
	}
	return "text"
}

var (
	level  = new(slog.LevelVar)
	logger atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelWarn)
	SetLogOutput(os.Stderr, LogFormatText)
}

// SetLogLevel sets the minimum level for all bridge logging.
func SetLogLevel(l slog.Level) { level.Set(l) }

// LogLevel returns the current minimum level.
func LogLevel() slog.Level { return level.Level() }

// SetLogOutput directs bridge logging to w in the given format. The
// level set by SetLogLevel keeps applying.
func SetLogOutput(w io.Writer, format LogFormat) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == LogFormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger.Store(slog.New(h))
}

// SetLogFormat switches the format of logging to stderr.
func SetLogFormat(format LogFormat) { SetLogOutput(os.Stderr, format) }

// ParseLogLevel converts a level name (debug, info, warn, error) to a slog.Level.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q: %w", name, ErrInvalidParameter)
}

// ParseLogFormat converts a format name (text, json) to a LogFormat.
func ParseLogFormat(name string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "text", "":
		return LogFormatText, nil
	case "json":
		return LogFormatJSON, nil
	}
	return LogFormatText, fmt.Errorf("unknown log format %q: %w", name, ErrInvalidParameter)
}

func emit(l slog.Level, c Component, msg string, args []any) {
	lg := logger.Load()
	if !lg.Enabled(context.Background(), l) {
		return
	}
	lg.Log(context.Background(), l, msg, append([]any{"component", string(c)}, args...)...)
}

// LogDebug logs at debug level for the component.
func LogDebug(c Component, msg string, args ...any) { emit(slog.LevelDebug, c, msg, args) }

// LogInfo logs at info level for the component.
func LogInfo(c Component, msg string, args ...any) { emit(slog.LevelInfo, c, msg, args) }

// LogWarn logs at warn level for the component.
func LogWarn(c Component, msg string, args ...any) { emit(slog.LevelWarn, c, msg, args) }

// LogError logs at error level for the component.
func LogError(c Component, msg string, args ...any) { emit(slog.LevelError, c, msg, args) }
