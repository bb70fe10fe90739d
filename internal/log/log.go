package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

type attrsKey struct{}

var (
	levelVar = new(slog.LevelVar)
	loggerMu sync.RWMutex
	output   io.Writer = os.Stdout
	logger             = slog.New(newHandler(output, "text"))
)

func init() {
	levelVar.Set(slog.LevelInfo)
}

func newHandler(w io.Writer, format string) slog.Handler {
	opts := slog.HandlerOptions{
		Level: levelVar,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				attr.Key = "level"
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "msg"
			}
			return attr
		},
	}
	var base slog.Handler
	if format == "json" {
		base = slog.NewJSONHandler(w, &opts)
	} else {
		base = slog.NewTextHandler(w, &opts)
	}
	return contextHandler{Handler: base}
}

// NewHandler builds the handler the global logger uses, writing to w in the
// given format ("text" or "json").
func NewHandler(w io.Writer, format string) slog.Handler {
	return newHandler(w, format)
}

// contextHandler appends attributes stored with WithAttrs to every record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if attrs, ok := ctx.Value(attrsKey{}).([]slog.Attr); ok {
		record.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, record)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}

// SetLevel updates the minimum logging level accepted by the global logger.
// Supported levels are "debug", "info", "warn", and "error". Values are case-insensitive.
func SetLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		levelVar.Set(slog.LevelInfo)
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}
	return nil
}

// SetFormat switches the global logger between "text" and "json" output.
func SetFormat(format string) error {
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case "", "text":
		normalized = "text"
	case "json":
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = slog.New(newHandler(output, normalized))
	return nil
}

// Logger returns the underlying slog.Logger instance.
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// ReplaceLogger installs a custom slog.Logger.
func ReplaceLogger(l *slog.Logger) {
	if l == nil {
		panic("log: nil logger provided")
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// WithAttrs returns a context whose log records carry the given key/value pairs.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	ctx = withContext(ctx)
	existing, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	record := slog.NewRecord(time.Time{}, slog.LevelInfo, "", 0)
	record.Add(args...)
	merged := make([]slog.Attr, 0, len(existing)+record.NumAttrs())
	merged = append(merged, existing...)
	record.Attrs(func(attr slog.Attr) bool {
		merged = append(merged, attr)
		return true
	})
	return context.WithValue(ctx, attrsKey{}, merged)
}

// Info logs a message at the info level using the global logger.
func Info(ctx context.Context, msg string, args ...any) {
	Logger().InfoContext(withContext(ctx), msg, args...)
}

// Debug logs a message at the debug level using the global logger.
func Debug(ctx context.Context, msg string, args ...any) {
	Logger().DebugContext(withContext(ctx), msg, args...)
}

// Warn logs a message at the warn level using the global logger.
func Warn(ctx context.Context, msg string, args ...any) {
	Logger().WarnContext(withContext(ctx), msg, args...)
}

// Error logs a message at the error level using the global logger.
func Error(ctx context.Context, msg string, args ...any) {
	Logger().ErrorContext(withContext(ctx), msg, args...)
}

func withContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
