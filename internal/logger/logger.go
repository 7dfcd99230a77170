package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// Initialize sets up the global logger with the specified level and format
func Initialize(level, format string) {
	InitializeWithWriter(os.Stdout, level, format)
}

// InitializeWithWriter is Initialize with an explicit destination
func InitializeWithWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger = slog.New(contextHandler{handler})
	slog.SetDefault(defaultLogger)
}

func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Get returns the default logger
func Get() *slog.Logger {
	if defaultLogger == nil {
		Initialize("info", "text")
	}
	return defaultLogger
}

type ctxKey struct{}

// ContextWith returns a copy of ctx whose *Context log calls carry args, e.g.
// the request id of the HTTP request being served.
func ContextWith(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(ctxKey{}).([]any)
	merged := append(append([]any(nil), prev...), args...)
	return context.WithValue(ctx, ctxKey{}, merged)
}

// contextHandler adds the attributes stored by ContextWith to every record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if args, ok := ctx.Value(ctxKey{}).([]any); ok {
		r.Add(args...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any) { Get().Info(msg, args...) }
func Warn(msg string, args ...any) { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// ErrorContext logs at error level with the attributes carried by ctx.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	Get().ErrorContext(ctx, msg, args...)
}

// WithMethod returns a logger with method name attached
func WithMethod(methodName string) *slog.Logger {
	return Get().With("method", methodName)
}

// WithEvent returns a logger correlated to a gateway webhook event
func WithEvent(eventID, eventType string) *slog.Logger {
	return Get().With("event_id", eventID, "event_type", eventType)
}

// WithLoad returns a logger correlated to a load and its settlement
func WithLoad(loadID int64) *slog.Logger {
	return Get().With("load_id", loadID)
}

func prefixed(args []any, head ...any) []any {
	return append(head, args...)
}

// result logs a finished call at debug, or at error when err is set.
func result(msg string, err error, args []any) {
	if err != nil {
		Get().Error(msg+" failed", append(args, "error", err)...)
		return
	}
	Get().Debug(msg+" succeeded", args...)
}

// EnterMethod and ExitMethod trace service methods at debug level.
func EnterMethod(methodName string, args ...any) {
	Get().Debug("→ Method entered", prefixed(args, "method", methodName, "event", "enter")...)
}

func ExitMethod(methodName string, args ...any) {
	Get().Debug("← Method exited", prefixed(args, "method", methodName, "event", "exit")...)
}

func ExitMethodWithError(methodName string, err error, args ...any) {
	Get().Error("← Method exited with error", prefixed(args, "method", methodName, "event", "exit", "error", err)...)
}

// DatabaseCall logs a repository query before it runs.
func DatabaseCall(operation, query string, args ...any) {
	Get().Debug("→ Database call", prefixed(args, "operation", operation, "query", query)...)
}

func DatabaseResult(operation string, rowsAffected int64, err error, args ...any) {
	result("← Database call", err, prefixed(args, "operation", operation, "rows_affected", rowsAffected))
}

// ExternalServiceCall logs a call to the payment gateway, the credit provider
// or a notification channel.
func ExternalServiceCall(service, operation string, args ...any) {
	Get().Debug("→ External service call", prefixed(args, "service", service, "operation", operation)...)
}

func ExternalServiceResult(service, operation string, err error, args ...any) {
	result("← External service call", err, prefixed(args, "service", service, "operation", operation))
}
