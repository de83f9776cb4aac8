// Package logger provides structured logging for the service.
package logger

import "context"

// Logger is the structured logging interface used throughout the service.
// All methods accept a message followed by key-value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a child logger carrying additional key-value pairs.
	With(args ...any) Logger

	// WithContext returns a child logger enriched with request-scoped
	// fields found in ctx (currently the request id).
	WithContext(ctx context.Context) Logger
}

type contextKey string

// RequestIDKey is the context key under which HTTP middleware stores the
// request id picked up by WithContext.
const RequestIDKey contextKey = "request_id"

// ContextWithRequestID stores a request id for WithContext to find.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

type nopLogger struct{}

// NewNop returns a logger that discards everything. Useful as a default
// for optional logger parameters.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any)                 {}
func (nopLogger) Info(string, ...any)                  {}
func (nopLogger) Warn(string, ...any)                  {}
func (nopLogger) Error(string, ...any)                 {}
func (n nopLogger) With(...any) Logger                 { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
