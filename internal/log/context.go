package log

import (
	"context"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context, falling back to the
// process default.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
			return logger
		}
	}
	return Default()
}

// LogError logs an error with structured context
func LogError(ctx context.Context, msg string, err error, errorType, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	all := fields.WithError(err, errorType).WithOperation(operation)
	FromContext(ctx).WithComponent(component).ErrorContext(ctx, msg, all.ToSlice()...)
}
