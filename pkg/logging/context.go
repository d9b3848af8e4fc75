package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey int

const (
	loggerKey contextKey = iota
	cycleIDKey
)

// WithLogger stores logger in ctx. A nil logger stores the default logger.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		logger = Default()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok && logger != nil {
		return logger
	}
	return Default()
}

// WithField returns a context whose logger adds key to every entry.
func WithField(ctx context.Context, key string, value any) context.Context {
	logger := appendField(FromContext(ctx).With(), key, value).Logger()
	return WithLogger(ctx, &logger)
}

// WithCycleID tags the context and its logger with a sync cycle ID.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	ctx = context.WithValue(ctx, cycleIDKey, cycleID)
	return WithField(ctx, "cycle_id", cycleID)
}

// CycleID returns the sync cycle ID of ctx, if any.
func CycleID(ctx context.Context) string {
	id, _ := ctx.Value(cycleIDKey).(string)
	return id
}

// WithIntegration adds the integration name to the logger.
func WithIntegration(ctx context.Context, integration string) context.Context {
	return WithField(ctx, "integration", integration)
}

// WithOrder adds the order ID to the logger.
func WithOrder(ctx context.Context, orderID string) context.Context {
	return WithField(ctx, "order_id", orderID)
}
