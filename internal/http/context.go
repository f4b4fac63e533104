package httpx

import (
	"context"
	"log/slog"
)

// Unexported context key types to avoid collisions across packages.
// Centralized in this file so all handlers and middleware use the same keys.
type (
	tenantKey    struct{}
	requestIDKey struct{}
	loggerKey    struct{}
)

// SetTenantInContext returns a child context carrying the resolved tenant id.
func SetTenantInContext(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext returns the tenant id resolved by the tenant middleware,
// or an empty string when the request never passed through it.
func TenantFromContext(ctx context.Context) string {
	if tenantID, ok := ctx.Value(tenantKey{}).(string); ok {
		return tenantID
	}
	return ""
}

// SetRequestIDInContext returns a child context carrying the request id.
func SetRequestIDInContext(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id, or an empty string when the
// request-id middleware was not applied.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SetLoggerInContext returns a child context carrying a request-scoped logger.
func SetLoggerInContext(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the request-scoped logger installed by the logging
// middleware, falling back to slog.Default so callers never need a nil check.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
