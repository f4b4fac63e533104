package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HeaderRequestID carries the request id; inbound values are honored so ids
// survive proxies, otherwise one is generated.
const HeaderRequestID = "X-Request-ID"

// HeaderTenantID scopes API requests to a tenant.
const HeaderTenantID = "X-Tenant-ID"

// RequestID returns a middleware that ensures every request carries a request
// id, echoing it on the response and stashing it in the context.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}

			w.Header().Set(HeaderRequestID, id)
			ctx := SetRequestIDInContext(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Tenant returns a middleware that resolves the tenant for API requests from
// the X-Tenant-ID header. With no header and no configured default the request
// is rejected; non-API paths (health, anything outside /api/) pass through
// untouched.
func Tenant(defaultTenant string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
			if tenantID == "" {
				tenantID = defaultTenant
			}
			if tenantID == "" {
				WriteError(w, ErrorParams{
					Code:    http.StatusBadRequest,
					ErrCode: "missing_tenant",
					Err:     errors.New("the X-Tenant-ID header is required"),
				})
				return
			}

			ctx := SetTenantInContext(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logging returns a middleware that logs HTTP requests and installs a
// request-scoped logger (request id and tenant attached) into the context.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}

			reqLogger := logger
			if id := RequestIDFromContext(r.Context()); id != "" {
				reqLogger = reqLogger.With(slog.String("request_id", id))
			}
			r = r.WithContext(SetLoggerInContext(r.Context(), reqLogger))

			next.ServeHTTP(ww, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			}
			// The tenant middleware runs further in, so read the header here.
			if tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID)); tenantID != "" {
				attrs = append(attrs, slog.String("tenant_id", tenantID))
			}
			reqLogger.Info("http", attrs...)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: "internal_error",
						Err:     errors.New("internal server error"),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
