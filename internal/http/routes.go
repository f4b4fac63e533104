package httpx

import (
	"log/slog"
	"net/http"

	"github.com/plateworks/paymaster/internal/service"
)

// RouterServices holds the services and settings the HTTP router needs.
type RouterServices struct {
	Orchestrator *service.PayrollOrchestrator
	Records      *service.JobRecordService
	Webhooks     *service.WebhookService

	// DefaultTenant is applied to API requests that carry no X-Tenant-ID
	// header. Leave empty to require the header on every API request.
	DefaultTenant string

	Logger *slog.Logger
}

// NewRouter creates the HTTP handler for the API: routes plus the standard
// middleware chain (request id, logging, panic recovery, tenant resolution).
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	payrollHandlers := &PayrollHandlers{
		Orchestrator: services.Orchestrator,
		Records:      services.Records,
	}
	webhookHandlers := &WebhookHandlers{Svc: services.Webhooks}

	registerPayrollRoutes(mux, payrollHandlers)
	registerWebhookRoutes(mux, webhookHandlers)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Outermost first: the request id must exist before the logger binds it,
	// and recovery wraps everything the tenant check lets through.
	var handler http.Handler = mux
	handler = Tenant(services.DefaultTenant)(handler)
	handler = Recover(logger)(handler)
	handler = Logging(logger)(handler)
	handler = RequestID()(handler)
	return handler
}

func registerPayrollRoutes(mux *http.ServeMux, h *PayrollHandlers) {
	mux.HandleFunc("POST /api/payroll/run-batch", h.RunBatch)
	mux.HandleFunc("GET /api/payroll/jobs", h.List)
	mux.HandleFunc("GET /api/payroll/jobs/{id}", h.GetDetail)
	mux.HandleFunc("GET /api/payroll/jobs/{id}/status", h.GetStatus)
	mux.HandleFunc("POST /api/payroll/jobs/{id}/cancel", h.Cancel)
}

func registerWebhookRoutes(mux *http.ServeMux, h *WebhookHandlers) {
	mux.HandleFunc("POST /api/webhooks/subscriptions", h.Create)
	mux.HandleFunc("GET /api/webhooks/subscriptions", h.List)
	mux.HandleFunc("GET /api/webhooks/subscriptions/{id}", h.GetByID)
	mux.HandleFunc("PUT /api/webhooks/subscriptions/{id}", h.Update)
	mux.HandleFunc("DELETE /api/webhooks/subscriptions/{id}", h.Delete)
	mux.HandleFunc("POST /api/webhooks/test", h.SendTest)
}
