package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the task runner worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeScheduler runs the scheduled-task enqueuer.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeReaper runs the queue reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeScheduler,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeWorker,
			ServiceModeScheduler,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, scheduler, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// SchedulerConfig contains scheduler service configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1s"`

	// BatchSize is the number of due scheduled tasks to claim per tick.
	BatchSize int `env:"SCHEDULER_BATCH_SIZE" envDefault:"25"`

	// DefaultPriority is the queue priority assigned to scheduled tasks.
	DefaultPriority int `env:"SCHEDULER_DEFAULT_PRIORITY" envDefault:"0"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval <= 0 {
		s.Interval = time.Second
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
}

// WorkerConfig contains task runner configuration.
type WorkerConfig struct {
	// PayrollConcurrency is the number of worker goroutines on the payroll queue.
	PayrollConcurrency int `env:"WORKER_PAYROLL_CONCURRENCY" envDefault:"4"`

	// WebhookConcurrency is the number of worker goroutines on the webhooks queue.
	WebhookConcurrency int `env:"WORKER_WEBHOOK_CONCURRENCY" envDefault:"4"`

	// MaintenanceConcurrency is the number of worker goroutines on the maintenance queue.
	MaintenanceConcurrency int `env:"WORKER_MAINTENANCE_CONCURRENCY" envDefault:"1"`

	// TaskLease is how long a claimed task stays leased before it can be
	// redelivered. Long batches extend it via heartbeats.
	TaskLease time.Duration `env:"WORKER_TASK_LEASE" envDefault:"60s"`

	// ClaimWait bounds how long an idle worker blocks on the queue
	// notification channel before polling again.
	ClaimWait time.Duration `env:"WORKER_CLAIM_WAIT" envDefault:"30s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.PayrollConcurrency < 1 {
		w.PayrollConcurrency = 1
	}
	if w.WebhookConcurrency < 1 {
		w.WebhookConcurrency = 1
	}
	if w.MaintenanceConcurrency < 1 {
		w.MaintenanceConcurrency = 1
	}
	if w.TaskLease < 5*time.Second {
		w.TaskLease = 5 * time.Second
	}
	if w.ClaimWait < time.Second {
		w.ClaimWait = time.Second
	}
}

// PayrollConfig contains batch payroll orchestration configuration.
type PayrollConfig struct {
	// BatchPriority is the default queue priority for payroll batch tasks.
	// A submission may raise it, never lower it.
	BatchPriority int `env:"PAYROLL_BATCH_PRIORITY" envDefault:"10"`

	// FutureHorizon bounds how far into the future a pay period may start.
	FutureHorizon time.Duration `env:"PAYROLL_FUTURE_HORIZON" envDefault:"168h"` // 7 days

	// RetentionDays is how many days terminal job records are kept before the
	// retention sweep deletes them.
	RetentionDays int `env:"PAYROLL_RETENTION_DAYS" envDefault:"90"`

	// StuckJobTimeout is how long a processing record may sit without progress
	// before the stuck sweep fails it.
	StuckJobTimeout time.Duration `env:"PAYROLL_STUCK_JOB_TIMEOUT" envDefault:"30m"`

	// SweepBatchSize is the maximum number of job records touched per
	// maintenance sweep iteration.
	SweepBatchSize int `env:"PAYROLL_SWEEP_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to payroll configuration values.
func (p *PayrollConfig) Sanitize() {
	if p.BatchPriority < 0 {
		p.BatchPriority = 0
	}
	if p.FutureHorizon <= 0 {
		p.FutureHorizon = 168 * time.Hour
	}
	if p.RetentionDays < 1 {
		p.RetentionDays = 1
	}
	if p.StuckJobTimeout < time.Minute {
		p.StuckJobTimeout = time.Minute
	}
	if p.SweepBatchSize < 1 {
		p.SweepBatchSize = 1
	}
	if p.SweepBatchSize > 10000 {
		p.SweepBatchSize = 10000
	}
}

// RetentionAge converts RetentionDays to a duration for the retention sweep.
func (p *PayrollConfig) RetentionAge() time.Duration {
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}

// PaycalcConfig contains configuration for the external payroll calculation
// service the orchestrator consumes (calculator, employee directory, payment
// lookup).
type PaycalcConfig struct {
	// BaseURL is the base URL of the payroll calculation service.
	BaseURL string `env:"PAYCALC_BASE_URL" envDefault:"http://localhost:9090"`

	// APIKey authenticates requests to the payroll calculation service.
	APIKey string `env:"PAYCALC_API_KEY" envDefault:""`

	// Timeout bounds each request to the payroll calculation service.
	Timeout time.Duration `env:"PAYCALC_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to paycalc configuration values.
func (p *PaycalcConfig) Sanitize() {
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
}

// WebhooksConfig contains webhook delivery configuration.
type WebhooksConfig struct {
	// DeliveryTimeout bounds each outbound webhook POST.
	DeliveryTimeout time.Duration `env:"WEBHOOK_DELIVERY_TIMEOUT" envDefault:"30s"`

	// MaxAttempts is the total number of delivery attempts before a row is
	// left for the reaper.
	MaxAttempts int `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"5"`

	// RetryBackoff is the base delay before the first redelivery; it doubles
	// per attempt.
	RetryBackoff time.Duration `env:"WEBHOOK_RETRY_BACKOFF" envDefault:"1m"`

	// RetryBackoffMax caps the per-attempt redelivery delay.
	RetryBackoffMax time.Duration `env:"WEBHOOK_RETRY_BACKOFF_MAX" envDefault:"1h"`

	// SweepBatchSize is the number of due deliveries claimed per retry sweep
	// iteration.
	SweepBatchSize int `env:"WEBHOOK_SWEEP_BATCH_SIZE" envDefault:"100"`

	// RequirePublicEndpoints rejects subscription URLs whose host has no
	// registrable public suffix (loopback, bare hostnames, private-looking
	// addresses). Leave off for local development.
	RequirePublicEndpoints bool `env:"WEBHOOK_REQUIRE_PUBLIC_ENDPOINTS" envDefault:"false"`
}

// Sanitize applies guardrails to webhook configuration values.
func (w *WebhooksConfig) Sanitize() {
	if w.DeliveryTimeout <= 0 {
		w.DeliveryTimeout = 30 * time.Second
	}
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 1
	}
	if w.RetryBackoff <= 0 {
		w.RetryBackoff = time.Minute
	}
	if w.RetryBackoffMax < w.RetryBackoff {
		w.RetryBackoffMax = w.RetryBackoff
	}
	if w.SweepBatchSize < 1 {
		w.SweepBatchSize = 1
	}
}

// ReaperConfig contains queue reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending tasks before they are marked as failed.
	// Tasks stuck in pending status longer than this will be failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"1h"`

	// CompletedMaxAge is the maximum age for completed tasks before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed tasks before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// DeliveriesMaxAge is the maximum age for settled webhook delivery rows
	// before deletion. These rows keep per-subscription delivery history.
	DeliveriesMaxAge time.Duration `env:"REAPER_DELIVERIES_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.DeliveriesMaxAge < 24*time.Hour {
		r.DeliveriesMaxAge = 24 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
