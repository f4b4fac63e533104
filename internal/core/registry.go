package core

import (
	"sort"
	"strings"
	"time"
)

// Task names known to the queue. Enqueue rejects anything the registry
// cannot resolve.
const (
	TaskPayrollRunBatch = "payroll.run_batch"
	TaskWebhookDeliver  = "webhook.deliver"
	TaskJobRetention    = "maintenance.job_retention"
	TaskStuckJobs       = "maintenance.stuck_jobs"
	TaskWebhookRetry    = "maintenance.webhook_retry"
)

// Queue names workers can subscribe to.
const (
	QueuePayroll     = "payroll"
	QueueWebhooks    = "webhooks"
	QueueMaintenance = "maintenance"
)

const maintenanceTaskPrefix = "maintenance."

// RetryPolicy describes how often a failed task re-enters the queue and how
// the delay between attempts grows.
type RetryPolicy struct {
	// MaxRetries caps total attempts; zero fails a task on its first error.
	MaxRetries int
	// BaseDelay seeds the exponential backoff (base × 2^retry_count).
	BaseDelay time.Duration
	// MaxDelay clamps the computed backoff when positive.
	MaxDelay time.Duration
}

// Delay returns the backoff before the next attempt given the number of
// retries already consumed.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}
	// Shifting past 30 doubles well beyond any sane MaxDelay.
	if retryCount > 30 {
		retryCount = 30
	}

	delay := p.BaseDelay << uint(retryCount)
	if delay <= 0 {
		delay = p.MaxDelay
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// TaskDefinition binds a task name to its queue routing and retry policy.
type TaskDefinition struct {
	Name  string
	Queue string
	Retry RetryPolicy
}

// TaskRegistry resolves task names to their queue and retry policy.
// Names under "maintenance." resolve to the maintenance queue even when not
// registered individually, so new sweeps need no registry change.
type TaskRegistry struct {
	defs map[string]TaskDefinition
}

// NewTaskRegistry constructs a registry from the provided definitions.
// Later definitions with the same name replace earlier ones.
func NewTaskRegistry(defs ...TaskDefinition) *TaskRegistry {
	r := &TaskRegistry{defs: make(map[string]TaskDefinition, len(defs))}
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		r.defs[def.Name] = def
	}
	return r
}

// DefaultTaskRegistry returns the registry the service ships with.
func DefaultTaskRegistry() *TaskRegistry {
	return NewTaskRegistry(
		TaskDefinition{
			Name:  TaskPayrollRunBatch,
			Queue: QueuePayroll,
			Retry: RetryPolicy{MaxRetries: 3, BaseDelay: 30 * time.Second, MaxDelay: 15 * time.Minute},
		},
		TaskDefinition{
			Name:  TaskWebhookDeliver,
			Queue: QueueWebhooks,
			// The delivery sweep owns redelivery; queue-level retries stay off.
			Retry: RetryPolicy{MaxRetries: 0},
		},
		TaskDefinition{
			Name:  TaskJobRetention,
			Queue: QueueMaintenance,
			Retry: RetryPolicy{MaxRetries: 0},
		},
		TaskDefinition{
			Name:  TaskStuckJobs,
			Queue: QueueMaintenance,
			Retry: RetryPolicy{MaxRetries: 0},
		},
		TaskDefinition{
			Name:  TaskWebhookRetry,
			Queue: QueueMaintenance,
			Retry: RetryPolicy{MaxRetries: 0},
		},
	)
}

// Resolve returns the definition for a task name.
// Unregistered maintenance.* names fall back to the maintenance queue with no retries.
func (r *TaskRegistry) Resolve(name string) (TaskDefinition, bool) {
	if r == nil {
		return TaskDefinition{}, false
	}
	if def, ok := r.defs[name]; ok {
		return def, true
	}
	if strings.HasPrefix(name, maintenanceTaskPrefix) && len(name) > len(maintenanceTaskPrefix) {
		return TaskDefinition{
			Name:  name,
			Queue: QueueMaintenance,
			Retry: RetryPolicy{MaxRetries: 0},
		}, true
	}
	return TaskDefinition{}, false
}

// Queues returns the distinct queue names of all registered definitions, sorted.
func (r *TaskRegistry) Queues() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.defs))
	for _, def := range r.defs {
		seen[def.Queue] = struct{}{}
	}
	queues := make([]string, 0, len(seen))
	for q := range seen {
		queues = append(queues, q)
	}
	sort.Strings(queues)
	return queues
}
