// Package core provides the business logic and service layer for the paymaster payroll system.
package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/plateworks/paymaster/internal/domain"
)

// ScheduledTasksRepository defines the interface for scheduled task data operations.
// It provides concurrency-safe operations for managing recurring task definitions.
type ScheduledTasksRepository interface {
	// FindDue finds enabled scheduled tasks that are due for execution.
	// Uses FOR UPDATE SKIP LOCKED to prevent concurrent schedulers from processing the same tasks.
	// A task is due when last_queued_at IS NULL OR last_queued_at + interval <= now.
	FindDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTask, error)

	// FindDueTx is the transactional variant of FindDue; rows remain locked until tx ends.
	FindDueTx(ctx context.Context, tx *sql.Tx, p domain.FindDueParams) ([]domain.ScheduledTask, error)

	// MarkQueued updates the last_queued_at timestamp for a scheduled task.
	// Return semantics:
	//   - (true, nil): task found and updated
	//   - (false, nil): task not found
	//   - (false, err): update failed due to error
	MarkQueued(ctx context.Context, id string, now time.Time) (bool, error)

	// MarkQueuedTx updates last_queued_at within an existing transaction.
	MarkQueuedTx(ctx context.Context, tx *sql.Tx, p domain.MarkQueuedParams) (bool, error)

	// TryWithTaskLock attempts to acquire an advisory lock for the given task name.
	// Uses FNV-1a 64-bit hash of task_name for the lock key.
	// If the lock is acquired, executes fn within the same transaction.
	// Return semantics:
	//   - (false, nil): lock not acquired; fn was not executed
	//   - (true, nil): lock acquired; fn executed and succeeded
	//   - (true, err): lock acquired; fn executed and failed with err
	TryWithTaskLock(
		ctx context.Context,
		taskName string,
		fn func(context.Context, *sql.Tx) error,
	) (bool, error)
}

// ScheduledTasksAdminRepository defines minimal admin operations for creating/updating/removing
// scheduled task definitions by name. Used by the admin CLI to reconcile scheduler state.
type ScheduledTasksAdminRepository interface {
	// UpsertByTaskName creates or updates a scheduled task identified by taskName.
	// If the task exists, updates queue, payload, and scheduled_interval; preserves last_queued_at.
	UpsertByTaskName(ctx context.Context, req domain.UpsertTaskParams) error
	// DeleteByTaskName deletes a scheduled task by its taskName. Returns true if a row was deleted.
	DeleteByTaskName(ctx context.Context, taskName string) (bool, error)
	// List returns scheduled task definitions ordered by task name.
	List(ctx context.Context, limit, offset int) ([]domain.ScheduledTask, error)
}

// TaskScheduler defines the interface for the scheduler service.
type TaskScheduler interface {
	// Tick processes due scheduled tasks and enqueues their current windows.
	// Returns the number of tasks processed.
	Tick(ctx context.Context, now time.Time) (int, error)
}

// SchedulerConfig holds configuration for the task scheduler.
type SchedulerConfig struct {
	BatchSize       int `json:"batch_size"`
	DefaultPriority int `json:"default_priority"`
}

// DefaultSchedulerConfig returns a SchedulerConfig with sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BatchSize:       25,
		DefaultPriority: 0,
	}
}
