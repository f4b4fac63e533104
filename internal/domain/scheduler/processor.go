// Package scheduler contains the enqueue flow for due scheduled tasks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plateworks/paymaster/internal/domain"
)

// TaskStore executes scheduler persistence operations within the ambient transaction.
type TaskStore interface {
	MarkQueued(ctx context.Context, params domain.MarkQueuedParams) (bool, error)
}

// TaskEnqueuer creates a queue task for the provided definition using the supplied fire key.
// Implementations report created=false when a task with the same fire key already exists.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task domain.ScheduledTask, fireKey string) (bool, error)
}

// ProcessParams supplies the per-invocation collaborators for Process.
type ProcessParams struct {
	Task     domain.ScheduledTask
	Now      time.Time
	Store    TaskStore
	Enqueuer TaskEnqueuer
}

// ProcessResult captures the outcome of processing a scheduled task.
type ProcessResult struct {
	Worked       bool
	Enqueued     bool
	MarkedQueued bool
	FireKey      string
}

// Process evaluates a scheduled task and enqueues its current window when due.
// The queue task is created before last_queued_at advances: a crash in between
// re-runs the window on the next tick, and the fire key turns the repeat
// enqueue into a no-op.
func Process(ctx context.Context, params ProcessParams) (*ProcessResult, error) {
	if params.Store == nil {
		return nil, errors.New("task store is required")
	}
	if params.Enqueuer == nil {
		return nil, errors.New("task enqueuer is required")
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}

	task := params.Task
	result := &ProcessResult{}

	if !task.Enabled || !isTaskDue(task, now) {
		return result, nil
	}

	fireKey := ComputeFireKey(task, now)
	result.FireKey = fireKey

	created, err := params.Enqueuer.Enqueue(ctx, task, fireKey)
	if err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	if created {
		result.Enqueued = true
		result.Worked = true
	}

	marked, err := params.Store.MarkQueued(ctx, domain.MarkQueuedParams{
		ID:  task.ID,
		Now: now,
	})
	if err != nil {
		return nil, fmt.Errorf("mark task queued: %w", err)
	}
	if marked {
		result.MarkedQueued = true
		result.Worked = true
	}

	return result, nil
}

func isTaskDue(task domain.ScheduledTask, now time.Time) bool {
	if task.LastQueuedAt == nil {
		return true
	}
	return !task.LastQueuedAt.Add(task.Interval).After(now)
}

// ComputeFireKey derives an idempotent fire key for the provided task at the given time.
// Times within the same interval-aligned window map to the same key.
func ComputeFireKey(task domain.ScheduledTask, now time.Time) string {
	intervalSec := int64(task.Interval / time.Second)
	if intervalSec <= 0 {
		return fmt.Sprintf("%s@%d", task.TaskName, now.Unix())
	}
	slot := now.Unix() / intervalSec
	return fmt.Sprintf("%s@%d", task.TaskName, slot)
}
