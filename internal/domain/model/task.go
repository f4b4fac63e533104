package model

import (
	"encoding/json"
	"errors"
	"time"
)

// TaskStatus represents the current status of a queued task.
type TaskStatus string

const (
	// TaskStatusPending indicates a task is waiting to be claimed.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates a worker holds the task under a lease.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates a task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates a task exhausted its retries.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the TaskStatus is valid.
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusRunning || s == TaskStatusCompleted ||
		s == TaskStatusFailed
}

// ErrNoTasksAvailable is returned when no tasks are available for reservation.
var ErrNoTasksAvailable = errors.New("no tasks available")

// Task represents one unit of work on the at-least-once queue.
// FireKey, when set, dedupes scheduler enqueues: it is unique among
// non-terminal rows so a restarted scheduler cannot double-enqueue a window.
type Task struct {
	ID             string          `json:"id"                         db:"id"`
	Name           string          `json:"name"                       db:"name"`
	Queue          string          `json:"queue"                      db:"queue"`
	Status         TaskStatus      `json:"status"                     db:"status"`
	Priority       int             `json:"priority"                   db:"priority"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	JobRecordID    *string         `json:"job_record_id,omitempty"    db:"job_record_id"`
	FireKey        *string         `json:"fire_key,omitempty"         db:"fire_key"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxRetries     int             `json:"max_retries"                db:"max_retries"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// TaskStats represents queue depth per task state.
type TaskStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// CreateTaskRequest carries the resolved parameters for inserting a queue task.
// Queue and MaxRetries come from the task registry; callers do not pick them freely.
type CreateTaskRequest struct {
	Name        string          `json:"name"`
	Queue       string          `json:"queue"`
	Priority    int             `json:"priority"`
	Payload     json.RawMessage `json:"payload"`
	MaxRetries  int             `json:"max_retries"`
	JobRecordID *string         `json:"job_record_id,omitempty"`
	FireKey     *string         `json:"fire_key,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
}

// Validate checks the create task request for required fields.
func (r *CreateTaskRequest) Validate() error {
	if r.Name == "" {
		return errors.New("task name is required")
	}
	if r.Queue == "" {
		return errors.New("task queue is required")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if r.FireKey != nil && *r.FireKey == "" {
		return errors.New("fire key cannot be empty when provided")
	}
	return nil
}

// TaskListOptions holds filters for listing queue tasks.
type TaskListOptions struct {
	Queue  *string     `json:"queue,omitempty"`
	Status *TaskStatus `json:"status,omitempty"`
	Name   *string     `json:"name,omitempty"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
