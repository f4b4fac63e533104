// Package domain contains domain-specific business logic and entities for the paymaster task system.
package domain

import (
	"encoding/json"
	"time"
)

// ScheduledTask represents a recurring task definition that the scheduler
// materializes into queue tasks at regular intervals.
type ScheduledTask struct {
	ID       string          `json:"id"`
	TaskName string          `json:"task_name"`
	Queue    string          `json:"queue"`
	Payload  json.RawMessage `json:"payload"`
	// Interval is the scheduling cadence.
	// Note: encoding/json marshals time.Duration as a number of nanoseconds.
	// If this type becomes part of external config or API, consider a string-encoded duration (e.g., "30s", "1m").
	Interval     time.Duration `json:"interval"`
	LastQueuedAt *time.Time    `json:"last_queued_at,omitempty"`
	Enabled      bool          `json:"enabled"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// FindDueParams holds inputs for transactional FindDue.
type FindDueParams struct {
	Now   time.Time
	Limit int
}

// MarkQueuedParams holds inputs for transactional MarkQueued.
type MarkQueuedParams struct {
	ID  string
	Now time.Time
}

// UpsertTaskParams holds parameters for admin upsert-by-name in scheduled_tasks.
// Keeping params in a struct maintains the ≤3 parameter guideline.
type UpsertTaskParams struct {
	TaskName string
	Queue    string
	Payload  json.RawMessage
	Interval time.Duration
	// Enabled toggles the definition without deleting it. Nil keeps the stored value.
	Enabled *bool
}
