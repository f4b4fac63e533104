package data

import (
	"database/sql"
	"errors"
	"log/slog"
)

var (
	// ErrTaskNotFound is returned when a task is not found.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotDeletable is returned when attempting to delete a task that is not in a deletable state.
	ErrTaskNotDeletable = errors.New("task cannot be deleted (must be in pending, completed, or failed status)")
	// ErrTaskReserved is returned when attempting to delete a task that has an active lease.
	ErrTaskReserved = errors.New("task is reserved and cannot be deleted")
)

// RepoConfig holds configuration options for the task repository.
type RepoConfig struct {
	RetryDelaySeconds int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// TaskRepo provides database operations for queue task management.
type TaskRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewTaskRepo creates a new TaskRepo instance with the given database connection and configuration.
func NewTaskRepo(db *sql.DB, cfg RepoConfig) *TaskRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &TaskRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const taskColumns = `
  id,
  name,
  queue,
  status,
  priority,
  payload,
  job_record_id,
  fire_key,
  retry_count,
  max_retries,
  last_error,
  scheduled_at,
  started_at,
  completed_at,
  lease_expires_at,
  created_at,
  updated_at
`
