package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/plateworks/paymaster/internal/data/pgxutil"
	"github.com/plateworks/paymaster/internal/domain"
)

// ScheduledTasksAdminRepo provides admin operations for scheduled_tasks (upsert/delete by task name).
// This is separate from the concurrency-focused ScheduledTasksRepo used by the scheduler tick loop.
type ScheduledTasksAdminRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewScheduledTasksAdminRepo creates a new ScheduledTasksAdminRepo instance with the given database connection.
func NewScheduledTasksAdminRepo(db *sql.DB) *ScheduledTasksAdminRepo {
	return &ScheduledTasksAdminRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewScheduledTasksAdminRepoWithTimeProvider allows injecting a custom time provider (for testing).
func NewScheduledTasksAdminRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ScheduledTasksAdminRepo {
	return &ScheduledTasksAdminRepo{DB: db, timeProvider: tp}
}

// UpsertByTaskName creates or updates a scheduled task identified by taskName.
// Updates queue, payload, and scheduled_interval; preserves last_queued_at.
// A nil Enabled leaves the stored flag untouched on update and defaults to true on insert.
func (r *ScheduledTasksAdminRepo) UpsertByTaskName(ctx context.Context, req domain.UpsertTaskParams) error {
	if req.TaskName == "" {
		return errors.New("taskName is required")
	}
	if req.Queue == "" {
		return errors.New("queue is required")
	}
	secs := int64(req.Interval / time.Second)
	if secs <= 0 {
		return errors.New("interval must be positive")
	}
	now := r.timeProvider.Now().UTC()

	payload := []byte(req.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	var enabledVal any
	if req.Enabled != nil {
		enabledVal = *req.Enabled
	}

	q := `
		INSERT INTO scheduled_tasks (task_name, queue, payload, scheduled_interval, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, ($4::int * interval '1 second'), COALESCE($5::boolean, TRUE), $6, $6)
	ON CONFLICT (task_name) DO UPDATE
	SET queue = EXCLUDED.queue,
	    payload = EXCLUDED.payload,
	    scheduled_interval = EXCLUDED.scheduled_interval,
	    enabled = COALESCE($5::boolean, scheduled_tasks.enabled),
	    updated_at = EXCLUDED.updated_at
	`
	_, err := r.DB.ExecContext(ctx, q, req.TaskName, req.Queue, payload, secs, enabledVal, now)
	if err != nil {
		return fmt.Errorf("upsert scheduled_task: %w", err)
	}
	return nil
}

// DeleteByTaskName deletes a scheduled task identified by taskName.
func (r *ScheduledTasksAdminRepo) DeleteByTaskName(ctx context.Context, taskName string) (bool, error) {
	if taskName == "" {
		return false, errors.New("taskName is required")
	}
	q := `DELETE FROM scheduled_tasks WHERE task_name = $1`
	res, err := r.DB.ExecContext(ctx, q, taskName)
	if err != nil {
		return false, fmt.Errorf("delete scheduled_task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns scheduled task definitions ordered by task name.
func (r *ScheduledTasksAdminRepo) List(ctx context.Context, limit, offset int) ([]domain.ScheduledTask, error) {
	if limit <= 0 {
		limit = 100
	}
	offset = max(offset, 0)

	q := `
		SELECT ` + scheduledTaskColumns + `
		FROM scheduled_tasks
		ORDER BY task_name ASC
		LIMIT $1 OFFSET $2
	`

	var tasks []domain.ScheduledTask
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, q, limit, offset)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		collected, collectErr := pgx.CollectRows(rows, rowToScheduledTask)
		if collectErr != nil {
			return collectErr
		}
		tasks = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list scheduled_tasks: %w", err)
	}

	return tasks, nil
}
