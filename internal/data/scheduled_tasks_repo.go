package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/plateworks/paymaster/internal/data/pgxutil"
	"github.com/plateworks/paymaster/internal/domain"
)

// ScheduledTasksRepo provides database operations for scheduled task management.
type ScheduledTasksRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewScheduledTasksRepo creates a new ScheduledTasksRepo instance with the given database connection.
func NewScheduledTasksRepo(db *sql.DB) *ScheduledTasksRepo {
	return &ScheduledTasksRepo{
		DB:           db,
		timeProvider: &RealTimeProvider{},
	}
}

// NewScheduledTasksRepoWithTimeProvider creates a ScheduledTasksRepo with a custom TimeProvider (useful for testing).
func NewScheduledTasksRepoWithTimeProvider(db *sql.DB, timeProvider TimeProvider) *ScheduledTasksRepo {
	return &ScheduledTasksRepo{
		DB:           db,
		timeProvider: timeProvider,
	}
}

// fnvHash computes FNV-1a 64-bit hash of the given string for use as advisory lock key.
func fnvHash(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	// Advisory locks accept BIGINT; constrain the unsigned hash into int64 range before casting.
	u := h.Sum64()
	if u > uint64(math.MaxInt64) {
		u %= uint64(math.MaxInt64)
	}
	return int64(u) // #nosec G115 -- value is explicitly bounded to <= MaxInt64 before casting to int64.
}

const scheduledTaskColumns = `
  id,
  task_name,
  queue,
  payload,
  EXTRACT(EPOCH FROM scheduled_interval)::bigint AS interval_seconds,
  last_queued_at,
  enabled,
  updated_at
`

// FindDue finds enabled scheduled tasks that are due for execution.
// Uses FOR UPDATE SKIP LOCKED to prevent concurrent schedulers from processing the same tasks.
// A task is due when last_queued_at IS NULL OR last_queued_at + interval <= now.
func (r *ScheduledTasksRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTask, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		SELECT ` + scheduledTaskColumns + `
		FROM scheduled_tasks
		WHERE enabled
		  AND (last_queued_at IS NULL OR last_queued_at + scheduled_interval <= $1)
		ORDER BY
			CASE WHEN last_queued_at IS NULL THEN 0 ELSE 1 END,
			last_queued_at ASC,
			created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	// Use pgx via stdlib bridge to leverage pgx v5 helpers
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			// connection close failure is best-effort and ignored
			_ = cerr
		}
	}()

	var tasks []domain.ScheduledTask
	err = conn.Raw(func(dc any) error {
		stdConn, ok := dc.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type: %T", dc)
		}
		pgxConn := stdConn.Conn()
		rows, queryErr := pgxConn.Query(ctx, query, now.UTC(), limit)
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
		return nil, fmt.Errorf("query due scheduled tasks: %w", err)
	}

	return tasks, nil
}

// FindDueTx is the transactional variant of FindDue. It must be paired with any updates
// (e.g., MarkQueuedTx) within the same transaction to ensure SKIP LOCKED semantics hold
// across selection and subsequent updates.
func (r *ScheduledTasksRepo) FindDueTx(
	ctx context.Context,
	tx *sql.Tx,
	p domain.FindDueParams,
) ([]domain.ScheduledTask, error) {
	if p.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", p.Limit)
	}

	query := `
		SELECT ` + scheduledTaskColumns + `
		FROM scheduled_tasks
		WHERE enabled
		  AND (last_queued_at IS NULL OR last_queued_at + scheduled_interval <= $1)
		ORDER BY
			CASE WHEN last_queued_at IS NULL THEN 0 ELSE 1 END,
			last_queued_at ASC,
			created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, queryErr := tx.QueryContext(ctx, query, p.Now.UTC(), p.Limit)
	if queryErr != nil {
		return nil, fmt.Errorf("query due scheduled tasks: %w", queryErr)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			// best-effort close; nothing further to do
			_ = closeErr
		}
	}()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		task, scanErr := scanScheduledTaskFromSQLRows(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan scheduled task: %w", scanErr)
		}
		tasks = append(tasks, task)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate scheduled tasks: %w", rowsErr)
	}

	return tasks, nil
}

// MarkQueued updates the last_queued_at timestamp for a scheduled task.
// Return semantics:
//   - (true, nil): task found and updated
//   - (false, nil): task not found
//   - (false, err): update failed due to error
func (r *ScheduledTasksRepo) MarkQueued(ctx context.Context, id string, now time.Time) (bool, error) {
	currentTime := r.timeProvider.Now()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET last_queued_at = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, now.UTC(), currentTime.UTC())
	if err != nil {
		return false, fmt.Errorf("update scheduled task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// MarkQueuedTx updates last_queued_at within an existing transaction.
// Use this with FindDueTx to ensure selection and update happen under the same locks.
func (r *ScheduledTasksRepo) MarkQueuedTx(ctx context.Context, tx *sql.Tx, p domain.MarkQueuedParams) (bool, error) {
	currentTime := r.timeProvider.Now()

	res, err := tx.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET last_queued_at = $2,
		    updated_at = $3
		WHERE id = $1
	`, p.ID, p.Now.UTC(), currentTime.UTC())
	if err != nil {
		return false, fmt.Errorf("update scheduled task (tx): %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected (tx): %w", err)
	}

	return rowsAffected > 0, nil
}

// TryWithTaskLock attempts to acquire an advisory lock for the given task name.
// Uses FNV-1a 64-bit hash of task_name for the lock key.
// If the lock is acquired, executes fn within the same transaction.
// Return semantics:
//   - (false, nil): lock not acquired; fn was not executed
//   - (true, nil): lock acquired; fn executed and succeeded
//   - (true, err): lock acquired; fn executed and failed with err
func (r *ScheduledTasksRepo) TryWithTaskLock(
	ctx context.Context,
	taskName string,
	fn func(context.Context, *sql.Tx) error,
) (bool, error) {
	lockKey := fnvHash(taskName)

	var locked bool
	var fnErr error

	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			// Try to acquire advisory lock within transaction
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1)", lockKey).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock for task %s: %w", taskName, err)
			}

			if !locked {
				return nil // Lock not acquired, but no error
			}

			// Lock acquired, execute function with the same transaction
			fnErr = fn(ctx, tx)
			// Don't return fnErr here - we want to commit the transaction regardless
			// The function error will be returned separately
			return nil
		},
	})
	if err != nil {
		return false, err
	}

	return locked, fnErr
}

// scheduledTaskRow represents the database row structure for scheduled tasks.
// This struct matches the database schema exactly, allowing pgx.RowToStructByName to work.
type scheduledTaskRow struct {
	ID              string        `db:"id"`
	TaskName        string        `db:"task_name"`
	Queue           string        `db:"queue"`
	Payload         []byte        `db:"payload"`
	IntervalSeconds sql.NullInt64 `db:"interval_seconds"`
	LastQueuedAt    sql.NullTime  `db:"last_queued_at"`
	Enabled         bool          `db:"enabled"`
	UpdatedAt       time.Time     `db:"updated_at"`
}

// toDomainScheduledTask converts a scheduledTaskRow to domain.ScheduledTask.
func (r *scheduledTaskRow) toDomainScheduledTask() domain.ScheduledTask {
	if r == nil {
		return domain.ScheduledTask{}
	}

	task := domain.ScheduledTask{
		ID:        r.ID,
		TaskName:  r.TaskName,
		Queue:     r.Queue,
		Enabled:   r.Enabled,
		UpdatedAt: r.UpdatedAt,
	}

	if r.IntervalSeconds.Valid {
		task.Interval = time.Duration(r.IntervalSeconds.Int64) * time.Second
	}
	if r.Payload != nil {
		task.Payload = json.RawMessage(r.Payload)
	}
	if r.LastQueuedAt.Valid {
		task.LastQueuedAt = &r.LastQueuedAt.Time
	}

	return task
}

// rowToScheduledTask maps a pgx row to domain.ScheduledTask using pgx v5 generics.
func rowToScheduledTask(row pgx.CollectableRow) (domain.ScheduledTask, error) {
	dbRow, err := pgx.RowToStructByName[scheduledTaskRow](row)
	if err != nil {
		return domain.ScheduledTask{}, fmt.Errorf("scan scheduled task row: %w", err)
	}
	return dbRow.toDomainScheduledTask(), nil
}

// scanScheduledTaskFromSQLRows scans a database/sql row into a ScheduledTask struct.
// This is used for methods that work with database/sql instead of pgx.
func scanScheduledTaskFromSQLRows(rows *sql.Rows) (domain.ScheduledTask, error) {
	var dbRow scheduledTaskRow
	err := rows.Scan(
		&dbRow.ID,
		&dbRow.TaskName,
		&dbRow.Queue,
		&dbRow.Payload,
		&dbRow.IntervalSeconds,
		&dbRow.LastQueuedAt,
		&dbRow.Enabled,
		&dbRow.UpdatedAt,
	)
	if err != nil {
		return domain.ScheduledTask{}, fmt.Errorf("scan scheduled task row: %w", err)
	}
	return dbRow.toDomainScheduledTask(), nil
}
