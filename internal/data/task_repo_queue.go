package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data/pgxutil"
	"github.com/plateworks/paymaster/internal/domain/model"
)

// insertTaskParams groups parameters for inserting a task within a transaction.
type insertTaskParams struct {
	Req     *model.CreateTaskRequest
	Payload []byte
}

const defaultRetryDelaySeconds = 30

func (r *TaskRepo) retryDelay() time.Duration {
	if r.cfg.RetryDelaySeconds > 0 {
		return time.Duration(r.cfg.RetryDelaySeconds) * time.Second
	}
	return defaultRetryDelaySeconds * time.Second
}

// SQL used by ReserveNext to atomically reserve the next task.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM tasks
    WHERE queue = $1 AND status = 'pending' AND scheduled_at <= $2
    ORDER BY priority DESC, scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE tasks t
  SET
    status = 'running',
    started_at = COALESCE(t.started_at, $3),
    lease_expires_at = $4,
    updated_at = $5
  FROM cte
  WHERE t.id = cte.id
  RETURNING t.id, t.name, t.queue, t.status, t.priority, t.payload, t.job_record_id, t.fire_key, t.retry_count, t.max_retries, t.last_error, t.scheduled_at, t.started_at, t.completed_at, t.lease_expires_at, t.created_at, t.updated_at`

// Create creates a new task in the database with the given parameters.
func (r *TaskRepo) Create(
	ctx context.Context,
	req *model.CreateTaskRequest,
) (*model.Task, error) {
	if req == nil {
		return nil, errors.New("create task request is required")
	}

	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	payload, err := prepareTaskPayload(req)
	if err != nil {
		return nil, err
	}

	p := &insertTaskParams{
		Req:     req,
		Payload: payload,
	}

	var task *model.Task
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var insertErr error
			task, insertErr = r.insertTaskInTx(ctx, tx, p)
			return insertErr
		},
	}); txErr != nil {
		return nil, txErr
	}

	return task, nil
}

// CreateInTx inserts a task within an existing SQL transaction.
func (r *TaskRepo) CreateInTx(
	ctx context.Context,
	sqlTx *sql.Tx,
	req *model.CreateTaskRequest,
) (*model.Task, error) {
	if sqlTx == nil {
		return nil, errors.New("transaction is required")
	}
	if req == nil {
		return nil, errors.New("create task request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	payload, prepErr := prepareTaskPayload(req)
	if prepErr != nil {
		return nil, prepErr
	}

	params := &insertTaskParams{
		Req:     req,
		Payload: payload,
	}

	query, args := r.buildInsertQuery(params)
	row := sqlTx.QueryRowContext(ctx, query, args...)

	task, scanErr := scanTaskFromRow(row)
	if scanErr != nil {
		return nil, fmt.Errorf("collect task: %w", scanErr)
	}

	channel := "task_added_" + req.Queue
	if _, notifyErr := sqlTx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, task.ID); notifyErr != nil {
		return nil, fmt.Errorf("send task notification: %w", notifyErr)
	}

	return task, nil
}

// prepareTaskPayload validates and normalises the payload for task creation.
func prepareTaskPayload(req *model.CreateTaskRequest) ([]byte, error) {
	if req == nil {
		return nil, errors.New("create task request is required")
	}
	if len(req.Payload) == 0 {
		return []byte(`{}`), nil
	}

	// Marshaling a RawMessage validates it and passes the bytes through.
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return payload, nil
}

// insertTaskInTx inserts a task within a pgx.Tx and returns the created task.
func (r *TaskRepo) insertTaskInTx(ctx context.Context, tx pgx.Tx, params *insertTaskParams) (*model.Task, error) {
	if params == nil || params.Req == nil {
		return nil, errors.New("insert task params are required")
	}

	query, args := r.buildInsertQuery(params)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	task, collectErr := collectTaskFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect task: %w", collectErr)
	}

	channel := "task_added_" + params.Req.Queue
	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, task.ID); execErr != nil {
		return nil, fmt.Errorf("send task notification: %w", execErr)
	}

	return task, nil
}

// buildInsertQuery builds an INSERT statement for a task based on the provided parameters.
func (r *TaskRepo) buildInsertQuery(p *insertTaskParams) (string, []any) {
	if p == nil || p.Req == nil {
		return "", nil
	}

	query := `
      INSERT INTO tasks(name, queue, status, priority, payload, job_record_id, fire_key, scheduled_at, max_retries)
      VALUES ($1,$2,'pending',$3,$4,$5,$6,$7,$8)
      RETURNING ` + taskColumns

	var scheduledAt time.Time
	if p.Req.ScheduledAt != nil {
		scheduledAt = p.Req.ScheduledAt.UTC()
	} else {
		scheduledAt = r.timeProvider.Now().UTC()
	}

	args := []any{
		p.Req.Name,
		p.Req.Queue,
		p.Req.Priority,
		p.Payload,
		p.Req.JobRecordID,
		p.Req.FireKey,
		scheduledAt,
		p.Req.MaxRetries,
	}
	return query, args
}

// collectTaskFromRows collects a single task from pgx rows using pgx v5 helpers.
func collectTaskFromRows(rows pgx.Rows) (*model.Task, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	task, err := scanTaskFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return task, nil
}

type taskRowScanner interface {
	Scan(dest ...any) error
}

type taskRowData struct {
	payload                                []byte
	jobRecordID, fireKey, lastError        sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func (d *taskRowData) scanInto(scanner taskRowScanner, task *model.Task) error {
	return scanner.Scan(
		&task.ID,
		&task.Name,
		&task.Queue,
		&task.Status,
		&task.Priority,
		&d.payload,
		&d.jobRecordID,
		&d.fireKey,
		&task.RetryCount,
		&task.MaxRetries,
		&d.lastError,
		&task.ScheduledAt,
		&d.startedAt,
		&d.completedAt,
		&d.leaseExpiresAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
}

func (d *taskRowData) apply(task *model.Task) {
	task.Payload = cloneJSON(d.payload)
	task.JobRecordID = cloneNullableString(d.jobRecordID)
	task.FireKey = cloneNullableString(d.fireKey)
	task.LastError = cloneNullableString(d.lastError)
	task.StartedAt = cloneNullableTime(d.startedAt)
	task.CompletedAt = cloneNullableTime(d.completedAt)
	task.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
}

func scanTaskFromRow(scanner taskRowScanner) (*model.Task, error) {
	task := &model.Task{}
	var data taskRowData
	if err := data.scanInto(scanner, task); err != nil {
		return nil, err
	}

	data.apply(task)
	return task, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Advisory lock namespace for requeueExpired to avoid cross-queue contention.
const advisoryLockRequeueMajor int64 = 1001

func advisoryLockRequeueMinor(queue string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(queue))
	hashValue := h.Sum32()
	maxInt32 := uint32(math.MaxInt32)
	if hashValue > maxInt32 {
		hashValue &= maxInt32
	}
	return int64(hashValue)
}

// requeueExpired requeues expired tasks on the given queue and returns the number of tasks requeued.
func (r *TaskRepo) requeueExpired(ctx context.Context, queue string) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			minorKey := advisoryLockRequeueMinor(queue)
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRequeueMajor, minorKey).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
          UPDATE tasks
          SET status = 'pending', lease_expires_at = NULL
          WHERE queue = $1 AND status = 'running'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $2
        `, queue, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// ReserveNext reserves the next available task on the given queue for processing.
func (r *TaskRepo) ReserveNext(
	ctx context.Context,
	queue string,
	leaseSeconds int,
) (*model.Task, error) {
	if strings.TrimSpace(queue) == "" {
		return nil, errors.New("queue name is required")
	}

	if _, err := r.requeueExpired(ctx, queue); err != nil {
		return nil, fmt.Errorf("requeue expired tasks: %w", err)
	}

	var task *model.Task
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				queue,
				currentTime.UTC(),
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve task: %w", qerr)
			}
			defer rows.Close()

			t, cerr := collectTaskFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoTasksAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve task: %w", cerr)
			}
			task = t
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoTasksAvailable) {
			return nil, model.ErrNoTasksAvailable
		}
		return nil, err
	}
	return task, nil
}

// Heartbeat refreshes the lease on a running task.
func (r *TaskRepo) Heartbeat(ctx context.Context, taskID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	query := `
		UPDATE tasks
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.DB.ExecContext(ctx, query, taskID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	return true, nil
}

// Complete marks a task as completed successfully.
// The fire key stays on the row; the dedup index only covers non-terminal
// rows, so completing releases the key for the next window.
func (r *TaskRepo) Complete(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE tasks
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $3,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.DB.ExecContext(ctx, query, id, currentTime, currentTime)
	if err != nil {
		return false, fmt.Errorf("failed to complete task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Fail marks a running task as failed with the given error message.
// Tasks with retries left go back to pending with scheduled_at pushed out by
// params.RetryDelay; exhausted tasks go terminal.
func (r *TaskRepo) Fail(ctx context.Context, params core.FailTaskParams) (bool, error) {
	delay := params.RetryDelay
	if delay <= 0 {
		delay = r.retryDelay()
	}
	currentTime := r.timeProvider.Now()
	retryScheduledAt := currentTime.Add(delay)

	query := `
      UPDATE tasks
      SET
        last_error = $2,
        retry_count = retry_count + 1,
        status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
        completed_at = CASE WHEN retry_count + 1 >= max_retries THEN $3::timestamptz ELSE NULL END,
        lease_expires_at = NULL,
        scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at
                            ELSE $4::timestamptz END,
        updated_at = $5
      WHERE id = $1 AND status = 'running'
    `

	res, err := r.DB.ExecContext(ctx, query, params.ID, params.ErrMsg, currentTime.UTC(), retryScheduledAt.UTC(), currentTime.UTC())
	if err != nil {
		return false, fmt.Errorf("fail task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Stats returns statistics about tasks on the given queue in different states.
func (r *TaskRepo) Stats(ctx context.Context, queue string) (*model.TaskStats, error) {
	var s model.TaskStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM tasks
  WHERE queue = $1
  `, queue).Scan(
		&s.Pending,
		&s.Running,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get task stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new tasks are available.
func (r *TaskRepo) WaitForNotification(ctx context.Context, queue string) error {
	if strings.TrimSpace(queue) == "" {
		return errors.New("queue name is required")
	}

	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	channel := "task_added_" + queue
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a task by its ID.
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*model.Task, error) {
	var task *model.Task
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		task, err = collectTaskFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// Delete safely deletes a task by ID with state machine safety checks.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	currentTime := r.timeProvider.Now()
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE id = $1
		  AND status IN ('pending', 'completed', 'failed')
		  AND (lease_expires_at IS NULL OR lease_expires_at <= $2)
	`, id, currentTime.UTC())
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	task, err := r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to re-check task after delete attempt: %w", err)
	}

	if !isTaskStatusDeletable(task.Status) {
		return ErrTaskNotDeletable
	}

	if task.LeaseExpiresAt != nil && currentTime.Before(*task.LeaseExpiresAt) {
		return ErrTaskReserved
	}

	return errors.New("unexpected state: task is in deletable state but delete failed")
}

// isTaskStatusDeletable returns true if a task in the given status can be safely deleted.
func isTaskStatusDeletable(status model.TaskStatus) bool {
	return status == model.TaskStatusPending ||
		status == model.TaskStatusCompleted ||
		status == model.TaskStatusFailed
}
