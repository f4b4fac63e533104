package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data/pgxutil"
	"github.com/plateworks/paymaster/internal/domain/model"
)

// ErrJobRecordNotFound is returned when a job record is not found.
var ErrJobRecordNotFound = errors.New("job record not found")

// Reaper advisory lock minors for job record sweeps, under the shared major key.
const (
	advisoryLockReaperDeleteRecords = 4 // minor key for DeleteOldTerminal
	advisoryLockReaperStuckRecords  = 5 // minor key for FailStuckProcessing
)

const jobRecordColumns = `
  id,
  tenant_id,
  job_type,
  status,
  total_items,
  completed_items,
  failed_items,
  metadata,
  error_message,
  created_by,
  started_at,
  completed_at,
  created_at,
  updated_at
`

// JobRecordRepoConfig holds configuration options for the job record repository.
type JobRecordRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRecordRepo provides database operations for payroll job records.
// Every status transition is a conditional UPDATE so terminal rows are never
// mutated, no matter how stale the caller's view of the record is.
type JobRecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRecordRepo creates a new JobRecordRepo instance.
func NewJobRecordRepo(db *sql.DB, cfg JobRecordRepoConfig) *JobRecordRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRecordRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

// Create inserts a new job record in pending status.
func (r *JobRecordRepo) Create(ctx context.Context, params core.CreateJobRecordParams) (*model.JobRecord, error) {
	if strings.TrimSpace(params.TenantID) == "" {
		return nil, errors.New("tenant id is required")
	}
	if !params.JobType.Valid() {
		return nil, fmt.Errorf("invalid job type: %s", params.JobType)
	}
	if params.TotalItems < 0 {
		return nil, errors.New("total items cannot be negative")
	}

	meta := params.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}

	var out model.JobRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, `
			INSERT INTO job_records (tenant_id, job_type, status, total_items, metadata, created_by)
			VALUES ($1, $2, 'pending', $3, $4, $5)
			RETURNING `+jobRecordColumns,
			params.TenantID, params.JobType, params.TotalItems, []byte(meta), params.CreatedBy)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.JobRecord])
		if collectErr != nil {
			return collectErr
		}
		out = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}
	return &out, nil
}

// GetByID retrieves a job record by its ID.
func (r *JobRecordRepo) GetByID(ctx context.Context, id string) (*model.JobRecord, error) {
	var out model.JobRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, `
			SELECT `+jobRecordColumns+`
			FROM job_records
			WHERE id = $1
		`, id)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.JobRecord])
		if collectErr != nil {
			return collectErr
		}
		out = collected
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job record: %w", err)
	}
	return &out, nil
}

// buildJobRecordListQuery constructs the SQL query and args for the tenant-scoped record list.
func buildJobRecordListQuery(opts *model.JobRecordListOptions) (string, []any) {
	builder := &taskFilterQueryBuilder{
		query: `
		SELECT id, job_type, status, total_items, completed_items, failed_items, created_at, completed_at
		FROM job_records
		WHERE tenant_id = $1`,
		args:   []any{opts.TenantID},
		argIdx: 2,
	}

	if opts.Status != nil && *opts.Status != "" {
		builder.addFilter("status", string(*opts.Status))
	}
	if opts.JobType != nil && *opts.JobType != "" {
		builder.addFilter("job_type", string(*opts.JobType))
	}

	builder.query += `
		ORDER BY created_at DESC, id DESC`

	return builder.query, builder.args
}

// List returns job record summaries for a tenant, newest first.
func (r *JobRecordRepo) List(ctx context.Context, opts *model.JobRecordListOptions) ([]*model.JobSummary, error) {
	if opts == nil || strings.TrimSpace(opts.TenantID) == "" {
		return nil, errors.New("tenant id is required")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}
	offset := max(opts.Offset, 0)

	query, args := buildJobRecordListQuery(opts)
	argIdx := len(args) + 1
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	var summaries []model.JobSummary
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, args...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectRows(rows, pgx.RowToStructByName[model.JobSummary])
		if collectErr != nil {
			return collectErr
		}
		summaries = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list job records: %w", err)
	}

	result := make([]*model.JobSummary, len(summaries))
	for i := range summaries {
		result[i] = &summaries[i]
	}
	return result, nil
}

// buildJobRecordUpdateSQL constructs the UPDATE statement for a job record and its args.
func (r *JobRecordRepo) buildJobRecordUpdateSQL(params core.UpdateJobRecordParams) (string, []any, error) {
	setParts := make([]string, 0, 6)
	args := make([]any, 0, 7)
	argIdx := 1

	if params.Status != nil {
		if !params.Status.Valid() {
			return "", nil, fmt.Errorf("invalid job status: %s", *params.Status)
		}
		setParts = append(setParts, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*params.Status))
		argIdx++
	}
	if params.CompletedItems != nil {
		setParts = append(setParts, fmt.Sprintf("completed_items = $%d", argIdx))
		args = append(args, *params.CompletedItems)
		argIdx++
	}
	if params.FailedItems != nil {
		setParts = append(setParts, fmt.Sprintf("failed_items = $%d", argIdx))
		args = append(args, *params.FailedItems)
		argIdx++
	}
	if params.ErrorMessage != nil {
		setParts = append(setParts, fmt.Sprintf("error_message = $%d", argIdx))
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if len(params.MetadataPatch) > 0 {
		setParts = append(setParts, fmt.Sprintf("metadata = metadata || $%d::jsonb", argIdx))
		args = append(args, []byte(params.MetadataPatch))
		argIdx++
	}

	if len(setParts) == 0 {
		return "", nil, errors.New("no fields to update")
	}

	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", argIdx))
	args = append(args, r.timeProvider.Now().UTC())
	argIdx++

	args = append(args, params.ID)
	query := "UPDATE job_records SET " + strings.Join(setParts, ", ") +
		fmt.Sprintf(" WHERE id = $%d AND status IN ('pending', 'processing')", argIdx)
	return query, args, nil
}

// Update applies a partial update to a non-terminal job record.
// The metadata patch merges with jsonb || and never clears keys it does not mention.
func (r *JobRecordRepo) Update(ctx context.Context, params core.UpdateJobRecordParams) (bool, error) {
	query, args, err := r.buildJobRecordUpdateSQL(params)
	if err != nil {
		return false, err
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update job record: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// MarkProcessing atomically claims a pending record for execution.
func (r *JobRecordRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_records
		SET status = 'processing',
		    started_at = COALESCE(started_at, $2),
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("mark job record processing: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processing rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// IncrementProgress bumps progress counters on a processing record.
// Touching updated_at doubles as the liveness signal for the stuck-record sweep.
func (r *JobRecordRepo) IncrementProgress(ctx context.Context, params core.IncrementProgressParams) (bool, error) {
	if params.CompletedDelta < 0 || params.FailedDelta < 0 {
		return false, errors.New("progress deltas cannot be negative")
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_records
		SET completed_items = completed_items + $2,
		    failed_items = failed_items + $3,
		    updated_at = $4
		WHERE id = $1 AND status = 'processing'
	`, params.ID, params.CompletedDelta, params.FailedDelta, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("increment job record progress: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment progress rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Complete finalises a processing record with its terminal counters.
func (r *JobRecordRepo) Complete(ctx context.Context, params core.CompleteJobRecordParams) (bool, error) {
	meta := params.MetadataPatch
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_records
		SET status = 'completed',
		    completed_items = $2,
		    failed_items = $3,
		    metadata = metadata || $4::jsonb,
		    error_message = NULL,
		    completed_at = $5,
		    updated_at = $5
		WHERE id = $1 AND status = 'processing'
	`, params.ID, params.CompletedItems, params.FailedItems, []byte(meta), currentTime)
	if err != nil {
		return false, fmt.Errorf("complete job record: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Fail marks a pending or processing record as failed with the given message.
func (r *JobRecordRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_records
		SET status = 'failed',
		    error_message = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id, errMsg, currentTime)
	if err != nil {
		return false, fmt.Errorf("fail job record: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Cancel marks a pending or processing record as cancelled.
// A non-empty reason lands in error_message so the status poll can show it.
func (r *JobRecordRepo) Cancel(ctx context.Context, params core.CancelJobRecordParams) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE job_records
		SET status = 'cancelled',
		    error_message = NULLIF($2, ''),
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, params.ID, params.Reason, currentTime)
	if err != nil {
		return false, fmt.Errorf("cancel job record: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteOldTerminal deletes terminal job records older than MaxAge.
// Processes up to BatchSize rows per call to prevent long locks and I/O spikes.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
func (r *JobRecordRepo) DeleteOldTerminal(ctx context.Context, params core.DeleteOldJobRecordsParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDeleteRecords).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			cutoffTime := r.timeProvider.Now().Add(-params.MaxAge).UTC()

			res, err := tx.ExecContext(ctx, `
				DELETE FROM job_records
				WHERE id IN (
					SELECT id FROM job_records
					WHERE status IN ('completed', 'failed', 'cancelled')
					  AND (completed_at < $1 OR (completed_at IS NULL AND updated_at < $1))
					ORDER BY COALESCE(completed_at, updated_at)
					LIMIT $2
				)
			`, cutoffTime, params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old job records: %w", err)
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

// FailStuckProcessing fails processing records whose updated_at has not moved
// for StuckFor. Returns the IDs of the flipped records so callers can drop
// their cached status snapshots.
func (r *JobRecordRepo) FailStuckProcessing(ctx context.Context, params core.FailStuckJobRecordsParams) ([]string, error) {
	if params.Limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}
	if params.StuckFor <= 0 {
		return nil, errors.New("stuck duration must be greater than zero")
	}

	message := params.Message
	if message == "" {
		message = "Job stalled with no progress"
	}

	var flipped []string
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperStuckRecords).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-params.StuckFor)

			rows, err := tx.QueryContext(ctx, `
				UPDATE job_records
				SET status = 'failed',
				    error_message = $1,
				    completed_at = $2,
				    updated_at = $2
				WHERE id IN (
					SELECT id FROM job_records
					WHERE status = 'processing'
					  AND updated_at < $3
					ORDER BY updated_at
					LIMIT $4
				)
				RETURNING id
			`, message, currentTime.UTC(), cutoffTime.UTC(), params.Limit)
			if err != nil {
				return fmt.Errorf("fail stuck job records: %w", err)
			}
			defer rows.Close()

			for rows.Next() {
				var id string
				if scanErr := rows.Scan(&id); scanErr != nil {
					return fmt.Errorf("scan flipped record id: %w", scanErr)
				}
				flipped = append(flipped, id)
			}
			return rows.Err()
		},
	})
	if err != nil {
		return nil, err
	}
	return flipped, nil
}
