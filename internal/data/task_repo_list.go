package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/plateworks/paymaster/internal/data/pgxutil"
	"github.com/plateworks/paymaster/internal/domain/model"
)

// taskFilterQueryBuilder accumulates WHERE clauses and positional args for task list queries.
type taskFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *taskFilterQueryBuilder) addFilter(condition string, value any) {
	if value != nil {
		b.query += fmt.Sprintf(" AND %s = $%d", condition, b.argIdx)
		b.args = append(b.args, value)
		b.argIdx++
	}
}

// buildTaskListQuery constructs the SQL query and args for the task list with filtering.
func buildTaskListQuery(opts *model.TaskListOptions) (string, []any) {
	if opts == nil {
		opts = &model.TaskListOptions{}
	}

	builder := &taskFilterQueryBuilder{
		query: `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE 1=1`,
		args:   []any{},
		argIdx: 1,
	}

	if opts.Queue != nil && *opts.Queue != "" {
		builder.addFilter("queue", *opts.Queue)
	}
	if opts.Status != nil && *opts.Status != "" {
		builder.addFilter("status", string(*opts.Status))
	}
	if opts.Name != nil && *opts.Name != "" {
		builder.addFilter("name", *opts.Name)
	}

	builder.query += `
		ORDER BY created_at DESC, id DESC`

	return builder.query, builder.args
}

// List returns tasks with optional filtering for admin and introspection views.
func (r *TaskRepo) List(ctx context.Context, opts *model.TaskListOptions) ([]*model.Task, error) {
	if opts == nil {
		opts = &model.TaskListOptions{}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}
	offset := max(opts.Offset, 0)

	query, args := buildTaskListQuery(opts)
	argIdx := len(args) + 1
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	var result []*model.Task
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query tasks with filters: %w", err)
		}
		defer rows.Close()

		vals, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Task])
		if err != nil {
			return fmt.Errorf("collect tasks: %w", err)
		}
		result = vals
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}
