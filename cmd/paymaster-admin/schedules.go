package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/plateworks/paymaster/internal/data"
	"github.com/plateworks/paymaster/internal/domain"
)

type scheduleListOptions struct {
	Limit  int
	Offset int
}

func parseScheduleListFlags(args []string) (scheduleListOptions, error) {
	fs := flag.NewFlagSet("schedule-list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts scheduleListOptions
	fs.IntVar(&opts.Limit, "limit", 100, "Maximum definitions to display")
	fs.IntVar(&opts.Offset, "offset", 0, "Offset into the definition list")

	if err := fs.Parse(args); err != nil {
		return scheduleListOptions{}, err
	}

	if opts.Limit <= 0 {
		return scheduleListOptions{}, errors.New("--limit must be greater than zero")
	}
	if opts.Offset < 0 {
		return scheduleListOptions{}, errors.New("--offset cannot be negative")
	}

	return opts, nil
}

func runScheduleList(cmdCtx *commandContext, args []string) error {
	opts, err := parseScheduleListFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, time.Minute, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewScheduledTasksAdminRepo(db)
		tasks, listErr := repo.List(ctx, opts.Limit, opts.Offset)
		if listErr != nil {
			return listErr
		}
		return printScheduledTasks(tasks)
	})
}

func printScheduledTasks(tasks []domain.ScheduledTask) error {
	if err := writef(os.Stdout, "\nScheduled Tasks\n"); err != nil {
		return fmt.Errorf("print schedule header: %w", err)
	}

	if len(tasks) == 0 {
		if err := writeln(os.Stdout, "(no scheduled tasks defined)"); err != nil {
			return fmt.Errorf("print schedule empty notice: %w", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "TASK\tQUEUE\tINTERVAL\tENABLED\tLAST QUEUED\tUPDATED"); err != nil {
		return fmt.Errorf("print schedule table header: %w", err)
	}
	for _, task := range tasks {
		lastQueued := "never"
		if task.LastQueuedAt != nil {
			lastQueued = task.LastQueuedAt.Format(time.RFC3339)
		}
		if err := writef(
			w,
			"%s\t%s\t%s\t%t\t%s\t%s\n",
			task.TaskName,
			task.Queue,
			task.Interval,
			task.Enabled,
			lastQueued,
			task.UpdatedAt.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("print schedule row %q: %w", task.TaskName, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush schedule table: %w", err)
	}

	if err := writef(os.Stdout, "\nTotal: %d\n", len(tasks)); err != nil {
		return fmt.Errorf("print schedule total: %w", err)
	}
	return nil
}

type scheduleSetOptions struct {
	TaskName string
	Queue    string
	Interval time.Duration
	Payload  string
	Enabled  *bool
}

func parseScheduleSetFlags(args []string) (scheduleSetOptions, error) {
	fs := flag.NewFlagSet("schedule-set", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts scheduleSetOptions
	var enable, disable bool
	fs.StringVar(&opts.TaskName, "task-name", "", "Unique task name (required)")
	fs.StringVar(&opts.Queue, "queue", "", "Queue the materialized tasks land on (required)")
	fs.DurationVar(&opts.Interval, "interval", 0, "Scheduling cadence, e.g. 5m or 1h (required)")
	fs.StringVar(&opts.Payload, "payload", "", "JSON payload for the materialized tasks (defaults to {})")
	fs.BoolVar(&enable, "enable", false, "Enable the definition")
	fs.BoolVar(&disable, "disable", false, "Disable the definition without deleting it")

	if err := fs.Parse(args); err != nil {
		return scheduleSetOptions{}, err
	}

	opts.TaskName = strings.TrimSpace(opts.TaskName)
	opts.Queue = strings.TrimSpace(opts.Queue)
	opts.Payload = strings.TrimSpace(opts.Payload)

	if opts.TaskName == "" {
		return scheduleSetOptions{}, errors.New("--task-name is required")
	}
	if opts.Queue == "" {
		return scheduleSetOptions{}, errors.New("--queue is required")
	}
	if opts.Interval <= 0 {
		return scheduleSetOptions{}, errors.New("--interval must be greater than zero")
	}
	if opts.Payload != "" && !json.Valid([]byte(opts.Payload)) {
		return scheduleSetOptions{}, errors.New("--payload must be valid JSON")
	}
	if enable && disable {
		return scheduleSetOptions{}, errors.New("--enable and --disable are mutually exclusive")
	}
	if enable {
		v := true
		opts.Enabled = &v
	}
	if disable {
		v := false
		opts.Enabled = &v
	}

	return opts, nil
}

func runScheduleSet(cmdCtx *commandContext, args []string) error {
	opts, err := parseScheduleSetFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, time.Minute, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewScheduledTasksAdminRepo(db)
		if upsertErr := repo.UpsertByTaskName(ctx, domain.UpsertTaskParams{
			TaskName: opts.TaskName,
			Queue:    opts.Queue,
			Payload:  json.RawMessage(opts.Payload),
			Interval: opts.Interval,
			Enabled:  opts.Enabled,
		}); upsertErr != nil {
			return upsertErr
		}

		if writeErr := writef(
			os.Stdout,
			"Saved scheduled task %q (queue %s, every %s)\n",
			opts.TaskName,
			opts.Queue,
			opts.Interval,
		); writeErr != nil {
			return fmt.Errorf("print schedule set summary: %w", writeErr)
		}
		return nil
	})
}

type scheduleRemoveOptions struct {
	TaskName string
	Yes      bool
}

func parseScheduleRemoveFlags(args []string) (scheduleRemoveOptions, error) {
	fs := flag.NewFlagSet("schedule-remove", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts scheduleRemoveOptions
	fs.StringVar(&opts.TaskName, "task-name", "", "Task name to remove (required)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return scheduleRemoveOptions{}, err
	}

	opts.TaskName = strings.TrimSpace(opts.TaskName)
	if opts.TaskName == "" {
		return scheduleRemoveOptions{}, errors.New("--task-name is required")
	}

	return opts, nil
}

type scheduleRemoveConfirmOptions struct {
	opts scheduleRemoveOptions
}

func (c scheduleRemoveConfirmOptions) IsDryRun() bool { return false }
func (c scheduleRemoveConfirmOptions) IsYes() bool    { return c.opts.Yes }
func (c scheduleRemoveConfirmOptions) GetWarning() string {
	return "WARNING: removing a definition stops the scheduler from materializing its tasks."
}

func (c scheduleRemoveConfirmOptions) GetTarget() string {
	return fmt.Sprintf("scheduled task %q", c.opts.TaskName)
}

func runScheduleRemove(cmdCtx *commandContext, args []string) error {
	opts, err := parseScheduleRemoveFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(scheduleRemoveConfirmOptions{opts}, "remove the recurring definition"); confirmErr != nil {
		return confirmErr
	}

	return withDatabase(cmdCtx, time.Minute, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewScheduledTasksAdminRepo(db)
		found, removeErr := repo.DeleteByTaskName(ctx, opts.TaskName)
		if removeErr != nil {
			return removeErr
		}

		if !found {
			if writeErr := writef(os.Stdout, "No scheduled task named %q\n", opts.TaskName); writeErr != nil {
				return fmt.Errorf("print schedule remove miss: %w", writeErr)
			}
			return nil
		}
		if writeErr := writef(os.Stdout, "Removed scheduled task %q\n", opts.TaskName); writeErr != nil {
			return fmt.Errorf("print schedule remove summary: %w", writeErr)
		}
		return nil
	})
}
