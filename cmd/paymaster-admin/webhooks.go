package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type requeueDeliveriesOptions struct {
	DeliveryID     string
	SubscriptionID string
	All            bool
	Limit          int
	DryRun         bool
	Yes            bool
}

func parseRequeueDeliveriesFlags(args []string) (requeueDeliveriesOptions, error) {
	fs := flag.NewFlagSet("requeue-webhook-deliveries", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts requeueDeliveriesOptions
	fs.StringVar(&opts.DeliveryID, "delivery-id", "", "Requeue a single dead delivery")
	fs.StringVar(&opts.SubscriptionID, "subscription-id", "", "Requeue dead deliveries for one subscription")
	fs.BoolVar(&opts.All, "all", false, "Requeue dead deliveries for all subscriptions")
	fs.IntVar(&opts.Limit, "limit", 100, "Maximum deliveries to requeue")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return requeueDeliveriesOptions{}, err
	}

	opts.DeliveryID = strings.TrimSpace(opts.DeliveryID)
	opts.SubscriptionID = strings.TrimSpace(opts.SubscriptionID)

	selectors := 0
	if opts.DeliveryID != "" {
		selectors++
	}
	if opts.SubscriptionID != "" {
		selectors++
	}
	if opts.All {
		selectors++
	}
	if selectors != 1 {
		return requeueDeliveriesOptions{}, errors.New(
			"exactly one of --delivery-id, --subscription-id, or --all is required",
		)
	}
	if opts.Limit <= 0 {
		return requeueDeliveriesOptions{}, errors.New("--limit must be greater than zero")
	}

	return opts, nil
}

type requeueConfirmOptions struct {
	opts requeueDeliveriesOptions
}

func (c requeueConfirmOptions) IsDryRun() bool { return c.opts.DryRun }
func (c requeueConfirmOptions) IsYes() bool    { return c.opts.Yes }
func (c requeueConfirmOptions) GetWarning() string {
	return "WARNING: this will re-enqueue every dead webhook delivery; receiver endpoints will see the events again."
}

func (c requeueConfirmOptions) GetTarget() string {
	if c.opts.DeliveryID != "" {
		return fmt.Sprintf("delivery %q", c.opts.DeliveryID)
	}
	if c.opts.SubscriptionID != "" {
		return fmt.Sprintf("subscription %q", c.opts.SubscriptionID)
	}
	return ""
}

func runRequeueDeliveries(cmdCtx *commandContext, args []string) error {
	opts, err := parseRequeueDeliveriesFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(requeueConfirmOptions{opts}, "requeue dead webhook deliveries"); confirmErr != nil {
		return confirmErr
	}

	return withDatabase(cmdCtx, 2*time.Minute, func(ctx context.Context, db *sql.DB) error {
		req := &requeueDeliveriesRequest{
			Ctx:     ctx,
			DB:      db,
			Logger:  cmdCtx.Logger,
			Options: opts,
			Now:     time.Now().UTC(),
		}

		if opts.DryRun {
			count, countErr := countDeadDeliveries(req)
			if countErr != nil {
				return countErr
			}
			would := min(count, int64(opts.Limit))
			if writeErr := writef(
				os.Stdout,
				"Dry-run: would requeue %d of %d dead deliveries\n",
				would,
				count,
			); writeErr != nil {
				return fmt.Errorf("print requeue dry run: %w", writeErr)
			}
			return nil
		}

		requeued, requeueErr := requeueDeadDeliveries(req)
		if requeueErr != nil {
			return requeueErr
		}
		if requeued == 0 {
			if writeErr := writeln(os.Stdout, "No dead deliveries matched"); writeErr != nil {
				return fmt.Errorf("print requeue empty notice: %w", writeErr)
			}
			return nil
		}
		if writeErr := writef(os.Stdout, "Requeued %d deliveries\n", requeued); writeErr != nil {
			return fmt.Errorf("print requeue summary: %w", writeErr)
		}
		return nil
	})
}

type requeueDeliveriesRequest struct {
	Ctx     context.Context
	DB      *sql.DB
	Logger  *slog.Logger
	Options requeueDeliveriesOptions
	Now     time.Time
}

// buildRequeueDeliveriesWhere builds the filter for dead deliveries: rows the
// retry sweep abandoned by nulling next_attempt_at without ever delivering.
func buildRequeueDeliveriesWhere(opts requeueDeliveriesOptions) (string, []any) {
	where := []string{"NOT delivered", "next_attempt_at IS NULL"}
	args := make([]any, 0, 1)

	if opts.DeliveryID != "" {
		where = append(where, fmt.Sprintf("id = $%d", len(args)+1))
		args = append(args, opts.DeliveryID)
	} else if opts.SubscriptionID != "" {
		where = append(where, fmt.Sprintf("subscription_id = $%d", len(args)+1))
		args = append(args, opts.SubscriptionID)
	}

	return strings.Join(where, " AND "), args
}

func countDeadDeliveries(req *requeueDeliveriesRequest) (int64, error) {
	if req == nil {
		return 0, errors.New("requeue request is required")
	}
	where, args := buildRequeueDeliveriesWhere(req.Options)
	query := "SELECT COUNT(*) FROM webhook_deliveries WHERE " + where

	var count int64
	if err := req.DB.QueryRowContext(req.Ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count dead deliveries: %w", err)
	}
	return count, nil
}

// requeueDeadDeliveries puts matching rows back into the retry sweep. The
// attempt counter resets with the due time because the sweep skips rows at
// the attempt cap.
func requeueDeadDeliveries(req *requeueDeliveriesRequest) (int64, error) {
	if req == nil {
		return 0, errors.New("requeue request is required")
	}
	where, args := buildRequeueDeliveriesWhere(req.Options)

	nowIdx := len(args) + 1
	limitIdx := len(args) + 2
	query := fmt.Sprintf(`
		UPDATE webhook_deliveries
		SET attempt_count = 0,
		    next_attempt_at = $%d,
		    updated_at = $%d
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE %s
			ORDER BY updated_at ASC
			LIMIT $%d
		)`, nowIdx, nowIdx, where, limitIdx)
	args = append(args, req.Now, req.Options.Limit)

	req.Logger.Info("requeueing dead deliveries", "query", query, "args", args)

	res, err := req.DB.ExecContext(req.Ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue dead deliveries: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue rows affected: %w", err)
	}
	return rows, nil
}
