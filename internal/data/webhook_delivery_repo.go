package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data/pgxutil"
	"github.com/plateworks/paymaster/internal/domain/model"
)

// ErrDeliveryNotFound is returned when a webhook delivery is not found.
var ErrDeliveryNotFound = errors.New("webhook delivery not found")

// defaultInitialRetryDelay is how long after creation an unattempted delivery
// becomes visible to the retry sweep. New rows are attempted inline right after
// insert; the seeded next_attempt_at only matters if that attempt never ran.
const defaultInitialRetryDelay = time.Minute

const webhookDeliveryColumns = `
  id,
  event_id,
  subscription_id,
  event_type,
  payload,
  attempt_count,
  delivered,
  last_status,
  last_error,
  payload_size,
  next_attempt_at,
  created_at,
  updated_at
`

// WebhookDeliveryRepoConfig holds configuration options for WebhookDeliveryRepo.
type WebhookDeliveryRepoConfig struct {
	// InitialRetryDelay seeds next_attempt_at on insert. Defaults to one minute.
	InitialRetryDelay time.Duration
	// TimeProvider for current time (defaults to RealTimeProvider)
	TimeProvider TimeProvider
}

// WebhookDeliveryRepo provides database operations for tracking webhook deliveries.
// Rows are the source of truth for the retry sweep: undelivered rows whose
// next_attempt_at has passed get re-enqueued until attempts run out.
type WebhookDeliveryRepo struct {
	DB                *sql.DB
	timeProvider      TimeProvider
	initialRetryDelay time.Duration
}

// NewWebhookDeliveryRepo creates a new WebhookDeliveryRepo with the given configuration.
func NewWebhookDeliveryRepo(db *sql.DB, cfg WebhookDeliveryRepoConfig) *WebhookDeliveryRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	delay := cfg.InitialRetryDelay
	if delay <= 0 {
		delay = defaultInitialRetryDelay
	}
	return &WebhookDeliveryRepo{
		DB:                db,
		timeProvider:      tp,
		initialRetryDelay: delay,
	}
}

// Create inserts a new delivery row for an event/subscription pair.
// next_attempt_at is seeded so a row whose first attempt never ran (process
// crash between insert and send) is picked up by the sweep.
func (r *WebhookDeliveryRepo) Create(ctx context.Context, params core.CreateDeliveryParams) (*model.WebhookDelivery, error) {
	if params.EventID == "" {
		return nil, errors.New("event id is required")
	}
	if params.SubscriptionID == "" {
		return nil, errors.New("subscription id is required")
	}
	if !params.EventType.Valid() {
		return nil, fmt.Errorf("invalid event type: %q", params.EventType)
	}

	payload := []byte(params.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	firstSweepAt := r.timeProvider.Now().UTC().Add(r.initialRetryDelay)

	query := `
		INSERT INTO webhook_deliveries (event_id, subscription_id, event_type, payload, payload_size, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + webhookDeliveryColumns

	var out *model.WebhookDelivery
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query,
			params.EventID, params.SubscriptionID, string(params.EventType),
			json.RawMessage(payload), len(payload), firstSweepAt)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.WebhookDelivery])
		if collectErr != nil {
			return collectErr
		}
		out = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create webhook delivery: %w", err)
	}

	return out, nil
}

// GetByID fetches a delivery by ID.
func (r *WebhookDeliveryRepo) GetByID(ctx context.Context, id string) (*model.WebhookDelivery, error) {
	query := `
		SELECT ` + webhookDeliveryColumns + `
		FROM webhook_deliveries WHERE id = $1`

	var delivery *model.WebhookDelivery
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, id)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[model.WebhookDelivery])
		if collectErr != nil {
			return collectErr
		}
		delivery = collected
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook delivery by id: %w", err)
	}

	return delivery, nil
}

// MarkDelivered records a successful attempt and removes the row from the
// retry sweep. Only undelivered rows transition.
func (r *WebhookDeliveryRepo) MarkDelivered(ctx context.Context, params core.MarkDeliveredParams) (bool, error) {
	if params.ID == "" {
		return false, errors.New("id is required")
	}
	now := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET delivered = TRUE,
		    attempt_count = attempt_count + 1,
		    last_status = $2,
		    last_error = NULL,
		    next_attempt_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND NOT delivered
	`, params.ID, params.Status, now)
	if err != nil {
		return false, fmt.Errorf("mark delivery delivered: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// MarkFailed records a failed attempt. A nil NextAttemptAt removes the row
// from the retry sweep permanently; otherwise the row becomes due again at
// the given time.
func (r *WebhookDeliveryRepo) MarkFailed(ctx context.Context, params core.MarkDeliveryFailedParams) (bool, error) {
	if params.ID == "" {
		return false, errors.New("id is required")
	}
	now := r.timeProvider.Now().UTC()

	var nextAttempt any
	if params.NextAttemptAt != nil {
		nextAttempt = params.NextAttemptAt.UTC()
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET attempt_count = attempt_count + 1,
		    last_status = $2,
		    last_error = NULLIF($3, ''),
		    next_attempt_at = $4,
		    updated_at = $5
		WHERE id = $1 AND NOT delivered
	`, params.ID, params.Status, params.ErrMsg, nextAttempt, now)
	if err != nil {
		return false, fmt.Errorf("mark delivery failed: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ClaimRetryable returns undelivered rows that are due another attempt, using
// FOR UPDATE SKIP LOCKED so concurrent sweeps never claim the same row. Each
// claimed row's next_attempt_at is pushed forward by HoldFor so an overlapping
// sweep cannot re-enqueue it while the attempt is in flight.
func (r *WebhookDeliveryRepo) ClaimRetryable(ctx context.Context, params core.ClaimRetryableParams) ([]*model.WebhookDelivery, error) {
	if params.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", params.Limit)
	}
	if params.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", params.MaxAttempts)
	}
	if params.HoldFor <= 0 {
		return nil, fmt.Errorf("hold duration must be positive, got %s", params.HoldFor)
	}

	now := params.Now.UTC()
	holdUntil := now.Add(params.HoldFor)

	query := `
		WITH due AS (
			SELECT id
			FROM webhook_deliveries
			WHERE NOT delivered
			  AND next_attempt_at IS NOT NULL
			  AND next_attempt_at <= $1
			  AND attempt_count < $2
			ORDER BY next_attempt_at ASC, created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE webhook_deliveries d
		SET next_attempt_at = $4,
		    updated_at = $5
		FROM due
		WHERE d.id = due.id
		RETURNING d.id, d.event_id, d.subscription_id, d.event_type, d.payload, d.attempt_count, d.delivered, d.last_status, d.last_error, d.payload_size, d.next_attempt_at, d.created_at, d.updated_at`

	var deliveries []*model.WebhookDelivery
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			rows, queryErr := tx.Query(ctx, query, now, params.MaxAttempts, params.Limit, holdUntil, now)
			if queryErr != nil {
				return queryErr
			}
			defer rows.Close()
			collected, collectErr := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.WebhookDelivery])
			if collectErr != nil {
				return collectErr
			}
			deliveries = collected
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claim retryable deliveries: %w", err)
	}

	return deliveries, nil
}
