package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data/cryptoutil"
	"github.com/plateworks/paymaster/internal/data/pgxutil"
	"github.com/plateworks/paymaster/internal/domain/model"
)

// WebhookSubscriptionRepo provides CRUD operations for webhook subscriptions.
// Signing secrets are encrypted at rest and only leave the database through
// GetSecretKey; every other read selects an empty secret column.
type WebhookSubscriptionRepo struct {
	DB  *sql.DB
	Enc cryptoutil.Encryptor
}

// NewWebhookSubscriptionRepo creates a new WebhookSubscriptionRepo.
func NewWebhookSubscriptionRepo(db *sql.DB, enc cryptoutil.Encryptor) *WebhookSubscriptionRepo {
	return &WebhookSubscriptionRepo{DB: db, Enc: enc}
}

var (
	// ErrSubscriptionNotFound is returned when a webhook subscription is not found.
	ErrSubscriptionNotFound = errors.New("webhook subscription not found")
	// ErrSubscriptionURLExists is returned when another active subscription already uses the URL.
	ErrSubscriptionURLExists = errors.New("an active subscription for this url already exists")
)

// subscriptionURLConstraint is the partial unique index on (url) WHERE active.
const subscriptionURLConstraint = "webhook_subscriptions_active_url_key"

func (r *WebhookSubscriptionRepo) mapWriteErr(err error, includeNotFound bool) error {
	if err == nil {
		return nil
	}
	if includeNotFound && errors.Is(err, pgx.ErrNoRows) {
		return ErrSubscriptionNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == subscriptionURLConstraint {
		return ErrSubscriptionURLExists
	}
	return err
}

// Reads other than GetSecretKey substitute an empty string for the stored
// ciphertext so the secret never crosses the repo boundary unencrypted.
const webhookSubscriptionReadColumns = `
  id,
  url,
  event_types,
  ''::text AS secret_key,
  active,
  description,
  failure_count,
  total_events_sent,
  last_triggered_at,
  created_at,
  updated_at
`

// webhookSubscriptionRow matches the database schema so RowToStructByName works.
// event_types is a text[] column; conversion to model.EventType happens in toModel.
type webhookSubscriptionRow struct {
	ID              string       `db:"id"`
	URL             string       `db:"url"`
	EventTypes      []string     `db:"event_types"`
	SecretKey       string       `db:"secret_key"`
	Active          bool         `db:"active"`
	Description     string       `db:"description"`
	FailureCount    int          `db:"failure_count"`
	TotalEventsSent int          `db:"total_events_sent"`
	LastTriggeredAt sql.NullTime `db:"last_triggered_at"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (row *webhookSubscriptionRow) toModel() *model.WebhookSubscription {
	if row == nil {
		return nil
	}

	sub := &model.WebhookSubscription{
		ID:              row.ID,
		URL:             row.URL,
		EventTypes:      stringsToEventTypes(row.EventTypes),
		SecretKey:       row.SecretKey,
		Active:          row.Active,
		Description:     row.Description,
		FailureCount:    row.FailureCount,
		TotalEventsSent: row.TotalEventsSent,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.LastTriggeredAt.Valid {
		t := row.LastTriggeredAt.Time
		sub.LastTriggeredAt = &t
	}
	return sub
}

func eventTypesToStrings(types []model.EventType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func stringsToEventTypes(values []string) []model.EventType {
	out := make([]model.EventType, len(values))
	for i, v := range values {
		out[i] = model.EventType(v)
	}
	return out
}

// rowToSubscription maps a pgx row to *model.WebhookSubscription.
func rowToSubscription(row pgx.CollectableRow) (*model.WebhookSubscription, error) {
	dbRow, err := pgx.RowToStructByName[webhookSubscriptionRow](row)
	if err != nil {
		return nil, fmt.Errorf("scan webhook subscription row: %w", err)
	}
	return dbRow.toModel(), nil
}

// Create inserts a new subscription, storing the encrypted signing secret.
// The returned subscription carries the plaintext secret so the caller can
// surface it exactly once.
func (r *WebhookSubscriptionRepo) Create(ctx context.Context, params core.CreateSubscriptionParams) (*model.WebhookSubscription, error) {
	if params.URL == "" {
		return nil, errors.New("url is required")
	}
	if len(params.EventTypes) == 0 {
		return nil, errors.New("event types are required")
	}
	for _, et := range params.EventTypes {
		if !et.Valid() {
			return nil, fmt.Errorf("invalid event type: %q", et)
		}
	}
	if params.SecretKey == "" {
		return nil, errors.New("secret key is required")
	}

	cipher, err := r.Enc.Encrypt([]byte(params.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("encrypt secret key: %w", err)
	}

	var out *model.WebhookSubscription
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, `
			INSERT INTO webhook_subscriptions (url, event_types, secret_key, description)
			VALUES ($1, $2, $3, $4)
			RETURNING `+webhookSubscriptionReadColumns,
			params.URL, eventTypesToStrings(params.EventTypes), cipher, params.Description)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectOneRow(rows, rowToSubscription)
		if collectErr != nil {
			return collectErr
		}
		out = collected
		return nil
	})
	if err != nil {
		return nil, r.mapWriteErr(err, false)
	}

	out.SecretKey = params.SecretKey
	return out, nil
}

// GetByID fetches a subscription by ID. The signing secret is not included.
func (r *WebhookSubscriptionRepo) GetByID(ctx context.Context, id string) (*model.WebhookSubscription, error) {
	query := `
		SELECT ` + webhookSubscriptionReadColumns + `
		FROM webhook_subscriptions WHERE id = $1`

	var sub *model.WebhookSubscription
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, id)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectOneRow(rows, rowToSubscription)
		if collectErr != nil {
			return collectErr
		}
		sub = collected
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook subscription by id: %w", err)
	}

	return sub, nil
}

// GetSecretKey returns the decrypted signing secret for a subscription.
func (r *WebhookSubscriptionRepo) GetSecretKey(ctx context.Context, id string) (string, error) {
	var cipher string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `SELECT secret_key FROM webhook_subscriptions WHERE id = $1`, id).Scan(&cipher)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSubscriptionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get secret key: %w", err)
	}

	pt, err := r.Enc.Decrypt(cipher)
	if err != nil {
		prefix := cipher
		if len(prefix) > 20 {
			prefix = prefix[:20] + "..."
		}
		return "", fmt.Errorf("decrypt secret key (prefix: %s): %w", prefix, err)
	}

	return string(pt), nil
}

// List returns subscriptions with pagination, newest first. Secrets are not included.
func (r *WebhookSubscriptionRepo) List(ctx context.Context, limit, offset int) ([]*model.WebhookSubscription, error) {
	if limit <= 0 {
		limit = 50
	}
	offset = max(offset, 0)

	query := `
		SELECT ` + webhookSubscriptionReadColumns + `
		FROM webhook_subscriptions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	var subs []*model.WebhookSubscription
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, limit, offset)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectRows(rows, rowToSubscription)
		if collectErr != nil {
			return collectErr
		}
		subs = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list webhook subscriptions: %w", err)
	}

	return subs, nil
}

// ListActiveByEventType returns active subscriptions registered for the event type,
// oldest first so fan-out order is stable. Secrets are not included.
func (r *WebhookSubscriptionRepo) ListActiveByEventType(ctx context.Context, eventType model.EventType) ([]*model.WebhookSubscription, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("invalid event type: %q", eventType)
	}

	query := `
		SELECT ` + webhookSubscriptionReadColumns + `
		FROM webhook_subscriptions
		WHERE active AND $1 = ANY(event_types)
		ORDER BY created_at ASC, id ASC`

	var subs []*model.WebhookSubscription
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, string(eventType))
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectRows(rows, rowToSubscription)
		if collectErr != nil {
			return collectErr
		}
		subs = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions by event type: %w", err)
	}

	return subs, nil
}

// Update replaces the subscription's url, event types, active flag, and description.
// The stored secret is never touched.
func (r *WebhookSubscriptionRepo) Update(ctx context.Context, params core.UpdateSubscriptionParams) (*model.WebhookSubscription, error) {
	if params.ID == "" {
		return nil, errors.New("id is required")
	}
	if params.URL == "" {
		return nil, errors.New("url is required")
	}
	if len(params.EventTypes) == 0 {
		return nil, errors.New("event types are required")
	}
	for _, et := range params.EventTypes {
		if !et.Valid() {
			return nil, fmt.Errorf("invalid event type: %q", et)
		}
	}

	query := `
		UPDATE webhook_subscriptions
		SET url = $2,
		    event_types = $3,
		    active = $4,
		    description = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + webhookSubscriptionReadColumns

	var out *model.WebhookSubscription
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query,
			params.ID, params.URL, eventTypesToStrings(params.EventTypes), params.Active, params.Description)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		collected, collectErr := pgx.CollectOneRow(rows, rowToSubscription)
		if collectErr != nil {
			return collectErr
		}
		out = collected
		return nil
	})
	if err != nil {
		return nil, r.mapWriteErr(err, true)
	}

	return out, nil
}

// Delete removes a subscription by ID. Deliveries reference subscriptions with
// ON DELETE CASCADE, so pending rows for the endpoint disappear with it.
func (r *WebhookSubscriptionRepo) Delete(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, execErr := conn.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
		if execErr != nil {
			return execErr
		}
		affected = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete webhook subscription: %w", err)
	}
	return affected > 0, nil
}

// RecordDeliverySuccess bumps total_events_sent and stamps last_triggered_at
// in a single UPDATE.
func (r *WebhookSubscriptionRepo) RecordDeliverySuccess(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE webhook_subscriptions
		SET total_events_sent = total_events_sent + 1,
		    last_triggered_at = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, now.UTC())
	if err != nil {
		return false, fmt.Errorf("record delivery success: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// RecordDeliveryFailure bumps failure_count in a single UPDATE.
func (r *WebhookSubscriptionRepo) RecordDeliveryFailure(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE webhook_subscriptions
		SET failure_count = failure_count + 1,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return false, fmt.Errorf("record delivery failure: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
