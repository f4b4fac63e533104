package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// EventType identifies a webhook event class subscribers can register for.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type EventType string

const (
	// EventPayrollCompleted fires when a batch payroll run reaches completed.
	EventPayrollCompleted EventType = "payroll.completed"
	// EventPayrollFailed fires when a batch payroll run reaches failed.
	EventPayrollFailed EventType = "payroll.failed"
	// EventExportCompleted fires when an export run reaches completed.
	EventExportCompleted EventType = "export.completed"
	// EventTaxCalcCompleted fires when a tax calculation run reaches completed.
	EventTaxCalcCompleted EventType = "tax_calc.completed"
)

// Webhook URL constraints.
const maxWebhookURLLen = 1024

// Valid returns true if the EventType is one of the registered event classes.
func (t EventType) Valid() bool {
	switch t {
	case EventPayrollCompleted, EventPayrollFailed, EventExportCompleted, EventTaxCalcCompleted:
		return true
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for EventType.
func (t *EventType) UnmarshalText(text []byte) error {
	v := EventType(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid event type: %q", v)
	}
	*t = v
	return nil
}

// ValidEventTypes returns all registered event types, for error messages and docs.
func ValidEventTypes() []EventType {
	return []EventType{EventPayrollCompleted, EventPayrollFailed, EventExportCompleted, EventTaxCalcCompleted}
}

// WebhookSubscription represents one registered listener endpoint.
// SecretKey is the decrypted signing secret; it is never serialized on reads —
// the full secret is only surfaced through SubscriptionWithSecret at
// create/update time.
type WebhookSubscription struct {
	ID              string      `json:"id"                           db:"id"`
	URL             string      `json:"url"                          db:"url"`
	EventTypes      []EventType `json:"event_types"                  db:"event_types"`
	SecretKey       string      `json:"-"                            db:"secret_key"`
	Active          bool        `json:"active"                       db:"active"`
	Description     string      `json:"description"                  db:"description"`
	FailureCount    int         `json:"failure_count"                db:"failure_count"`
	TotalEventsSent int         `json:"total_events_sent"            db:"total_events_sent"`
	LastTriggeredAt *time.Time  `json:"last_triggered_at,omitempty"  db:"last_triggered_at"`
	CreatedAt       time.Time   `json:"created_at"                   db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"                   db:"updated_at"`
}

// HasEventType reports whether the subscription is registered for the event type.
func (s *WebhookSubscription) HasEventType(t EventType) bool {
	for _, et := range s.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// SubscriptionWithSecret is the create/update response carrying the signing
// secret in full, exactly once.
type SubscriptionWithSecret struct {
	WebhookSubscription
	SecretKey string `json:"secret_key"`
}

// CreateWebhookSubscriptionRequest represents a request to register a listener endpoint.
type CreateWebhookSubscriptionRequest struct {
	URL         string      `json:"url"`
	EventTypes  []EventType `json:"event_types"`
	Description string      `json:"description,omitempty"`
}

// Normalize normalizes the CreateWebhookSubscriptionRequest fields.
func (r *CreateWebhookSubscriptionRequest) Normalize() {
	r.URL = strings.TrimSpace(r.URL)
	r.Description = strings.TrimSpace(r.Description)
}

// Validate validates the CreateWebhookSubscriptionRequest fields.
func (r *CreateWebhookSubscriptionRequest) Validate() error {
	if err := validateWebhookURL(r.URL); err != nil {
		return err
	}
	return validateEventTypes(r.EventTypes)
}

// UpdateWebhookSubscriptionRequest represents a full-replace update of a
// subscription. All fields are required; partial patches are not supported so a
// subscription can never end up half-updated.
type UpdateWebhookSubscriptionRequest struct {
	URL         string      `json:"url"`
	EventTypes  []EventType `json:"event_types"`
	Active      bool        `json:"active"`
	Description string      `json:"description,omitempty"`
}

// Normalize normalizes the UpdateWebhookSubscriptionRequest fields.
func (r *UpdateWebhookSubscriptionRequest) Normalize() {
	r.URL = strings.TrimSpace(r.URL)
	r.Description = strings.TrimSpace(r.Description)
}

// Validate validates the UpdateWebhookSubscriptionRequest fields.
func (r *UpdateWebhookSubscriptionRequest) Validate() error {
	if err := validateWebhookURL(r.URL); err != nil {
		return err
	}
	return validateEventTypes(r.EventTypes)
}

// TestWebhookRequest represents a request to send a synthetic event to one subscription.
type TestWebhookRequest struct {
	SubscriptionID string    `json:"subscription_id"`
	EventType      EventType `json:"event_type"`
}

// Validate validates the TestWebhookRequest fields.
func (r *TestWebhookRequest) Validate() error {
	if strings.TrimSpace(r.SubscriptionID) == "" {
		return errors.New("subscription_id is required")
	}
	if !r.EventType.Valid() {
		return fmt.Errorf("event_type must be one of: %s", joinEventTypes(ValidEventTypes()))
	}
	return nil
}

// WebhookDelivery is one pending or settled delivery of an event to a
// subscription. Undelivered rows with attempts remaining drive the retry sweep.
type WebhookDelivery struct {
	ID             string          `json:"id"                        db:"id"`
	EventID        string          `json:"event_id"                  db:"event_id"`
	SubscriptionID string          `json:"subscription_id"           db:"subscription_id"`
	EventType      EventType       `json:"event_type"                db:"event_type"`
	Payload        json.RawMessage `json:"payload"                   db:"payload"`
	AttemptCount   int             `json:"attempt_count"             db:"attempt_count"`
	Delivered      bool            `json:"delivered"                 db:"delivered"`
	LastStatus     *int            `json:"last_status,omitempty"     db:"last_status"`
	LastError      *string         `json:"last_error,omitempty"      db:"last_error"`
	PayloadSize    int             `json:"payload_size"              db:"payload_size"`
	NextAttemptAt  *time.Time      `json:"next_attempt_at,omitempty" db:"next_attempt_at"`
	CreatedAt      time.Time       `json:"created_at"                db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                db:"updated_at"`
}

// WebhookEnvelope is the outbound webhook body. The signature covers the
// canonical JSON form of the whole envelope.
type WebhookEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType EventType       `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	TenantID  string          `json:"tenant_id,omitempty"`
	Test      bool            `json:"test,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// DeliveryResult is the synchronous outcome of a single delivery attempt,
// returned by the test endpoint.
type DeliveryResult struct {
	SubscriptionID string    `json:"subscription_id"`
	EventID        string    `json:"event_id"`
	EventType      EventType `json:"event_type"`
	Success        bool      `json:"success"`
	ResponseStatus *int      `json:"response_status,omitempty"`
	Error          *string   `json:"error,omitempty"`
}

// validateWebhookURL validates a listener endpoint URL.
func validateWebhookURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return errors.New("url is required and cannot be empty")
	}

	if utf8.RuneCountInString(trimmed) > maxWebhookURLLen {
		return errors.New("url cannot exceed 1024 characters")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return errors.New("url must be a valid URL")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("url must use http or https scheme")
	}

	if parsed.Host == "" {
		return errors.New("url must have a valid host")
	}

	return nil
}

// validateEventTypes validates that event types are non-empty, known, and unique.
func validateEventTypes(types []EventType) error {
	if len(types) == 0 {
		return errors.New("event_types is required and cannot be empty")
	}

	seen := make(map[EventType]bool, len(types))
	for _, t := range types {
		if !t.Valid() {
			return fmt.Errorf("event_types must be one of: %s", joinEventTypes(ValidEventTypes()))
		}
		if seen[t] {
			return errors.New("event_types cannot contain duplicate entries")
		}
		seen[t] = true
	}
	return nil
}

func joinEventTypes(types []EventType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
