package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"

	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data"
	"github.com/plateworks/paymaster/internal/domain/model"
	apperrors "github.com/plateworks/paymaster/internal/errors"
	"github.com/plateworks/paymaster/internal/observability/metrics"
	"github.com/plateworks/paymaster/internal/observability/statsd"
)

// Signature headers on outbound webhook requests.
const (
	HeaderSignature = "X-Paymaster-Signature"
	HeaderTimestamp = "X-Paymaster-Timestamp"
	HeaderEvent     = "X-Paymaster-Event"

	signaturePrefix = "sha256="
)

const (
	// webhookSecretBytes is the entropy of a signing secret before hex encoding.
	webhookSecretBytes = 32
	// defaultDeliveryTimeout bounds one outbound POST.
	defaultDeliveryTimeout = 30 * time.Second
	// defaultMaxDeliveryAttempts caps attempts per delivery row across the
	// initial send and all sweep retries.
	defaultMaxDeliveryAttempts = 5
	// defaultRetryBackoffBase seeds the exponential redelivery backoff and is
	// also how long a sweep claim holds a row.
	defaultRetryBackoffBase = time.Minute
	// defaultRetryBackoffMax clamps the redelivery backoff.
	defaultRetryBackoffMax = time.Hour
	// defaultSweepBatchSize is how many due rows one sweep pass claims at a time.
	defaultSweepBatchSize = 100
	// maxResponseBytes is how much of an endpoint's response is read before
	// the connection is released.
	maxResponseBytes = 4 * 1024
)

// taskEnqueuer is the slice of the task service the dispatcher needs.
type taskEnqueuer interface {
	Enqueue(ctx context.Context, params EnqueueTaskParams) (*model.Task, error)
}

// WebhookDeliverPayload is the body of a webhook.deliver task.
type WebhookDeliverPayload struct {
	DeliveryID string `json:"delivery_id"`
}

// DeliverEventParams groups parameters for WebhookService.Deliver.
type DeliverEventParams struct {
	EventType model.EventType
	TenantID  string
	Data      any
}

// WebhookServiceOptions groups dependencies for WebhookService.
type WebhookServiceOptions struct {
	Subscriptions core.WebhookSubscriptionRepository // Required: subscription storage
	Deliveries    core.WebhookDeliveryRepository     // Required: delivery accounting
	Tasks         taskEnqueuer                       // Required: queue producer for webhook.deliver

	HTTPClient *http.Client // Optional: outbound client (default: fresh client with the delivery timeout)
	Logger     *slog.Logger // Optional: structured logger
	Metrics    statsd.Sink  // Optional: dispatch and delivery metrics

	Timeout                time.Duration // Optional: outbound POST timeout (default 30s)
	MaxAttempts            int           // Optional: attempts per delivery row (default 5)
	BackoffBase            time.Duration // Optional: redelivery backoff seed (default 1m)
	BackoffMax             time.Duration // Optional: redelivery backoff cap (default 1h)
	SweepBatchSize         int           // Optional: rows per sweep claim (default 100)
	RequirePublicEndpoints bool          // Optional: reject IPs and unregistrable hosts
}

// WebhookService manages subscriptions and delivers signed event notifications.
//
// Delivery is asynchronous: Deliver fans an event out into one delivery row and
// one webhook.deliver task per matching subscription, ProcessDelivery performs
// the actual signed POST, and RetrySweep re-enqueues rows whose attempts failed
// until they run out.
type WebhookService struct {
	subscriptions core.WebhookSubscriptionRepository
	deliveries    core.WebhookDeliveryRepository
	tasks         taskEnqueuer
	httpClient    *http.Client
	logger        *slog.Logger
	metrics       statsd.Sink

	timeout       time.Duration
	maxAttempts   int
	backoffBase   time.Duration
	backoffMax    time.Duration
	sweepBatch    int
	requirePublic bool
}

// NewWebhookService constructs a new WebhookService.
func NewWebhookService(opts WebhookServiceOptions) (*WebhookService, error) {
	if opts.Subscriptions == nil {
		return nil, errors.New("WebhookSubscriptionRepository is required")
	}
	if opts.Deliveries == nil {
		return nil, errors.New("WebhookDeliveryRepository is required")
	}
	if opts.Tasks == nil {
		return nil, errors.New("task enqueuer is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxDeliveryAttempts
	}
	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultRetryBackoffBase
	}
	backoffMax := opts.BackoffMax
	if backoffMax <= 0 {
		backoffMax = defaultRetryBackoffMax
	}
	sweepBatch := opts.SweepBatchSize
	if sweepBatch <= 0 {
		sweepBatch = defaultSweepBatchSize
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "webhook_service")
		logger.Debug("WebhookService initialized",
			"timeout", timeout,
			"max_attempts", maxAttempts,
			"require_public_endpoints", opts.RequirePublicEndpoints,
		)
	}

	return &WebhookService{
		subscriptions: opts.Subscriptions,
		deliveries:    opts.Deliveries,
		tasks:         opts.Tasks,
		httpClient:    client,
		logger:        logger,
		metrics:       opts.Metrics,
		timeout:       timeout,
		maxAttempts:   maxAttempts,
		backoffBase:   backoffBase,
		backoffMax:    backoffMax,
		sweepBatch:    sweepBatch,
		requirePublic: opts.RequirePublicEndpoints,
	}, nil
}

// MustNewWebhookService constructs a new WebhookService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewWebhookService(opts WebhookServiceOptions) *WebhookService {
	svc, err := NewWebhookService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create WebhookService: %v", err))
	}
	return svc
}

// Subscribe registers a listener endpoint and returns it with its signing
// secret. The secret is surfaced exactly once; reads never include it again.
func (s *WebhookService) Subscribe(
	ctx context.Context,
	req *model.CreateWebhookSubscriptionRequest,
) (*model.SubscriptionWithSecret, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if s.requirePublic {
		if err := validatePublicEndpoint(req.URL); err != nil {
			return nil, apperrors.Validation(err.Error())
		}
	}

	secret, err := newSigningSecret()
	if err != nil {
		return nil, err
	}

	sub, err := s.subscriptions.Create(ctx, core.CreateSubscriptionParams{
		URL:         req.URL,
		EventTypes:  req.EventTypes,
		Description: req.Description,
		SecretKey:   secret,
	})
	if err != nil {
		return nil, fmt.Errorf("create webhook subscription: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "webhook subscription created",
			"subscription_id", sub.ID,
			"url", sub.URL,
			"event_types", sub.EventTypes,
		)
	}

	return &model.SubscriptionWithSecret{
		WebhookSubscription: *sub,
		SecretKey:           secret,
	}, nil
}

// Update replaces a subscription's mutable fields. The stored secret is never
// touched.
func (s *WebhookService) Update(
	ctx context.Context,
	id string,
	req *model.UpdateWebhookSubscriptionRequest,
) (*model.WebhookSubscription, error) {
	if id == "" {
		return nil, apperrors.Validation("subscription id is required")
	}
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if s.requirePublic {
		if err := validatePublicEndpoint(req.URL); err != nil {
			return nil, apperrors.Validation(err.Error())
		}
	}

	sub, err := s.subscriptions.Update(ctx, core.UpdateSubscriptionParams{
		ID:          id,
		URL:         req.URL,
		EventTypes:  req.EventTypes,
		Active:      req.Active,
		Description: req.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("update webhook subscription %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "webhook subscription updated",
			"subscription_id", sub.ID,
			"active", sub.Active,
		)
	}
	return sub, nil
}

// Get returns one subscription. The signing secret is not included.
func (s *WebhookService) Get(ctx context.Context, id string) (*model.WebhookSubscription, error) {
	if id == "" {
		return nil, apperrors.Validation("subscription id is required")
	}
	sub, err := s.subscriptions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get webhook subscription %s: %w", id, err)
	}
	return sub, nil
}

// List returns subscriptions with pagination.
func (s *WebhookService) List(ctx context.Context, limit, offset int) ([]*model.WebhookSubscription, error) {
	limit, offset = normalizePagination(limit, offset)
	subs, err := s.subscriptions.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list webhook subscriptions: %w", err)
	}
	return subs, nil
}

// Delete removes a subscription permanently. Returns false when the id is unknown.
func (s *WebhookService) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, apperrors.Validation("subscription id is required")
	}
	deleted, err := s.subscriptions.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete webhook subscription %s: %w", id, err)
	}
	if deleted && s.logger != nil {
		s.logger.InfoContext(ctx, "webhook subscription deleted", "subscription_id", id)
	}
	return deleted, nil
}

// Deliver fans an event out to every active subscription registered for its
// type: one delivery row and one webhook.deliver task each. Returns how many
// deliveries were enqueued. Fire and forget for the caller: per-subscription
// problems are logged and counted, never propagated.
func (s *WebhookService) Deliver(ctx context.Context, params DeliverEventParams) (int, error) {
	if !params.EventType.Valid() {
		return 0, apperrors.Validationf("invalid event type %q", params.EventType)
	}
	dataJSON, err := json.Marshal(params.Data)
	if err != nil {
		return 0, fmt.Errorf("marshal event data: %w", err)
	}

	subs, err := s.subscriptions.ListActiveByEventType(ctx, params.EventType)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions for %s: %w", params.EventType, err)
	}
	if len(subs) == 0 {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "no subscriptions for event", "event_type", params.EventType)
		}
		return 0, nil
	}

	eventID := uuid.NewString()
	// Seconds precision keeps the envelope timestamp and the timestamp header
	// textually identical.
	payload, err := json.Marshal(model.WebhookEnvelope{
		EventID:   eventID,
		EventType: params.EventType,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		TenantID:  params.TenantID,
		Data:      dataJSON,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal webhook envelope: %w", err)
	}

	var enqueued atomic.Int64
	g := new(errgroup.Group)
	for _, sub := range subs {
		g.Go(func() error {
			if s.dispatchOne(ctx, sub, eventID, params.EventType, payload) {
				enqueued.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.logger != nil {
		s.logger.InfoContext(ctx, "webhook event dispatched",
			"event_id", eventID,
			"event_type", params.EventType,
			"subscriptions", len(subs),
			"enqueued", enqueued.Load(),
		)
	}
	return int(enqueued.Load()), nil
}

// dispatchOne inserts the delivery row and enqueues its webhook.deliver task.
// A row whose enqueue failed keeps its seeded next_attempt_at, so the sweep
// picks it up.
func (s *WebhookService) dispatchOne(
	ctx context.Context,
	sub *model.WebhookSubscription,
	eventID string,
	eventType model.EventType,
	payload json.RawMessage,
) bool {
	delivery, err := s.deliveries.Create(ctx, core.CreateDeliveryParams{
		EventID:        eventID,
		SubscriptionID: sub.ID,
		EventType:      eventType,
		Payload:        payload,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to create webhook delivery",
				"event_id", eventID,
				"subscription_id", sub.ID,
				"error", err,
			)
		}
		s.countDispatch(eventType, metrics.ResultError)
		return false
	}

	taskPayload, err := json.Marshal(WebhookDeliverPayload{DeliveryID: delivery.ID})
	if err != nil {
		s.countDispatch(eventType, metrics.ResultError)
		return false
	}
	if _, err := s.tasks.Enqueue(ctx, EnqueueTaskParams{
		Name:    core.TaskWebhookDeliver,
		Payload: taskPayload,
	}); err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to enqueue webhook delivery",
				"delivery_id", delivery.ID,
				"subscription_id", sub.ID,
				"error", err,
			)
		}
		s.countDispatch(eventType, metrics.ResultError)
		return false
	}

	s.countDispatch(eventType, metrics.ResultSuccess)
	return true
}

func (s *WebhookService) countDispatch(eventType model.EventType, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Count("webhook.dispatch", 1, map[string]string{
		"event_type": string(eventType),
		"result":     result,
	})
}

// ProcessDelivery is the webhook.deliver worker body. The attempt outcome lands
// on the delivery row; an unreachable endpoint is not a task failure.
func (s *WebhookService) ProcessDelivery(ctx context.Context, raw json.RawMessage) error {
	var p WebhookDeliverPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode delivery payload: %w", err)
	}
	if p.DeliveryID == "" {
		return errors.New("delivery payload has no delivery id")
	}

	delivery, err := s.deliveries.GetByID(ctx, p.DeliveryID)
	if err != nil {
		return fmt.Errorf("load webhook delivery %s: %w", p.DeliveryID, err)
	}
	if delivery.Delivered {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "delivery already settled, skipping", "delivery_id", delivery.ID)
		}
		return nil
	}

	sub, err := s.subscriptions.GetByID(ctx, delivery.SubscriptionID)
	if errors.Is(err, data.ErrSubscriptionNotFound) {
		s.markUndeliverable(ctx, delivery, "subscription deleted")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load webhook subscription %s: %w", delivery.SubscriptionID, err)
	}
	if !sub.Active {
		s.markUndeliverable(ctx, delivery, "subscription inactive")
		return nil
	}

	s.deliverOnce(ctx, sub, delivery)
	return nil
}

// attemptOutcome is the result of one outbound POST.
type attemptOutcome struct {
	success  bool
	status   int // 0 when no response was received
	errMsg   string
	duration time.Duration
}

// deliverOnce performs one signed POST and settles the delivery row and
// subscription counters accordingly.
func (s *WebhookService) deliverOnce(
	ctx context.Context,
	sub *model.WebhookSubscription,
	delivery *model.WebhookDelivery,
) attemptOutcome {
	outcome := s.post(ctx, sub, delivery)

	if outcome.success {
		if _, err := s.deliveries.MarkDelivered(ctx, core.MarkDeliveredParams{
			ID:     delivery.ID,
			Status: outcome.status,
		}); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to mark delivery delivered",
				"delivery_id", delivery.ID,
				"error", err,
			)
		}
		if _, err := s.subscriptions.RecordDeliverySuccess(ctx, sub.ID, time.Now().UTC()); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to record delivery success",
				"subscription_id", sub.ID,
				"error", err,
			)
		}

		metrics.EmitWebhookDelivery(s.metrics, metrics.WebhookMetric{
			EventType:   string(delivery.EventType),
			Disposition: metrics.DispositionDelivered,
			StatusCode:  outcome.status,
			Duration:    outcome.duration,
		})
		if s.logger != nil {
			s.logger.InfoContext(ctx, "webhook delivered",
				"delivery_id", delivery.ID,
				"subscription_id", sub.ID,
				"event_type", delivery.EventType,
				"status", outcome.status,
				"attempt", delivery.AttemptCount+1,
			)
		}
		return outcome
	}

	attempts := delivery.AttemptCount + 1
	var statusPtr *int
	if outcome.status != 0 {
		status := outcome.status
		statusPtr = &status
	}

	disposition := metrics.DispositionRetryScheduled
	var nextAttempt *time.Time
	if attempts < s.maxAttempts {
		next := time.Now().UTC().Add(s.retryBackoff(attempts))
		nextAttempt = &next
	} else {
		// Out of attempts: the row stays for inspection until the reaper
		// removes it.
		disposition = metrics.DispositionAbandoned
	}

	if _, err := s.deliveries.MarkFailed(ctx, core.MarkDeliveryFailedParams{
		ID:            delivery.ID,
		Status:        statusPtr,
		ErrMsg:        outcome.errMsg,
		NextAttemptAt: nextAttempt,
	}); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to mark delivery failed",
			"delivery_id", delivery.ID,
			"error", err,
		)
	}
	if _, err := s.subscriptions.RecordDeliveryFailure(ctx, sub.ID); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to record delivery failure",
			"subscription_id", sub.ID,
			"error", err,
		)
	}

	metrics.EmitWebhookDelivery(s.metrics, metrics.WebhookMetric{
		EventType:   string(delivery.EventType),
		Disposition: disposition,
		StatusCode:  outcome.status,
		Duration:    outcome.duration,
		Err:         errors.New(outcome.errMsg),
	})
	if s.logger != nil {
		s.logger.WarnContext(ctx, "webhook delivery failed",
			"delivery_id", delivery.ID,
			"subscription_id", sub.ID,
			"event_type", delivery.EventType,
			"status", outcome.status,
			"attempt", attempts,
			"max_attempts", s.maxAttempts,
			"error", outcome.errMsg,
		)
	}
	return outcome
}

// post signs the canonical payload and sends it. Nothing here mutates state.
func (s *WebhookService) post(
	ctx context.Context,
	sub *model.WebhookSubscription,
	delivery *model.WebhookDelivery,
) attemptOutcome {
	secret, err := s.subscriptions.GetSecretKey(ctx, sub.ID)
	if err != nil {
		return attemptOutcome{errMsg: fmt.Sprintf("load signing secret: %v", err)}
	}

	body, err := canonicalPayload(delivery.Payload)
	if err != nil {
		return attemptOutcome{errMsg: err.Error()}
	}

	// The timestamp header repeats the envelope timestamp so subscribers can
	// bound replay windows against the signed document.
	var envelope model.WebhookEnvelope
	_ = json.Unmarshal(delivery.Payload, &envelope)
	timestamp := envelope.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return attemptOutcome{errMsg: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signaturePrefix+signBody(secret, body))
	req.Header.Set(HeaderTimestamp, timestamp.UTC().Format(time.RFC3339))
	req.Header.Set(HeaderEvent, string(delivery.EventType))

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		return attemptOutcome{errMsg: err.Error(), duration: duration}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return attemptOutcome{success: true, status: resp.StatusCode, duration: duration}
	}
	return attemptOutcome{
		status:   resp.StatusCode,
		errMsg:   fmt.Sprintf("endpoint returned %d", resp.StatusCode),
		duration: duration,
	}
}

// markUndeliverable permanently settles a delivery whose subscription is gone
// or switched off.
func (s *WebhookService) markUndeliverable(
	ctx context.Context,
	delivery *model.WebhookDelivery,
	reason string,
) {
	if _, err := s.deliveries.MarkFailed(ctx, core.MarkDeliveryFailedParams{
		ID:     delivery.ID,
		ErrMsg: reason,
	}); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to mark delivery undeliverable",
			"delivery_id", delivery.ID,
			"error", err,
		)
	}

	metrics.EmitWebhookDelivery(s.metrics, metrics.WebhookMetric{
		EventType:   string(delivery.EventType),
		Disposition: metrics.DispositionAbandoned,
		Err:         errors.New(reason),
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "webhook delivery abandoned",
			"delivery_id", delivery.ID,
			"subscription_id", delivery.SubscriptionID,
			"reason", reason,
		)
	}
}

// retryBackoff returns the delay before the next attempt after `attempts`
// consumed tries.
func (s *WebhookService) retryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 20 {
		shift = 20
	}
	delay := s.backoffBase << uint(shift)
	if delay <= 0 || delay > s.backoffMax {
		delay = s.backoffMax
	}
	return delay
}

// RetrySweep is the maintenance.webhook_retry body: it claims undelivered rows
// that are due another attempt and re-enqueues them as fresh webhook.deliver
// tasks. Returns how many deliveries were re-enqueued.
func (s *WebhookService) RetrySweep(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		rows, err := s.deliveries.ClaimRetryable(ctx, core.ClaimRetryableParams{
			Now:         time.Now().UTC(),
			MaxAttempts: s.maxAttempts,
			Limit:       s.sweepBatch,
			HoldFor:     s.backoffBase,
		})
		if err != nil {
			return total, fmt.Errorf("claim retryable deliveries: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			taskPayload, err := json.Marshal(WebhookDeliverPayload{DeliveryID: row.ID})
			if err != nil {
				continue
			}
			if _, err := s.tasks.Enqueue(ctx, EnqueueTaskParams{
				Name:    core.TaskWebhookDeliver,
				Payload: taskPayload,
			}); err != nil {
				// The claim hold keeps the row out of this pass; a later
				// sweep retries it.
				if s.logger != nil {
					s.logger.WarnContext(ctx, "failed to re-enqueue webhook delivery",
						"delivery_id", row.ID,
						"error", err,
					)
				}
				continue
			}
			total++
		}

		if len(rows) < s.sweepBatch {
			break
		}
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "webhook retry sweep enqueued deliveries", "count", total)
	}
	return total, nil
}

// SendTest delivers a synthetic event to one subscription synchronously,
// bypassing the queue. Counters and the delivery row update exactly as for
// real deliveries; the attempt outcome comes back to the caller.
func (s *WebhookService) SendTest(
	ctx context.Context,
	req *model.TestWebhookRequest,
) (*model.DeliveryResult, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	sub, err := s.subscriptions.GetByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("get webhook subscription %s: %w", req.SubscriptionID, err)
	}
	if !sub.Active {
		return nil, apperrors.Validationf("subscription %s is not active", sub.ID)
	}
	if !sub.HasEventType(req.EventType) {
		return nil, apperrors.Validationf("subscription %s is not registered for event type %q", sub.ID, req.EventType)
	}

	eventID := uuid.NewString()
	dataJSON, err := json.Marshal(map[string]any{
		"message":         "paymaster webhook test",
		"subscription_id": sub.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal test data: %w", err)
	}
	payload, err := json.Marshal(model.WebhookEnvelope{
		EventID:   eventID,
		EventType: req.EventType,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Test:      true,
		Data:      dataJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook envelope: %w", err)
	}

	delivery, err := s.deliveries.Create(ctx, core.CreateDeliveryParams{
		EventID:        eventID,
		SubscriptionID: sub.ID,
		EventType:      req.EventType,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("create test delivery: %w", err)
	}

	outcome := s.deliverOnce(ctx, sub, delivery)

	result := &model.DeliveryResult{
		SubscriptionID: sub.ID,
		EventID:        eventID,
		EventType:      req.EventType,
		Success:        outcome.success,
	}
	if outcome.status != 0 {
		status := outcome.status
		result.ResponseStatus = &status
	}
	if outcome.errMsg != "" {
		msg := outcome.errMsg
		result.Error = &msg
	}
	return result, nil
}

// newSigningSecret returns a fresh hex-encoded signing secret.
func newSigningSecret() (string, error) {
	buf := make([]byte, webhookSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate signing secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// canonicalPayload re-marshals a JSON document through map[string]any so object
// keys come out sorted. Signer and verifier derive the same bytes from the same
// document regardless of original key order.
func canonicalPayload(raw json.RawMessage) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse delivery payload: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("canonicalize delivery payload: %w", err)
	}
	return out, nil
}

// signBody returns the hex HMAC-SHA-256 of body under secret.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header carries a valid signature of body
// under secret. This mirrors the check subscribers implement against the exact
// request bytes; the comparison is constant time.
func VerifySignature(secret string, body []byte, header string) bool {
	provided := strings.TrimPrefix(header, signaturePrefix)
	return hmac.Equal([]byte(signBody(secret, body)), []byte(provided))
}

// validatePublicEndpoint rejects endpoints that cannot be a public listener:
// IP literals and hosts without a registrable domain under the public suffix
// list (localhost, single-label intranet names).
func validatePublicEndpoint(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("url must be a valid URL")
	}
	host := strings.TrimSuffix(parsed.Hostname(), ".")
	if net.ParseIP(host) != nil {
		return errors.New("url host must be a public domain name, not an IP address")
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return errors.New("url host must be a registrable public domain")
	}
	return nil
}
