package metrics

import (
	"time"

	"github.com/plateworks/paymaster/internal/observability/statsd"
)

// Webhook delivery dispositions.
const (
	DispositionDelivered      = "delivered"
	DispositionRetryScheduled = "retry_scheduled"
	DispositionAbandoned      = "abandoned"
)

// WebhookMetric captures a single webhook delivery attempt.
type WebhookMetric struct {
	EventType   string
	Disposition string
	StatusCode  int
	Duration    time.Duration
	Err         error
}

// EmitWebhookDelivery emits delivery attempt metrics. The status_class tag is
// derived from the endpoint's HTTP response and omitted when no response was
// received.
func EmitWebhookDelivery(sink statsd.Sink, in WebhookMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	if in.Disposition != DispositionDelivered {
		result = ResultError
	}

	tags := map[string]string{
		"event_type":  in.EventType,
		"disposition": in.Disposition,
		"result":      result,
	}
	if class := statusClass(in.StatusCode); class != "" {
		tags["status_class"] = class
	}
	tags = withErrorClass(tags, result, in.Err)

	sink.Count("webhook.delivery", 1, tags)

	if in.Duration > 0 {
		sink.Timing("webhook.duration", in.Duration, CloneTags(tags))
	}
}
