package metrics

import (
	"errors"
	"testing"
	"time"
)

type recordedMetric struct {
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct {
	counts  []recordedMetric
	timings []recordedMetric
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.counts = append(r.counts, recordedMetric{name: name, value: float64(value), tags: tags})
}

func (r *recordingSink) Gauge(name string, value float64, tags map[string]string) {}

func (r *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	r.timings = append(r.timings, recordedMetric{name: name, value: float64(value), tags: tags})
}

func TestEmitJobLifecycle(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	EmitJobLifecycle(sink, JobMetric{
		JobType:    "batch_payroll",
		Transition: "completed",
		Result:     ResultSuccess,
		Duration:   250 * time.Millisecond,
	})

	if len(sink.counts) != 1 {
		t.Fatalf("expected 1 count, got %d", len(sink.counts))
	}
	if sink.counts[0].name != "job.transition" {
		t.Fatalf("unexpected count name %q", sink.counts[0].name)
	}
	if sink.counts[0].tags["job_type"] != "batch_payroll" {
		t.Fatalf("unexpected job_type tag %q", sink.counts[0].tags["job_type"])
	}
	if len(sink.timings) != 1 || sink.timings[0].name != "job.duration" {
		t.Fatalf("expected job.duration timing, got %+v", sink.timings)
	}
}

func TestEmitTaskLifecycleTagsErrorClass(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	EmitTaskLifecycle(sink, TaskMetric{
		TaskName:   "payroll.finalize_batch",
		Queue:      "payroll",
		Transition: "failed",
		Result:     ResultError,
		Err:        errors.New("boom"),
	})

	if len(sink.counts) != 1 {
		t.Fatalf("expected 1 count, got %d", len(sink.counts))
	}
	tags := sink.counts[0].tags
	if tags["error_class"] == "" {
		t.Fatalf("expected error_class tag, got %v", tags)
	}
	if len(sink.timings) != 0 {
		t.Fatalf("expected no timing for zero duration, got %+v", sink.timings)
	}
}

func TestEmitWebhookDelivery(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	EmitWebhookDelivery(sink, WebhookMetric{
		EventType:   "payroll.completed",
		Disposition: DispositionRetryScheduled,
		StatusCode:  503,
		Duration:    100 * time.Millisecond,
		Err:         errors.New("upstream unavailable"),
	})

	if len(sink.counts) != 1 {
		t.Fatalf("expected 1 count, got %d", len(sink.counts))
	}
	tags := sink.counts[0].tags
	if tags["result"] != ResultError {
		t.Fatalf("expected error result, got %q", tags["result"])
	}
	if tags["status_class"] != "5xx" {
		t.Fatalf("expected 5xx status class, got %q", tags["status_class"])
	}
	if tags["disposition"] != DispositionRetryScheduled {
		t.Fatalf("unexpected disposition %q", tags["disposition"])
	}
}

func TestEmitWebhookDeliveryNoResponse(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	EmitWebhookDelivery(sink, WebhookMetric{
		EventType:   "export.completed",
		Disposition: DispositionAbandoned,
	})

	tags := sink.counts[0].tags
	if _, ok := tags["status_class"]; ok {
		t.Fatalf("expected no status_class tag, got %v", tags)
	}
}

func TestStatusClass(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		code int
		want string
	}{
		{0, ""},
		{200, "2xx"},
		{204, "2xx"},
		{404, "4xx"},
		{503, "5xx"},
		{42, "unknown"},
		{700, "unknown"},
	}
	for _, tc := range tcs {
		if got := statusClass(tc.code); got != tc.want {
			t.Fatalf("statusClass(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestCloneTags(t *testing.T) {
	t.Parallel()

	if CloneTags(nil) != nil {
		t.Fatal("expected nil for empty input")
	}

	src := map[string]string{"a": "1"}
	clone := CloneTags(src)
	clone["a"] = "2"
	if src["a"] != "1" {
		t.Fatalf("expected source untouched, got %q", src["a"])
	}
}

func TestNilSinkIsSafe(t *testing.T) {
	t.Parallel()

	EmitJobLifecycle(nil, JobMetric{})
	EmitTaskLifecycle(nil, TaskMetric{})
	EmitWebhookDelivery(nil, WebhookMetric{})
}
