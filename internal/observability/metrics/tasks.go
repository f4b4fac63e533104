package metrics

import (
	"time"

	"github.com/plateworks/paymaster/internal/observability/statsd"
)

// TaskMetric captures a queue task lifecycle event for metric emission.
type TaskMetric struct {
	TaskName   string
	Queue      string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitTaskLifecycle emits standardised task lifecycle metrics. Duration is
// only meaningful on terminal transitions and is skipped when zero.
func EmitTaskLifecycle(sink statsd.Sink, in TaskMetric) {
	if sink == nil {
		return
	}

	tags := withErrorClass(map[string]string{
		"task_name":  in.TaskName,
		"queue":      in.Queue,
		"transition": in.Transition,
		"result":     in.Result,
	}, in.Result, in.Err)

	sink.Count("task.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("task.duration", in.Duration, CloneTags(tags))
	}
}
