// Package testutil provides testing utilities and helpers for the paymaster job system.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/plateworks/paymaster/internal/domain/model"
)

// TaskRequestBuilder provides a fluent interface for building CreateTaskRequest objects for testing.
type TaskRequestBuilder struct {
	req *model.CreateTaskRequest
}

// NewTaskRequest creates a new TaskRequestBuilder with sensible defaults.
func NewTaskRequest() *TaskRequestBuilder {
	return &TaskRequestBuilder{
		req: &model.CreateTaskRequest{
			Name:       "payroll.run_batch",
			Queue:      "payroll",
			Priority:   50,
			Payload:    json.RawMessage(`{"job_record_id": "00000000-0000-0000-0000-000000000000"}`),
			MaxRetries: 3,
		},
	}
}

// WithName sets the task name.
func (b *TaskRequestBuilder) WithName(name string) *TaskRequestBuilder {
	b.req.Name = name
	return b
}

// WithQueue sets the task queue.
func (b *TaskRequestBuilder) WithQueue(queue string) *TaskRequestBuilder {
	b.req.Queue = queue
	return b
}

// WithPriority sets the task priority.
func (b *TaskRequestBuilder) WithPriority(priority int) *TaskRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithPayload sets the task payload.
func (b *TaskRequestBuilder) WithPayload(payload json.RawMessage) *TaskRequestBuilder {
	b.req.Payload = payload
	return b
}

// WithPayloadString sets the task payload from a string.
func (b *TaskRequestBuilder) WithPayloadString(payload string) *TaskRequestBuilder {
	b.req.Payload = json.RawMessage(payload)
	return b
}

// WithJobRecordID links the task to a job record.
func (b *TaskRequestBuilder) WithJobRecordID(jobRecordID string) *TaskRequestBuilder {
	b.req.JobRecordID = &jobRecordID
	return b
}

// WithFireKey sets the scheduler dedup key.
func (b *TaskRequestBuilder) WithFireKey(fireKey string) *TaskRequestBuilder {
	b.req.FireKey = &fireKey
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *TaskRequestBuilder) WithScheduledAt(scheduledAt time.Time) *TaskRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// WithMaxRetries sets the maximum number of retries.
func (b *TaskRequestBuilder) WithMaxRetries(maxRetries int) *TaskRequestBuilder {
	b.req.MaxRetries = maxRetries
	return b
}

// Build returns the constructed CreateTaskRequest.
func (b *TaskRequestBuilder) Build() *model.CreateTaskRequest {
	return b.req
}

// TestScenarioBuilder provides a fluent interface for building test scenarios.
type TestScenarioBuilder struct {
	tasks []TaskScenario
}

// TaskScenario represents a queue task and the actions to perform on it.
type TaskScenario struct {
	Request *model.CreateTaskRequest
	Actions []TaskAction
}

// TaskAction represents an action to perform on a task.
type TaskAction struct {
	Type   string // "reserve", "complete", "fail", "heartbeat"
	Params map[string]interface{}
}

// NewTestScenario creates a new TestScenarioBuilder.
func NewTestScenario() *TestScenarioBuilder {
	return &TestScenarioBuilder{
		tasks: make([]TaskScenario, 0),
	}
}

// AddTask adds a task scenario to the test.
func (b *TestScenarioBuilder) AddTask(request *model.CreateTaskRequest, actions ...TaskAction) *TestScenarioBuilder {
	b.tasks = append(b.tasks, TaskScenario{
		Request: request,
		Actions: actions,
	})
	return b
}

// AddPendingTask adds a task that stays pending.
func (b *TestScenarioBuilder) AddPendingTask(priority int) *TestScenarioBuilder {
	req := NewTaskRequest().
		WithPriority(priority).
		WithPayloadString(`{"stage": "pending"}`).
		Build()
	return b.AddTask(req)
}

// AddRunningTask adds a task that gets reserved and stays running.
func (b *TestScenarioBuilder) AddRunningTask(priority int) *TestScenarioBuilder {
	req := NewTaskRequest().
		WithPriority(priority).
		WithPayloadString(`{"stage": "running"}`).
		Build()
	return b.AddTask(req, ReserveAction())
}

// AddCompletedTask adds a task that gets reserved and completed.
func (b *TestScenarioBuilder) AddCompletedTask(priority int) *TestScenarioBuilder {
	req := NewTaskRequest().
		WithPriority(priority).
		WithPayloadString(`{"stage": "completed"}`).
		Build()
	return b.AddTask(req, ReserveAction(), CompleteAction())
}

// AddFailedTask adds a task that gets reserved and failed.
func (b *TestScenarioBuilder) AddFailedTask(priority, maxRetries int) *TestScenarioBuilder {
	req := NewTaskRequest().
		WithPriority(priority).
		WithMaxRetries(maxRetries).
		WithPayloadString(`{"stage": "failed"}`).
		Build()
	return b.AddTask(req, ReserveAction(), FailAction("test failure"))
}

// Build returns the constructed task scenarios.
func (b *TestScenarioBuilder) Build() []TaskScenario {
	return b.tasks
}

// Action builders for common task actions

// ReserveAction creates a reserve action.
func ReserveAction() TaskAction {
	return TaskAction{Type: "reserve"}
}

// CompleteAction creates a complete action.
func CompleteAction() TaskAction {
	return TaskAction{Type: "complete"}
}

// FailAction creates a fail action with an error message.
func FailAction(errorMsg string) TaskAction {
	return TaskAction{
		Type:   "fail",
		Params: map[string]interface{}{"error": errorMsg},
	}
}

// HeartbeatAction creates a heartbeat action with lease seconds.
func HeartbeatAction(leaseSeconds int) TaskAction {
	return TaskAction{
		Type:   "heartbeat",
		Params: map[string]interface{}{"leaseSeconds": leaseSeconds},
	}
}

// Common test task request presets

// PayrollTaskRequest creates a payroll batch task request with default values.
func PayrollTaskRequest() *model.CreateTaskRequest {
	return NewTaskRequest().
		WithName("payroll.run_batch").
		WithQueue("payroll").
		WithPayloadString(`{"tenant_id": "tenant-1"}`).
		Build()
}

// WebhookTaskRequest creates a webhook delivery task request with default values.
func WebhookTaskRequest() *model.CreateTaskRequest {
	return NewTaskRequest().
		WithName("webhook.deliver").
		WithQueue("webhooks").
		WithMaxRetries(0).
		WithPayloadString(`{"delivery_id": "00000000-0000-0000-0000-000000000000"}`).
		Build()
}

// HighPriorityTaskRequest creates a high priority task request.
func HighPriorityTaskRequest() *model.CreateTaskRequest {
	return NewTaskRequest().
		WithPriority(100).
		WithPayloadString(`{"urgent": true}`).
		Build()
}

// LowPriorityTaskRequest creates a low priority task request.
func LowPriorityTaskRequest() *model.CreateTaskRequest {
	return NewTaskRequest().
		WithPriority(10).
		WithPayloadString(`{"background": true}`).
		Build()
}

// ScheduledTaskRequest creates a task request scheduled for the future.
func ScheduledTaskRequest(scheduledAt time.Time) *model.CreateTaskRequest {
	return NewTaskRequest().
		WithScheduledAt(scheduledAt).
		WithPayloadString(`{"scheduled": true}`).
		Build()
}

// RetryableTaskRequest creates a task request with custom retry settings.
func RetryableTaskRequest(maxRetries int) *model.CreateTaskRequest {
	return NewTaskRequest().
		WithMaxRetries(maxRetries).
		WithPayloadString(`{"retryable": true}`).
		Build()
}
