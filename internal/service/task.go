package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/domain/model"
	domaintask "github.com/plateworks/paymaster/internal/domain/task"
	apperrors "github.com/plateworks/paymaster/internal/errors"
	"github.com/plateworks/paymaster/internal/observability/notify"
	"github.com/plateworks/paymaster/internal/service/failurenotifier"
)

// defaultTaskLease is the lease duration used when none is configured.
const defaultTaskLease = 5 * time.Minute

// TaskServiceOptions groups dependencies for TaskService.
type TaskServiceOptions struct {
	Repo            core.TaskRepository          // Required: task repository
	Registry        *core.TaskRegistry           // Optional: defaults to the built-in registry
	DefaultLease    time.Duration                // Optional: default lease duration (default: 5m)
	Logger          *slog.Logger                 // Optional: structured logger
	FailureNotifier *failurenotifier.Service     // Optional: notified when a task fails for good
	LeasePolicy     *domaintask.LeasePolicy      // Optional: overrides DefaultLease when provided
	Notifier        domaintask.Notifier          // Optional: queue wakeup fan-out
	NotifierOptions domaintask.NotifierOptions   // Optional: tuning for the default notifier
}

// TaskService provides queue task operations.
//
// This service manages:
// - Enqueueing tasks with queue and retry policy resolved from the registry.
// - Reserving tasks under a lease and extending leases via heartbeat.
// - Completing and failing tasks, with per-task backoff on retryable failures.
// - Fanning out LISTEN/NOTIFY wakeups to waiting workers.
type TaskService struct {
	repo            core.TaskRepository
	registry        *core.TaskRegistry
	leasePolicy     *domaintask.LeasePolicy
	notifier        domaintask.Notifier
	logger          *slog.Logger
	failureNotifier *failurenotifier.Service
}

// NewTaskService constructs a new TaskService.
func NewTaskService(opts TaskServiceOptions) (*TaskService, error) {
	if opts.Repo == nil {
		return nil, errors.New("TaskRepository is required")
	}

	registry := opts.Registry
	if registry == nil {
		registry = core.DefaultTaskRegistry()
	}

	leasePolicy := opts.LeasePolicy
	if leasePolicy == nil {
		defaultLease := opts.DefaultLease
		if defaultLease <= 0 {
			defaultLease = defaultTaskLease
		}

		policy, err := domaintask.NewLeasePolicy(defaultLease)
		if err != nil {
			return nil, fmt.Errorf("configure lease policy: %w", err)
		}
		leasePolicy = policy
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifierOpts := opts.NotifierOptions
		if notifierOpts.Waiter == nil {
			notifierOpts.Waiter = opts.Repo
		}

		built, err := domaintask.NewNotifier(notifierOpts)
		if err != nil {
			return nil, fmt.Errorf("configure notifier: %w", err)
		}
		notifier = built
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "task_service")
		logger.Debug("TaskService initialized",
			"default_lease", leasePolicy.Default(),
			"queues", registry.Queues(),
		)
	}

	return &TaskService{
		repo:            opts.Repo,
		registry:        registry,
		leasePolicy:     leasePolicy,
		notifier:        notifier,
		logger:          logger,
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// MustNewTaskService constructs a new TaskService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewTaskService(opts TaskServiceOptions) *TaskService {
	svc, err := NewTaskService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create TaskService: %v", err))
	}
	return svc
}

// EnqueueTaskParams groups parameters for TaskService.Enqueue.
// Queue and retry policy are not caller-selectable; they come from the
// registry entry for Name.
type EnqueueTaskParams struct {
	Name        string
	Payload     json.RawMessage
	Priority    *int
	JobRecordID *string
	ScheduledAt *time.Time
}

// Enqueue inserts a new task for the given registered task name.
// Unknown names are rejected so payloads can never land on a queue
// no worker drains.
func (s *TaskService) Enqueue(ctx context.Context, params EnqueueTaskParams) (*model.Task, error) {
	def, ok := s.registry.Resolve(params.Name)
	if !ok {
		return nil, apperrors.Validationf("unknown task name %q", params.Name)
	}

	priority := 0
	if params.Priority != nil {
		priority = *params.Priority
	}

	payload := params.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	req := &model.CreateTaskRequest{
		Name:        def.Name,
		Queue:       def.Queue,
		Priority:    priority,
		Payload:     payload,
		MaxRetries:  def.Retry.MaxRetries,
		JobRecordID: params.JobRecordID,
		ScheduledAt: params.ScheduledAt,
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	task, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueue task %s: %w", def.Name, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "task enqueued",
			"task_id", task.ID,
			"task_name", task.Name,
			"queue", task.Queue,
			"priority", task.Priority,
		)
	}

	return task, nil
}

// GetByID retrieves a task by its ID.
func (s *TaskService) GetByID(ctx context.Context, id string) (*model.Task, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// Reserve claims the next available task on the queue under a lease.
// A zero lease uses the configured default; sub-second leases are clamped up.
// Returns model.ErrNoTasksAvailable (wrapped) when the queue is empty.
func (s *TaskService) Reserve(ctx context.Context, queue string, lease time.Duration) (*model.Task, error) {
	if queue == "" {
		return nil, apperrors.Validation("queue is required")
	}

	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "lease duration clamped",
			"queue", queue,
			"requested", decision.Requested,
			"lease_seconds", decision.Seconds,
		)
	}

	task, err := s.repo.ReserveNext(ctx, queue, decision.Seconds)
	if err != nil {
		return nil, fmt.Errorf("reserve next task: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "task reserved",
			"task_id", task.ID,
			"task_name", task.Name,
			"queue", task.Queue,
			"lease_seconds", decision.Seconds,
		)
	}

	return task, nil
}

// Heartbeat extends the lease on a running task. Returns false when the task
// is no longer running under a lease (completed, failed, or reclaimed).
func (s *TaskService) Heartbeat(ctx context.Context, taskID string, extend time.Duration) (bool, error) {
	if taskID == "" {
		return false, apperrors.Validation("task id is required")
	}

	decision := s.leasePolicy.Resolve(extend)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "heartbeat lease clamped",
			"task_id", taskID,
			"requested", decision.Requested,
			"lease_seconds", decision.Seconds,
		)
	}

	extended, err := s.repo.Heartbeat(ctx, taskID, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat task %s: %w", taskID, err)
	}
	return extended, nil
}

// Complete marks a running task as completed. Returns false when the task
// was not running (already terminal or reclaimed by another worker).
func (s *TaskService) Complete(ctx context.Context, taskID string) (bool, error) {
	completed, err := s.repo.Complete(ctx, taskID)
	if err != nil {
		return false, fmt.Errorf("complete task %s: %w", taskID, err)
	}

	if completed && s.logger != nil {
		s.logger.DebugContext(ctx, "task completed", "task_id", taskID)
	}

	return completed, nil
}

// TaskFailureDetails carries optional context for failure notifications.
// Callers that know the owning job record can fill JobType and TenantID so
// pages carry the batch identity rather than just the task identity.
type TaskFailureDetails struct {
	JobType    string
	TenantID   string
	ErrorClass string
	Severity   string
	Metadata   map[string]string
	OccurredAt time.Time
}

// Fail records a failed attempt on a running task. Tasks with retries left go
// back to pending with a backoff from the registry retry policy; exhausted
// tasks go terminal and trigger a failure notification.
func (s *TaskService) Fail(ctx context.Context, taskID, errMsg string) (bool, error) {
	return s.FailWithDetails(ctx, taskID, errMsg, TaskFailureDetails{})
}

// FailWithDetails is Fail with additional notification context.
func (s *TaskService) FailWithDetails(
	ctx context.Context,
	taskID, errMsg string,
	details TaskFailureDetails,
) (bool, error) {
	// The pre-fail row is needed for the registry backoff (keyed on the
	// current retry count) and for the notification payload.
	task, loadErr := s.repo.GetByID(ctx, taskID)
	if loadErr != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to load task before fail",
			"task_id", taskID,
			"error", loadErr,
		)
	}

	var retryDelay time.Duration
	if task != nil {
		if def, ok := s.registry.Resolve(task.Name); ok {
			retryDelay = def.Retry.Delay(task.RetryCount)
		}
	}

	failed, err := s.repo.Fail(ctx, core.FailTaskParams{
		ID:         taskID,
		ErrMsg:     errMsg,
		RetryDelay: retryDelay,
	})
	if err != nil {
		return false, fmt.Errorf("fail task %s: %w", taskID, err)
	}

	if failed && task != nil {
		if taskExhaustedAfterFail(task) {
			s.notifyTaskFailure(ctx, task, errMsg, details)
		} else if s.logger != nil {
			s.logger.DebugContext(ctx, "task scheduled for retry",
				"task_id", task.ID,
				"task_name", task.Name,
				"retry_count", task.RetryCount+1,
				"max_retries", task.MaxRetries,
				"retry_delay", retryDelay,
			)
		}
	}

	return failed, nil
}

// taskExhaustedAfterFail reports whether recording one more failed attempt
// puts the task past its retry budget. Mirrors the repository's terminal
// condition so the notification fires exactly once.
func taskExhaustedAfterFail(task *model.Task) bool {
	return task.RetryCount+1 >= task.MaxRetries
}

func (s *TaskService) notifyTaskFailure(
	ctx context.Context,
	task *model.Task,
	errMsg string,
	details TaskFailureDetails,
) {
	if s.failureNotifier == nil || !s.failureNotifier.Enabled() {
		return
	}

	payload := notify.JobFailurePayload{
		TaskID:     task.ID,
		TaskName:   task.Name,
		Queue:      task.Queue,
		JobType:    details.JobType,
		TenantID:   details.TenantID,
		Error:      errMsg,
		ErrorClass: details.ErrorClass,
		Severity:   details.Severity,
		OccurredAt: details.OccurredAt,
		Metadata:   applyTaskContext(task, details.Metadata),
	}
	if task.JobRecordID != nil {
		payload.JobRecordID = *task.JobRecordID
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now().UTC()
	}

	s.failureNotifier.NotifyJobFailure(ctx, payload)
}

// applyTaskContext merges caller metadata with the task's retry context.
// Caller keys win so runners can override the defaults.
func applyTaskContext(task *model.Task, metadata map[string]string) map[string]string {
	merged := map[string]string{
		"retry_count": strconv.Itoa(task.RetryCount + 1),
		"max_retries": strconv.Itoa(task.MaxRetries),
		"priority":    strconv.Itoa(task.Priority),
	}
	for key, value := range metadata {
		if key == "" || value == "" {
			continue
		}
		merged[key] = value
	}
	return merged
}

// Stats returns queue depth per task state for the given queue.
func (s *TaskService) Stats(ctx context.Context, queue string) (*model.TaskStats, error) {
	if queue == "" {
		return nil, apperrors.Validation("queue is required")
	}

	stats, err := s.repo.Stats(ctx, queue)
	if err != nil {
		return nil, fmt.Errorf("get task stats: %w", err)
	}
	return stats, nil
}

// List returns tasks matching the given filters with normalized pagination.
func (s *TaskService) List(ctx context.Context, opts *model.TaskListOptions) ([]*model.Task, error) {
	if opts == nil {
		opts = &model.TaskListOptions{}
	}
	opts.Limit, opts.Offset = normalizePagination(opts.Limit, opts.Offset)

	tasks, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Delete removes a task that is not currently reserved.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "task deleted", "task_id", id)
	}

	return nil
}

// Subscribe registers interest in wakeups for the queue. The returned channel
// receives a signal whenever new work may be available; the returned function
// unsubscribes.
func (s *TaskService) Subscribe(queue string) (func(), <-chan struct{}) {
	return s.notifier.Subscribe(queue)
}

// WaitForNotification blocks until a wakeup arrives for the queue or the
// context ends. Prefer Subscribe for long-lived workers.
func (s *TaskService) WaitForNotification(ctx context.Context, queue string) error {
	unsubscribe, ch := s.notifier.Subscribe(queue)
	defer unsubscribe()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// StopAllListeners shuts down all queue listeners. Call during shutdown.
func (s *TaskService) StopAllListeners() {
	if s.notifier != nil {
		s.notifier.StopAll()
	}
}

// normalizePagination applies the shared limit and offset defaults.
func normalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
