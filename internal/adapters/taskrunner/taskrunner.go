// Package taskrunner provides the worker pool that drains the task queues.
package taskrunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/plateworks/paymaster/config"
	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data"
	"github.com/plateworks/paymaster/internal/data/cryptoutil"
	"github.com/plateworks/paymaster/internal/domain/model"
	obserrors "github.com/plateworks/paymaster/internal/observability/errors"
	"github.com/plateworks/paymaster/internal/observability/metrics"
	"github.com/plateworks/paymaster/internal/observability/statsd"
	"github.com/plateworks/paymaster/internal/service"
	"github.com/plateworks/paymaster/internal/service/failurenotifier"
)

// HandlerFunc processes one claimed task. A returned error records a failed
// attempt, retried per the registry policy for the task name.
type HandlerFunc func(ctx context.Context, task *model.Task) error

// stuckJobMessage lands on job records failed by the maintenance sweep.
const stuckJobMessage = "job stalled in processing; the worker stopped reporting progress"

// RunnerOptions configures the task runner adapter.
type RunnerOptions struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	HTTPClient  *http.Client

	Worker   config.WorkerConfig   // per-queue concurrency, lease, claim wait
	Payroll  config.PayrollConfig  // batch knobs and maintenance sweep bounds
	Webhooks config.WebhooksConfig // delivery attempts, backoff, sweep batch
	Cache    config.CacheConfig    // status and results snapshot TTLs

	// Payroll calculation ports. Required: every run needs the calculator
	// and the directory; Payments may be nil to skip the duplicate check.
	Directory  core.EmployeeDirectory
	Calculator core.PayrollCalculator
	Payments   core.PaymentLookup

	// Encryptor for webhook signing secrets at rest (nil falls back to NoopEncryptor)
	Encryptor cryptoutil.Encryptor

	// Optional dependency injections (useful for tests/decoupling)
	TasksRepo       core.TaskRepository
	RecordsRepo     core.JobRecordRepository
	Sweeper         core.JobRecordSweeper
	Subscriptions   core.WebhookSubscriptionRepository
	Deliveries      core.WebhookDeliveryRepository
	CacheRepo       core.CacheRepository
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// Runner claims tasks from the payroll, webhooks, and maintenance queues and
// executes them with registered handlers.
type Runner struct {
	tasks        *service.TaskService
	records      *service.JobRecordService
	webhooks     *service.WebhookService
	orchestrator *service.PayrollOrchestrator
	sweeper      core.JobRecordSweeper
	cache        *core.JobCacheService

	logger    *slog.Logger
	metrics   statsd.Sink
	lease     time.Duration
	claimWait time.Duration
	queues    map[string]int
	handlers  map[string]HandlerFunc

	retentionAge time.Duration
	stuckAfter   time.Duration
	sweepBatch   int
}

// internal wiring helpers to keep NewRunner small

type runnerDeps struct {
	tasksRepo      core.TaskRepository
	recordsRepo    core.JobRecordRepository
	sweeper        core.JobRecordSweeper
	subsRepo       core.WebhookSubscriptionRepository
	deliveriesRepo core.WebhookDeliveryRepository

	cache    *core.JobCacheService
	tasks    *service.TaskService
	records  *service.JobRecordService
	webhooks *service.WebhookService
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func buildRunnerDeps(opts RunnerOptions) (*runnerDeps, error) {
	deps := &runnerDeps{}

	if opts.TasksRepo != nil {
		deps.tasksRepo = opts.TasksRepo
	} else {
		deps.tasksRepo = data.NewTaskRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	if opts.RecordsRepo != nil {
		deps.recordsRepo = opts.RecordsRepo
	} else {
		deps.recordsRepo = data.NewJobRecordRepo(opts.DB, data.JobRecordRepoConfig{Logger: opts.Logger})
	}

	switch {
	case opts.Sweeper != nil:
		deps.sweeper = opts.Sweeper
	default:
		sweeper, ok := deps.recordsRepo.(core.JobRecordSweeper)
		if !ok {
			return nil, errors.New("records repository does not support sweeping; provide Sweeper")
		}
		deps.sweeper = sweeper
	}

	enc := opts.Encryptor
	if enc == nil {
		enc = &cryptoutil.NoopEncryptor{}
	}
	if opts.Subscriptions != nil {
		deps.subsRepo = opts.Subscriptions
	} else {
		deps.subsRepo = data.NewWebhookSubscriptionRepo(opts.DB, enc)
	}

	if opts.Deliveries != nil {
		deps.deliveriesRepo = opts.Deliveries
	} else {
		deps.deliveriesRepo = data.NewWebhookDeliveryRepo(opts.DB, data.WebhookDeliveryRepoConfig{
			InitialRetryDelay: opts.Webhooks.RetryBackoff,
		})
	}

	deps.cache = buildCacheService(opts)

	return deps, nil
}

// buildCacheService wires the Redis-backed status/results cache. Without a
// Redis client the cache stays nil and every read falls through to Postgres.
func buildCacheService(opts RunnerOptions) *core.JobCacheService {
	cacheRepo := opts.CacheRepo
	if cacheRepo == nil {
		if opts.RedisClient == nil {
			return nil
		}
		cacheRepo = data.NewRedisCacheRepo(opts.RedisClient)
	}
	return core.NewJobCacheService(core.JobCacheServiceOptions{
		Cache: cacheRepo,
		Config: core.JobCacheConfig{
			StatusTTL:  opts.Cache.StatusTTL,
			ResultsTTL: opts.Cache.ResultsTTL,
		},
	})
}

func buildRunnerServices(opts RunnerOptions, deps *runnerDeps, lease time.Duration) error {
	tasks, err := service.NewTaskService(service.TaskServiceOptions{
		Repo:            deps.tasksRepo,
		DefaultLease:    lease,
		Logger:          opts.Logger,
		FailureNotifier: opts.FailureNotifier,
	})
	if err != nil {
		return fmt.Errorf("create task service: %w", err)
	}
	deps.tasks = tasks

	records, err := service.NewJobRecordService(service.JobRecordServiceOptions{
		Repo:   deps.recordsRepo,
		Cache:  deps.cache,
		Logger: opts.Logger,
	})
	if err != nil {
		return fmt.Errorf("create job record service: %w", err)
	}
	deps.records = records

	webhooks, err := service.NewWebhookService(service.WebhookServiceOptions{
		Subscriptions:          deps.subsRepo,
		Deliveries:             deps.deliveriesRepo,
		Tasks:                  tasks,
		HTTPClient:             opts.HTTPClient,
		Logger:                 opts.Logger,
		Metrics:                opts.Metrics,
		Timeout:                opts.Webhooks.DeliveryTimeout,
		MaxAttempts:            opts.Webhooks.MaxAttempts,
		BackoffBase:            opts.Webhooks.RetryBackoff,
		BackoffMax:             opts.Webhooks.RetryBackoffMax,
		SweepBatchSize:         opts.Webhooks.SweepBatchSize,
		RequirePublicEndpoints: opts.Webhooks.RequirePublicEndpoints,
	})
	if err != nil {
		return fmt.Errorf("create webhook service: %w", err)
	}
	deps.webhooks = webhooks

	return nil
}

// NewRunner wires repositories and services and constructs a task runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && (opts.TasksRepo == nil || opts.RecordsRepo == nil ||
		opts.Subscriptions == nil || opts.Deliveries == nil) {
		return nil, errors.New("either DB or a full repository set must be provided")
	}

	logger := resolveLogger(opts.Logger)

	lease := opts.Worker.TaskLease
	if lease <= 0 {
		lease = 60 * time.Second
	}
	claimWait := opts.Worker.ClaimWait
	if claimWait <= 0 {
		claimWait = 30 * time.Second
	}

	deps, err := buildRunnerDeps(opts)
	if err != nil {
		return nil, err
	}
	if err := buildRunnerServices(opts, deps, lease); err != nil {
		return nil, err
	}

	orchestrator, err := service.NewPayrollOrchestrator(service.PayrollOrchestratorOptions{
		Records:       deps.records,
		Tasks:         deps.tasks,
		Directory:     opts.Directory,
		Calculator:    opts.Calculator,
		Payments:      opts.Payments,
		Webhooks:      deps.webhooks,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
		FutureHorizon: opts.Payroll.FutureHorizon,
		BatchPriority: opts.Payroll.BatchPriority,
	})
	if err != nil {
		return nil, fmt.Errorf("create payroll orchestrator: %w", err)
	}

	retentionAge := opts.Payroll.RetentionAge()
	if retentionAge <= 0 {
		retentionAge = 90 * 24 * time.Hour
	}
	stuckAfter := opts.Payroll.StuckJobTimeout
	if stuckAfter <= 0 {
		stuckAfter = 30 * time.Minute
	}
	sweepBatch := opts.Payroll.SweepBatchSize
	if sweepBatch <= 0 {
		sweepBatch = 500
	}

	r := &Runner{
		tasks:        deps.tasks,
		records:      deps.records,
		webhooks:     deps.webhooks,
		orchestrator: orchestrator,
		sweeper:      deps.sweeper,
		cache:        deps.cache,
		logger:       logger,
		metrics:      opts.Metrics,
		lease:        lease,
		claimWait:    claimWait,
		queues: map[string]int{
			core.QueuePayroll:     workerCount(opts.Worker.PayrollConcurrency),
			core.QueueWebhooks:    workerCount(opts.Worker.WebhookConcurrency),
			core.QueueMaintenance: workerCount(opts.Worker.MaintenanceConcurrency),
		},
		retentionAge: retentionAge,
		stuckAfter:   stuckAfter,
		sweepBatch:   sweepBatch,
	}

	// Register built-in handlers
	r.handlers = map[string]HandlerFunc{
		core.TaskPayrollRunBatch: r.handlePayrollBatch,
		core.TaskWebhookDeliver:  r.handleWebhookDeliver,
		core.TaskJobRetention:    r.handleJobRetention,
		core.TaskStuckJobs:       r.handleStuckJobs,
		core.TaskWebhookRetry:    r.handleWebhookRetry,
	}

	return r, nil
}

func workerCount(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Run starts worker goroutines for every queue and processes tasks until the
// context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting task runner",
		"queues", r.queues,
		"lease", r.lease,
		"claim_wait", r.claimWait,
	)

	group, gctx := errgroup.WithContext(ctx)
	for queue, workers := range r.queues {
		for range workers {
			group.Go(func() error { return r.workerLoop(gctx, queue) })
		}
	}

	err := group.Wait()
	r.tasks.StopAllListeners()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runner) workerLoop(ctx context.Context, queue string) error {
	unsub, notify := r.tasks.Subscribe(queue)
	defer unsub()

	for ctx.Err() == nil {
		task, err := r.tasks.Reserve(ctx, queue, r.lease)
		switch {
		case err == nil:
			r.processTask(ctx, task)
		case errors.Is(err, model.ErrNoTasksAvailable):
			if !r.waitForWork(ctx, notify) {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		default:
			r.logger.ErrorContext(ctx, "failed to reserve next task", "queue", queue, "error", err)
			return fmt.Errorf("reserve next task on %s: %w", queue, err)
		}
	}
	return nil
}

// waitForWork blocks until a wakeup arrives for the queue, the bounded wait
// elapses, or the context ends. The timer covers wakeups lost while the
// listener connection is down.
func (r *Runner) waitForWork(ctx context.Context, notify <-chan struct{}) bool {
	timer := time.NewTimer(r.claimWait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	case <-timer.C:
		return true
	}
}

func (r *Runner) processTask(ctx context.Context, task *model.Task) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitTaskLifecycle(r.metrics, metrics.TaskMetric{
			TaskName:   task.Name,
			Queue:      task.Queue,
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	handler, ok := r.handlers[task.Name]
	if !ok {
		err := fmt.Errorf("no handler for task %s", task.Name)
		r.failTask(ctx, task, err)
		emit("failed", metrics.ResultError, err)
		return
	}

	stopHB := r.startHeartbeat(ctx, task.ID)
	err := handler(ctx, task)
	stopHB()

	if err != nil {
		r.logger.ErrorContext(ctx, "task failed",
			"task_id", task.ID,
			"task_name", task.Name,
			"error", err,
		)
		r.failTask(ctx, task, err)
		emit("failed", metrics.ResultError, err)
		return
	}

	if completed, err := r.tasks.Complete(ctx, task.ID); err != nil {
		r.logger.ErrorContext(ctx, "complete task error", "task_id", task.ID, "error", err)
		emit("completed", metrics.ResultError, err)
	} else {
		result := metrics.ResultNoop
		if completed {
			result = metrics.ResultSuccess
		}
		emit("completed", result, nil)
	}
}

// failTask records the failed attempt and, when the task just ran out of
// retries while owning a job record, flips that record to failed so it is
// never left in processing with no task behind it.
func (r *Runner) failTask(ctx context.Context, task *model.Task, cause error) {
	if _, err := r.tasks.FailWithDetails(ctx, task.ID, cause.Error(), service.TaskFailureDetails{
		ErrorClass: obserrors.Classify(cause),
		Metadata: map[string]string{
			"component": "task_runner",
		},
	}); err != nil {
		r.logger.ErrorContext(ctx, "fail task error",
			"task_id", task.ID,
			"error", err,
			"original_error", cause,
		)
	}

	if task.JobRecordID != nil && taskExhausted(task) {
		r.failOwningRecord(ctx, task, cause)
	}
}

// taskExhausted reports whether recording one more failed attempt puts the
// task past its retry budget.
func taskExhausted(task *model.Task) bool {
	return task.RetryCount+1 >= task.MaxRetries
}

func (r *Runner) failOwningRecord(ctx context.Context, task *model.Task, cause error) {
	id := *task.JobRecordID
	msg := fmt.Sprintf("task %s exhausted retries: %v", task.Name, cause)

	flipped, err := r.records.Fail(ctx, id, msg)
	if err != nil {
		r.logger.ErrorContext(ctx, "fail owning job record",
			"job_record_id", id,
			"task_id", task.ID,
			"error", err,
		)
		return
	}
	if flipped {
		r.logger.WarnContext(ctx, "job record failed after task retries exhausted",
			"job_record_id", id,
			"task_id", task.ID,
		)
	}
}

// startHeartbeat starts a background ticker to extend the task lease
// periodically. It returns a stop function to end the heartbeat.
func (r *Runner) startHeartbeat(ctx context.Context, taskID string) func() {
	interval := r.lease / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.tasks.Heartbeat(ctx, taskID, r.lease); err != nil {
					r.logger.ErrorContext(ctx, "heartbeat failed", "task_id", taskID, "error", err)
				} else if !ok {
					r.logger.WarnContext(ctx, "heartbeat not applied (task may be lost)", "task_id", taskID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

// handlePayrollBatch runs the worker body of a batch payroll job.
func (r *Runner) handlePayrollBatch(ctx context.Context, task *model.Task) error {
	return r.orchestrator.ProcessBatch(ctx, task.Payload)
}

// handleWebhookDeliver performs one signed webhook POST attempt.
func (r *Runner) handleWebhookDeliver(ctx context.Context, task *model.Task) error {
	return r.webhooks.ProcessDelivery(ctx, task.Payload)
}

// handleJobRetention deletes terminal job records past the retention window.
// Runs in bounded batches so a backlog cannot hold a maintenance worker for
// an unbounded stretch.
func (r *Runner) handleJobRetention(ctx context.Context, _ *model.Task) error {
	var total int64
	for {
		count, err := r.sweeper.DeleteOldTerminal(ctx, core.DeleteOldJobRecordsParams{
			MaxAge:    r.retentionAge,
			BatchSize: r.sweepBatch,
		})
		if err != nil {
			return fmt.Errorf("delete old job records: %w", err)
		}
		total += count
		if count == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if total > 0 {
		r.logger.InfoContext(ctx, "job record retention sweep complete", "deleted", total)
	}
	return nil
}

// handleStuckJobs fails processing records whose updated_at stopped moving.
// The worker bumps updated_at on every progress increment, so a stale row
// means the task behind it died without settling the record.
func (r *Runner) handleStuckJobs(ctx context.Context, _ *model.Task) error {
	var total int
	for {
		ids, err := r.sweeper.FailStuckProcessing(ctx, core.FailStuckJobRecordsParams{
			StuckFor: r.stuckAfter,
			Limit:    r.sweepBatch,
			Message:  stuckJobMessage,
		})
		if err != nil {
			return fmt.Errorf("fail stuck job records: %w", err)
		}

		for _, id := range ids {
			if err := r.cache.InvalidateStatus(ctx, id); err != nil {
				r.logger.WarnContext(ctx, "invalidate stuck job status",
					"job_record_id", id,
					"error", err,
				)
			}
		}

		total += len(ids)
		if len(ids) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if total > 0 {
		r.logger.WarnContext(ctx, "stuck job records failed", "count", total)
	}
	return nil
}

// handleWebhookRetry re-enqueues webhook deliveries whose next attempt is due.
func (r *Runner) handleWebhookRetry(ctx context.Context, _ *model.Task) error {
	enqueued, err := r.webhooks.RetrySweep(ctx)
	if err != nil {
		return fmt.Errorf("webhook retry sweep: %w", err)
	}
	if enqueued > 0 {
		r.logger.InfoContext(ctx, "webhook retry sweep complete", "re_enqueued", enqueued)
	}
	return nil
}
