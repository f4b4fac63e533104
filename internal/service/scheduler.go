// Package service provides business logic services for the paymaster payroll system.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data"
	"github.com/plateworks/paymaster/internal/domain"
	"github.com/plateworks/paymaster/internal/domain/model"
	domainscheduler "github.com/plateworks/paymaster/internal/domain/scheduler"
)

// SchedulerService materializes due scheduled task definitions into queue
// tasks. Safe under concurrent replicas: FindDue skips locked rows, each task
// name is processed under an advisory lock, and the window fire key turns a
// repeated enqueue into a no-op.
type SchedulerService struct {
	repo         core.ScheduledTasksRepository
	tasks        core.TaskRepository
	registry     *core.TaskRegistry
	cfg          core.SchedulerConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// SchedulerServiceOptions groups dependencies for SchedulerService.
type SchedulerServiceOptions struct {
	Repo  core.ScheduledTasksRepository // Required: scheduled task definitions
	Tasks core.TaskRepository           // Required: queue task creation

	Registry     *core.TaskRegistry    // Optional: defaults to the built-in registry
	Config       *core.SchedulerConfig // Optional: batch size and default priority
	TimeProvider data.TimeProvider     // Optional: clock override for tests
	Logger       *slog.Logger          // Optional: structured logger
}

// NewSchedulerService constructs a new SchedulerService.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ScheduledTasksRepository is required")
	}
	if opts.Tasks == nil {
		return nil, errors.New("TaskRepository is required")
	}

	registry := opts.Registry
	if registry == nil {
		registry = core.DefaultTaskRegistry()
	}

	cfg := core.DefaultSchedulerConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = core.DefaultSchedulerConfig().BatchSize
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "scheduler_service")
		logger.Debug("SchedulerService initialized", "batch_size", cfg.BatchSize)
	}

	return &SchedulerService{
		repo:         opts.Repo,
		tasks:        opts.Tasks,
		registry:     registry,
		cfg:          cfg,
		timeProvider: timeProvider,
		logger:       logger,
	}, nil
}

// MustNewSchedulerService constructs a new SchedulerService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewSchedulerService(opts SchedulerServiceOptions) *SchedulerService {
	svc, err := NewSchedulerService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create SchedulerService: %v", err))
	}
	return svc
}

// Tick processes due scheduled tasks and enqueues their current windows.
// Returns the number of tasks that made a state change.
//
// Concurrency safety:
//   - FindDue uses FOR UPDATE SKIP LOCKED so overlapping ticks divide the rows
//   - TryWithTaskLock holds an advisory lock per task name, so only one
//     replica works a given definition at a time
//   - the window fire key is unique among non-terminal tasks, so a replica
//     working from a stale row inserts nothing
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.FindDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find due tasks: %w", err)
	}

	processed := 0
	for _, task := range due {
		worked := false
		lockOK, lockErr := s.repo.TryWithTaskLock(ctx, task.TaskName, func(ctx context.Context, tx *sql.Tx) error {
			w, processErr := s.processTask(ctx, tx, task)
			if w {
				worked = true
			}
			return processErr
		})
		if lockErr != nil {
			return processed, fmt.Errorf("process task %s: %w", task.TaskName, lockErr)
		}
		if lockOK && worked {
			processed++
		}
		// lockOK=false means another replica holds this task name; skip.
	}

	return processed, nil
}

// processTask handles a single scheduled task within its advisory-locked
// transaction. Returns worked=true when this invocation made a change
// (created a queue task or advanced last_queued_at).
func (s *SchedulerService) processTask(
	ctx context.Context,
	tx *sql.Tx,
	task domain.ScheduledTask,
) (bool, error) {
	result, err := domainscheduler.Process(ctx, domainscheduler.ProcessParams{
		Task: task,
		Now:  s.timeProvider.Now(),
		Store: scheduledTaskStore{
			repo: s.repo,
			tx:   tx,
		},
		Enqueuer: scheduledTaskEnqueuer{
			service: s,
			tx:      tx,
		},
	})
	if err != nil {
		return false, err
	}
	if result == nil {
		return false, nil
	}

	if s.logger != nil {
		switch {
		case result.Enqueued:
			s.logger.InfoContext(ctx, "scheduled task enqueued",
				"task_name", task.TaskName,
				"fire_key", result.FireKey,
			)
		case result.FireKey != "":
			s.logger.DebugContext(ctx, "scheduled window already enqueued",
				"task_name", task.TaskName,
				"fire_key", result.FireKey,
			)
		}
	}
	return result.Worked, nil
}

// scheduledTaskStore routes scheduler persistence through the ambient transaction.
type scheduledTaskStore struct {
	repo core.ScheduledTasksRepository
	tx   *sql.Tx
}

func (a scheduledTaskStore) MarkQueued(ctx context.Context, params domain.MarkQueuedParams) (bool, error) {
	return a.repo.MarkQueuedTx(ctx, a.tx, params)
}

// scheduledTaskEnqueuer creates the queue task for a due definition.
type scheduledTaskEnqueuer struct {
	service *SchedulerService
	tx      *sql.Tx
}

func (e scheduledTaskEnqueuer) Enqueue(ctx context.Context, task domain.ScheduledTask, fireKey string) (bool, error) {
	return e.service.enqueueScheduled(ctx, enqueueScheduledParams{
		Tx:      e.tx,
		Task:    task,
		FireKey: fireKey,
	})
}

type enqueueScheduledParams struct {
	Tx      *sql.Tx
	Task    domain.ScheduledTask
	FireKey string
}

// enqueueScheduled inserts the queue task for a scheduled definition.
// Returns created=false when the fire key window already exists.
func (s *SchedulerService) enqueueScheduled(ctx context.Context, params enqueueScheduledParams) (bool, error) {
	req, err := s.buildTaskRequest(params.Task, params.FireKey)
	if err != nil {
		return false, err
	}

	if insertErr := s.insertTask(ctx, params.Tx, req); insertErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(insertErr, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// This window was already enqueued by an earlier tick or another
			// replica; treat as a no-op.
			return false, nil
		}
		return false, fmt.Errorf("create queue task: %w", insertErr)
	}
	return true, nil
}

// buildTaskRequest resolves queue routing for the definition. Registered names
// get their registry queue and retry policy; operator-defined names run on the
// queue stored with the definition, without retries.
func (s *SchedulerService) buildTaskRequest(task domain.ScheduledTask, fireKey string) (*model.CreateTaskRequest, error) {
	queue := ""
	maxRetries := 0
	if def, ok := s.registry.Resolve(task.TaskName); ok {
		queue = def.Queue
		maxRetries = def.Retry.MaxRetries
	} else if task.Queue != "" {
		queue = task.Queue
	}
	if queue == "" {
		return nil, fmt.Errorf("scheduled task %s resolves to no queue", task.TaskName)
	}

	return &model.CreateTaskRequest{
		Name:       task.TaskName,
		Queue:      queue,
		Priority:   s.cfg.DefaultPriority,
		Payload:    task.Payload,
		MaxRetries: maxRetries,
		FireKey:    &fireKey,
	}, nil
}

// insertTask creates the task, preferring the transactional path so the
// insert commits or rolls back together with last_queued_at.
func (s *SchedulerService) insertTask(ctx context.Context, tx *sql.Tx, req *model.CreateTaskRequest) error {
	if tx == nil {
		_, err := s.tasks.Create(ctx, req)
		return err
	}

	if creator, ok := s.tasks.(core.TaskRepositoryTx); ok {
		_, err := creator.CreateInTx(ctx, tx, req)
		return err
	}

	if s.logger != nil {
		s.logger.WarnContext(
			ctx,
			"task repository missing transactional support; falling back to non-transactional create",
		)
	}

	_, err := s.tasks.Create(ctx, req)
	return err
}
