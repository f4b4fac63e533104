package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data"
	"github.com/plateworks/paymaster/internal/domain"
	"github.com/plateworks/paymaster/internal/domain/model"
	domainscheduler "github.com/plateworks/paymaster/internal/domain/scheduler"
	"github.com/plateworks/paymaster/internal/mocks"
)

type schedulerHarness struct {
	svc   *SchedulerService
	repo  *mocks.MockScheduledTasksRepository
	tasks *mocks.MockTaskRepository
	now   time.Time
}

func newSchedulerHarness(t *testing.T, ctrl *gomock.Controller, cfg *core.SchedulerConfig) *schedulerHarness {
	t.Helper()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	h := &schedulerHarness{
		repo:  mocks.NewMockScheduledTasksRepository(ctrl),
		tasks: mocks.NewMockTaskRepository(ctrl),
		now:   now,
	}
	h.svc = MustNewSchedulerService(SchedulerServiceOptions{
		Repo:         h.repo,
		Tasks:        h.tasks,
		Config:       cfg,
		TimeProvider: data.NewFixedTimeProvider(now),
	})
	return h
}

// grantLock simulates a won advisory lock by running the callback.
func grantLock(repo *mocks.MockScheduledTasksRepository, name string, tx *sql.Tx) *gomock.Call {
	return repo.EXPECT().
		TryWithTaskLock(gomock.Any(), name, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, fn func(context.Context, *sql.Tx) error) (bool, error) {
			return true, fn(ctx, tx)
		})
}

func dueDefinition(id, name string) domain.ScheduledTask {
	return domain.ScheduledTask{
		ID:       id,
		TaskName: name,
		Queue:    core.QueueMaintenance,
		Payload:  json.RawMessage(`{}`),
		Interval: time.Minute,
		Enabled:  true,
	}
}

func TestNewSchedulerService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockScheduledTasksRepository(ctrl)
	tasks := mocks.NewMockTaskRepository(ctrl)

	t.Run("success with defaults", func(t *testing.T) {
		svc, err := NewSchedulerService(SchedulerServiceOptions{Repo: repo, Tasks: tasks})
		require.NoError(t, err)
		assert.Equal(t, 25, svc.cfg.BatchSize)
		assert.Equal(t, 0, svc.cfg.DefaultPriority)
		assert.NotNil(t, svc.timeProvider)
		assert.NotNil(t, svc.registry)
	})

	t.Run("missing repo", func(t *testing.T) {
		_, err := NewSchedulerService(SchedulerServiceOptions{Tasks: tasks})
		require.ErrorContains(t, err, "ScheduledTasksRepository")
	})

	t.Run("missing task repository", func(t *testing.T) {
		_, err := NewSchedulerService(SchedulerServiceOptions{Repo: repo})
		require.ErrorContains(t, err, "TaskRepository")
	})
}

func TestSchedulerServiceTick(t *testing.T) {
	ctx := context.Background()

	t.Run("no due tasks", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, nil)

		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 25).Return(nil, nil)

		processed, err := h.svc.Tick(ctx, h.now)
		require.NoError(t, err)
		assert.Zero(t, processed)
	})

	t.Run("due task enqueues its window", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, nil)

		task := dueDefinition("sched-1", core.TaskWebhookRetry)
		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 25).Return([]domain.ScheduledTask{task}, nil)
		grantLock(h.repo, core.TaskWebhookRetry, nil)

		h.tasks.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
				assert.Equal(t, core.TaskWebhookRetry, req.Name)
				assert.Equal(t, core.QueueMaintenance, req.Queue)
				assert.Equal(t, 0, req.MaxRetries)
				assert.Equal(t, 0, req.Priority)
				require.NotNil(t, req.FireKey)
				assert.Equal(t, domainscheduler.ComputeFireKey(task, h.now), *req.FireKey)
				return &model.Task{ID: "t-1", Name: req.Name, Queue: req.Queue}, nil
			})
		h.repo.EXPECT().
			MarkQueuedTx(gomock.Any(), (*sql.Tx)(nil), domain.MarkQueuedParams{ID: "sched-1", Now: h.now}).
			Return(true, nil)

		processed, err := h.svc.Tick(ctx, h.now)
		require.NoError(t, err)
		assert.Equal(t, 1, processed)
	})

	t.Run("registered names carry their retry policy", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, nil)

		task := dueDefinition("sched-2", core.TaskPayrollRunBatch)
		task.Queue = ""
		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 25).Return([]domain.ScheduledTask{task}, nil)
		grantLock(h.repo, core.TaskPayrollRunBatch, nil)

		h.tasks.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
				assert.Equal(t, core.QueuePayroll, req.Queue)
				assert.Equal(t, 3, req.MaxRetries)
				return &model.Task{ID: "t-2"}, nil
			})
		h.repo.EXPECT().MarkQueuedTx(gomock.Any(), (*sql.Tx)(nil), gomock.Any()).Return(true, nil)

		processed, err := h.svc.Tick(ctx, h.now)
		require.NoError(t, err)
		assert.Equal(t, 1, processed)
	})

	t.Run("operator-defined names use their stored queue", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, nil)

		task := dueDefinition("sched-3", "reports.nightly")
		task.Queue = "reports"
		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 25).Return([]domain.ScheduledTask{task}, nil)
		grantLock(h.repo, "reports.nightly", nil)

		h.tasks.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
				assert.Equal(t, "reports", req.Queue)
				assert.Equal(t, 0, req.MaxRetries)
				return &model.Task{ID: "t-3"}, nil
			})
		h.repo.EXPECT().MarkQueuedTx(gomock.Any(), (*sql.Tx)(nil), gomock.Any()).Return(true, nil)

		processed, err := h.svc.Tick(ctx, h.now)
		require.NoError(t, err)
		assert.Equal(t, 1, processed)
	})

	t.Run("name without a queue errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, nil)

		task := dueDefinition("sched-4", "mystery.task")
		task.Queue = ""
		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 25).Return([]domain.ScheduledTask{task}, nil)
		grantLock(h.repo, "mystery.task", nil)

		_, err := h.svc.Tick(ctx, h.now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resolves to no queue")
	})

	t.Run("duplicate fire key is a quiet no-op", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, nil)

		task := dueDefinition("sched-5", core.TaskStuckJobs)
		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 25).Return([]domain.ScheduledTask{task}, nil)
		grantLock(h.repo, core.TaskStuckJobs, nil)

		h.tasks.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			Return(nil, &pgconn.PgError{Code: pgerrcode.UniqueViolation})
		// The window still advances so the definition is not retried every tick.
		h.repo.EXPECT().
			MarkQueuedTx(gomock.Any(), (*sql.Tx)(nil), domain.MarkQueuedParams{ID: "sched-5", Now: h.now}).
			Return(true, nil)

		processed, err := h.svc.Tick(ctx, h.now)
		require.NoError(t, err)
		assert.Equal(t, 1, processed)
	})

	t.Run("lock held elsewhere skips the task", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, nil)

		task := dueDefinition("sched-6", core.TaskJobRetention)
		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 25).Return([]domain.ScheduledTask{task}, nil)
		h.repo.EXPECT().TryWithTaskLock(gomock.Any(), core.TaskJobRetention, gomock.Any()).Return(false, nil)

		processed, err := h.svc.Tick(ctx, h.now)
		require.NoError(t, err)
		assert.Zero(t, processed)
	})

	t.Run("row queued since the scan is left alone", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, nil)

		task := dueDefinition("sched-7", core.TaskWebhookRetry)
		task.LastQueuedAt = &h.now
		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 25).Return([]domain.ScheduledTask{task}, nil)
		grantLock(h.repo, core.TaskWebhookRetry, nil)

		processed, err := h.svc.Tick(ctx, h.now)
		require.NoError(t, err)
		assert.Zero(t, processed)
	})

	t.Run("creation failure reports the task and preserves progress", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, nil)

		good := dueDefinition("sched-8", core.TaskWebhookRetry)
		bad := dueDefinition("sched-9", core.TaskStuckJobs)
		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 25).Return([]domain.ScheduledTask{good, bad}, nil)

		grantLock(h.repo, core.TaskWebhookRetry, nil)
		h.tasks.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
				if req.Name == core.TaskStuckJobs {
					return nil, errors.New("connection lost")
				}
				return &model.Task{ID: "t-8"}, nil
			}).Times(2)
		h.repo.EXPECT().
			MarkQueuedTx(gomock.Any(), (*sql.Tx)(nil), domain.MarkQueuedParams{ID: "sched-8", Now: h.now}).
			Return(true, nil)
		grantLock(h.repo, core.TaskStuckJobs, nil)

		processed, err := h.svc.Tick(ctx, h.now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "process task "+core.TaskStuckJobs)
		assert.Contains(t, err.Error(), "create queue task")
		assert.Equal(t, 1, processed)
	})

	t.Run("find due failure surfaces", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, nil)

		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 25).Return(nil, errors.New("database error"))

		processed, err := h.svc.Tick(ctx, h.now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "find due tasks")
		assert.Zero(t, processed)
	})

	t.Run("custom batch size and priority flow through", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		h := newSchedulerHarness(t, ctrl, &core.SchedulerConfig{BatchSize: 50, DefaultPriority: 5})

		task := dueDefinition("sched-10", core.TaskJobRetention)
		h.repo.EXPECT().FindDue(gomock.Any(), h.now, 50).Return([]domain.ScheduledTask{task}, nil)
		grantLock(h.repo, core.TaskJobRetention, nil)

		h.tasks.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.CreateTaskRequest) (*model.Task, error) {
				assert.Equal(t, 5, req.Priority)
				return &model.Task{ID: "t-10"}, nil
			})
		h.repo.EXPECT().MarkQueuedTx(gomock.Any(), (*sql.Tx)(nil), gomock.Any()).Return(true, nil)

		processed, err := h.svc.Tick(ctx, h.now)
		require.NoError(t, err)
		assert.Equal(t, 1, processed)
	})
}

func TestSchedulerServiceUsesTransactionalCreate(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	repo := mocks.NewMockScheduledTasksRepository(ctrl)
	txRepo := &txTaskRepo{MockTaskRepository: mocks.NewMockTaskRepository(ctrl)}

	svc := MustNewSchedulerService(SchedulerServiceOptions{
		Repo:         repo,
		Tasks:        txRepo,
		TimeProvider: data.NewFixedTimeProvider(now),
	})

	task := dueDefinition("sched-11", core.TaskWebhookRetry)
	tx := new(sql.Tx)
	repo.EXPECT().FindDue(gomock.Any(), now, 25).Return([]domain.ScheduledTask{task}, nil)
	grantLock(repo, core.TaskWebhookRetry, tx)
	repo.EXPECT().
		MarkQueuedTx(gomock.Any(), tx, domain.MarkQueuedParams{ID: "sched-11", Now: now}).
		Return(true, nil)

	processed, err := svc.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// The insert went through the transactional path, not plain Create.
	require.Len(t, txRepo.created, 1)
	assert.Same(t, tx, txRepo.txSeen[0])
	assert.Equal(t, core.TaskWebhookRetry, txRepo.created[0].Name)
}

// txTaskRepo layers transactional create support over the generated mock.
type txTaskRepo struct {
	*mocks.MockTaskRepository
	created []*model.CreateTaskRequest
	txSeen  []*sql.Tx
}

func (r *txTaskRepo) CreateInTx(_ context.Context, tx *sql.Tx, req *model.CreateTaskRequest) (*model.Task, error) {
	r.created = append(r.created, req)
	r.txSeen = append(r.txSeen, tx)
	return &model.Task{ID: "tx-task", Name: req.Name, Queue: req.Queue}, nil
}
