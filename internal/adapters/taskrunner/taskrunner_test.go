package taskrunner

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/plateworks/paymaster/config"
	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/domain/model"
	"github.com/plateworks/paymaster/internal/mocks"
)

type runnerHarness struct {
	runner     *Runner
	tasks      *mocks.MockTaskRepository
	records    *mocks.MockJobRecordRepository
	sweeper    *mocks.MockJobRecordSweeper
	subs       *mocks.MockWebhookSubscriptionRepository
	deliveries *mocks.MockWebhookDeliveryRepository
	directory  *mocks.MockEmployeeDirectory
	calculator *mocks.MockPayrollCalculator
}

// newRunnerHarness builds a runner over mocked repositories. The services in
// between are real, so expectations land on the storage boundary.
func newRunnerHarness(t *testing.T, ctrl *gomock.Controller, opts *RunnerOptions) *runnerHarness {
	t.Helper()

	h := &runnerHarness{
		tasks:      mocks.NewMockTaskRepository(ctrl),
		records:    mocks.NewMockJobRecordRepository(ctrl),
		sweeper:    mocks.NewMockJobRecordSweeper(ctrl),
		subs:       mocks.NewMockWebhookSubscriptionRepository(ctrl),
		deliveries: mocks.NewMockWebhookDeliveryRepository(ctrl),
		directory:  mocks.NewMockEmployeeDirectory(ctrl),
		calculator: mocks.NewMockPayrollCalculator(ctrl),
	}

	ro := RunnerOptions{}
	if opts != nil {
		ro = *opts
	}
	ro.TasksRepo = h.tasks
	ro.RecordsRepo = h.records
	ro.Sweeper = h.sweeper
	ro.Subscriptions = h.subs
	ro.Deliveries = h.deliveries
	ro.Directory = h.directory
	ro.Calculator = h.calculator

	runner, err := NewRunner(ro)
	require.NoError(t, err)
	h.runner = runner
	return h
}

func TestNewRunner(t *testing.T) {
	t.Run("requires a database or injected repositories", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "either DB or a full repository set")
	})

	t.Run("requires the payroll ports", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		_, err := NewRunner(RunnerOptions{
			TasksRepo:     mocks.NewMockTaskRepository(ctrl),
			RecordsRepo:   mocks.NewMockJobRecordRepository(ctrl),
			Sweeper:       mocks.NewMockJobRecordSweeper(ctrl),
			Subscriptions: mocks.NewMockWebhookSubscriptionRepository(ctrl),
			Deliveries:    mocks.NewMockWebhookDeliveryRepository(ctrl),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EmployeeDirectory")
	})

	t.Run("defaults lease, claim wait, and queue concurrency", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newRunnerHarness(t, ctrl, nil)

		assert.Equal(t, 60*time.Second, h.runner.lease)
		assert.Equal(t, 30*time.Second, h.runner.claimWait)
		for queue, workers := range h.runner.queues {
			assert.GreaterOrEqual(t, workers, 1, "queue %s", queue)
		}
		assert.Len(t, h.runner.handlers, 5)
	})

	t.Run("worker config flows through", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newRunnerHarness(t, ctrl, &RunnerOptions{
			Worker: config.WorkerConfig{
				PayrollConcurrency:     8,
				WebhookConcurrency:     2,
				MaintenanceConcurrency: 1,
				TaskLease:              2 * time.Minute,
				ClaimWait:              10 * time.Second,
			},
		})

		assert.Equal(t, 2*time.Minute, h.runner.lease)
		assert.Equal(t, 10*time.Second, h.runner.claimWait)
		assert.Equal(t, 8, h.runner.queues[core.QueuePayroll])
		assert.Equal(t, 2, h.runner.queues[core.QueueWebhooks])
		assert.Equal(t, 1, h.runner.queues[core.QueueMaintenance])
	})
}

func TestRunnerProcessTask(t *testing.T) {
	t.Run("completes a task whose handler succeeds", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newRunnerHarness(t, ctrl, nil)

		task := &model.Task{ID: "task-1", Name: core.TaskWebhookRetry, Queue: core.QueueMaintenance}
		h.deliveries.EXPECT().ClaimRetryable(gomock.Any(), gomock.Any()).Return(nil, nil)
		h.tasks.EXPECT().Complete(gomock.Any(), "task-1").Return(true, nil)

		h.runner.processTask(context.Background(), task)
	})

	t.Run("fails a task with no registered handler", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newRunnerHarness(t, ctrl, nil)

		task := &model.Task{ID: "task-2", Name: "mystery.op", Queue: core.QueueMaintenance}
		h.tasks.EXPECT().GetByID(gomock.Any(), "task-2").Return(task, nil)
		h.tasks.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, params core.FailTaskParams) (bool, error) {
				assert.Equal(t, "task-2", params.ID)
				assert.Contains(t, params.ErrMsg, "no handler for task")
				return true, nil
			})

		h.runner.processTask(context.Background(), task)
	})

	t.Run("retry attempts left leave the owning record alone", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newRunnerHarness(t, ctrl, nil)

		recordID := "rec-1"
		task := &model.Task{
			ID:          "task-3",
			Name:        core.TaskPayrollRunBatch,
			Queue:       core.QueuePayroll,
			Payload:     json.RawMessage(`{broken`),
			JobRecordID: &recordID,
			RetryCount:  0,
			MaxRetries:  3,
		}
		h.tasks.EXPECT().GetByID(gomock.Any(), "task-3").Return(task, nil)
		h.tasks.EXPECT().Fail(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, params core.FailTaskParams) (bool, error) {
				assert.Contains(t, params.ErrMsg, "decode batch payload")
				// first retry backs off from the registry base delay
				assert.Equal(t, 30*time.Second, params.RetryDelay)
				return true, nil
			})
		// No record expectations: the flip only fires on the final attempt.

		h.runner.processTask(context.Background(), task)
	})

	t.Run("final failure flips the owning job record", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newRunnerHarness(t, ctrl, nil)

		recordID := "rec-2"
		task := &model.Task{
			ID:          "task-4",
			Name:        core.TaskPayrollRunBatch,
			Queue:       core.QueuePayroll,
			Payload:     json.RawMessage(`{broken`),
			JobRecordID: &recordID,
			RetryCount:  2,
			MaxRetries:  3,
		}
		h.tasks.EXPECT().GetByID(gomock.Any(), "task-4").Return(task, nil)
		h.tasks.EXPECT().Fail(gomock.Any(), gomock.Any()).Return(true, nil)
		h.records.EXPECT().Fail(gomock.Any(), "rec-2", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, msg string) (bool, error) {
				assert.Contains(t, msg, "exhausted retries")
				return true, nil
			})
		// The record service re-reads the row to refresh its cached snapshot.
		h.records.EXPECT().GetByID(gomock.Any(), "rec-2").Return(&model.JobRecord{
			ID:     recordID,
			Status: model.JobStatusFailed,
		}, nil)

		h.runner.processTask(context.Background(), task)
	})
}

func TestRunnerMaintenanceHandlers(t *testing.T) {
	t.Run("retention sweep drains in batches", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newRunnerHarness(t, ctrl, &RunnerOptions{
			Payroll: config.PayrollConfig{RetentionDays: 30, SweepBatchSize: 100},
		})

		gomock.InOrder(
			h.sweeper.EXPECT().DeleteOldTerminal(gomock.Any(), core.DeleteOldJobRecordsParams{
				MaxAge:    30 * 24 * time.Hour,
				BatchSize: 100,
			}).Return(int64(100), nil),
			h.sweeper.EXPECT().DeleteOldTerminal(gomock.Any(), gomock.Any()).Return(int64(0), nil),
		)

		err := h.runner.handleJobRetention(context.Background(), &model.Task{Name: core.TaskJobRetention})
		require.NoError(t, err)
	})

	t.Run("stuck sweep invalidates cached status per record", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		cacheRepo := core.NewMockCacheRepository(ctrl)
		h := newRunnerHarness(t, ctrl, &RunnerOptions{
			CacheRepo: cacheRepo,
			Payroll:   config.PayrollConfig{StuckJobTimeout: 45 * time.Minute, SweepBatchSize: 10},
		})

		gomock.InOrder(
			h.sweeper.EXPECT().FailStuckProcessing(gomock.Any(), core.FailStuckJobRecordsParams{
				StuckFor: 45 * time.Minute,
				Limit:    10,
				Message:  stuckJobMessage,
			}).Return([]string{"rec-a", "rec-b"}, nil),
			h.sweeper.EXPECT().FailStuckProcessing(gomock.Any(), gomock.Any()).Return(nil, nil),
		)
		cacheRepo.EXPECT().Delete(gomock.Any(), "paymaster:jobstatus:rec-a").Return(true, nil)
		cacheRepo.EXPECT().Delete(gomock.Any(), "paymaster:jobstatus:rec-b").Return(true, nil)

		err := h.runner.handleStuckJobs(context.Background(), &model.Task{Name: core.TaskStuckJobs})
		require.NoError(t, err)
	})

	t.Run("sweep failure surfaces", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newRunnerHarness(t, ctrl, nil)

		h.sweeper.EXPECT().FailStuckProcessing(gomock.Any(), gomock.Any()).
			Return(nil, errors.New("lock timeout"))

		err := h.runner.handleStuckJobs(context.Background(), &model.Task{Name: core.TaskStuckJobs})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fail stuck job records")
	})
}

func TestRunnerRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newRunnerHarness(t, ctrl, &RunnerOptions{
		Worker: config.WorkerConfig{
			PayrollConcurrency:     1,
			WebhookConcurrency:     1,
			MaintenanceConcurrency: 1,
			TaskLease:              time.Minute,
			ClaimWait:              20 * time.Millisecond,
		},
	})

	var claims atomic.Int64
	h.tasks.EXPECT().ReserveNext(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(
		func(_ context.Context, queue string, _ int) (*model.Task, error) {
			if queue == core.QueueMaintenance && claims.Add(1) == 1 {
				return &model.Task{ID: "task-run", Name: core.TaskWebhookRetry, Queue: queue}, nil
			}
			return nil, model.ErrNoTasksAvailable
		})
	h.tasks.EXPECT().WaitForNotification(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(
		func(ctx context.Context, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		})
	h.deliveries.EXPECT().ClaimRetryable(gomock.Any(), gomock.Any()).Return(nil, nil)

	completed := make(chan struct{})
	h.tasks.EXPECT().Complete(gomock.Any(), "task-run").DoAndReturn(
		func(context.Context, string) (bool, error) {
			close(completed)
			return true, nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.runner.Run(ctx) }()

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed before the deadline")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}
