package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateworks/paymaster/internal/domain"
	"github.com/plateworks/paymaster/internal/domain/scheduler"
)

type stubTaskStore struct {
	markParams  []domain.MarkQueuedParams
	markResults []bool
	markErrors  []error
}

func (s *stubTaskStore) MarkQueued(ctx context.Context, params domain.MarkQueuedParams) (bool, error) {
	s.markParams = append(s.markParams, params)
	var result bool
	if len(s.markResults) > 0 {
		result = s.markResults[0]
		s.markResults = s.markResults[1:]
	}
	var err error
	if len(s.markErrors) > 0 {
		err = s.markErrors[0]
		s.markErrors = s.markErrors[1:]
	}
	return result, err
}

type stubTaskEnqueuer struct {
	created bool
	err     error
	calls   []struct {
		task    domain.ScheduledTask
		fireKey string
	}
}

func (s *stubTaskEnqueuer) Enqueue(
	ctx context.Context,
	task domain.ScheduledTask,
	fireKey string,
) (bool, error) {
	s.calls = append(s.calls, struct {
		task    domain.ScheduledTask
		fireKey string
	}{task: task, fireKey: fireKey})
	return s.created, s.err
}

func TestProcess_TaskNotDue(t *testing.T) {
	now := time.Now()
	last := now.Add(-30 * time.Second)
	task := domain.ScheduledTask{
		ID:           "task-1",
		TaskName:     "maintenance.job_retention",
		Interval:     time.Minute,
		LastQueuedAt: &last,
		Enabled:      true,
	}

	store := &stubTaskStore{}
	enqueuer := &stubTaskEnqueuer{created: true}

	result, err := scheduler.Process(context.Background(), scheduler.ProcessParams{
		Task:     task,
		Now:      now,
		Store:    store,
		Enqueuer: enqueuer,
	})
	require.NoError(t, err)
	assert.False(t, result.Worked)
	assert.Empty(t, store.markParams)
	assert.Empty(t, enqueuer.calls)
}

func TestProcess_DisabledTaskSkipped(t *testing.T) {
	now := time.Now()
	task := domain.ScheduledTask{
		ID:       "task-disabled",
		TaskName: "maintenance.stuck_jobs",
		Interval: time.Minute,
		Enabled:  false,
	}

	store := &stubTaskStore{}
	enqueuer := &stubTaskEnqueuer{created: true}

	result, err := scheduler.Process(context.Background(), scheduler.ProcessParams{
		Task:     task,
		Now:      now,
		Store:    store,
		Enqueuer: enqueuer,
	})
	require.NoError(t, err)
	assert.False(t, result.Worked)
	assert.Empty(t, store.markParams)
	assert.Empty(t, enqueuer.calls)
}

func TestProcess_DueTaskEnqueuesAndMarks(t *testing.T) {
	now := time.Now()
	task := domain.ScheduledTask{
		ID:       "task-due",
		TaskName: "maintenance.webhook_retry",
		Interval: time.Minute,
		Enabled:  true,
	}

	store := &stubTaskStore{
		markResults: []bool{true},
	}
	enqueuer := &stubTaskEnqueuer{created: true}

	result, err := scheduler.Process(context.Background(), scheduler.ProcessParams{
		Task:     task,
		Now:      now,
		Store:    store,
		Enqueuer: enqueuer,
	})
	require.NoError(t, err)
	require.True(t, result.Enqueued)
	require.True(t, result.MarkedQueued)
	require.True(t, result.Worked)
	assert.NotEmpty(t, result.FireKey)
	require.Len(t, enqueuer.calls, 1)
	assert.Equal(t, result.FireKey, enqueuer.calls[0].fireKey)
	require.Len(t, store.markParams, 1)
	assert.Equal(t, task.ID, store.markParams[0].ID)
	assert.True(t, now.Equal(store.markParams[0].Now))
}

func TestProcess_DuplicateFireKeyStillMarks(t *testing.T) {
	now := time.Now()
	task := domain.ScheduledTask{
		ID:       "task-dup",
		TaskName: "maintenance.job_retention",
		Interval: time.Minute,
		Enabled:  true,
	}

	store := &stubTaskStore{
		markResults: []bool{true},
	}
	enqueuer := &stubTaskEnqueuer{created: false}

	result, err := scheduler.Process(context.Background(), scheduler.ProcessParams{
		Task:     task,
		Now:      now,
		Store:    store,
		Enqueuer: enqueuer,
	})
	require.NoError(t, err)
	assert.False(t, result.Enqueued)
	assert.True(t, result.MarkedQueued)
	assert.True(t, result.Worked)
	require.Len(t, enqueuer.calls, 1)
	require.Len(t, store.markParams, 1)
}

func TestProcess_EnqueueErrorStopsMark(t *testing.T) {
	now := time.Now()
	task := domain.ScheduledTask{
		ID:       "task-err",
		TaskName: "maintenance.stuck_jobs",
		Interval: time.Minute,
		Enabled:  true,
	}

	store := &stubTaskStore{}
	enqueuer := &stubTaskEnqueuer{err: errors.New("insert failed")}

	_, err := scheduler.Process(context.Background(), scheduler.ProcessParams{
		Task:     task,
		Now:      now,
		Store:    store,
		Enqueuer: enqueuer,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue task")
	assert.Empty(t, store.markParams)
}

func TestProcess_RequiresCollaborators(t *testing.T) {
	task := domain.ScheduledTask{ID: "task", TaskName: "t", Interval: time.Minute, Enabled: true}

	_, err := scheduler.Process(context.Background(), scheduler.ProcessParams{
		Task:     task,
		Enqueuer: &stubTaskEnqueuer{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task store is required")

	_, err = scheduler.Process(context.Background(), scheduler.ProcessParams{
		Task:  task,
		Store: &stubTaskStore{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task enqueuer is required")
}

func TestComputeFireKey(t *testing.T) {
	task := domain.ScheduledTask{
		ID:       "task-fk",
		TaskName: "maintenance.webhook_retry",
		Interval: time.Minute,
	}

	base := time.Unix(1_700_000_040, 0)

	t.Run("same window resolves to the same key", func(t *testing.T) {
		k1 := scheduler.ComputeFireKey(task, base)
		k2 := scheduler.ComputeFireKey(task, base.Add(10*time.Second))
		assert.Equal(t, k1, k2)
	})

	t.Run("next window resolves to a different key", func(t *testing.T) {
		k1 := scheduler.ComputeFireKey(task, base)
		k2 := scheduler.ComputeFireKey(task, base.Add(time.Minute))
		assert.NotEqual(t, k1, k2)
	})

	t.Run("key carries the task name", func(t *testing.T) {
		key := scheduler.ComputeFireKey(task, base)
		slot := base.Unix() / 60
		assert.Equal(t, fmt.Sprintf("maintenance.webhook_retry@%d", slot), key)
	})

	t.Run("zero interval falls back to the timestamp", func(t *testing.T) {
		noInterval := domain.ScheduledTask{ID: "x", TaskName: "adhoc"}
		key := scheduler.ComputeFireKey(noInterval, base)
		assert.Equal(t, fmt.Sprintf("adhoc@%d", base.Unix()), key)
	})
}
