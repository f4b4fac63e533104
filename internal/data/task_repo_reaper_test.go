package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data/cryptoutil"
	"github.com/plateworks/paymaster/internal/domain/model"
	"github.com/plateworks/paymaster/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRepo_FailStalePendingTasks(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("fails stale pending tasks", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewTaskRepo(db, RepoConfig{})

			stale, err := repo.Create(ctx, &model.CreateTaskRequest{
				Name:  "payroll.run_batch",
				Queue: "payroll",
			})
			require.NoError(t, err)

			fresh, err := repo.Create(ctx, &model.CreateTaskRequest{
				Name:  "payroll.run_batch",
				Queue: "payroll",
			})
			require.NoError(t, err)

			// Age one task past the cutoff.
			_, err = db.ExecContext(ctx, `
				UPDATE tasks SET created_at = now() - interval '2 hours' WHERE id = $1
			`, stale.ID)
			require.NoError(t, err)

			count, err := repo.FailStalePendingTasks(ctx, time.Hour, 100)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			failedTask, err := repo.GetByID(ctx, stale.ID)
			require.NoError(t, err)
			assert.Equal(t, model.TaskStatusFailed, failedTask.Status)
			require.NotNil(t, failedTask.LastError)
			assert.Contains(t, *failedTask.LastError, "timed out")
			assert.NotNil(t, failedTask.CompletedAt)

			freshTask, err := repo.GetByID(ctx, fresh.ID)
			require.NoError(t, err)
			assert.Equal(t, model.TaskStatusPending, freshTask.Status)
		})
	})

	t.Run("no tasks to fail", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			count, err := repo.FailStalePendingTasks(context.Background(), time.Hour, 100)
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)
		})
	})

	t.Run("does not touch running tasks", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewTaskRepo(db, RepoConfig{})

			task, err := repo.Create(ctx, &model.CreateTaskRequest{
				Name:  "payroll.run_batch",
				Queue: "payroll",
			})
			require.NoError(t, err)

			_, err = repo.ReserveNext(ctx, "payroll", 300)
			require.NoError(t, err)

			_, err = db.ExecContext(ctx, `
				UPDATE tasks SET created_at = now() - interval '2 hours' WHERE id = $1
			`, task.ID)
			require.NoError(t, err)

			count, err := repo.FailStalePendingTasks(ctx, time.Hour, 100)
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)

			running, err := repo.GetByID(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, model.TaskStatusRunning, running.Status)
		})
	})

	t.Run("respects batch size", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewTaskRepo(db, RepoConfig{})

			for range 3 {
				_, err := repo.Create(ctx, &model.CreateTaskRequest{
					Name:  "payroll.run_batch",
					Queue: "payroll",
				})
				require.NoError(t, err)
			}

			_, err := db.ExecContext(ctx, `
				UPDATE tasks SET created_at = now() - interval '2 hours' WHERE status = 'pending'
			`)
			require.NoError(t, err)

			count, err := repo.FailStalePendingTasks(ctx, time.Hour, 2)
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)

			count, err = repo.FailStalePendingTasks(ctx, time.Hour, 2)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})
	})
}

func TestTaskRepo_DeleteOldTasks(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("deletes old completed tasks", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewTaskRepo(db, RepoConfig{})

			task, err := repo.Create(ctx, &model.CreateTaskRequest{
				Name:  "payroll.run_batch",
				Queue: "payroll",
			})
			require.NoError(t, err)

			_, err = repo.ReserveNext(ctx, "payroll", 30)
			require.NoError(t, err)
			_, err = repo.Complete(ctx, task.ID)
			require.NoError(t, err)

			_, err = db.ExecContext(ctx, `
				UPDATE tasks SET completed_at = now() - interval '60 days' WHERE id = $1
			`, task.ID)
			require.NoError(t, err)

			count, err := repo.DeleteOldTasks(ctx, core.DeleteOldTasksParams{
				Status:    model.TaskStatusCompleted,
				MaxAge:    30 * 24 * time.Hour,
				BatchSize: 100,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			_, err = repo.GetByID(ctx, task.ID)
			assert.ErrorIs(t, err, ErrTaskNotFound)
		})
	})

	t.Run("preserves recent tasks", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewTaskRepo(db, RepoConfig{})

			task, err := repo.Create(ctx, &model.CreateTaskRequest{
				Name:  "payroll.run_batch",
				Queue: "payroll",
			})
			require.NoError(t, err)

			_, err = repo.ReserveNext(ctx, "payroll", 30)
			require.NoError(t, err)
			_, err = repo.Complete(ctx, task.ID)
			require.NoError(t, err)

			count, err := repo.DeleteOldTasks(ctx, core.DeleteOldTasksParams{
				Status:    model.TaskStatusCompleted,
				MaxAge:    30 * 24 * time.Hour,
				BatchSize: 100,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)

			_, err = repo.GetByID(ctx, task.ID)
			require.NoError(t, err)
		})
	})

	t.Run("only deletes the requested status", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewTaskRepo(db, RepoConfig{})

			task, err := repo.Create(ctx, &model.CreateTaskRequest{
				Name:       "payroll.run_batch",
				Queue:      "payroll",
				MaxRetries: 0,
			})
			require.NoError(t, err)

			_, err = repo.ReserveNext(ctx, "payroll", 30)
			require.NoError(t, err)
			_, err = repo.Fail(ctx, core.FailTaskParams{ID: task.ID, ErrMsg: "bad batch"})
			require.NoError(t, err)

			_, err = db.ExecContext(ctx, `
				UPDATE tasks SET completed_at = now() - interval '60 days' WHERE id = $1
			`, task.ID)
			require.NoError(t, err)

			// Asking for completed leaves the failed row alone.
			count, err := repo.DeleteOldTasks(ctx, core.DeleteOldTasksParams{
				Status:    model.TaskStatusCompleted,
				MaxAge:    30 * 24 * time.Hour,
				BatchSize: 100,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)

			count, err = repo.DeleteOldTasks(ctx, core.DeleteOldTasksParams{
				Status:    model.TaskStatusFailed,
				MaxAge:    30 * 24 * time.Hour,
				BatchSize: 100,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})
	})

	t.Run("invalid status returns error", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})

			_, err := repo.DeleteOldTasks(context.Background(), core.DeleteOldTasksParams{
				Status:    model.TaskStatus("bogus"),
				MaxAge:    time.Hour,
				BatchSize: 100,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid task status")
		})
	})
}

func TestTaskRepo_DeleteOldDeliveries(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	// Seeds a subscription plus one delivery, returning the delivery ID.
	seedDelivery := func(t *testing.T, db *sql.DB) string {
		t.Helper()
		ctx := context.Background()

		subs := NewWebhookSubscriptionRepo(db, cryptoutil.NoopEncryptor{})
		sub, err := subs.Create(ctx, core.CreateSubscriptionParams{
			URL:        "https://hooks.example.com/paymaster",
			EventTypes: []model.EventType{model.EventPayrollCompleted},
			SecretKey:  "whsec_testsecret",
		})
		require.NoError(t, err)

		deliveries := NewWebhookDeliveryRepo(db, WebhookDeliveryRepoConfig{})
		delivery, err := deliveries.Create(ctx, core.CreateDeliveryParams{
			EventID:        uuid.NewString(),
			SubscriptionID: sub.ID,
			EventType:      model.EventPayrollCompleted,
			Payload:        []byte(`{"job_record_id": "00000000-0000-0000-0000-000000000000"}`),
		})
		require.NoError(t, err)
		return delivery.ID
	}

	age := func(t *testing.T, db *sql.DB, id string) {
		t.Helper()
		_, err := db.ExecContext(context.Background(), `
			UPDATE webhook_deliveries SET created_at = now() - interval '30 days' WHERE id = $1
		`, id)
		require.NoError(t, err)
	}

	t.Run("deletes old delivered rows", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewTaskRepo(db, RepoConfig{})
			deliveries := NewWebhookDeliveryRepo(db, WebhookDeliveryRepoConfig{})

			id := seedDelivery(t, db)
			ok, err := deliveries.MarkDelivered(ctx, core.MarkDeliveredParams{ID: id, Status: 200})
			require.NoError(t, err)
			require.True(t, ok)
			age(t, db, id)

			count, err := repo.DeleteOldDeliveries(ctx, core.DeleteOldDeliveriesParams{
				MaxAge:      7 * 24 * time.Hour,
				BatchSize:   100,
				MaxAttempts: 5,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			_, err = deliveries.GetByID(ctx, id)
			assert.ErrorIs(t, err, ErrDeliveryNotFound)
		})
	})

	t.Run("deletes abandoned rows with no next attempt", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewTaskRepo(db, RepoConfig{})
			deliveries := NewWebhookDeliveryRepo(db, WebhookDeliveryRepoConfig{})

			id := seedDelivery(t, db)
			status := 410
			ok, err := deliveries.MarkFailed(ctx, core.MarkDeliveryFailedParams{
				ID:     id,
				Status: &status,
				ErrMsg: "endpoint gone",
			})
			require.NoError(t, err)
			require.True(t, ok)
			age(t, db, id)

			count, err := repo.DeleteOldDeliveries(ctx, core.DeleteOldDeliveriesParams{
				MaxAge:      7 * 24 * time.Hour,
				BatchSize:   100,
				MaxAttempts: 5,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})
	})

	t.Run("preserves rows still in the retry sweep", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewTaskRepo(db, RepoConfig{})
			deliveries := NewWebhookDeliveryRepo(db, WebhookDeliveryRepoConfig{})

			id := seedDelivery(t, db)
			status := 503
			next := time.Now().Add(time.Minute)
			ok, err := deliveries.MarkFailed(ctx, core.MarkDeliveryFailedParams{
				ID:            id,
				Status:        &status,
				ErrMsg:        "upstream unavailable",
				NextAttemptAt: &next,
			})
			require.NoError(t, err)
			require.True(t, ok)
			age(t, db, id)

			count, err := repo.DeleteOldDeliveries(ctx, core.DeleteOldDeliveriesParams{
				MaxAge:      7 * 24 * time.Hour,
				BatchSize:   100,
				MaxAttempts: 5,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)

			_, err = deliveries.GetByID(ctx, id)
			require.NoError(t, err)
		})
	})

	t.Run("deletes rows that exhausted their attempts", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewTaskRepo(db, RepoConfig{})

			id := seedDelivery(t, db)
			_, err := db.ExecContext(ctx, `
				UPDATE webhook_deliveries SET attempt_count = 5 WHERE id = $1
			`, id)
			require.NoError(t, err)
			age(t, db, id)

			count, err := repo.DeleteOldDeliveries(ctx, core.DeleteOldDeliveriesParams{
				MaxAge:      7 * 24 * time.Hour,
				BatchSize:   100,
				MaxAttempts: 5,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})
	})

	t.Run("validates parameters", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewTaskRepo(db, RepoConfig{})
			ctx := context.Background()

			_, err := repo.DeleteOldDeliveries(ctx, core.DeleteOldDeliveriesParams{
				MaxAge:      time.Hour,
				MaxAttempts: 5,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "batch size")

			_, err = repo.DeleteOldDeliveries(ctx, core.DeleteOldDeliveriesParams{
				BatchSize:   10,
				MaxAttempts: 5,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "max age")

			_, err = repo.DeleteOldDeliveries(ctx, core.DeleteOldDeliveriesParams{
				MaxAge:    time.Hour,
				BatchSize: 10,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "max attempts")
		})
	})
}
