package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data"
	"github.com/plateworks/paymaster/internal/domain/model"
	apperrors "github.com/plateworks/paymaster/internal/errors"
	"github.com/plateworks/paymaster/internal/mocks"
)

// memoryCache is a map-backed CacheRepository for exercising the real cache
// service key scheme in tests.
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = append([]byte(nil), value...)
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.items[key]...), nil
}

func (c *memoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	delete(c.items, key)
	return ok, nil
}

func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok, nil
}

func (c *memoryCache) SetTTL(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok, nil
}

func (c *memoryCache) SetIfNotExists(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		return false, nil
	}
	c.items[key] = append([]byte(nil), value...)
	return true, nil
}

func (c *memoryCache) Health(context.Context) error { return nil }

var _ core.CacheRepository = (*memoryCache)(nil)

func newTestJobRecordService(t *testing.T, repo *mocks.MockJobRecordRepository) (*JobRecordService, *memoryCache) {
	t.Helper()
	mem := newMemoryCache()
	svc := MustNewJobRecordService(JobRecordServiceOptions{
		Repo:  repo,
		Cache: core.NewJobCacheService(core.JobCacheServiceOptions{Cache: mem}),
	})
	return svc, mem
}

func pendingRecord(id, tenantID string, total int) *model.JobRecord {
	return &model.JobRecord{
		ID:         id,
		TenantID:   tenantID,
		JobType:    model.JobTypeBatchPayroll,
		Status:     model.JobStatusPending,
		TotalItems: total,
		CreatedBy:  "api",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

func TestNewJobRecordService(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc, err := NewJobRecordService(JobRecordServiceOptions{
			Repo: mocks.NewMockJobRecordRepository(ctrl),
		})
		require.NoError(t, err)
		require.NotNil(t, svc)
	})

	t.Run("missing repo", func(t *testing.T) {
		svc, err := NewJobRecordService(JobRecordServiceOptions{})
		require.Error(t, err)
		assert.Nil(t, svc)
	})
}

func TestJobRecordServiceCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and primes the status cache", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		record := pendingRecord("job-1", "tenant-1", 12)
		repo.EXPECT().
			Create(gomock.Any(), core.CreateJobRecordParams{
				TenantID:   "tenant-1",
				JobType:    model.JobTypeBatchPayroll,
				TotalItems: 12,
				CreatedBy:  "api",
			}).
			Return(record, nil)

		created, err := svc.Create(ctx, core.CreateJobRecordParams{
			TenantID:   "tenant-1",
			JobType:    model.JobTypeBatchPayroll,
			TotalItems: 12,
			CreatedBy:  "api",
		})
		require.NoError(t, err)
		assert.Equal(t, record, created)

		// The primed snapshot serves the next poll without a store read.
		status, err := svc.GetStatus(ctx, GetJobParams{ID: "job-1", TenantID: "tenant-1"})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, status.Status)
		assert.Equal(t, 12, status.TotalItems)
	})

	t.Run("missing tenant is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		_, err := svc.Create(ctx, core.CreateJobRecordParams{JobType: model.JobTypeBatchPayroll})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("invalid job type is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		_, err := svc.Create(ctx, core.CreateJobRecordParams{
			TenantID: "tenant-1",
			JobType:  model.JobType("mining"),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestJobRecordServiceGetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("store miss populates the cache", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		record := pendingRecord("job-1", "tenant-1", 5)
		record.Status = model.JobStatusProcessing
		record.CompletedItems = 2
		repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(record, nil).Times(1)

		status, err := svc.GetStatus(ctx, GetJobParams{ID: "job-1", TenantID: "tenant-1"})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusProcessing, status.Status)
		assert.Equal(t, 40, status.ProgressPercentage)

		// Second read is a cache hit; the single Times(1) expectation above
		// fails the test if the store is touched again.
		again, err := svc.GetStatus(ctx, GetJobParams{ID: "job-1", TenantID: "tenant-1"})
		require.NoError(t, err)
		assert.Equal(t, status.JobID, again.JobID)
	})

	t.Run("cached snapshot for another tenant reads as missing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		record := pendingRecord("job-1", "tenant-1", 5)
		repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(record, nil).Times(1)

		_, err := svc.GetStatus(ctx, GetJobParams{ID: "job-1", TenantID: "tenant-1"})
		require.NoError(t, err)

		_, err = svc.GetStatus(ctx, GetJobParams{ID: "job-1", TenantID: "tenant-2"})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("bypass forces a store read", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		stale := pendingRecord("job-1", "tenant-1", 5)
		fresh := pendingRecord("job-1", "tenant-1", 5)
		fresh.Status = model.JobStatusCancelled

		gomock.InOrder(
			repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(stale, nil),
			repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(fresh, nil),
		)

		status, err := svc.GetStatus(ctx, GetJobParams{ID: "job-1", TenantID: "tenant-1"})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, status.Status)

		status, err = svc.GetStatus(ctx, GetJobParams{ID: "job-1", TenantID: "tenant-1", BypassCache: true})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, status.Status)
	})

	t.Run("unknown record keeps the repository sentinel", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		repo.EXPECT().GetByID(gomock.Any(), "nope").Return(nil, data.ErrJobRecordNotFound)

		_, err := svc.GetStatus(ctx, GetJobParams{ID: "nope", TenantID: "tenant-1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, data.ErrJobRecordNotFound)
	})

	t.Run("missing id is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		_, err := svc.GetStatus(ctx, GetJobParams{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestJobRecordServiceProgressRefreshesCache(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRecordRepository(ctrl)
	svc, _ := newTestJobRecordService(t, repo)

	updated := pendingRecord("job-1", "tenant-1", 10)
	updated.Status = model.JobStatusProcessing
	updated.CompletedItems = 4
	updated.FailedItems = 1

	repo.EXPECT().
		IncrementProgress(gomock.Any(), core.IncrementProgressParams{ID: "job-1", CompletedDelta: 1}).
		Return(true, nil)
	repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(updated, nil)

	ok, err := svc.IncrementProgress(ctx, core.IncrementProgressParams{ID: "job-1", CompletedDelta: 1})
	require.NoError(t, err)
	require.True(t, ok)

	// Polls are now served from the refreshed snapshot.
	status, err := svc.GetStatus(ctx, GetJobParams{ID: "job-1", TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.Equal(t, 4, status.CompletedItems)
	assert.Equal(t, 1, status.FailedItems)
	assert.Equal(t, 40, status.ProgressPercentage)
}

func TestJobRecordServiceCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels a processing job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		record := pendingRecord("job-1", "tenant-1", 10)
		record.Status = model.JobStatusProcessing
		record.CompletedItems = 3
		record.FailedItems = 1

		cancelledAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
		after := *record
		after.Status = model.JobStatusCancelled
		after.CompletedAt = &cancelledAt

		gomock.InOrder(
			repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(record, nil),
			repo.EXPECT().
				Cancel(gomock.Any(), core.CancelJobRecordParams{ID: "job-1", Reason: "requested"}).
				Return(true, nil),
			repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(&after, nil),
		)

		resp, err := svc.Cancel(ctx, CancelJobParams{ID: "job-1", TenantID: "tenant-1", Reason: "requested"})
		require.NoError(t, err)
		assert.Equal(t, "job-1", resp.JobID)
		assert.Equal(t, model.JobStatusCancelled, resp.Status)
		assert.Equal(t, cancelledAt, resp.CancelledAt)
		assert.Equal(t, 6, resp.EmployeesAffected)
	})

	t.Run("terminal job conflicts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		record := pendingRecord("job-1", "tenant-1", 10)
		record.Status = model.JobStatusCompleted
		repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(record, nil)

		_, err := svc.Cancel(ctx, CancelJobParams{ID: "job-1", TenantID: "tenant-1"})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("losing the cancel race conflicts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		record := pendingRecord("job-1", "tenant-1", 10)
		repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(record, nil)
		repo.EXPECT().Cancel(gomock.Any(), gomock.Any()).Return(false, nil)

		_, err := svc.Cancel(ctx, CancelJobParams{ID: "job-1", TenantID: "tenant-1"})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("other tenant reads as missing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		record := pendingRecord("job-1", "tenant-1", 10)
		repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(record, nil)

		_, err := svc.Cancel(ctx, CancelJobParams{ID: "job-1", TenantID: "tenant-2"})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestJobRecordServiceGetDetail(t *testing.T) {
	ctx := context.Background()

	t.Run("attaches cached results on request", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		record := pendingRecord("job-1", "tenant-1", 2)
		record.Status = model.JobStatusCompleted
		repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(record, nil)

		results := []model.EmployeePayrollResult{
			{EmployeeID: "emp-1", Success: true, GrossAmount: 250000},
			{EmployeeID: "emp-2", Success: false, Error: &model.PayrollError{
				Kind:    "calculation_error",
				Message: "missing tax profile",
			}},
		}
		require.NoError(t, svc.CacheResults(ctx, "job-1", results))

		detail, err := svc.GetDetail(ctx, GetJobDetailParams{
			ID:             "job-1",
			TenantID:       "tenant-1",
			IncludeResults: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 100, detail.ProgressPercentage)
		require.Len(t, detail.Results, 2)
		assert.Equal(t, "emp-1", detail.Results[0].EmployeeID)
	})

	t.Run("results omitted by default", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		record := pendingRecord("job-1", "tenant-1", 2)
		repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(record, nil)
		require.NoError(t, svc.CacheResults(ctx, "job-1", []model.EmployeePayrollResult{{EmployeeID: "emp-1"}}))

		detail, err := svc.GetDetail(ctx, GetJobDetailParams{ID: "job-1", TenantID: "tenant-1"})
		require.NoError(t, err)
		assert.Nil(t, detail.Results)
	})
}

func TestJobRecordServiceList(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a tenant", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		_, err := svc.List(ctx, &model.JobRecordListOptions{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("normalizes pagination", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRecordRepository(ctrl)
		svc, _ := newTestJobRecordService(t, repo)

		repo.EXPECT().
			List(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, opts *model.JobRecordListOptions) ([]*model.JobSummary, error) {
				assert.Equal(t, 50, opts.Limit)
				assert.Equal(t, 0, opts.Offset)
				return []*model.JobSummary{{ID: "job-1"}}, nil
			})

		summaries, err := svc.List(ctx, &model.JobRecordListOptions{TenantID: "tenant-1", Offset: -1})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
	})
}

func TestJobRecordServiceFailRefreshFallsBackToInvalidate(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRecordRepository(ctrl)
	svc, mem := newTestJobRecordService(t, repo)

	// Prime a snapshot, then make the refresh re-read fail.
	record := pendingRecord("job-1", "tenant-1", 3)
	gomock.InOrder(
		repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(record, nil),
		repo.EXPECT().Fail(gomock.Any(), "job-1", "store down").Return(true, nil),
		repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(nil, errors.New("connection lost")),
	)

	_, err := svc.GetStatus(ctx, GetJobParams{ID: "job-1", TenantID: "tenant-1"})
	require.NoError(t, err)

	ok, err := svc.Fail(ctx, "job-1", "store down")
	require.NoError(t, err)
	require.True(t, ok)

	// The stale pending snapshot must be gone.
	mem.mu.Lock()
	_, cached := mem.items["paymaster:jobstatus:job-1"]
	mem.mu.Unlock()
	assert.False(t, cached)
}
