package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/domain/model"
	apperrors "github.com/plateworks/paymaster/internal/errors"
)

// JobRecordServiceOptions groups dependencies for JobRecordService.
type JobRecordServiceOptions struct {
	Repo   core.JobRecordRepository // Required: job record repository
	Cache  *core.JobCacheService    // Optional: Redis-backed status and results cache
	Logger *slog.Logger             // Optional: structured logger
}

// JobRecordService provides job record operations.
//
// This service manages:
// - Creating job records and serving tenant-scoped reads.
// - Status polls through the cache, with singleflight on store misses.
// - Progress and terminal transitions, refreshing the cached snapshot after
//   each store write.
// - Cancellation with terminal-state conflict detection.
type JobRecordService struct {
	repo   core.JobRecordRepository
	cache  *core.JobCacheService
	logger *slog.Logger
	group  singleflight.Group
}

// NewJobRecordService constructs a new JobRecordService.
func NewJobRecordService(opts JobRecordServiceOptions) (*JobRecordService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRecordRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_record_service")
		logger.Debug("JobRecordService initialized", "cache_enabled", opts.Cache != nil)
	}

	return &JobRecordService{
		repo:   opts.Repo,
		cache:  opts.Cache,
		logger: logger,
	}, nil
}

// MustNewJobRecordService constructs a new JobRecordService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobRecordService(opts JobRecordServiceOptions) *JobRecordService {
	svc, err := NewJobRecordService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create JobRecordService: %v", err))
	}
	return svc
}

// Create inserts a new job record and primes its cached status snapshot.
func (s *JobRecordService) Create(
	ctx context.Context,
	params core.CreateJobRecordParams,
) (*model.JobRecord, error) {
	if params.TenantID == "" {
		return nil, apperrors.Validation("tenant id is required")
	}
	if !params.JobType.Valid() {
		return nil, apperrors.Validationf("invalid job type %q", params.JobType)
	}
	if params.TotalItems < 0 {
		return nil, apperrors.Validation("total items cannot be negative")
	}

	record, err := s.repo.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	s.cacheSnapshot(ctx, record)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job record created",
			"job_record_id", record.ID,
			"tenant_id", record.TenantID,
			"job_type", record.JobType,
			"total_items", record.TotalItems,
		)
	}

	return record, nil
}

// GetJobParams groups parameters for JobRecordService.GetStatus.
// An empty TenantID skips the tenant check; HTTP handlers always scope,
// internal callers (workers, sweeps) may not.
type GetJobParams struct {
	ID          string
	TenantID    string
	BypassCache bool
}

// GetStatus returns the status-poll snapshot for a job record.
// Reads go through the cache; concurrent misses for the same record share a
// single store read. BypassCache forces a fresh store read, which workers use
// for cancellation checks.
func (s *JobRecordService) GetStatus(
	ctx context.Context,
	params GetJobParams,
) (*model.JobStatusResponse, error) {
	if params.ID == "" {
		return nil, apperrors.Validation("job id is required")
	}

	if !params.BypassCache {
		if snapshot := s.cachedStatus(ctx, params.ID); snapshot != nil {
			if !tenantAllowed(snapshot.TenantID, params.TenantID) {
				return nil, apperrors.NotFoundf("job %s not found", params.ID)
			}
			return snapshot, nil
		}

		v, err, _ := s.group.Do("jobstatus:"+params.ID, func() (any, error) {
			return s.loadStatus(ctx, params.ID)
		})
		if err != nil {
			return nil, err
		}

		snapshot := v.(*model.JobStatusResponse)
		if !tenantAllowed(snapshot.TenantID, params.TenantID) {
			return nil, apperrors.NotFoundf("job %s not found", params.ID)
		}
		return snapshot, nil
	}

	snapshot, err := s.loadStatus(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if !tenantAllowed(snapshot.TenantID, params.TenantID) {
		return nil, apperrors.NotFoundf("job %s not found", params.ID)
	}
	return snapshot, nil
}

// cachedStatus returns the cached snapshot or nil. Cache errors degrade to a
// miss so Redis trouble never breaks status polls.
func (s *JobRecordService) cachedStatus(ctx context.Context, id string) *model.JobStatusResponse {
	snapshot, err := s.cache.GetCachedStatus(ctx, id)
	if err != nil {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "status cache read failed",
				"job_record_id", id,
				"error", err,
			)
		}
		return nil
	}
	return snapshot
}

// loadStatus reads the record from the store, rebuilds the snapshot, and
// repopulates the cache.
func (s *JobRecordService) loadStatus(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job record %s: %w", id, err)
	}

	s.cacheSnapshot(ctx, record)

	status := record.StatusResponse()
	return &status, nil
}

// cacheSnapshot writes the record's status snapshot to the cache, best effort.
func (s *JobRecordService) cacheSnapshot(ctx context.Context, record *model.JobRecord) {
	status := record.StatusResponse()
	if err := s.cache.CacheStatus(ctx, &status); err != nil && s.logger != nil {
		s.logger.DebugContext(ctx, "status cache write failed",
			"job_record_id", record.ID,
			"error", err,
		)
	}
}

// refreshStatus re-reads the record and rewrites its cached snapshot.
// A failed re-read falls back to invalidation so the cache never serves a
// snapshot older than the write that triggered the refresh.
func (s *JobRecordService) refreshStatus(ctx context.Context, id string) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "status refresh read failed",
				"job_record_id", id,
				"error", err,
			)
		}
		if cacheErr := s.cache.InvalidateStatus(ctx, id); cacheErr != nil && s.logger != nil {
			s.logger.DebugContext(ctx, "status cache invalidation failed",
				"job_record_id", id,
				"error", cacheErr,
			)
		}
		return
	}
	s.cacheSnapshot(ctx, record)
}

// GetJobDetailParams groups parameters for JobRecordService.GetDetail.
type GetJobDetailParams struct {
	ID             string
	TenantID       string
	IncludeResults bool
}

// GetDetail returns the full job record, optionally with cached per-employee
// results attached. Detail reads always hit the store; only the results blob
// comes from the cache.
func (s *JobRecordService) GetDetail(
	ctx context.Context,
	params GetJobDetailParams,
) (*model.JobDetailResponse, error) {
	if params.ID == "" {
		return nil, apperrors.Validation("job id is required")
	}

	record, err := s.repo.GetByID(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("load job record %s: %w", params.ID, err)
	}
	if !tenantAllowed(record.TenantID, params.TenantID) {
		return nil, apperrors.NotFoundf("job %s not found", params.ID)
	}

	detail := &model.JobDetailResponse{
		JobRecord:          *record,
		ProgressPercentage: record.ProgressPercentage(),
	}

	if params.IncludeResults {
		results, err := s.cache.GetCachedResults(ctx, params.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.DebugContext(ctx, "results cache read failed",
					"job_record_id", params.ID,
					"error", err,
				)
			}
		} else {
			detail.Results = results
		}
	}

	return detail, nil
}

// List returns tenant-scoped job summaries with normalized pagination.
func (s *JobRecordService) List(
	ctx context.Context,
	opts *model.JobRecordListOptions,
) ([]*model.JobSummary, error) {
	if opts == nil || opts.TenantID == "" {
		return nil, apperrors.Validation("tenant id is required")
	}
	opts.Limit, opts.Offset = normalizePagination(opts.Limit, opts.Offset)

	summaries, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list job records: %w", err)
	}
	return summaries, nil
}

// MarkProcessing claims a pending record for execution. Returns false when the
// record is missing or no longer pending (cancelled before pickup, or claimed
// by a retried task whose earlier attempt already flipped it).
func (s *JobRecordService) MarkProcessing(ctx context.Context, id string) (bool, error) {
	claimed, err := s.repo.MarkProcessing(ctx, id)
	if err != nil {
		return false, fmt.Errorf("mark job record %s processing: %w", id, err)
	}
	if claimed {
		s.refreshStatus(ctx, id)
	}
	return claimed, nil
}

// IncrementProgress bumps the progress counters of a processing record and
// refreshes the cached snapshot so polls see the movement.
func (s *JobRecordService) IncrementProgress(
	ctx context.Context,
	params core.IncrementProgressParams,
) (bool, error) {
	updated, err := s.repo.IncrementProgress(ctx, params)
	if err != nil {
		return false, fmt.Errorf("increment job record %s progress: %w", params.ID, err)
	}
	if updated {
		s.refreshStatus(ctx, params.ID)
	}
	return updated, nil
}

// Complete finalises a processing record with its terminal counters.
func (s *JobRecordService) Complete(
	ctx context.Context,
	params core.CompleteJobRecordParams,
) (bool, error) {
	completed, err := s.repo.Complete(ctx, params)
	if err != nil {
		return false, fmt.Errorf("complete job record %s: %w", params.ID, err)
	}
	if completed {
		s.refreshStatus(ctx, params.ID)
	}
	return completed, nil
}

// Fail marks a pending or processing record as failed.
func (s *JobRecordService) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	failed, err := s.repo.Fail(ctx, id, errMsg)
	if err != nil {
		return false, fmt.Errorf("fail job record %s: %w", id, err)
	}
	if failed {
		s.refreshStatus(ctx, id)
	}
	return failed, nil
}

// CancelJobParams groups parameters for JobRecordService.Cancel.
type CancelJobParams struct {
	ID       string
	TenantID string
	Reason   string
}

// Cancel marks a pending or processing record as cancelled.
// Terminal records conflict; the record must belong to the tenant.
func (s *JobRecordService) Cancel(
	ctx context.Context,
	params CancelJobParams,
) (*model.CancelJobResponse, error) {
	if params.ID == "" {
		return nil, apperrors.Validation("job id is required")
	}

	record, err := s.repo.GetByID(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("load job record %s: %w", params.ID, err)
	}
	if !tenantAllowed(record.TenantID, params.TenantID) {
		return nil, apperrors.NotFoundf("job %s not found", params.ID)
	}
	if record.Status.Terminal() {
		return nil, apperrors.Conflictf("job %s is already %s", params.ID, record.Status)
	}

	cancelled, err := s.repo.Cancel(ctx, core.CancelJobRecordParams{
		ID:     params.ID,
		Reason: params.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("cancel job record %s: %w", params.ID, err)
	}
	if !cancelled {
		// Lost the race against a terminal transition.
		return nil, apperrors.Conflictf("job %s is already terminal", params.ID)
	}

	cancelledAt := time.Now().UTC()
	if updated, readErr := s.repo.GetByID(ctx, params.ID); readErr == nil {
		s.cacheSnapshot(ctx, updated)
		if updated.CompletedAt != nil {
			cancelledAt = *updated.CompletedAt
		}
	} else if cacheErr := s.cache.InvalidateStatus(ctx, params.ID); cacheErr != nil && s.logger != nil {
		s.logger.DebugContext(ctx, "status cache invalidation failed",
			"job_record_id", params.ID,
			"error", cacheErr,
		)
	}

	remaining := record.TotalItems - record.CompletedItems - record.FailedItems
	if remaining < 0 {
		remaining = 0
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job record cancelled",
			"job_record_id", params.ID,
			"tenant_id", record.TenantID,
			"employees_affected", remaining,
			"reason", params.Reason,
		)
	}

	return &model.CancelJobResponse{
		JobID:             params.ID,
		Status:            model.JobStatusCancelled,
		CancelledAt:       cancelledAt,
		EmployeesAffected: remaining,
	}, nil
}

// CacheResults stores the per-employee results of a finished batch.
func (s *JobRecordService) CacheResults(
	ctx context.Context,
	jobID string,
	results []model.EmployeePayrollResult,
) error {
	return s.cache.CacheResults(ctx, jobID, results)
}

// InvalidateStatus drops a cached status snapshot. The maintenance sweep uses
// this after flipping stuck records.
func (s *JobRecordService) InvalidateStatus(ctx context.Context, jobID string) error {
	return s.cache.InvalidateStatus(ctx, jobID)
}

// tenantAllowed reports whether a record owned by recordTenant may be served
// to a request scoped to reqTenant. An empty reqTenant means an internal,
// unscoped caller.
func tenantAllowed(recordTenant, reqTenant string) bool {
	return reqTenant == "" || recordTenant == reqTenant
}
