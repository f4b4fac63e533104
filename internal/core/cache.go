package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/plateworks/paymaster/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetTTL updates the TTL for an existing key.
	// Returns true if the key exists and TTL was updated.
	SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	// This is useful for implementing distributed locks and deduplication.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// JobCacheService caches job status snapshots and per-employee payroll results
// in Redis so status polls rarely touch Postgres. The store stays the source
// of truth; a stale hit on a terminal record is acceptable because terminal
// rows never change.
type JobCacheService struct {
	cache      CacheRepository
	statusTTL  time.Duration
	resultsTTL time.Duration
}

// JobCacheConfig holds TTLs for the job cache.
type JobCacheConfig struct {
	StatusTTL  time.Duration `json:"status_ttl"`
	ResultsTTL time.Duration `json:"results_ttl"`
}

// DefaultJobCacheConfig returns a JobCacheConfig with sensible defaults.
func DefaultJobCacheConfig() JobCacheConfig {
	return JobCacheConfig{
		StatusTTL:  time.Hour,
		ResultsTTL: 24 * time.Hour,
	}
}

// JobCacheServiceOptions bundles dependencies for NewJobCacheService.
type JobCacheServiceOptions struct {
	Cache  CacheRepository
	Config JobCacheConfig
}

// NewJobCacheService creates a new JobCacheService.
func NewJobCacheService(opts JobCacheServiceOptions) *JobCacheService {
	cfg := opts.Config
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = DefaultJobCacheConfig().StatusTTL
	}
	if cfg.ResultsTTL <= 0 {
		cfg.ResultsTTL = DefaultJobCacheConfig().ResultsTTL
	}
	return &JobCacheService{
		cache:      opts.Cache,
		statusTTL:  cfg.StatusTTL,
		resultsTTL: cfg.ResultsTTL,
	}
}

// CacheStatus stores a job status snapshot.
func (s *JobCacheService) CacheStatus(ctx context.Context, status *model.JobStatusResponse) error {
	if s == nil || s.cache == nil || status == nil || status.JobID == "" {
		return nil
	}

	value, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal job status: %w", err)
	}
	return s.cache.Set(ctx, s.statusKey(status.JobID), value, s.statusTTL)
}

// GetCachedStatus retrieves a cached job status snapshot.
// Returns nil on a miss; an entry that no longer parses is dropped and
// treated as a miss.
func (s *JobCacheService) GetCachedStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	if s == nil || s.cache == nil || jobID == "" {
		return nil, nil
	}

	raw, err := s.cache.Get(ctx, s.statusKey(jobID))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var status model.JobStatusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		_, _ = s.cache.Delete(ctx, s.statusKey(jobID))
		return nil, nil
	}
	return &status, nil
}

// InvalidateStatus removes a cached job status snapshot.
func (s *JobCacheService) InvalidateStatus(ctx context.Context, jobID string) error {
	if s == nil || s.cache == nil || jobID == "" {
		return nil
	}
	_, err := s.cache.Delete(ctx, s.statusKey(jobID))
	return err
}

// CacheResults stores the per-employee results of a finished batch.
// Identical content already in the cache is left alone so the TTL keeps
// counting from the first write.
func (s *JobCacheService) CacheResults(
	ctx context.Context,
	jobID string,
	results []model.EmployeePayrollResult,
) error {
	if s == nil || s.cache == nil || jobID == "" {
		return nil
	}

	value, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal payroll results: %w", err)
	}

	key := s.resultsKey(jobID)
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(cached) > 0 && string(cached) == string(value) {
		return nil
	}

	return s.cache.Set(ctx, key, value, s.resultsTTL)
}

// GetCachedResults retrieves cached per-employee results for a job.
// Returns nil when nothing is cached.
func (s *JobCacheService) GetCachedResults(
	ctx context.Context,
	jobID string,
) ([]model.EmployeePayrollResult, error) {
	if s == nil || s.cache == nil || jobID == "" {
		return nil, nil
	}

	raw, err := s.cache.Get(ctx, s.resultsKey(jobID))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var results []model.EmployeePayrollResult
	if err := json.Unmarshal(raw, &results); err != nil {
		_, _ = s.cache.Delete(ctx, s.resultsKey(jobID))
		return nil, nil
	}
	return results, nil
}

// InvalidateResults removes cached per-employee results for a job.
func (s *JobCacheService) InvalidateResults(ctx context.Context, jobID string) error {
	if s == nil || s.cache == nil || jobID == "" {
		return nil
	}
	_, err := s.cache.Delete(ctx, s.resultsKey(jobID))
	return err
}

// JobStatusCacheKey returns the Redis key holding the status snapshot for a
// job. Exported so operational tooling can inspect and clear entries without
// going through the service.
func JobStatusCacheKey(jobID string) string {
	return "paymaster:jobstatus:" + jobID
}

// JobResultsCacheKey returns the Redis key holding cached per-employee results
// for a job.
func JobResultsCacheKey(jobID string) string {
	return "paymaster:results:" + jobID
}

// statusKey generates the cache key for a job status snapshot.
func (s *JobCacheService) statusKey(jobID string) string {
	return JobStatusCacheKey(jobID)
}

// resultsKey generates the cache key for per-employee results.
func (s *JobCacheService) resultsKey(jobID string) string {
	return JobResultsCacheKey(jobID)
}
