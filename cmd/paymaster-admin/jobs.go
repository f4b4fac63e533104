package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/redis/go-redis/v9"

	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data"
	"github.com/plateworks/paymaster/internal/domain/model"
)

type inspectJobOptions struct {
	JobID string
	Query string
}

func parseInspectJobFlags(args []string) (inspectJobOptions, error) {
	fs := flag.NewFlagSet("inspect-job", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts inspectJobOptions
	fs.StringVar(&opts.JobID, "job-id", "", "Job ID to inspect (required)")
	fs.StringVar(&opts.Query, "query", "", "JMESPath expression applied to the inspection document")

	if err := fs.Parse(args); err != nil {
		return inspectJobOptions{}, err
	}

	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.JobID == "" {
		return inspectJobOptions{}, errors.New("--job-id is required")
	}

	opts.Query = strings.TrimSpace(opts.Query)
	if opts.Query != "" {
		if _, err := jmespath.Compile(opts.Query); err != nil {
			return inspectJobOptions{}, fmt.Errorf("invalid --query expression: %w", err)
		}
	}

	return opts, nil
}

func runInspectJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseInspectJobFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, redisClient, err := connectInfra(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	inspection, found, err := fetchJobInspection(&jobInspectionRequest{
		Ctx:    ctx,
		DB:     db,
		Redis:  redisClient,
		Logger: cmdCtx.Logger,
		JobID:  opts.JobID,
	})
	if err != nil {
		return err
	}
	if !found {
		if writeErr := writef(os.Stdout, "No job record or cache entries found for job %s\n", opts.JobID); writeErr != nil {
			return fmt.Errorf("print empty inspection notice: %w", writeErr)
		}
		return nil
	}

	return renderJobInspection(opts, inspection)
}

type jobInspectionRequest struct {
	Ctx    context.Context
	DB     *sql.DB
	Redis  redis.UniversalClient
	Logger *slog.Logger
	JobID  string
}

// jobInspection is the document inspect-job serializes. The record is the
// authoritative row; the cache section shows what status polls would see.
type jobInspection struct {
	Record             *model.JobRecord   `json:"record"`
	ProgressPercentage *int               `json:"progress_percentage,omitempty"`
	Cache              jobCacheInspection `json:"cache"`
}

type jobCacheInspection struct {
	Status     json.RawMessage `json:"status,omitempty"`
	StatusTTL  *string         `json:"status_ttl,omitempty"`
	Results    json.RawMessage `json:"results,omitempty"`
	ResultsTTL *string         `json:"results_ttl,omitempty"`
}

func fetchJobInspection(req *jobInspectionRequest) (jobInspection, bool, error) {
	if req == nil {
		return jobInspection{}, false, errors.New("inspection request is required")
	}

	inspection := jobInspection{}

	if req.DB != nil {
		repo := data.NewJobRecordRepo(req.DB, data.JobRecordRepoConfig{Logger: req.Logger})
		record, err := repo.GetByID(req.Ctx, req.JobID)
		switch {
		case errors.Is(err, data.ErrJobRecordNotFound):
			// The cache sections below may still hold orphaned entries.
		case err != nil:
			return jobInspection{}, false, err
		default:
			inspection.Record = record
			pct := record.ProgressPercentage()
			inspection.ProgressPercentage = &pct
		}
	}

	if req.Redis != nil {
		status, statusTTL, err := fetchCacheEntry(req.Ctx, req.Redis, core.JobStatusCacheKey(req.JobID))
		if err != nil {
			return jobInspection{}, false, err
		}
		results, resultsTTL, err := fetchCacheEntry(req.Ctx, req.Redis, core.JobResultsCacheKey(req.JobID))
		if err != nil {
			return jobInspection{}, false, err
		}
		inspection.Cache = jobCacheInspection{
			Status:     status,
			StatusTTL:  statusTTL,
			Results:    results,
			ResultsTTL: resultsTTL,
		}
	}

	found := inspection.Record != nil ||
		inspection.Cache.Status != nil ||
		inspection.Cache.Results != nil
	return inspection, found, nil
}

// fetchCacheEntry reads one cache key and its remaining TTL. A missing key
// returns nils rather than an error.
func fetchCacheEntry(
	ctx context.Context,
	client redis.UniversalClient,
	key string,
) (json.RawMessage, *string, error) {
	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	if !json.Valid(raw) {
		// Surface unparseable payloads instead of corrupting the document.
		quoted, quoteErr := json.Marshal(string(raw))
		if quoteErr != nil {
			return nil, nil, fmt.Errorf("quote cache payload %s: %w", key, quoteErr)
		}
		raw = quoted
	}

	var ttlStr *string
	if ttl, ttlErr := client.TTL(ctx, key).Result(); ttlErr == nil {
		rendered := renderTTL(ttl)
		ttlStr = &rendered
	}

	return json.RawMessage(raw), ttlStr, nil
}

func renderJobInspection(opts inspectJobOptions, inspection jobInspection) error {
	docBytes, err := json.Marshal(inspection)
	if err != nil {
		return fmt.Errorf("encode inspection document: %w", err)
	}

	var out any
	if err := json.Unmarshal(docBytes, &out); err != nil {
		return fmt.Errorf("decode inspection document: %w", err)
	}

	if opts.Query != "" {
		projected, searchErr := jmespath.Search(opts.Query, out)
		if searchErr != nil {
			return fmt.Errorf("evaluate --query expression: %w", searchErr)
		}
		out = projected
	}

	rendered, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode inspection output: %w", err)
	}
	if writeErr := writef(os.Stdout, "%s\n", rendered); writeErr != nil {
		return fmt.Errorf("print inspection output: %w", writeErr)
	}
	return nil
}

type stuckJobsOptions struct {
	StuckFor time.Duration
	Limit    int
}

func parseStuckJobsFlags(args []string) (stuckJobsOptions, error) {
	fs := flag.NewFlagSet("list-stuck-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts stuckJobsOptions
	fs.DurationVar(
		&opts.StuckFor,
		"stuck-for",
		30*time.Minute,
		"Minimum duration since the last progress update",
	)
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum rows to display")

	if err := fs.Parse(args); err != nil {
		return stuckJobsOptions{}, err
	}

	if opts.StuckFor <= 0 {
		return stuckJobsOptions{}, errors.New("--stuck-for must be greater than zero")
	}
	if opts.Limit <= 0 {
		return stuckJobsOptions{}, errors.New("--limit must be greater than zero")
	}

	return opts, nil
}

func runListStuckJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseStuckJobsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, 2*time.Minute, func(ctx context.Context, db *sql.DB) error {
		now := time.Now().UTC()
		rows, queryErr := queryStuckJobRows(&stuckJobsQueryRequest{
			Ctx:     ctx,
			DB:      db,
			Logger:  cmdCtx.Logger,
			Options: opts,
			Now:     now,
		})
		if queryErr != nil {
			return queryErr
		}
		return printStuckJobRows(rows, opts, now)
	})
}

type stuckJobsQueryRequest struct {
	Ctx     context.Context
	DB      *sql.DB
	Logger  *slog.Logger
	Options stuckJobsOptions
	Now     time.Time
}

type stuckJobRow struct {
	ID             string
	TenantID       string
	JobType        string
	TotalItems     int
	CompletedItems int
	FailedItems    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// queryStuckJobRows previews what the hygiene sweep would fail: processing
// rows whose updated_at has not moved for the stuck-for window.
func queryStuckJobRows(req *stuckJobsQueryRequest) ([]stuckJobRow, error) {
	if req == nil {
		return nil, errors.New("stuck jobs request is required")
	}

	cutoff := req.Now.Add(-req.Options.StuckFor)

	query := `
		SELECT id, tenant_id, job_type, total_items, completed_items, failed_items, created_at, updated_at
		FROM job_records
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	req.Logger.Debug("querying stuck jobs", "cutoff", cutoff, "limit", req.Options.Limit)

	rows, err := req.DB.QueryContext(req.Ctx, query, cutoff, req.Options.Limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && req.Logger != nil {
			req.Logger.Warn("close stuck job rows failed", "error", closeErr)
		}
	}()

	out := make([]stuckJobRow, 0)
	for rows.Next() {
		var row stuckJobRow
		if scanErr := rows.Scan(
			&row.ID,
			&row.TenantID,
			&row.JobType,
			&row.TotalItems,
			&row.CompletedItems,
			&row.FailedItems,
			&row.CreatedAt,
			&row.UpdatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("scan stuck job row: %w", scanErr)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stuck job rows: %w", err)
	}
	return out, nil
}

func printStuckJobRows(rows []stuckJobRow, opts stuckJobsOptions, now time.Time) error {
	if err := writef(os.Stdout, "\nStuck Jobs (processing, no progress for at least %s)\n", opts.StuckFor); err != nil {
		return fmt.Errorf("print stuck jobs header: %w", err)
	}

	if len(rows) == 0 {
		if err := writeln(os.Stdout, "(no stuck jobs found)"); err != nil {
			return fmt.Errorf("print stuck jobs empty notice: %w", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "ID\tTENANT\tTYPE\tPROGRESS\tSTALLED\tSTARTED"); err != nil {
		return fmt.Errorf("print stuck jobs table header: %w", err)
	}
	for _, row := range rows {
		progress := fmt.Sprintf("%d/%d", row.CompletedItems, row.TotalItems)
		if row.FailedItems > 0 {
			progress += fmt.Sprintf(" (%d failed)", row.FailedItems)
		}
		stalled := now.Sub(row.UpdatedAt).Round(time.Second)
		if err := writef(
			w,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			row.ID,
			row.TenantID,
			row.JobType,
			progress,
			stalled,
			row.CreatedAt.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("print stuck job row %q: %w", row.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush stuck jobs table: %w", err)
	}

	if err := writef(os.Stdout, "\nTotal: %d\n", len(rows)); err != nil {
		return fmt.Errorf("print stuck jobs total: %w", err)
	}
	return nil
}

type clearJobCacheOptions struct {
	JobID  string
	All    bool
	DryRun bool
	Yes    bool
}

func parseClearJobCacheFlags(args []string) (clearJobCacheOptions, error) {
	fs := flag.NewFlagSet("clear-job-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts clearJobCacheOptions
	fs.StringVar(&opts.JobID, "job-id", "", "Job ID to clear (required unless --all)")
	fs.BoolVar(&opts.All, "all", false, "Clear cached entries for all jobs")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return clearJobCacheOptions{}, err
	}

	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.All && opts.JobID != "" {
		return clearJobCacheOptions{}, errors.New("--all cannot be combined with --job-id")
	}
	if !opts.All && opts.JobID == "" {
		return clearJobCacheOptions{}, errors.New("either --job-id or --all is required")
	}

	return opts, nil
}

type jobCacheConfirmOptions struct {
	opts clearJobCacheOptions
}

func (c jobCacheConfirmOptions) IsDryRun() bool { return c.opts.DryRun }
func (c jobCacheConfirmOptions) IsYes() bool    { return c.opts.Yes }
func (c jobCacheConfirmOptions) GetWarning() string {
	return "WARNING: this will drop cached status and results entries for every job; status polls fall back to Postgres until repopulated."
}

func (c jobCacheConfirmOptions) GetTarget() string {
	if c.opts.All {
		return ""
	}
	return fmt.Sprintf("job %q", c.opts.JobID)
}

func runClearJobCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseClearJobCacheFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(jobCacheConfirmOptions{opts}, "clear job cache entries"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	stats, err := purgeJobCache(&purgeJobCacheRequest{
		Ctx:     ctx,
		Client:  redisClient,
		Logger:  cmdCtx.Logger,
		Options: opts,
	})
	if err != nil {
		return err
	}

	return printJobCacheSummary(opts, stats)
}

// buildJobCachePatterns returns the Redis key patterns a clear should scan:
// the two exact keys for one job, or wildcard patterns for all jobs.
func buildJobCachePatterns(opts clearJobCacheOptions) []string {
	if opts.All {
		return []string{
			core.JobStatusCacheKey("") + "*",
			core.JobResultsCacheKey("") + "*",
		}
	}
	if opts.JobID == "" {
		return nil
	}
	return []string{
		core.JobStatusCacheKey(opts.JobID),
		core.JobResultsCacheKey(opts.JobID),
	}
}

type purgeJobCacheRequest struct {
	Ctx     context.Context
	Client  redis.UniversalClient
	Logger  *slog.Logger
	Options clearJobCacheOptions
}

type purgeJobCacheStats struct {
	found   int
	deleted int64
}

func purgeJobCache(req *purgeJobCacheRequest) (purgeJobCacheStats, error) {
	if req == nil {
		return purgeJobCacheStats{}, errors.New("purge request is required")
	}
	patterns := buildJobCachePatterns(req.Options)

	stats := purgeJobCacheStats{}
	for _, pattern := range patterns {
		req.Logger.Info("scanning redis", "pattern", pattern, "dry_run", req.Options.DryRun)
		iter := req.Client.Scan(req.Ctx, 0, pattern, 1000).Iterator()
		keys := make([]string, 0)
		for iter.Next(req.Ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return stats, fmt.Errorf("scan redis: %w", err)
		}
		stats.found += len(keys)
		if len(keys) == 0 || req.Options.DryRun {
			continue
		}
		for start := 0; start < len(keys); start += 100 {
			end := min(start+100, len(keys))
			n, delErr := req.Client.Del(req.Ctx, keys[start:end]...).Result()
			if delErr != nil {
				return stats, fmt.Errorf("delete redis keys: %w", delErr)
			}
			stats.deleted += n
		}
	}
	return stats, nil
}

func printJobCacheSummary(opts clearJobCacheOptions, stats purgeJobCacheStats) error {
	if stats.found == 0 {
		if err := writeln(os.Stdout, "No cached job entries found"); err != nil {
			return fmt.Errorf("print job cache empty notice: %w", err)
		}
		return nil
	}
	if opts.DryRun {
		if err := writef(os.Stdout, "Dry-run: would delete %d cache entries\n", stats.found); err != nil {
			return fmt.Errorf("print job cache dry run: %w", err)
		}
		return nil
	}
	if err := writef(os.Stdout, "Deleted %d/%d cache entries\n", stats.deleted, stats.found); err != nil {
		return fmt.Errorf("print job cache summary: %w", err)
	}
	return nil
}
