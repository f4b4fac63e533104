package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateworks/paymaster/internal/domain/model"
)

func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	defer func() {
		os.Stdout = oldStdout
	}()

	os.Stdout = w
	fnErr := fn()
	require.NoError(t, w.Close())
	os.Stdout = oldStdout
	require.NoError(t, fnErr)

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	return string(output)
}

func TestPrintStuckJobRowsShowsStallDuration(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	rows := []stuckJobRow{
		{
			ID:             "job-9",
			TenantID:       "tenant-1",
			JobType:        "batch_payroll",
			TotalItems:     40,
			CompletedItems: 12,
			FailedItems:    3,
			CreatedAt:      now.Add(-2 * time.Hour),
			UpdatedAt:      now.Add(-45 * time.Minute),
		},
	}

	out := captureStdout(t, func() error {
		return printStuckJobRows(rows, stuckJobsOptions{StuckFor: 30 * time.Minute, Limit: 50}, now)
	})

	require.Contains(t, out, "job-9")
	require.Contains(t, out, "tenant-1")
	require.Contains(t, out, "12/40 (3 failed)")
	require.Contains(t, out, "45m0s")
	require.Contains(t, out, "Total: 1")
}

func TestPrintStuckJobRowsEmpty(t *testing.T) {
	out := captureStdout(t, func() error {
		return printStuckJobRows(nil, stuckJobsOptions{StuckFor: 30 * time.Minute}, time.Now())
	})

	require.Contains(t, out, "(no stuck jobs found)")
}

func TestBuildJobCachePatterns(t *testing.T) {
	t.Run("single job targets its exact keys", func(t *testing.T) {
		patterns := buildJobCachePatterns(clearJobCacheOptions{JobID: "job-7"})
		assert.Equal(t, []string{
			"paymaster:jobstatus:job-7",
			"paymaster:results:job-7",
		}, patterns)
	})

	t.Run("all scans both prefixes", func(t *testing.T) {
		patterns := buildJobCachePatterns(clearJobCacheOptions{All: true})
		assert.Equal(t, []string{
			"paymaster:jobstatus:*",
			"paymaster:results:*",
		}, patterns)
	})

	t.Run("no selector yields nothing", func(t *testing.T) {
		assert.Empty(t, buildJobCachePatterns(clearJobCacheOptions{}))
	})
}

func TestParseInspectJobFlags(t *testing.T) {
	t.Run("requires a job id", func(t *testing.T) {
		_, err := parseInspectJobFlags(nil)
		require.ErrorContains(t, err, "--job-id is required")
	})

	t.Run("rejects an unparseable query", func(t *testing.T) {
		_, err := parseInspectJobFlags([]string{"--job-id", "job-1", "--query", "record.["})
		require.ErrorContains(t, err, "invalid --query expression")
	})

	t.Run("accepts a job id with a query", func(t *testing.T) {
		opts, err := parseInspectJobFlags([]string{"--job-id", " job-1 ", "--query", "record.status"})
		require.NoError(t, err)
		assert.Equal(t, "job-1", opts.JobID)
		assert.Equal(t, "record.status", opts.Query)
	})
}

func TestRenderJobInspectionAppliesQuery(t *testing.T) {
	pct := 30
	inspection := jobInspection{
		Record: &model.JobRecord{
			ID:             "job-1",
			TenantID:       "tenant-1",
			JobType:        model.JobTypeBatchPayroll,
			Status:         model.JobStatusProcessing,
			TotalItems:     10,
			CompletedItems: 3,
		},
		ProgressPercentage: &pct,
	}

	out := captureStdout(t, func() error {
		return renderJobInspection(inspectJobOptions{JobID: "job-1", Query: "record.status"}, inspection)
	})

	assert.Equal(t, "\"processing\"\n", out)
}

func TestRenderJobInspectionFullDocument(t *testing.T) {
	pct := 100
	completed := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	inspection := jobInspection{
		Record: &model.JobRecord{
			ID:             "job-2",
			TenantID:       "tenant-1",
			JobType:        model.JobTypeExport,
			Status:         model.JobStatusCompleted,
			TotalItems:     5,
			CompletedItems: 5,
			CompletedAt:    &completed,
		},
		ProgressPercentage: &pct,
	}

	out := captureStdout(t, func() error {
		return renderJobInspection(inspectJobOptions{JobID: "job-2"}, inspection)
	})

	assert.Contains(t, out, `"id": "job-2"`)
	assert.Contains(t, out, `"progress_percentage": 100`)
	assert.Contains(t, out, `"cache"`)
}

func TestBuildRequeueDeliveriesWhere(t *testing.T) {
	t.Run("all dead deliveries", func(t *testing.T) {
		where, args := buildRequeueDeliveriesWhere(requeueDeliveriesOptions{All: true})
		assert.Equal(t, "NOT delivered AND next_attempt_at IS NULL", where)
		assert.Empty(t, args)
	})

	t.Run("single delivery", func(t *testing.T) {
		where, args := buildRequeueDeliveriesWhere(requeueDeliveriesOptions{DeliveryID: "del-1"})
		assert.Equal(t, "NOT delivered AND next_attempt_at IS NULL AND id = $1", where)
		assert.Equal(t, []any{"del-1"}, args)
	})

	t.Run("per subscription", func(t *testing.T) {
		where, args := buildRequeueDeliveriesWhere(requeueDeliveriesOptions{SubscriptionID: "sub-1"})
		assert.Equal(t, "NOT delivered AND next_attempt_at IS NULL AND subscription_id = $1", where)
		assert.Equal(t, []any{"sub-1"}, args)
	})
}

func TestParseRequeueDeliveriesFlags(t *testing.T) {
	t.Run("requires exactly one selector", func(t *testing.T) {
		_, err := parseRequeueDeliveriesFlags(nil)
		require.ErrorContains(t, err, "exactly one of")

		_, err = parseRequeueDeliveriesFlags([]string{"--all", "--delivery-id", "del-1"})
		require.ErrorContains(t, err, "exactly one of")
	})

	t.Run("rejects a non-positive limit", func(t *testing.T) {
		_, err := parseRequeueDeliveriesFlags([]string{"--all", "--limit", "0"})
		require.ErrorContains(t, err, "--limit must be greater than zero")
	})
}

func TestParseScheduleSetFlags(t *testing.T) {
	t.Run("builds upsert inputs", func(t *testing.T) {
		opts, err := parseScheduleSetFlags([]string{
			"--task-name", "payroll-retention",
			"--queue", "maintenance",
			"--interval", "1h",
			"--payload", `{"batch_size":500}`,
			"--disable",
		})
		require.NoError(t, err)
		assert.Equal(t, "payroll-retention", opts.TaskName)
		assert.Equal(t, "maintenance", opts.Queue)
		assert.Equal(t, time.Hour, opts.Interval)
		require.NotNil(t, opts.Enabled)
		assert.False(t, *opts.Enabled)
	})

	t.Run("requires a positive interval", func(t *testing.T) {
		_, err := parseScheduleSetFlags([]string{"--task-name", "t", "--queue", "q"})
		require.ErrorContains(t, err, "--interval must be greater than zero")
	})

	t.Run("rejects malformed payload JSON", func(t *testing.T) {
		_, err := parseScheduleSetFlags([]string{
			"--task-name", "t", "--queue", "q", "--interval", "5m", "--payload", "{oops",
		})
		require.ErrorContains(t, err, "--payload must be valid JSON")
	})

	t.Run("enable and disable conflict", func(t *testing.T) {
		_, err := parseScheduleSetFlags([]string{
			"--task-name", "t", "--queue", "q", "--interval", "5m", "--enable", "--disable",
		})
		require.ErrorContains(t, err, "mutually exclusive")
	})
}
