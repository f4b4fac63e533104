package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType_Valid(t *testing.T) {
	assert.True(t, JobTypeBatchPayroll.Valid())
	assert.True(t, JobTypeExport.Valid())
	assert.True(t, JobTypeTaxCalc.Valid())
	assert.False(t, JobType("unknown").Valid())
	assert.False(t, JobType("").Valid())
}

func TestJobType_UnmarshalText(t *testing.T) {
	var jt JobType
	err := jt.UnmarshalText([]byte("  Batch_Payroll "))
	require.NoError(t, err)
	assert.Equal(t, JobTypeBatchPayroll, jt)

	err = jt.UnmarshalText([]byte("nope"))
	require.Error(t, err)
}

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusPending, false},
		{JobStatusProcessing, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Terminal())
		})
	}
}

func TestJobRecord_ProgressPercentage(t *testing.T) {
	tests := []struct {
		name      string
		status    JobStatus
		total     int
		completed int
		want      int
	}{
		{
			name:      "halfway",
			status:    JobStatusProcessing,
			total:     10,
			completed: 5,
			want:      50,
		},
		{
			name:      "floors fractional progress",
			status:    JobStatusProcessing,
			total:     3,
			completed: 1,
			want:      33,
		},
		{
			name:      "completed always reports 100",
			status:    JobStatusCompleted,
			total:     10,
			completed: 7,
			want:      100,
		},
		{
			name:      "zero-item completed batch reports 100",
			status:    JobStatusCompleted,
			total:     0,
			completed: 0,
			want:      100,
		},
		{
			name:      "zero-item pending batch reports 0",
			status:    JobStatusPending,
			total:     0,
			completed: 0,
			want:      0,
		},
		{
			name:      "never exceeds 100",
			status:    JobStatusProcessing,
			total:     4,
			completed: 9,
			want:      100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &JobRecord{
				Status:         tt.status,
				TotalItems:     tt.total,
				CompletedItems: tt.completed,
			}
			assert.Equal(t, tt.want, j.ProgressPercentage())
		})
	}
}

func TestJobRecord_StatusResponse(t *testing.T) {
	j := &JobRecord{
		ID:             "job-1",
		Status:         JobStatusProcessing,
		TotalItems:     4,
		CompletedItems: 2,
		FailedItems:    1,
	}

	resp := j.StatusResponse()
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, JobStatusProcessing, resp.Status)
	assert.Equal(t, 50, resp.ProgressPercentage)
	assert.Equal(t, 4, resp.TotalItems)
	assert.Equal(t, 2, resp.CompletedItems)
	assert.Equal(t, 1, resp.FailedItems)
}
