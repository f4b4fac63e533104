// Package model defines the core data types and structures used throughout the paymaster payroll system.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobType represents the type of orchestrated job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job record.
type JobStatus string

const (
	// JobTypeBatchPayroll represents a batch payroll computation run.
	JobTypeBatchPayroll JobType = "batch_payroll"
	// JobTypeExport represents an export/report generation run.
	JobTypeExport JobType = "export"
	// JobTypeTaxCalc represents a standalone tax calculation run.
	JobTypeTaxCalc JobType = "tax_calc"

	// JobStatusPending indicates a job has been created but no worker has picked it up.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a worker is actively processing the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates the job finished; individual items may still have failed.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job hit an unrecoverable error mid-run.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled before or during processing.
	JobStatusCancelled JobStatus = "cancelled"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env and query parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeBatchPayroll || t == JobTypeExport || t == JobTypeTaxCalc
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed || s == JobStatusCancelled
}

// Terminal returns true when no further transition out of the status is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobRecord is the durable record of one orchestration run. The row is the
// source of truth for status and progress; the Redis cache only mirrors it.
type JobRecord struct {
	ID             string          `json:"id"                      db:"id"`
	TenantID       string          `json:"tenant_id"               db:"tenant_id"`
	JobType        JobType         `json:"job_type"                db:"job_type"`
	Status         JobStatus       `json:"status"                  db:"status"`
	TotalItems     int             `json:"total_items"             db:"total_items"`
	CompletedItems int             `json:"completed_items"         db:"completed_items"`
	FailedItems    int             `json:"failed_items"            db:"failed_items"`
	Metadata       json.RawMessage `json:"metadata,omitempty"      db:"metadata"`
	ErrorMessage   *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedBy      string          `json:"created_by"              db:"created_by"`
	StartedAt      *time.Time      `json:"started_at,omitempty"    db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"  db:"completed_at"`
	CreatedAt      time.Time       `json:"created_at"              db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"              db:"updated_at"`
}

// ProgressPercentage computes floor(100 * completed / total). Completed jobs
// always report 100, including the degenerate zero-item batch.
func (j *JobRecord) ProgressPercentage() int {
	if j.Status == JobStatusCompleted {
		return 100
	}
	if j.TotalItems <= 0 {
		return 0
	}
	pct := 100 * j.CompletedItems / j.TotalItems
	if pct > 100 {
		return 100
	}
	return pct
}

// JobStatusResponse is the lightweight status-poll snapshot for a job record.
// TenantID travels with the snapshot so cached copies stay tenant-checkable.
type JobStatusResponse struct {
	JobID              string     `json:"job_id"`
	TenantID           string     `json:"tenant_id,omitempty"`
	Status             JobStatus  `json:"status"`
	ProgressPercentage int        `json:"progress_percentage"`
	TotalItems         int        `json:"total_items"`
	CompletedItems     int        `json:"completed_items"`
	FailedItems        int        `json:"failed_items"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
}

// StatusResponse builds the status-poll snapshot from a job record.
func (j *JobRecord) StatusResponse() JobStatusResponse {
	return JobStatusResponse{
		JobID:              j.ID,
		TenantID:           j.TenantID,
		Status:             j.Status,
		ProgressPercentage: j.ProgressPercentage(),
		TotalItems:         j.TotalItems,
		CompletedItems:     j.CompletedItems,
		FailedItems:        j.FailedItems,
		StartedAt:          j.StartedAt,
		CompletedAt:        j.CompletedAt,
		ErrorMessage:       j.ErrorMessage,
	}
}

// JobDetailResponse is the full job view, optionally carrying cached per-employee results.
type JobDetailResponse struct {
	JobRecord
	ProgressPercentage int                     `json:"progress_percentage"`
	Results            []EmployeePayrollResult `json:"results,omitempty"`
}

// JobSummary is the compact list/history row for a job record.
type JobSummary struct {
	ID             string     `json:"id"              db:"id"`
	JobType        JobType    `json:"job_type"        db:"job_type"`
	Status         JobStatus  `json:"status"          db:"status"`
	TotalItems     int        `json:"total_items"     db:"total_items"`
	CompletedItems int        `json:"completed_items" db:"completed_items"`
	FailedItems    int        `json:"failed_items"    db:"failed_items"`
	CreatedAt      time.Time  `json:"created_at"      db:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// JobRecordListOptions groups parameters for listing job records (tenant-scoped).
type JobRecordListOptions struct {
	TenantID string
	Status   *JobStatus // Optional filter by status
	JobType  *JobType   // Optional filter by job type
	Limit    int        // Pagination limit
	Offset   int        // Pagination offset
}

// CancelJobResponse is returned by the cancel endpoint.
type CancelJobResponse struct {
	JobID             string    `json:"job_id"`
	Status            JobStatus `json:"status"`
	CancelledAt       time.Time `json:"cancelled_at"`
	EmployeesAffected int       `json:"employees_affected"`
}
