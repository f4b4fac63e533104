package core

import (
	"github.com/plateworks/paymaster/internal/domain/model"
)

// JobType represents the kind of payroll job a record tracks (re-exported from the model package).
// This is re-exported here for use in HTTP handlers to avoid direct coupling to the model package.
type JobType = model.JobType

// RunBatchRequest represents a request to run a payroll batch (re-exported from the model package).
// This is re-exported here for use in HTTP handlers to avoid direct coupling to the model package.
type RunBatchRequest = model.RunBatchRequest
