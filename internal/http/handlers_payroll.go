package httpx

import (
	"errors"
	"net/http"

	apperrors "github.com/plateworks/paymaster/internal/errors"

	"github.com/plateworks/paymaster/internal/domain/model"
	"github.com/plateworks/paymaster/internal/service"
)

// HeaderRequestedBy optionally names the caller submitting a batch; the value
// lands on the job record's created_by column.
const HeaderRequestedBy = "X-Requested-By"

const defaultCreatedBy = "api"

// PayrollHandlers provides HTTP handlers for batch payroll operations.
type PayrollHandlers struct {
	Orchestrator *service.PayrollOrchestrator
	Records      *service.JobRecordService
}

// RunBatch accepts a batch payroll request and returns the submission
// immediately; the computation itself runs on the payroll queue.
func (h *PayrollHandlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req model.RunBatchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	createdBy := r.Header.Get(HeaderRequestedBy)
	if createdBy == "" {
		createdBy = defaultCreatedBy
	}

	submission, err := h.Orchestrator.RunBatch(r.Context(), service.RunBatchParams{
		TenantID:  TenantFromContext(r.Context()),
		CreatedBy: createdBy,
		Request:   &req,
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, submission)
}

// GetStatus returns the lightweight status-poll snapshot for a job.
// It answers from the cache when it can and never blocks on the run itself.
func (h *PayrollHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	status, err := h.Records.GetStatus(r.Context(), service.GetJobParams{
		ID:       jobID,
		TenantID: TenantFromContext(r.Context()),
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// GetDetail returns the full job record. With ?include_results=true the cached
// per-employee results are attached when they are still available.
func (h *PayrollHandlers) GetDetail(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	detail, err := h.Records.GetDetail(r.Context(), service.GetJobDetailParams{
		ID:             jobID,
		TenantID:       TenantFromContext(r.Context()),
		IncludeResults: r.URL.Query().Get("include_results") == "true",
	})
	if err != nil {
		RenderError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

// Cancel cancels a pending or processing job. A job that already reached a
// terminal status renders 400 here: the caller asked for a transition the
// state machine no longer permits.
func (h *PayrollHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 && !DecodeJSON(w, r, &body) {
		return
	}

	result, err := h.Records.Cancel(r.Context(), service.CancelJobParams{
		ID:       jobID,
		TenantID: TenantFromContext(r.Context()),
		Reason:   body.Reason,
	})
	if err != nil {
		if apperrors.IsConflict(err) {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "job_already_terminal", Err: err})
			return
		}
		RenderError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// List returns tenant-scoped job summaries, filterable by status and job type.
func (h *PayrollHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts := &model.JobRecordListOptions{
		TenantID: TenantFromContext(r.Context()),
	}
	opts.Limit, opts.Offset = ParseLimitOffset(r, defaultListLimit, maxListLimit)

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := model.JobStatus(raw)
		if !status.Valid() {
			WriteError(w, ErrorParams{
				Code:    http.StatusUnprocessableEntity,
				ErrCode: "validation_error",
				Err:     errors.New("invalid status filter"),
			})
			return
		}
		opts.Status = &status
	}
	if raw := r.URL.Query().Get("job_type"); raw != "" {
		var jobType model.JobType
		if err := jobType.UnmarshalText([]byte(raw)); err != nil {
			WriteError(w, ErrorParams{
				Code:    http.StatusUnprocessableEntity,
				ErrCode: "validation_error",
				Err:     errors.New("invalid job_type filter"),
			})
			return
		}
		opts.JobType = &jobType
	}

	summaries, err := h.Records.List(r.Context(), opts)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":   summaries,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
