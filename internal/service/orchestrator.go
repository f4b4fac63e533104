package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/domain/model"
	apperrors "github.com/plateworks/paymaster/internal/errors"
	"github.com/plateworks/paymaster/internal/observability/metrics"
	"github.com/plateworks/paymaster/internal/observability/statsd"
)

const (
	// defaultFutureHorizon bounds how far ahead a pay period may start.
	defaultFutureHorizon = 7 * 24 * time.Hour
	// defaultPerItemEstimate feeds the estimated_completion hint on submission.
	defaultPerItemEstimate = 2 * time.Second
	// defaultBatchPriority is the queue priority for batch runs; requests may
	// raise it but never lower it below this floor.
	defaultBatchPriority = 10
)

// batchEventSink is the slice of the webhook delivery service the orchestrator
// uses to announce terminal batches.
type batchEventSink interface {
	Deliver(ctx context.Context, params DeliverEventParams) (int, error)
}

// PayrollOrchestratorOptions groups dependencies for PayrollOrchestrator.
type PayrollOrchestratorOptions struct {
	Records    *JobRecordService      // Required: job record lifecycle and cache
	Tasks      *TaskService           // Required: queue producer
	Directory  core.EmployeeDirectory // Required: employee resolution
	Calculator core.PayrollCalculator // Required: per-employee computation

	Payments core.PaymentLookup // Optional: idempotency lookup; nil skips the duplicate check
	Webhooks batchEventSink     // Optional: payroll.completed / payroll.failed events
	Logger   *slog.Logger       // Optional: structured logger
	Metrics  statsd.Sink        // Optional: job lifecycle metrics

	FutureHorizon   time.Duration // Optional: pay period start bound (default 7 days)
	PerItemEstimate time.Duration // Optional: completion estimate per employee (default 2s)
	BatchPriority   int           // Optional: queue priority floor (default 10)
}

// PayrollOrchestrator drives batch payroll runs end to end.
//
// RunBatch validates a request, resolves the employee set, creates the durable
// job record, and enqueues the worker task. ProcessBatch is the worker body: it
// claims the record, walks the employee set with per-item failure isolation and
// cancellation checks, and settles the record with aggregate totals.
type PayrollOrchestrator struct {
	records    *JobRecordService
	tasks      *TaskService
	directory  core.EmployeeDirectory
	calculator core.PayrollCalculator
	payments   core.PaymentLookup
	webhooks   batchEventSink
	logger     *slog.Logger
	metrics    statsd.Sink

	futureHorizon   time.Duration
	perItemEstimate time.Duration
	batchPriority   int
}

// NewPayrollOrchestrator constructs a new PayrollOrchestrator.
func NewPayrollOrchestrator(opts PayrollOrchestratorOptions) (*PayrollOrchestrator, error) {
	if opts.Records == nil {
		return nil, errors.New("JobRecordService is required")
	}
	if opts.Tasks == nil {
		return nil, errors.New("TaskService is required")
	}
	if opts.Directory == nil {
		return nil, errors.New("EmployeeDirectory is required")
	}
	if opts.Calculator == nil {
		return nil, errors.New("PayrollCalculator is required")
	}

	horizon := opts.FutureHorizon
	if horizon <= 0 {
		horizon = defaultFutureHorizon
	}
	perItem := opts.PerItemEstimate
	if perItem <= 0 {
		perItem = defaultPerItemEstimate
	}
	priority := opts.BatchPriority
	if priority <= 0 {
		priority = defaultBatchPriority
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "payroll_orchestrator")
		logger.Debug("PayrollOrchestrator initialized",
			"future_horizon", horizon,
			"batch_priority", priority,
			"payment_lookup_enabled", opts.Payments != nil,
			"webhooks_enabled", opts.Webhooks != nil,
		)
	}

	return &PayrollOrchestrator{
		records:         opts.Records,
		tasks:           opts.Tasks,
		directory:       opts.Directory,
		calculator:      opts.Calculator,
		payments:        opts.Payments,
		webhooks:        opts.Webhooks,
		logger:          logger,
		metrics:         opts.Metrics,
		futureHorizon:   horizon,
		perItemEstimate: perItem,
		batchPriority:   priority,
	}, nil
}

// MustNewPayrollOrchestrator constructs a new PayrollOrchestrator and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewPayrollOrchestrator(opts PayrollOrchestratorOptions) *PayrollOrchestrator {
	svc, err := NewPayrollOrchestrator(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create PayrollOrchestrator: %v", err))
	}
	return svc
}

// RunBatchParams groups parameters for PayrollOrchestrator.RunBatch.
type RunBatchParams struct {
	TenantID  string
	CreatedBy string
	Request   *model.RunBatchRequest
}

// BatchTaskPayload is the body of a payroll.run_batch task. The employee set is
// resolved at submission so the worker never re-reads the directory.
type BatchTaskPayload struct {
	JobRecordID     string                   `json:"job_record_id"`
	TenantID        string                   `json:"tenant_id"`
	Employees       []model.Employee         `json:"employees"`
	PeriodStart     time.Time                `json:"period_start"`
	PeriodEnd       time.Time                `json:"period_end"`
	Options         model.CalculationOptions `json:"options"`
	AllowDuplicates bool                     `json:"allow_duplicates,omitempty"`
}

// batchMetadata is the record metadata written at submission time.
type batchMetadata struct {
	PayPeriodStart     string                   `json:"pay_period_start"`
	PayPeriodEnd       string                   `json:"pay_period_end"`
	CalculationOptions model.CalculationOptions `json:"calculation_options"`
	AllowDuplicates    bool                     `json:"allow_duplicates"`
	UnknownEmployeeIDs []string                 `json:"unknown_employee_ids,omitempty"`
}

// BatchEventData is the webhook payload for payroll.completed and
// payroll.failed events.
type BatchEventData struct {
	JobID          string        `json:"job_id"`
	JobType        model.JobType `json:"job_type"`
	PayPeriodStart string        `json:"pay_period_start"`
	PayPeriodEnd   string        `json:"pay_period_end"`
	model.BatchAggregates
	Error string `json:"error,omitempty"`
}

// RunBatch accepts a batch payroll request: it resolves the employees the run
// covers, creates the pending job record, and enqueues the worker task. The
// submission returns immediately; computation happens on the payroll queue.
func (s *PayrollOrchestrator) RunBatch(
	ctx context.Context,
	params RunBatchParams,
) (*model.BatchSubmission, error) {
	if params.TenantID == "" {
		return nil, apperrors.Validation("tenant id is required")
	}
	if params.Request == nil {
		return nil, apperrors.Validation("request body is required")
	}

	req := params.Request
	now := time.Now().UTC()
	if err := req.Validate(now, s.futureHorizon); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	periodStart, periodEnd, err := req.Period()
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	employees, unknown, err := s.resolveEmployees(ctx, req.EmployeeIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve employees: %w", err)
	}

	metadata, err := json.Marshal(batchMetadata{
		PayPeriodStart:     req.PayPeriodStart,
		PayPeriodEnd:       req.PayPeriodEnd,
		CalculationOptions: req.Options(),
		AllowDuplicates:    req.AllowDuplicates,
		UnknownEmployeeIDs: unknown,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal batch metadata: %w", err)
	}

	record, err := s.records.Create(ctx, core.CreateJobRecordParams{
		TenantID:   params.TenantID,
		JobType:    model.JobTypeBatchPayroll,
		TotalItems: len(employees),
		Metadata:   metadata,
		CreatedBy:  params.CreatedBy,
	})
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(BatchTaskPayload{
		JobRecordID:     record.ID,
		TenantID:        params.TenantID,
		Employees:       employees,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		Options:         req.Options(),
		AllowDuplicates: req.AllowDuplicates,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal batch payload: %w", err)
	}

	priority := s.batchPriority
	if req.Priority != nil && *req.Priority > priority {
		priority = *req.Priority
	}

	if _, err := s.tasks.Enqueue(ctx, EnqueueTaskParams{
		Name:        core.TaskPayrollRunBatch,
		Payload:     payload,
		Priority:    &priority,
		JobRecordID: &record.ID,
	}); err != nil {
		// The record would otherwise sit pending forever.
		if _, failErr := s.records.Fail(ctx, record.ID, "failed to enqueue batch task"); failErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to mark unenqueued batch as failed",
				"job_record_id", record.ID,
				"error", failErr,
			)
		}
		return nil, fmt.Errorf("enqueue batch task: %w", err)
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(model.JobTypeBatchPayroll),
		Transition: string(model.JobStatusPending),
		Result:     metrics.ResultSuccess,
	})

	if s.logger != nil {
		s.logger.InfoContext(ctx, "batch payroll submitted",
			"job_record_id", record.ID,
			"tenant_id", params.TenantID,
			"employee_count", len(employees),
			"unknown_employee_ids", len(unknown),
			"priority", priority,
		)
	}

	estimated := now.Add(time.Duration(len(employees)) * s.perItemEstimate)
	return &model.BatchSubmission{
		JobID:               record.ID,
		Status:              record.Status,
		EmployeeCount:       len(employees),
		EstimatedCompletion: &estimated,
	}, nil
}

// resolveEmployees returns the employee set a request covers. With explicit ids
// the directory decides which exist; ids it does not return come back as
// unknown and are reported, not failed. A nil id list means all active
// employees.
func (s *PayrollOrchestrator) resolveEmployees(
	ctx context.Context,
	ids *[]string,
) (employees []model.Employee, unknown []string, err error) {
	if ids == nil {
		employees, err = s.directory.ListActive(ctx)
		return employees, nil, err
	}

	employees, err = s.directory.GetByIDs(ctx, *ids)
	if err != nil {
		return nil, nil, err
	}

	known := make(map[string]bool, len(employees))
	for _, emp := range employees {
		known[emp.ID] = true
	}
	for _, id := range *ids {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	return employees, unknown, nil
}

// ProcessBatch is the payroll.run_batch worker body. It is re-entrant: a
// redelivered task whose record is no longer pending claims nothing and
// returns nil. A worker crash mid-run therefore does not resume: the record
// stays processing until the stuck-jobs sweep fails it, and the caller
// resubmits the batch, which is safe under payment idempotency.
func (s *PayrollOrchestrator) ProcessBatch(ctx context.Context, raw json.RawMessage) error {
	var payload BatchTaskPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode batch payload: %w", err)
	}
	if payload.JobRecordID == "" {
		return errors.New("batch payload has no job record id")
	}

	claimed, err := s.records.MarkProcessing(ctx, payload.JobRecordID)
	if err != nil {
		return fmt.Errorf("claim job record %s: %w", payload.JobRecordID, err)
	}
	if !claimed {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "batch not claimable, skipping",
				"job_record_id", payload.JobRecordID,
			)
		}
		return nil
	}

	startedAt := time.Now()
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(model.JobTypeBatchPayroll),
		Transition: string(model.JobStatusProcessing),
		Result:     metrics.ResultSuccess,
	})

	if s.logger != nil {
		s.logger.InfoContext(ctx, "processing batch payroll",
			"job_record_id", payload.JobRecordID,
			"tenant_id", payload.TenantID,
			"employee_count", len(payload.Employees),
		)
	}

	results := make([]model.EmployeePayrollResult, 0, len(payload.Employees))
	var agg model.BatchAggregates

	for _, emp := range payload.Employees {
		// A cancel request must stop the run promptly, so every iteration
		// reads the record fresh rather than through the cache.
		status, statusErr := s.records.GetStatus(ctx, GetJobParams{
			ID:          payload.JobRecordID,
			BypassCache: true,
		})
		if statusErr != nil {
			return s.failBatch(ctx, &payload, results, agg, startedAt,
				fmt.Sprintf("status check failed mid-run: %v", statusErr))
		}
		if status.Status != model.JobStatusProcessing {
			s.stopForStatus(ctx, &payload, results, status.Status, startedAt)
			return nil
		}

		res := s.processEmployee(ctx, &payload, emp)
		results = append(results, res)
		agg.Accumulate(res)

		progress := core.IncrementProgressParams{ID: payload.JobRecordID}
		if res.Success {
			progress.CompletedDelta = 1
		} else {
			progress.FailedDelta = 1
		}
		bumped, progressErr := s.records.IncrementProgress(ctx, progress)
		if progressErr != nil {
			return s.failBatch(ctx, &payload, results, agg, startedAt,
				fmt.Sprintf("progress update failed mid-run: %v", progressErr))
		}
		if !bumped {
			// The record went terminal between the status check and the bump.
			s.stopForStatus(ctx, &payload, results, model.JobStatusCancelled, startedAt)
			return nil
		}
	}

	s.cachePartialResults(ctx, payload.JobRecordID, results)

	aggPatch, err := json.Marshal(agg)
	if err != nil {
		return s.failBatch(ctx, &payload, results, agg, startedAt,
			fmt.Sprintf("marshal batch aggregates: %v", err))
	}
	completed, err := s.records.Complete(ctx, core.CompleteJobRecordParams{
		ID:             payload.JobRecordID,
		CompletedItems: agg.Successful,
		FailedItems:    agg.Failed,
		MetadataPatch:  aggPatch,
	})
	if err != nil {
		return s.failBatch(ctx, &payload, results, agg, startedAt,
			fmt.Sprintf("complete job record: %v", err))
	}
	if !completed {
		s.stopForStatus(ctx, &payload, results, model.JobStatusCancelled, startedAt)
		return nil
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(model.JobTypeBatchPayroll),
		Transition: string(model.JobStatusCompleted),
		Result:     metrics.ResultSuccess,
		Duration:   time.Since(startedAt),
	})

	s.deliverBatchEvent(ctx, model.EventPayrollCompleted, &payload, agg, "")

	if s.logger != nil {
		s.logger.InfoContext(ctx, "batch payroll completed",
			"job_record_id", payload.JobRecordID,
			"tenant_id", payload.TenantID,
			"total_processed", agg.TotalProcessed,
			"successful", agg.Successful,
			"failed", agg.Failed,
			"duration", time.Since(startedAt),
		)
	}
	return nil
}

// processEmployee computes one employee's payroll. Errors never escape: they
// come back folded into the result so the batch keeps moving.
func (s *PayrollOrchestrator) processEmployee(
	ctx context.Context,
	payload *BatchTaskPayload,
	emp model.Employee,
) model.EmployeePayrollResult {
	itemStart := time.Now()
	result := model.EmployeePayrollResult{
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
	}

	if !payload.AllowDuplicates && s.payments != nil {
		existing, err := s.payments.FindPayment(ctx, core.FindPaymentParams{
			EmployeeID:  emp.ID,
			PeriodStart: payload.PeriodStart,
			PeriodEnd:   payload.PeriodEnd,
		})
		if err != nil {
			result.Error = &model.PayrollError{
				Kind:    "payment_lookup_error",
				Message: err.Error(),
			}
			result.ProcessingTimeMS = time.Since(itemStart).Milliseconds()
			return result
		}
		if existing != nil {
			ref := existing.Reference
			result.Success = true
			result.GrossAmount = existing.GrossAmount
			result.NetAmount = existing.NetAmount
			result.TotalDeductions = existing.TotalDeductions
			result.PaymentReference = &ref
			result.ProcessingTimeMS = time.Since(itemStart).Milliseconds()

			if s.logger != nil {
				s.logger.DebugContext(ctx, "payment already exists, skipping calculation",
					"job_record_id", payload.JobRecordID,
					"employee_id", emp.ID,
					"payment_reference", existing.Reference,
				)
			}
			return result
		}
	}

	calc, err := s.calculator.Calculate(ctx, core.CalcParams{
		EmployeeID:  emp.ID,
		PeriodStart: payload.PeriodStart,
		PeriodEnd:   payload.PeriodEnd,
		Options:     payload.Options,
	})
	if err != nil {
		result.Error = &model.PayrollError{
			Kind:    "calculation_error",
			Message: err.Error(),
		}
		result.ProcessingTimeMS = time.Since(itemStart).Milliseconds()
		return result
	}

	ref := calc.PaymentReference
	result.Success = true
	result.GrossAmount = calc.GrossAmount
	result.NetAmount = calc.NetAmount
	result.TotalDeductions = calc.TotalDeductions
	if ref != "" {
		result.PaymentReference = &ref
	}
	result.ProcessingTimeMS = time.Since(itemStart).Milliseconds()
	return result
}

// failBatch settles an unrecoverable mid-run error: partial results are cached,
// the record flips to failed, and subscribers hear about it. The returned error
// feeds the task retry machinery.
func (s *PayrollOrchestrator) failBatch(
	ctx context.Context,
	payload *BatchTaskPayload,
	results []model.EmployeePayrollResult,
	agg model.BatchAggregates,
	startedAt time.Time,
	msg string,
) error {
	s.cachePartialResults(ctx, payload.JobRecordID, results)

	failed, err := s.records.Fail(ctx, payload.JobRecordID, msg)
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to mark batch as failed",
			"job_record_id", payload.JobRecordID,
			"error", err,
		)
	}
	if failed {
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			JobType:    string(model.JobTypeBatchPayroll),
			Transition: string(model.JobStatusFailed),
			Result:     metrics.ResultError,
			Duration:   time.Since(startedAt),
		})
		s.deliverBatchEvent(ctx, model.EventPayrollFailed, payload, agg, msg)
	}

	return errors.New(msg)
}

// stopForStatus handles a record that went terminal under the worker, most
// commonly a cancel. Partial results stay available; no completion event fires.
func (s *PayrollOrchestrator) stopForStatus(
	ctx context.Context,
	payload *BatchTaskPayload,
	results []model.EmployeePayrollResult,
	status model.JobStatus,
	startedAt time.Time,
) {
	s.cachePartialResults(ctx, payload.JobRecordID, results)

	if status == model.JobStatusCancelled {
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			JobType:    string(model.JobTypeBatchPayroll),
			Transition: string(model.JobStatusCancelled),
			Result:     metrics.ResultSuccess,
			Duration:   time.Since(startedAt),
		})
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "batch stopped mid-run",
			"job_record_id", payload.JobRecordID,
			"status", status,
			"results_so_far", len(results),
		)
	}
}

// cachePartialResults stores whatever results exist so far. Best effort: a
// cache outage never decides a batch's fate.
func (s *PayrollOrchestrator) cachePartialResults(
	ctx context.Context,
	jobRecordID string,
	results []model.EmployeePayrollResult,
) {
	if len(results) == 0 {
		return
	}
	if err := s.records.CacheResults(ctx, jobRecordID, results); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to cache batch results",
			"job_record_id", jobRecordID,
			"error", err,
		)
	}
}

// deliverBatchEvent announces a terminal batch to webhook subscribers.
// Delivery problems are logged and swallowed; the batch outcome stands.
func (s *PayrollOrchestrator) deliverBatchEvent(
	ctx context.Context,
	eventType model.EventType,
	payload *BatchTaskPayload,
	agg model.BatchAggregates,
	errMsg string,
) {
	if s.webhooks == nil {
		return
	}

	data := BatchEventData{
		JobID:           payload.JobRecordID,
		JobType:         model.JobTypeBatchPayroll,
		PayPeriodStart:  payload.PeriodStart.Format(model.PayPeriodLayout),
		PayPeriodEnd:    payload.PeriodEnd.Format(model.PayPeriodLayout),
		BatchAggregates: agg,
		Error:           errMsg,
	}
	if _, err := s.webhooks.Deliver(ctx, DeliverEventParams{
		EventType: eventType,
		TenantID:  payload.TenantID,
		Data:      data,
	}); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to deliver batch event",
			"job_record_id", payload.JobRecordID,
			"event_type", eventType,
			"error", err,
		)
	}
}
