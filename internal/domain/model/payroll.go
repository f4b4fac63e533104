package model

import (
	"errors"
	"fmt"
	"time"
)

// PayPeriodLayout is the civil-date layout used for pay period boundaries.
const PayPeriodLayout = "2006-01-02"

// All monetary amounts in the payroll domain are int64 cents.

// CalculationOptions are passed through to the payroll calculator unchanged.
type CalculationOptions struct {
	IncludeOvertime   bool `json:"include_overtime"`
	IncludeTips       bool `json:"include_tips"`
	IncludeBonuses    bool `json:"include_bonuses"`
	IncludeDeductions bool `json:"include_deductions"`
}

// DefaultCalculationOptions returns the options applied when a request omits them.
func DefaultCalculationOptions() CalculationOptions {
	return CalculationOptions{
		IncludeOvertime:   true,
		IncludeTips:       true,
		IncludeBonuses:    false,
		IncludeDeductions: true,
	}
}

// RunBatchRequest represents a request to run a batch payroll computation.
// EmployeeIDs nil means "all active employees"; an empty or duplicated list is rejected.
type RunBatchRequest struct {
	EmployeeIDs        *[]string           `json:"employee_ids,omitempty"`
	PayPeriodStart     string              `json:"pay_period_start"`
	PayPeriodEnd       string              `json:"pay_period_end"`
	CalculationOptions *CalculationOptions `json:"calculation_options,omitempty"`
	AllowDuplicates    bool                `json:"allow_duplicates,omitempty"`
	Priority           *int                `json:"priority,omitempty"`
}

// Period parses the pay period boundaries as civil dates.
func (r *RunBatchRequest) Period() (start, end time.Time, err error) {
	start, err = time.Parse(PayPeriodLayout, r.PayPeriodStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("pay_period_start must be a date in the form %s", PayPeriodLayout)
	}
	end, err = time.Parse(PayPeriodLayout, r.PayPeriodEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("pay_period_end must be a date in the form %s", PayPeriodLayout)
	}
	return start, end, nil
}

// Options returns the calculation options, falling back to defaults when omitted.
func (r *RunBatchRequest) Options() CalculationOptions {
	if r.CalculationOptions != nil {
		return *r.CalculationOptions
	}
	return DefaultCalculationOptions()
}

// Validate validates the RunBatchRequest fields. The horizon bounds how far in
// the future pay_period_start may lie relative to now.
func (r *RunBatchRequest) Validate(now time.Time, horizon time.Duration) error {
	start, end, err := r.Period()
	if err != nil {
		return err
	}
	if !end.After(start) {
		return errors.New("pay_period_end must be after pay_period_start")
	}
	if horizon >= 0 && start.After(now.Add(horizon)) {
		return errors.New("pay_period_start is too far in the future")
	}

	if r.EmployeeIDs != nil {
		ids := *r.EmployeeIDs
		if len(ids) == 0 {
			return errors.New("employee_ids cannot be empty when provided")
		}
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if id == "" {
				return errors.New("employee_ids cannot contain empty entries")
			}
			if seen[id] {
				return errors.New("employee_ids cannot contain duplicate entries")
			}
			seen[id] = true
		}
	}

	if r.Priority != nil && (*r.Priority < 0 || *r.Priority > 100) {
		return errors.New("priority must be between 0 and 100")
	}

	return nil
}

// BatchSubmission is returned to the caller immediately after a batch is accepted.
type BatchSubmission struct {
	JobID               string     `json:"job_id"`
	Status              JobStatus  `json:"status"`
	EmployeeCount       int        `json:"employee_count"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// PayrollError captures a single employee-level failure inside a batch.
type PayrollError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// EmployeePayrollResult is the per-employee outcome of one batch run.
// Success implies Error is nil, the amounts are populated, and PaymentReference
// is set (newly created or reused under idempotency).
type EmployeePayrollResult struct {
	EmployeeID       string        `json:"employee_id"`
	EmployeeName     string        `json:"employee_name"`
	Success          bool          `json:"success"`
	GrossAmount      int64         `json:"gross_amount"`
	NetAmount        int64         `json:"net_amount"`
	TotalDeductions  int64         `json:"total_deductions"`
	PaymentReference *string       `json:"payment_reference,omitempty"`
	Error            *PayrollError `json:"error,omitempty"`
	ProcessingTimeMS int64         `json:"processing_time_ms"`
}

// BatchAggregates are the whole-batch totals folded into job metadata and
// webhook payloads when a run finishes.
type BatchAggregates struct {
	TotalProcessed int   `json:"total_processed"`
	Successful     int   `json:"successful"`
	Failed         int   `json:"failed"`
	TotalGross     int64 `json:"total_gross"`
	TotalNet       int64 `json:"total_net"`
}

// Accumulate folds one employee result into the aggregates.
func (a *BatchAggregates) Accumulate(res EmployeePayrollResult) {
	a.TotalProcessed++
	if res.Success {
		a.Successful++
		a.TotalGross += res.GrossAmount
		a.TotalNet += res.NetAmount
	} else {
		a.Failed++
	}
}

// Employee is the directory view of one employee: identity and display name only.
type Employee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PaymentRef identifies an existing payment found by the idempotency lookup.
type PaymentRef struct {
	Reference       string `json:"reference"`
	GrossAmount     int64  `json:"gross_amount"`
	NetAmount       int64  `json:"net_amount"`
	TotalDeductions int64  `json:"total_deductions"`
}
