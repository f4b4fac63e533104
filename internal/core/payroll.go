package core

import (
	"context"
	"time"

	"github.com/plateworks/paymaster/internal/domain/model"
)

// Ports for the external payroll collaborators. The batch orchestrator depends
// on these interfaces; internal/adapters/paycalc provides the HTTP implementations.

// CalcParams carries one employee's calculation inputs.
type CalcParams struct {
	EmployeeID  string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Options     model.CalculationOptions
}

// CalcResult carries the calculator's outputs for one employee.
// Amounts are cents.
type CalcResult struct {
	GrossAmount      int64
	NetAmount        int64
	TotalDeductions  int64
	PaymentReference string
}

// PayrollCalculator computes one employee's payroll for a pay period.
// Any returned error is an employee-level failure; it never aborts the batch.
type PayrollCalculator interface {
	Calculate(ctx context.Context, params CalcParams) (*CalcResult, error)
}

// EmployeeDirectory resolves the employees a batch covers.
type EmployeeDirectory interface {
	ListActive(ctx context.Context) ([]model.Employee, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Employee, error)
}

// FindPaymentParams groups parameters for PaymentLookup.FindPayment.
type FindPaymentParams struct {
	EmployeeID  string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// PaymentLookup checks for an existing payment covering an employee and pay period.
// A (nil, nil) return means no payment exists yet.
type PaymentLookup interface {
	FindPayment(ctx context.Context, params FindPaymentParams) (*model.PaymentRef, error)
}
