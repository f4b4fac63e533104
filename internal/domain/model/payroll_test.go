package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatchRequest_Validate(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	horizon := 7 * 24 * time.Hour

	tests := []struct {
		name    string
		req     RunBatchRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid request without ids",
			req: RunBatchRequest{
				PayPeriodStart: "2024-01-01",
				PayPeriodEnd:   "2024-01-15",
			},
			wantErr: false,
		},
		{
			name: "valid request with ids",
			req: RunBatchRequest{
				EmployeeIDs:    employeeIDsPtr("emp-1", "emp-2"),
				PayPeriodStart: "2024-01-01",
				PayPeriodEnd:   "2024-01-15",
			},
			wantErr: false,
		},
		{
			name: "end before start",
			req: RunBatchRequest{
				PayPeriodStart: "2024-01-15",
				PayPeriodEnd:   "2024-01-01",
			},
			wantErr: true,
			errMsg:  "pay_period_end must be after pay_period_start",
		},
		{
			name: "equal dates",
			req: RunBatchRequest{
				PayPeriodStart: "2024-01-15",
				PayPeriodEnd:   "2024-01-15",
			},
			wantErr: true,
			errMsg:  "pay_period_end must be after pay_period_start",
		},
		{
			name: "malformed start date",
			req: RunBatchRequest{
				PayPeriodStart: "01/15/2024",
				PayPeriodEnd:   "2024-01-31",
			},
			wantErr: true,
			errMsg:  "pay_period_start must be a date",
		},
		{
			name: "malformed end date",
			req: RunBatchRequest{
				PayPeriodStart: "2024-01-01",
				PayPeriodEnd:   "not-a-date",
			},
			wantErr: true,
			errMsg:  "pay_period_end must be a date",
		},
		{
			name: "start beyond future horizon",
			req: RunBatchRequest{
				PayPeriodStart: "2024-03-01",
				PayPeriodEnd:   "2024-03-15",
			},
			wantErr: true,
			errMsg:  "pay_period_start is too far in the future",
		},
		{
			name: "start inside future horizon",
			req: RunBatchRequest{
				PayPeriodStart: "2024-02-05",
				PayPeriodEnd:   "2024-02-19",
			},
			wantErr: false,
		},
		{
			name: "empty employee ids",
			req: RunBatchRequest{
				EmployeeIDs:    employeeIDsPtr(),
				PayPeriodStart: "2024-01-01",
				PayPeriodEnd:   "2024-01-15",
			},
			wantErr: true,
			errMsg:  "employee_ids cannot be empty when provided",
		},
		{
			name: "duplicate employee ids",
			req: RunBatchRequest{
				EmployeeIDs:    employeeIDsPtr("emp-1", "emp-2", "emp-1"),
				PayPeriodStart: "2024-01-01",
				PayPeriodEnd:   "2024-01-15",
			},
			wantErr: true,
			errMsg:  "employee_ids cannot contain duplicate entries",
		},
		{
			name: "blank employee id entry",
			req: RunBatchRequest{
				EmployeeIDs:    employeeIDsPtr("emp-1", ""),
				PayPeriodStart: "2024-01-01",
				PayPeriodEnd:   "2024-01-15",
			},
			wantErr: true,
			errMsg:  "employee_ids cannot contain empty entries",
		},
		{
			name: "priority out of range",
			req: RunBatchRequest{
				PayPeriodStart: "2024-01-01",
				PayPeriodEnd:   "2024-01-15",
				Priority:       payrollIntPtr(101),
			},
			wantErr: true,
			errMsg:  "priority must be between 0 and 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(now, horizon)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRunBatchRequest_Period(t *testing.T) {
	req := RunBatchRequest{
		PayPeriodStart: "2024-01-01",
		PayPeriodEnd:   "2024-01-15",
	}

	start, end, err := req.Period()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), end)
}

func TestRunBatchRequest_Options(t *testing.T) {
	var req RunBatchRequest
	assert.Equal(t, DefaultCalculationOptions(), req.Options())

	custom := CalculationOptions{IncludeOvertime: false, IncludeTips: false}
	req.CalculationOptions = &custom
	assert.Equal(t, custom, req.Options())
}

func TestBatchAggregates_Accumulate(t *testing.T) {
	var agg BatchAggregates

	ref := "pay-123"
	agg.Accumulate(EmployeePayrollResult{
		EmployeeID:       "emp-1",
		Success:          true,
		GrossAmount:      250000,
		NetAmount:        190000,
		PaymentReference: &ref,
	})
	agg.Accumulate(EmployeePayrollResult{
		EmployeeID: "emp-2",
		Success:    false,
		Error:      &PayrollError{Kind: "calculation", Message: "missing wage data"},
	})
	agg.Accumulate(EmployeePayrollResult{
		EmployeeID:  "emp-3",
		Success:     true,
		GrossAmount: 100000,
		NetAmount:   80000,
	})

	assert.Equal(t, 3, agg.TotalProcessed)
	assert.Equal(t, 2, agg.Successful)
	assert.Equal(t, 1, agg.Failed)
	assert.Equal(t, int64(350000), agg.TotalGross)
	assert.Equal(t, int64(270000), agg.TotalNet)
}

// Helper functions for creating pointers.
func employeeIDsPtr(ids ...string) *[]string {
	s := make([]string, len(ids))
	copy(s, ids)
	return &s
}

func payrollIntPtr(i int) *int {
	return &i
}
