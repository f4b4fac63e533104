// Package paycalc provides HTTP clients for the external payroll calculation
// platform. One Client implements all three ports the batch orchestrator
// consumes: EmployeeDirectory, PayrollCalculator, and PaymentLookup.
package paycalc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/plateworks/paymaster/config"
	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/domain/model"
)

const (
	defaultTimeout = 10 * time.Second

	// maxErrorBodyBytes caps how much of an error response lands in the error
	// message.
	maxErrorBodyBytes = 4 * 1024
)

// Client calls the payroll platform's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOptions configures the paycalc client.
type ClientOptions struct {
	Config     config.PaycalcConfig
	HTTPClient *http.Client // Optional: defaults to a client with the configured timeout
	Logger     *slog.Logger // Optional: structured logger
}

// NewClient creates a paycalc client with the given options.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(opts.Config.BaseURL, "/")
	if base == "" {
		return nil, errors.New("paycalc base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse paycalc base URL: %w", err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "paycalc_client")
	}

	return &Client{
		baseURL: base,
		apiKey:  opts.Config.APIKey,
		http:    hc,
		logger:  logger,
	}, nil
}

// StatusError reports a non-2xx response from the platform.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type calculateRequest struct {
	EmployeeID  string                   `json:"employee_id"`
	PeriodStart string                   `json:"period_start"`
	PeriodEnd   string                   `json:"period_end"`
	Options     model.CalculationOptions `json:"options"`
}

type calculateResponse struct {
	GrossAmount      int64  `json:"gross_amount"`
	NetAmount        int64  `json:"net_amount"`
	TotalDeductions  int64  `json:"total_deductions"`
	PaymentReference string `json:"payment_reference"`
}

type employeesResponse struct {
	Employees []model.Employee `json:"employees"`
}

type lookupRequest struct {
	IDs []string `json:"ids"`
}

type paymentsResponse struct {
	Payments []*model.PaymentRef `json:"payments"`
}

// Calculate computes one employee's payroll for the pay period.
func (c *Client) Calculate(ctx context.Context, params core.CalcParams) (*core.CalcResult, error) {
	req := calculateRequest{
		EmployeeID:  params.EmployeeID,
		PeriodStart: params.PeriodStart.Format(time.RFC3339),
		PeriodEnd:   params.PeriodEnd.Format(time.RFC3339),
		Options:     params.Options,
	}

	var resp calculateResponse
	if err := c.post(ctx, "/v1/payroll/calculate", req, &resp); err != nil {
		return nil, err
	}

	return &core.CalcResult{
		GrossAmount:      resp.GrossAmount,
		NetAmount:        resp.NetAmount,
		TotalDeductions:  resp.TotalDeductions,
		PaymentReference: resp.PaymentReference,
	}, nil
}

// ListActive returns every employee currently eligible for a payroll run.
func (c *Client) ListActive(ctx context.Context) ([]model.Employee, error) {
	var resp employeesResponse
	if err := c.get(ctx, "/v1/employees?status=active", &resp); err != nil {
		return nil, err
	}
	return resp.Employees, nil
}

// GetByIDs resolves specific employees. IDs the platform does not know are
// absent from the result; the caller decides whether that is an error.
func (c *Client) GetByIDs(ctx context.Context, ids []string) ([]model.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var resp employeesResponse
	if err := c.post(ctx, "/v1/employees/lookup", lookupRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Employees, nil
}

// FindPayment checks for an existing payment covering the employee and pay
// period. Returns (nil, nil) when no payment exists.
func (c *Client) FindPayment(ctx context.Context, params core.FindPaymentParams) (*model.PaymentRef, error) {
	q := url.Values{}
	q.Set("employee_id", params.EmployeeID)
	q.Set("period_start", params.PeriodStart.Format(time.RFC3339))
	q.Set("period_end", params.PeriodEnd.Format(time.RFC3339))

	var resp paymentsResponse
	if err := c.get(ctx, "/v1/payments?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Payments) == 0 {
		return nil, nil
	}
	return resp.Payments[0], nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytesReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		statusErr := &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
		if c.logger != nil {
			c.logger.WarnContext(ctx, "paycalc request failed",
				"method", method,
				"path", path,
				"status", resp.StatusCode,
			)
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// bytesReader returns an io.Reader for b, or nil if b is empty.
func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return nil
	}
	return bytes.NewReader(b)
}
