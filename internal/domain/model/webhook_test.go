package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_Valid(t *testing.T) {
	for _, et := range ValidEventTypes() {
		assert.True(t, et.Valid(), "expected %s to be valid", et)
	}
	assert.False(t, EventType("payroll.started").Valid())
	assert.False(t, EventType("").Valid())
}

func TestEventType_UnmarshalText(t *testing.T) {
	var et EventType
	err := et.UnmarshalText([]byte(" Payroll.Completed "))
	require.NoError(t, err)
	assert.Equal(t, EventPayrollCompleted, et)

	err = et.UnmarshalText([]byte("unknown.event"))
	require.Error(t, err)
}

func TestCreateWebhookSubscriptionRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateWebhookSubscriptionRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid request",
			req: CreateWebhookSubscriptionRequest{
				URL:        "https://hooks.example.com/payroll",
				EventTypes: []EventType{EventPayrollCompleted},
			},
			wantErr: false,
		},
		{
			name: "valid request with several event types",
			req: CreateWebhookSubscriptionRequest{
				URL:         "http://hooks.example.com/payroll",
				EventTypes:  []EventType{EventPayrollCompleted, EventPayrollFailed, EventExportCompleted},
				Description: "ops notifications",
			},
			wantErr: false,
		},
		{
			name: "empty url",
			req: CreateWebhookSubscriptionRequest{
				URL:        "",
				EventTypes: []EventType{EventPayrollCompleted},
			},
			wantErr: true,
			errMsg:  "url is required and cannot be empty",
		},
		{
			name: "url without scheme",
			req: CreateWebhookSubscriptionRequest{
				URL:        "hooks.example.com/payroll",
				EventTypes: []EventType{EventPayrollCompleted},
			},
			wantErr: true,
			errMsg:  "url must use http or https scheme",
		},
		{
			name: "url with wrong scheme",
			req: CreateWebhookSubscriptionRequest{
				URL:        "ftp://hooks.example.com/payroll",
				EventTypes: []EventType{EventPayrollCompleted},
			},
			wantErr: true,
			errMsg:  "url must use http or https scheme",
		},
		{
			name: "url without host",
			req: CreateWebhookSubscriptionRequest{
				URL:        "https://",
				EventTypes: []EventType{EventPayrollCompleted},
			},
			wantErr: true,
			errMsg:  "url must have a valid host",
		},
		{
			name: "url too long",
			req: CreateWebhookSubscriptionRequest{
				URL:        "https://hooks.example.com/" + strings.Repeat("a", 1024),
				EventTypes: []EventType{EventPayrollCompleted},
			},
			wantErr: true,
			errMsg:  "url cannot exceed 1024 characters",
		},
		{
			name: "no event types",
			req: CreateWebhookSubscriptionRequest{
				URL:        "https://hooks.example.com/payroll",
				EventTypes: []EventType{},
			},
			wantErr: true,
			errMsg:  "event_types is required and cannot be empty",
		},
		{
			name: "unknown event type",
			req: CreateWebhookSubscriptionRequest{
				URL:        "https://hooks.example.com/payroll",
				EventTypes: []EventType{"payroll.started"},
			},
			wantErr: true,
			errMsg:  "event_types must be one of",
		},
		{
			name: "duplicate event types",
			req: CreateWebhookSubscriptionRequest{
				URL:        "https://hooks.example.com/payroll",
				EventTypes: []EventType{EventPayrollCompleted, EventPayrollCompleted},
			},
			wantErr: true,
			errMsg:  "event_types cannot contain duplicate entries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUpdateWebhookSubscriptionRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     UpdateWebhookSubscriptionRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid full replace",
			req: UpdateWebhookSubscriptionRequest{
				URL:        "https://hooks.example.com/v2",
				EventTypes: []EventType{EventPayrollFailed},
				Active:     false,
			},
			wantErr: false,
		},
		{
			name: "missing url",
			req: UpdateWebhookSubscriptionRequest{
				EventTypes: []EventType{EventPayrollFailed},
			},
			wantErr: true,
			errMsg:  "url is required and cannot be empty",
		},
		{
			name: "missing event types",
			req: UpdateWebhookSubscriptionRequest{
				URL: "https://hooks.example.com/v2",
			},
			wantErr: true,
			errMsg:  "event_types is required and cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCreateWebhookSubscriptionRequest_Normalize(t *testing.T) {
	req := CreateWebhookSubscriptionRequest{
		URL:         "  https://hooks.example.com/payroll  ",
		EventTypes:  []EventType{EventPayrollCompleted},
		Description: "  tidy me  ",
	}

	req.Normalize()

	assert.Equal(t, "https://hooks.example.com/payroll", req.URL)
	assert.Equal(t, "tidy me", req.Description)
}

func TestWebhookSubscription_HasEventType(t *testing.T) {
	sub := WebhookSubscription{
		EventTypes: []EventType{EventPayrollCompleted, EventExportCompleted},
	}

	assert.True(t, sub.HasEventType(EventPayrollCompleted))
	assert.True(t, sub.HasEventType(EventExportCompleted))
	assert.False(t, sub.HasEventType(EventPayrollFailed))
}

func TestTestWebhookRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     TestWebhookRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid request",
			req: TestWebhookRequest{
				SubscriptionID: "sub-1",
				EventType:      EventPayrollCompleted,
			},
			wantErr: false,
		},
		{
			name: "missing subscription id",
			req: TestWebhookRequest{
				EventType: EventPayrollCompleted,
			},
			wantErr: true,
			errMsg:  "subscription_id is required",
		},
		{
			name: "invalid event type",
			req: TestWebhookRequest{
				SubscriptionID: "sub-1",
				EventType:      "bogus",
			},
			wantErr: true,
			errMsg:  "event_type must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
