package httpx

import (
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data"
	"github.com/plateworks/paymaster/internal/domain/model"
)

func TestCreateSubscriptionEndpoint(t *testing.T) {
	t.Run("creates a subscription and returns the secret once", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newAPIHarness(t, ctrl)

		var issuedSecret string
		h.subs.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, params core.CreateSubscriptionParams) (*model.WebhookSubscription, error) {
				assert.Equal(t, "https://hooks.example.com/payroll", params.URL)
				assert.Equal(t, []model.EventType{model.EventPayrollCompleted}, params.EventTypes)
				_, err := hex.DecodeString(params.SecretKey)
				require.NoError(t, err, "secret must be hex-encoded")
				issuedSecret = params.SecretKey
				return &model.WebhookSubscription{
					ID:         "sub-1",
					URL:        params.URL,
					EventTypes: params.EventTypes,
					Active:     true,
				}, nil
			})

		rec := h.do(t, http.MethodPost, "/api/webhooks/subscriptions", map[string]any{
			"url":         "https://hooks.example.com/payroll",
			"event_types": []string{"payroll.completed"},
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "sub-1", body["id"])
		assert.Equal(t, issuedSecret, body["secret_key"])
		assert.Len(t, issuedSecret, 64)
	})

	t.Run("duplicate active URL renders 409", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newAPIHarness(t, ctrl)

		h.subs.EXPECT().
			Create(gomock.Any(), gomock.Any()).
			Return(nil, data.ErrSubscriptionURLExists)

		rec := h.do(t, http.MethodPost, "/api/webhooks/subscriptions", map[string]any{
			"url":         "https://hooks.example.com/payroll",
			"event_types": []string{"payroll.completed"},
		})

		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "conflict", decodeBody(t, rec)["error"])
	})

	t.Run("invalid URL renders 422 without touching storage", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newAPIHarness(t, ctrl)

		rec := h.do(t, http.MethodPost, "/api/webhooks/subscriptions", map[string]any{
			"url":         "not a url",
			"event_types": []string{"payroll.completed"},
		})

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "validation_error", decodeBody(t, rec)["error"])
	})
}

func TestGetSubscriptionEndpoint(t *testing.T) {
	t.Run("returns the subscription without its secret", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newAPIHarness(t, ctrl)

		h.subs.EXPECT().
			GetByID(gomock.Any(), "sub-1").
			Return(&model.WebhookSubscription{
				ID:         "sub-1",
				URL:        "https://hooks.example.com/payroll",
				EventTypes: []model.EventType{model.EventPayrollCompleted},
				Active:     true,
			}, nil)

		rec := h.do(t, http.MethodGet, "/api/webhooks/subscriptions/sub-1", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "sub-1", body["id"])
		assert.NotContains(t, body, "secret_key")
	})

	t.Run("unknown id renders 404", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newAPIHarness(t, ctrl)

		h.subs.EXPECT().
			GetByID(gomock.Any(), "nope").
			Return(nil, data.ErrSubscriptionNotFound)

		rec := h.do(t, http.MethodGet, "/api/webhooks/subscriptions/nope", nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpdateSubscriptionEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newAPIHarness(t, ctrl)

	h.subs.EXPECT().
		Update(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, params core.UpdateSubscriptionParams) (*model.WebhookSubscription, error) {
			assert.Equal(t, "sub-1", params.ID)
			assert.False(t, params.Active)
			return &model.WebhookSubscription{
				ID:         params.ID,
				URL:        params.URL,
				EventTypes: params.EventTypes,
				Active:     params.Active,
			}, nil
		})

	rec := h.do(t, http.MethodPut, "/api/webhooks/subscriptions/sub-1", map[string]any{
		"url":         "https://hooks.example.com/payroll",
		"event_types": []string{"payroll.completed", "payroll.failed"},
		"active":      false,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["active"])
}

func TestDeleteSubscriptionEndpoint(t *testing.T) {
	t.Run("deletes and returns no content", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newAPIHarness(t, ctrl)

		h.subs.EXPECT().Delete(gomock.Any(), "sub-1").Return(true, nil)

		rec := h.do(t, http.MethodDelete, "/api/webhooks/subscriptions/sub-1", nil)

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("unknown id renders 404", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newAPIHarness(t, ctrl)

		h.subs.EXPECT().Delete(gomock.Any(), "nope").Return(false, nil)

		rec := h.do(t, http.MethodDelete, "/api/webhooks/subscriptions/nope", nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSendTestEndpoint(t *testing.T) {
	t.Run("rejects an event type the subscription is not registered for", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newAPIHarness(t, ctrl)

		h.subs.EXPECT().
			GetByID(gomock.Any(), "sub-1").
			Return(&model.WebhookSubscription{
				ID:         "sub-1",
				URL:        "https://hooks.example.com/payroll",
				EventTypes: []model.EventType{model.EventPayrollCompleted},
				Active:     true,
			}, nil)

		rec := h.do(t, http.MethodPost, "/api/webhooks/test", map[string]any{
			"subscription_id": "sub-1",
			"event_type":      "payroll.failed",
		})

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "validation_error", body["error"])
		assert.Contains(t, body["message"], "not registered")
	})

	t.Run("unknown subscription renders 404", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := newAPIHarness(t, ctrl)

		h.subs.EXPECT().
			GetByID(gomock.Any(), "nope").
			Return(nil, data.ErrSubscriptionNotFound)

		rec := h.do(t, http.MethodPost, "/api/webhooks/test", map[string]any{
			"subscription_id": "nope",
			"event_type":      "payroll.completed",
		})

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
