package httpx

import (
	"errors"
	"net/http"

	"github.com/plateworks/paymaster/internal/domain/model"
	"github.com/plateworks/paymaster/internal/service"
)

// WebhookHandlers provides HTTP handlers for webhook subscription management.
type WebhookHandlers struct {
	Svc *service.WebhookService
}

// Create registers a listener endpoint. The response carries the signing
// secret in full; no later read ever includes it again.
func (h *WebhookHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateWebhookSubscriptionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	sub, err := h.Svc.Subscribe(r.Context(), &req)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sub)
}

// List returns subscriptions with pagination.
func (h *WebhookHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, defaultListLimit, maxListLimit)

	subs, err := h.Svc.List(r.Context(), limit, offset)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subs,
		"limit":         limit,
		"offset":        offset,
	})
}

// GetByID returns one subscription without its secret.
func (h *WebhookHandlers) GetByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("subscription id is required")},
		)
		return
	}

	sub, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, sub)
}

// Update replaces a subscription's mutable fields. The stored secret is never
// regenerated here.
func (h *WebhookHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("subscription id is required")},
		)
		return
	}

	var req model.UpdateWebhookSubscriptionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	sub, err := h.Svc.Update(r.Context(), id, &req)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, sub)
}

// Delete removes a subscription permanently.
func (h *WebhookHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("subscription id is required")},
		)
		return
	}

	deleted, err := h.Svc.Delete(r.Context(), id)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	if !deleted {
		WriteError(
			w,
			ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New("webhook subscription not found")},
		)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendTest delivers a synthetic event to one subscription synchronously and
// returns the attempt's outcome. A failed delivery is still a 200: the request
// itself succeeded, the result reports what the endpoint did.
func (h *WebhookHandlers) SendTest(w http.ResponseWriter, r *http.Request) {
	var req model.TestWebhookRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.Svc.SendTest(r.Context(), &req)
	if err != nil {
		RenderError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
