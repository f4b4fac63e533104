// Package httpx provides the HTTP API for the paymaster payroll system.
package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/plateworks/paymaster/internal/data"
	apperrors "github.com/plateworks/paymaster/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError to adhere to the ≤3 params guideline.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// RenderError maps an application error onto the HTTP error taxonomy and
// writes it. Validation renders 422, not-found 404, conflicts 409; anything
// unrecognized is logged through the request-scoped logger and masked as a
// plain 500 so storage details never reach a client.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := apperrors.MapDBError(err)

	code, errCode := statusForError(mapped)
	if code == http.StatusInternalServerError {
		LoggerFromContext(r.Context()).ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: errors.New("internal server error")})
		return
	}

	WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: mapped})
}

// statusForError resolves the HTTP status and stable error code for an error.
// Storage sentinels are recognized alongside AppError codes so repository
// errors wrapped by the service layer still render correctly.
func statusForError(err error) (int, string) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusUnprocessableEntity, "validation_error"
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound, "not_found"
	case apperrors.ErrCodeConflict, apperrors.ErrCodeForeignKey:
		return http.StatusConflict, "conflict"
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout, "timeout"
	case apperrors.ErrCodeCanceled:
		return statusClientClosedRequest, "canceled"
	}

	switch {
	case errors.Is(err, data.ErrJobRecordNotFound),
		errors.Is(err, data.ErrSubscriptionNotFound),
		errors.Is(err, data.ErrDeliveryNotFound),
		errors.Is(err, data.ErrTaskNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, data.ErrSubscriptionURLExists):
		return http.StatusConflict, "conflict"
	}

	return http.StatusInternalServerError, "internal_error"
}

// statusClientClosedRequest mirrors the nginx convention for requests the
// client abandoned; the response is rarely observed but keeps logs honest.
const statusClientClosedRequest = 499
