// Package httputil centralizes JSON response writing and request decoding
// for HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "volunteerhub/pkg/domain-errors"
	"volunteerhub/pkg/platform/sentinel"
)

// Validatable lets request DTOs hook validation into decoding.
type Validatable interface {
	Validate() error
}

// errorBody is the wire shape for all error responses.
type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Details     any    `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps an error to its HTTP status and writes the standard
// error body. Internal errors never leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := codeOf(err)
	status := statusOf(code)

	body := errorBody{Error: wireCode(code)}
	if status < http.StatusInternalServerError {
		var dErr *dErrors.Error
		if errors.As(err, &dErr) {
			body.Description = dErr.Message
		} else {
			body.Description = err.Error()
		}
	}
	WriteJSON(w, status, body)
}

// WriteErrorWithDetails is WriteError with a structured details payload,
// used when the caller needs machine-readable denial context.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code string, description string, details any) {
	WriteJSON(w, status, errorBody{Error: code, Description: description, Details: details})
}

// DecodeAndPrepare decodes the JSON request body into T and runs its
// validation if it implements Validatable. On failure it writes the error
// response and returns ok=false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "request decode failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return req, false
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			return req, false
		}
	}
	return req, true
}

func codeOf(err error) dErrors.Code {
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.CodeNotFound
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.CodeConflict
	case errors.Is(err, sentinel.ErrExpired), errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.CodeConflict
	default:
		return dErrors.CodeInternal
	}
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvariantViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func wireCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeBadRequest:
		return "bad_request"
	case dErrors.CodeInvalidInput:
		return "invalid_input"
	case dErrors.CodeValidation:
		return "validation_failed"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeInvariantViolation:
		return "invariant_violation"
	default:
		return "internal_error"
	}
}
