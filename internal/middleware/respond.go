package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/pkg/metrics"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code, reports it through h and writes an ErrorBody.
// Client errors keep their message; server errors only expose the safe user message.
func WriteError(w http.ResponseWriter, r *http.Request, h *apperrors.Handler, err error) {
	code := apperrors.CodeOf(err)
	status := StatusFor(code)

	userMessage, _ := h.Handle(r.Context(), err)

	message := userMessage
	var appErr *apperrors.AppError
	if status < http.StatusInternalServerError && errors.As(err, &appErr) {
		message = appErr.Message
	}

	severity := ""
	if appErr != nil {
		severity = string(appErr.Severity)
	}
	metrics.RecordError(code, severity)

	WriteJSON(w, status, ErrorBody{Error: message, Code: code})
}

// StatusFor returns the HTTP status used for an error code.
func StatusFor(code string) int {
	switch code {
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeStateConflict:
		return http.StatusConflict
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.CodeDeliveryFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
