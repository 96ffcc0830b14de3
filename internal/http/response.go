package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"sourverse/internal/auth"
	"sourverse/internal/core"
	applog "sourverse/internal/log"
)

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy to an HTTP status and a machine kind.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token"
	}

	kind := core.Kind(err)
	switch kind {
	case "validation":
		return http.StatusBadRequest, kind
	case "not_found":
		return http.StatusNotFound, kind
	case "insufficient_funds":
		return http.StatusUnprocessableEntity, kind
	case "capacity_exceeded", "conflict":
		return http.StatusConflict, kind
	case "storage_unavailable":
		return http.StatusServiceUnavailable, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

// publicMessage hides internals for server-side failures.
func publicMessage(status int, err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid credentials"
	case status == http.StatusServiceUnavailable:
		return "Service temporarily unavailable"
	case status >= 500:
		return "Server error"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return http.StatusText(status)
	}
	return msg
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	logger := applog.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err,
			applog.FieldErrorType, kind)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err,
			applog.FieldErrorType, kind)
	}

	if kind == "conflict" {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Message: publicMessage(status, err), Error: kind})
}
