package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/instrument"
	"github.com/wschoenell/chimera-manager/internal/notify"
	"github.com/wschoenell/chimera-manager/internal/supervisor"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeLocked       = "locked"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps supervisor errors onto HTTP statuses. Unknown
// errors are logged and reported as 500 without detail.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checklist.ErrItemNotFound),
		errors.Is(err, instrument.ErrNotFound),
		errors.Is(err, notify.ErrUnknownQuestion):
		writeNotFound(w, err.Error())
	case errors.Is(err, instrument.ErrLocked):
		writeError(w, http.StatusConflict, ErrCodeLocked, err.Error())
	case errors.Is(err, supervisor.ErrItemActive),
		errors.Is(err, supervisor.ErrInvalidTransition):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, instrument.ErrInvalidFlag),
		errors.Is(err, instrument.ErrKeyRequired),
		errors.Is(err, instrument.ErrInvalidName),
		errors.Is(err, supervisor.ErrUnknownCommand),
		errors.Is(err, supervisor.ErrUsage),
		errors.Is(err, notify.ErrEmptyAnswer):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "internal server error")
	}
}
