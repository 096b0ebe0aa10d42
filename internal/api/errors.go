package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hackgods/slot-token-queue/internal/slotqueue"
)

var errMissingIdentity = errors.New("X-Actor-ID header is required")

func errInvalidField(field string) error {
	return fmt.Errorf("%w: %s must be a valid UUID", slotqueue.ErrValidation, field)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps the engine's error kinds onto HTTP statuses.
func handleServiceError(w http.ResponseWriter, err error) {
	switch slotqueue.Kind(err) {
	case slotqueue.ErrValidation:
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case slotqueue.ErrForbidden:
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case slotqueue.ErrNotFound:
		code := "not_found"
		switch {
		case errors.Is(err, slotqueue.ErrSlotNotFound):
			code = "slot_not_found"
		case errors.Is(err, slotqueue.ErrTokenNotFound):
			code = "token_not_found"
		}
		writeError(w, http.StatusNotFound, code, err.Error())
	case slotqueue.ErrCapacityExceeded:
		writeError(w, http.StatusConflict, "capacity_exceeded", err.Error())
	case slotqueue.ErrAlreadyStarted:
		writeError(w, http.StatusConflict, "session_already_started", err.Error())
	case slotqueue.ErrInvalidStateTransition:
		writeError(w, http.StatusConflict, "invalid_state_transition", err.Error())
	case slotqueue.ErrConcurrencyConflict:
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "concurrency_conflict",
			Details:   err.Error(),
			Retryable: true,
		})
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
