package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"escrow-ledger-go/internal/store"
)

type successResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Status string       `json:"status"`
	Error  errorPayload `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, errorResponse{Status: "error", Error: errorPayload{Code: code, Message: message, RequestID: requestID}})
}

// mapDomainError maps an engine error kind to a status code
func mapDomainError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrPermissionDenied):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, store.ErrInvalidState), errors.Is(err, store.ErrConcurrentModification):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, store.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, store.ErrPaymentMismatch):
		return http.StatusUnprocessableEntity, "payment_mismatch"
	case errors.Is(err, store.ErrLedgerDrift):
		return http.StatusLocked, "ledger_drift"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
