package marketplace

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	core "bazaar-backend/core/marketplace"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// Error sends a standardized error response
func Error(w http.ResponseWriter, code int, message string) {
	JSON(w, code, ErrorResponse{Error: message})
}

// engineError maps engine sentinels onto HTTP statuses.
func engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, core.ErrBidNotFound),
		errors.Is(err, core.ErrTxnNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidSpec):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrJobNotOpen),
		errors.Is(err, core.ErrNegotiationClosed),
		errors.Is(err, core.ErrDeadlineExceeded):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrEscrowFailed),
		errors.Is(err, core.ErrPaymentFailed),
		errors.Is(err, core.ErrReconciliationRequired):
		Error(w, http.StatusBadGateway, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
