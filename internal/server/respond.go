package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, ledger.CodeInvalidInput, "invalid request body: "+err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, loyalty.ErrInvalidInput),
		errors.Is(err, loyalty.ErrInvalidConfig),
		errors.Is(err, ledger.ErrInvalidCustomer):
		return http.StatusBadRequest
	case errors.Is(err, loyalty.ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrCustomerNotFound):
		return http.StatusNotFound
	case errors.Is(err, loyalty.ErrInsufficientPayment),
		errors.Is(err, loyalty.ErrOverRedemption):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
