package client

import (
	"errors"

	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnsupported      = errors.New("operation not supported")
	ErrRetryExhausted   = errors.New("retry attempts exhausted")
	ErrRequestFailed    = errors.New("request failed")
	ErrResponseTooLarge = errors.New("response too large")
	ErrRateLimited      = errors.New("rate limited")
)

// APIError is a server-reported failure. It unwraps to the loyalty or ledger
// sentinel named by Code when there is one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "request failed"
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == 429 {
		return ErrRateLimited
	}
	return ledger.ErrorForCode(e.Code)
}
