package ledger

import (
	"errors"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrStoreRequired    = errors.New("customer, config and notification stores are required")
	ErrInvalidCustomer  = errors.New("invalid customer record")
)

// Error codes shared by the HTTP API and the client.
const (
	CodeInvalidInput         = "invalid_input"
	CodeInvalidPin           = "invalid_pin"
	CodeInvalidConfig        = "invalid_config"
	CodeAuthenticationFailed = "authentication_failed"
	CodeCustomerNotFound     = "customer_not_found"
	CodeInsufficientPayment  = "insufficient_payment"
	CodeOverRedemption       = "over_redemption"
	CodeInternal             = "internal"
)

// Code classifies err for callers outside the process.
func Code(err error) string {
	switch {
	case errors.Is(err, loyalty.ErrInvalidPin):
		return CodeInvalidPin
	case errors.Is(err, loyalty.ErrInvalidConfig):
		return CodeInvalidConfig
	case errors.Is(err, loyalty.ErrInvalidInput), errors.Is(err, ErrInvalidCustomer):
		return CodeInvalidInput
	case errors.Is(err, loyalty.ErrAuthenticationFailed):
		return CodeAuthenticationFailed
	case errors.Is(err, ErrCustomerNotFound):
		return CodeCustomerNotFound
	case errors.Is(err, loyalty.ErrInsufficientPayment):
		return CodeInsufficientPayment
	case errors.Is(err, loyalty.ErrOverRedemption):
		return CodeOverRedemption
	default:
		return CodeInternal
	}
}

// ErrorForCode is the inverse of Code for the sentinel kinds.
func ErrorForCode(code string) error {
	switch code {
	case CodeInvalidPin:
		return loyalty.ErrInvalidPin
	case CodeInvalidConfig:
		return loyalty.ErrInvalidConfig
	case CodeInvalidInput:
		return loyalty.ErrInvalidInput
	case CodeAuthenticationFailed:
		return loyalty.ErrAuthenticationFailed
	case CodeCustomerNotFound:
		return ErrCustomerNotFound
	case CodeInsufficientPayment:
		return loyalty.ErrInsufficientPayment
	case CodeOverRedemption:
		return loyalty.ErrOverRedemption
	default:
		return nil
	}
}
