package loyalty

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInsufficientPayment  = errors.New("insufficient payment")
	ErrOverRedemption       = errors.New("over redemption")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidPin           = fmt.Errorf("%w: pin must be 4 digits", ErrInvalidInput)
	ErrInvalidBill          = fmt.Errorf("%w: bill amount must be positive", ErrInvalidInput)
	ErrInvalidConfig        = errors.New("invalid tier config")
)

// UserMessage returns the text shown to an operator for a settlement error.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return "Incorrect PIN code."
	case errors.Is(err, ErrInvalidPin):
		return "PIN must be 4 digits for new users."
	case errors.Is(err, ErrInsufficientPayment):
		return "Cash Given cannot be less than Total Payable"
	case errors.Is(err, ErrOverRedemption):
		return "Cannot redeem more points than available."
	case errors.Is(err, ErrInvalidBill):
		return "Please enter valid Bill Amount"
	default:
		return err.Error()
	}
}
