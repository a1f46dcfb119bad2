package client

import (
	"fmt"
	"net/http"
	"slices"
	"time"
)

// RetryPolicy controls how HTTPClient retries failed requests. Reads retry on
// any RetryStatusCodes status and on transport errors. Settlements and exports
// are replayed only on ReplayStatusCodes, which must all be statuses the
// server returns before touching the ledger.
type RetryPolicy struct {
	MaxAttempts       uint32
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Jitter            time.Duration
	RetryStatusCodes  []int
	ReplayStatusCodes []int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      25 * time.Millisecond,
		RetryStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		ReplayStatusCodes: []int{http.StatusTooManyRequests},
	}
}

func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts == 0:
		return fmt.Errorf("%w: max attempts must be positive", ErrInvalidArgument)
	case p.BaseDelay <= 0 || p.MaxDelay < p.BaseDelay:
		return fmt.Errorf("%w: delays must satisfy 0 < base <= max", ErrInvalidArgument)
	case p.Jitter < 0:
		return fmt.Errorf("%w: jitter must not be negative", ErrInvalidArgument)
	case len(p.RetryStatusCodes) == 0:
		return fmt.Errorf("%w: no retry status codes", ErrInvalidArgument)
	}
	for _, code := range p.RetryStatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("%w: status %d out of range", ErrInvalidArgument, code)
		}
	}
	for _, code := range p.ReplayStatusCodes {
		if code < 400 || code > 499 {
			return fmt.Errorf("%w: replay status %d is not a client error", ErrInvalidArgument, code)
		}
	}
	return nil
}

func (p RetryPolicy) retries(status int, unsafe bool) bool {
	if unsafe {
		return slices.Contains(p.ReplayStatusCodes, status)
	}
	return slices.Contains(p.RetryStatusCodes, status)
}
