package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrGatewayUnavailable   = errors.New("exchange gateway is unavailable")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrOrderRejected        = errors.New("order rejected")

	// Ledger Errors
	ErrDuplicatePosition = errors.New("an open position already exists for symbol")
	ErrNoPosition        = errors.New("no open position for symbol")
	ErrInsufficientFunds = errors.New("insufficient funds for operation")
	ErrPriceUnavailable  = errors.New("current price unavailable")
	ErrInvalidSymbol     = errors.New("invalid or unknown symbol")
)

// OrderRejectedError carries the reason an order submission failed.
// It matches ErrOrderRejected with errors.Is and unwraps to the underlying cause.
type OrderRejectedError struct {
	Symbol string
	Reason string
	Err    error
}

func (e *OrderRejectedError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("order rejected: %s", e.Reason)
	}
	return fmt.Sprintf("order rejected for %s: %s", e.Symbol, e.Reason)
}

// Is reports whether target is ErrOrderRejected.
func (e *OrderRejectedError) Is(target error) bool {
	return target == ErrOrderRejected
}

func (e *OrderRejectedError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a gateway condition worth retrying on the next tick.
func IsTransient(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
