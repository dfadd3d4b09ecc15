package exchange

import (
	"errors"
	"fmt"
)

// Error taxonomy for the order book and settlement engine. Handlers map
// these to HTTP statuses; services wrap them with %w so errors.Is keeps
// working through call layers.
var (
	// ErrValidation covers bad pairs, non-positive quantity/price and
	// unsupported precision. Rejected before any reservation.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds means the reservation exceeds the available
	// balance. Rejected before order insertion.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound covers unknown or non-owned order/trade ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStateTransition covers operations on terminal orders,
	// e.g. cancelling a filled order.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrLiquidityUnavailable means a market order found no crossing
	// resting orders at all.
	ErrLiquidityUnavailable = errors.New("liquidity unavailable")

	// ErrSlippageExceeded means the computed average execution price
	// breaches the caller's slippage limit.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrStaleSignal marks a pricing cycle skipped for lack of trade
	// volume. Logged internally, never surfaced to users.
	ErrStaleSignal = errors.New("stale pricing signal")

	// ErrDuplicateSettlement signals a settlement retry that already
	// committed; callers treat it as success.
	ErrDuplicateSettlement = errors.New("duplicate settlement")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}
