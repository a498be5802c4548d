package ordersync

import (
	"errors"

	"github.com/tournevent/shipbridge/internal/retry"
	"github.com/tournevent/shipbridge/pkg/carrier"
)

// Sync failure taxonomy.
var (
	// ErrInvalidPayload means the webhook body is not a usable order.
	ErrInvalidPayload = errors.New("invalid order payload")

	// ErrInsufficientCredits means the carrier account cannot pay for a shipment.
	ErrInsufficientCredits = errors.New("insufficient carrier credits")

	// ErrMissingAddress means the order has neither shipping nor billing address.
	ErrMissingAddress = errors.New("order has no shipping or billing address")

	// ErrNotReplayable means the order has nothing to resubmit.
	ErrNotReplayable = errors.New("order is not in a replayable state")
)

// Error kinds stored on dead-letter entries.
const (
	KindInvalidPayload      = "INVALID_PAYLOAD"
	KindInsufficientCredits = "INSUFFICIENT_CREDITS"
	KindMissingAddress      = "MISSING_ADDRESS"
	KindAuthentication      = "AUTHENTICATION_FAILURE"
	KindRetryExhausted      = "RETRY_EXHAUSTED"
	KindTransient           = "TRANSIENT_BACKEND_FAILURE"
	KindCarrierRejected     = "CARRIER_REJECTED"
	KindUnknown             = "UNKNOWN"
)

// Kind maps a sync error to its taxonomy code.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return KindInvalidPayload
	case errors.Is(err, ErrInsufficientCredits):
		return KindInsufficientCredits
	case errors.Is(err, ErrMissingAddress):
		return KindMissingAddress
	case errors.Is(err, carrier.ErrAuthenticationFailed):
		return KindAuthentication
	case errors.Is(err, retry.ErrExhausted):
		return KindRetryExhausted
	case retry.IsRetryable(err):
		return KindTransient
	}
	var carrierErr *carrier.Error
	if errors.As(err, &carrierErr) {
		return KindCarrierRejected
	}
	return KindUnknown
}
