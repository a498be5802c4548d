// Package carrier provides an abstraction layer for the logistics backend
// that receives orders, quotes rates and issues waybills.
package carrier

import (
	"context"
)

// Backend defines the operations the reconciliation core needs from a
// logistics backend.
type Backend interface {
	// Name returns the backend identifier (e.g., "s2s").
	Name() string

	// CreditBalance returns the prepaid credits available for order creation.
	CreditBalance(ctx context.Context) (*CreditBalance, error)

	// CourierServices lists the courier services enabled for the account.
	CourierServices(ctx context.Context) ([]CourierService, error)

	// CreateOrder submits a shipment. Reference is the idempotency key.
	CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)

	// CalculateRates quotes the given services for a shipment.
	CalculateRates(ctx context.Context, req *RateRequest) ([]Rate, error)

	// TrackEvent records an analytics event.
	TrackEvent(ctx context.Context, event *AnalyticsEvent) error
}
