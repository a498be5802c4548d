// Package platform defines the e-commerce platform collaborators: the
// order webhook payload and the fulfillment API used for write-back.
package platform

import (
	"context"
)

// Client is an authenticated handle to one shop's admin API.
type Client interface {
	// FulfillmentOrders returns the fulfillment orders of a platform order.
	FulfillmentOrders(ctx context.Context, orderID int64) ([]FulfillmentOrder, error)

	// CreateFulfillment marks line items of a fulfillment order as shipped.
	CreateFulfillment(ctx context.Context, input *FulfillmentInput) (*Fulfillment, error)

	// CreateCarrierService registers the rate callback at install time.
	CreateCarrierService(ctx context.Context, input *CarrierServiceInput) (*CarrierService, error)
}

// ClientProvider resolves an authenticated client per shop. Token
// acquisition and refresh belong to the provider, not the core.
type ClientProvider interface {
	ClientFor(ctx context.Context, shopID string) (Client, error)
}
