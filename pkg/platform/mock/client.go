// Package mock provides an in-memory platform client for tests and local runs.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/tournevent/shipbridge/pkg/platform"
)

// Client is an in-memory shop. Fulfillment orders are seeded per order id
// and consumed by CreateFulfillment.
type Client struct {
	OnFulfillmentOrders    func(ctx context.Context, orderID int64) ([]platform.FulfillmentOrder, error)
	OnCreateFulfillment    func(ctx context.Context, input *platform.FulfillmentInput) (*platform.Fulfillment, error)
	OnCreateCarrierService func(ctx context.Context, input *platform.CarrierServiceInput) (*platform.CarrierService, error)

	mu                sync.Mutex
	fulfillmentOrders map[int64][]platform.FulfillmentOrder
	fulfillments      []platform.FulfillmentInput
	carrierServices   []platform.CarrierServiceInput
}

// NewClient creates an empty in-memory shop.
func NewClient() *Client {
	return &Client{fulfillmentOrders: make(map[int64][]platform.FulfillmentOrder)}
}

// SetFulfillmentOrders seeds the fulfillment orders of an order.
func (c *Client) SetFulfillmentOrders(orderID int64, orders ...platform.FulfillmentOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fulfillmentOrders[orderID] = orders
}

// Fulfillments returns a snapshot of created fulfillments.
func (c *Client) Fulfillments() []platform.FulfillmentInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]platform.FulfillmentInput, len(c.fulfillments))
	copy(out, c.fulfillments)
	return out
}

// CarrierServices returns a snapshot of registered carrier services.
func (c *Client) CarrierServices() []platform.CarrierServiceInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]platform.CarrierServiceInput, len(c.carrierServices))
	copy(out, c.carrierServices)
	return out
}

// FulfillmentOrders returns the seeded fulfillment orders.
func (c *Client) FulfillmentOrders(ctx context.Context, orderID int64) ([]platform.FulfillmentOrder, error) {
	if c.OnFulfillmentOrders != nil {
		return c.OnFulfillmentOrders(ctx, orderID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	orders := c.fulfillmentOrders[orderID]
	out := make([]platform.FulfillmentOrder, len(orders))
	copy(out, orders)
	return out, nil
}

// CreateFulfillment records the input and closes the matching unit.
func (c *Client) CreateFulfillment(ctx context.Context, input *platform.FulfillmentInput) (*platform.Fulfillment, error) {
	if c.OnCreateFulfillment != nil {
		return c.OnCreateFulfillment(ctx, input)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fulfillments = append(c.fulfillments, *input)
	for orderID, orders := range c.fulfillmentOrders {
		for i := range orders {
			if orders[i].ID == input.FulfillmentOrderID {
				orders[i].Status = "CLOSED"
				c.fulfillmentOrders[orderID] = orders
			}
		}
	}
	return &platform.Fulfillment{
		ID:     fmt.Sprintf("gid://shopify/Fulfillment/%d", len(c.fulfillments)),
		Status: "SUCCESS",
	}, nil
}

// CreateCarrierService records the registration.
func (c *Client) CreateCarrierService(ctx context.Context, input *platform.CarrierServiceInput) (*platform.CarrierService, error) {
	if c.OnCreateCarrierService != nil {
		return c.OnCreateCarrierService(ctx, input)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carrierServices = append(c.carrierServices, *input)
	return &platform.CarrierService{
		ID:   fmt.Sprintf("gid://shopify/DeliveryCarrierService/%d", len(c.carrierServices)),
		Name: input.Name,
	}, nil
}

// Provider hands out one in-memory client per shop.
type Provider struct {
	mu      sync.Mutex
	clients map[string]*Client
	// Strict makes unknown shops fail with ErrShopNotConfigured.
	Strict bool
}

// NewProvider creates a provider that lazily creates shops.
func NewProvider() *Provider {
	return &Provider{clients: make(map[string]*Client)}
}

// Shop returns (creating if needed) the client for shopID.
func (p *Provider) Shop(shopID string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[shopID]
	if !ok {
		c = NewClient()
		p.clients[shopID] = c
	}
	return c
}

// ClientFor implements platform.ClientProvider.
func (p *Provider) ClientFor(_ context.Context, shopID string) (platform.Client, error) {
	if p.Strict {
		p.mu.Lock()
		c, ok := p.clients[shopID]
		p.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", platform.ErrShopNotConfigured, shopID)
		}
		return c, nil
	}
	return p.Shop(shopID), nil
}

var (
	_ platform.Client         = (*Client)(nil)
	_ platform.ClientProvider = (*Provider)(nil)
)
