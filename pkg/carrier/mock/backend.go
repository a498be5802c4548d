// Package mock provides an in-memory logistics backend for tests and local runs.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tournevent/shipbridge/pkg/carrier"
)

// Backend is a mock logistics backend. Hooks override the default
// behaviour; call counters are safe for concurrent use.
type Backend struct {
	name string

	Credits  int
	Services []carrier.CourierService

	OnCreditBalance   func(ctx context.Context) (*carrier.CreditBalance, error)
	OnCourierServices func(ctx context.Context) ([]carrier.CourierService, error)
	OnCreateOrder     func(ctx context.Context, req *carrier.OrderRequest) (*carrier.OrderResponse, error)
	OnCalculateRates  func(ctx context.Context, req *carrier.RateRequest) ([]carrier.Rate, error)
	OnTrackEvent      func(ctx context.Context, event *carrier.AnalyticsEvent) error

	createCalls atomic.Int64
	rateCalls   atomic.Int64

	mu       sync.Mutex
	orders   []carrier.OrderRequest
	events   []carrier.AnalyticsEvent
	sequence int
}

// New creates a mock backend with 100 credits and two enabled services.
func New(name string) *Backend {
	return &Backend{
		name:    name,
		Credits: 100,
		Services: []carrier.CourierService{
			{Code: "STANDARD", Name: "Standard", Enabled: true},
			{Code: "EXPRESS", Name: "Express", Enabled: true},
		},
	}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return b.name
}

// CreditBalance returns the configured credits.
func (b *Backend) CreditBalance(ctx context.Context) (*carrier.CreditBalance, error) {
	if b.OnCreditBalance != nil {
		return b.OnCreditBalance(ctx)
	}
	return &carrier.CreditBalance{Credits: b.Credits}, nil
}

// CourierServices returns the configured services.
func (b *Backend) CourierServices(ctx context.Context) ([]carrier.CourierService, error) {
	if b.OnCourierServices != nil {
		return b.OnCourierServices(ctx)
	}
	return b.Services, nil
}

// CreateOrder records the request and returns a sequential order id.
func (b *Backend) CreateOrder(ctx context.Context, req *carrier.OrderRequest) (*carrier.OrderResponse, error) {
	b.createCalls.Add(1)
	if b.OnCreateOrder != nil {
		return b.OnCreateOrder(ctx, req)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, *req)
	b.sequence++
	return &carrier.OrderResponse{
		OrderID: fmt.Sprintf("%s-%d", b.name, b.sequence),
		Waybill: fmt.Sprintf("WB%d", b.sequence),
	}, nil
}

// CalculateRates returns one rate per requested service.
func (b *Backend) CalculateRates(ctx context.Context, req *carrier.RateRequest) ([]carrier.Rate, error) {
	b.rateCalls.Add(1)
	if b.OnCalculateRates != nil {
		return b.OnCalculateRates(ctx, req)
	}

	rates := make([]carrier.Rate, 0, len(req.Services))
	for i, code := range req.Services {
		rates = append(rates, carrier.Rate{
			ServiceCode:     code,
			ServiceName:     code,
			TotalPrice:      int64(1250 * (i + 1)),
			Currency:        req.Currency,
			MinDeliveryDays: 2,
			MaxDeliveryDays: 5,
		})
	}
	return rates, nil
}

// TrackEvent records the event.
func (b *Backend) TrackEvent(ctx context.Context, event *carrier.AnalyticsEvent) error {
	if b.OnTrackEvent != nil {
		return b.OnTrackEvent(ctx, event)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *event)
	return nil
}

// CreateOrderCalls returns how many times CreateOrder was invoked.
func (b *Backend) CreateOrderCalls() int {
	return int(b.createCalls.Load())
}

// CalculateRatesCalls returns how many times CalculateRates was invoked.
func (b *Backend) CalculateRatesCalls() int {
	return int(b.rateCalls.Load())
}

// Orders returns the requests accepted by the default CreateOrder.
func (b *Backend) Orders() []carrier.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]carrier.OrderRequest(nil), b.orders...)
}

// Events returns the tracked analytics events.
func (b *Backend) Events() []carrier.AnalyticsEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]carrier.AnalyticsEvent(nil), b.events...)
}

var _ carrier.Backend = (*Backend)(nil)
