package s2s

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing and for
// running the service without a live backend.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetBalance          func(ctx context.Context) (*BalanceResponse, error)
	OnListCourierServices func(ctx context.Context) (*CourierServicesResponse, error)
	OnCreateOrder         func(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)
	OnCalculateRates      func(ctx context.Context, req *RateCalculationRequest) (*RateCalculationResponse, error)
	OnTrackEvent          func(ctx context.Context, req *AnalyticsEventRequest) error

	mu     sync.Mutex
	orders map[string]*CreateOrderResponse
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{orders: make(map[string]*CreateOrderResponse)}
}

func (m *MockAPIClient) simulate(ctx context.Context) error {
	if m.SimulateLatency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.SimulateLatency):
		}
	}
	if m.SimulateErrors {
		return &APIError{StatusCode: 503, Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	return nil
}

// GetBalance returns a generous mock balance.
func (m *MockAPIClient) GetBalance(ctx context.Context) (*BalanceResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnGetBalance != nil {
		return m.OnGetBalance(ctx)
	}
	return &BalanceResponse{Credits: 1000, Currency: "USD"}, nil
}

// ListCourierServices returns two enabled services and one disabled.
func (m *MockAPIClient) ListCourierServices(ctx context.Context) (*CourierServicesResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnListCourierServices != nil {
		return m.OnListCourierServices(ctx)
	}
	return &CourierServicesResponse{
		Services: []CourierService{
			{Code: "S2S_STANDARD", Name: "S2S Standard", Enabled: true},
			{Code: "S2S_EXPRESS", Name: "S2S Express", Enabled: true},
			{Code: "S2S_FREIGHT", Name: "S2S Freight", Enabled: false},
		},
	}, nil
}

// CreateOrder creates a mock order. Repeated references return the
// original order, as the real backend does.
func (m *MockAPIClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnCreateOrder != nil {
		return m.OnCreateOrder(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orders == nil {
		m.orders = make(map[string]*CreateOrderResponse)
	}
	if existing, ok := m.orders[req.Reference]; ok {
		return existing, nil
	}
	n := len(m.orders) + 1
	resp := &CreateOrderResponse{
		OrderID: fmt.Sprintf("S2S-%d", n),
		Waybill: fmt.Sprintf("WB%d", n),
	}
	m.orders[req.Reference] = resp
	return resp, nil
}

// CalculateRates prices each requested service from the shipment weight.
func (m *MockAPIClient) CalculateRates(ctx context.Context, req *RateCalculationRequest) (*RateCalculationResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}
	if m.OnCalculateRates != nil {
		return m.OnCalculateRates(ctx, req)
	}

	base := int64(899) + int64(req.Weight/100)*25
	rates := make([]Rate, 0, len(req.Services))
	for i, code := range req.Services {
		rates = append(rates, Rate{
			ServiceCode:     code,
			ServiceName:     code,
			TotalPrice:      base * int64(i+1),
			Currency:        req.Currency,
			MinDeliveryDays: 5 - 2*i,
			MaxDeliveryDays: 7 - 2*i,
		})
	}
	return &RateCalculationResponse{Rates: rates}, nil
}

// TrackEvent accepts and discards the event.
func (m *MockAPIClient) TrackEvent(ctx context.Context, req *AnalyticsEventRequest) error {
	if err := m.simulate(ctx); err != nil {
		return err
	}
	if m.OnTrackEvent != nil {
		return m.OnTrackEvent(ctx, req)
	}
	return nil
}

var _ APIClient = (*MockAPIClient)(nil)
