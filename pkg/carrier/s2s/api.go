package s2s

import (
	"context"
	"fmt"
)

// APIClient defines the interface for S2S API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// GetBalance fetches the prepaid credit balance
	GetBalance(ctx context.Context) (*BalanceResponse, error)

	// ListCourierServices fetches courier services configured for the account
	ListCourierServices(ctx context.Context) (*CourierServicesResponse, error)

	// CreateOrder creates a new shipment order
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)

	// CalculateRates prices a shipment for the given services
	CalculateRates(ctx context.Context, req *RateCalculationRequest) (*RateCalculationResponse, error)

	// TrackEvent records an analytics event
	TrackEvent(ctx context.Context, req *AnalyticsEventRequest) error
}

// ============================================================================
// API Request/Response Types (S2S REST API v1)
// ============================================================================

// BalanceResponse is returned by GET /credits/balance.
type BalanceResponse struct {
	Credits  int    `json:"credits"`
	Currency string `json:"currency,omitempty"`
}

// CourierServicesResponse is returned by GET /couriers/services.
type CourierServicesResponse struct {
	Services []CourierService `json:"services"`
}

// CourierService is a courier service entry.
type CourierService struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	Reference     string     `json:"reference"` // Idempotency key
	Recipient     Recipient  `json:"recipient"`
	Address       Address    `json:"address"`
	COD           bool       `json:"cod"`
	Items         []LineItem `json:"items"`
	DeclaredValue string     `json:"declared_value"`
	Currency      string     `json:"currency"`
}

// Recipient holds the consignee contact.
type Recipient struct {
	Name   string   `json:"name"`
	Email  string   `json:"email,omitempty"`
	Phones []string `json:"phones"`
}

// Address represents origin or destination.
type Address struct {
	Name       string `json:"name,omitempty"`
	Company    string `json:"company,omitempty"`
	Address1   string `json:"address_1"`
	Address2   string `json:"address_2,omitempty"`
	City       string `json:"city"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"` // ISO 3166-1 alpha-2 code
	Phone      string `json:"phone,omitempty"`
}

// LineItem is an order line.
type LineItem struct {
	SKU         string `json:"sku,omitempty"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Weight      int    `json:"weight"` // grams
	UnitPrice   string `json:"unit_price"`
}

// CreateOrderResponse is returned by POST /orders.
type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
	Waybill string `json:"waybill,omitempty"`
}

// RateCalculationRequest is the body of POST /rates/calculate.
type RateCalculationRequest struct {
	Origin        Address  `json:"origin"`
	Destination   Address  `json:"destination"`
	Weight        int      `json:"weight"`         // grams
	DeclaredValue int64    `json:"declared_value"` // minor units
	Currency      string   `json:"currency"`
	Services      []string `json:"services"`
}

// RateCalculationResponse is returned by POST /rates/calculate.
type RateCalculationResponse struct {
	Rates []Rate `json:"rates"`
}

// Rate is a priced service. TotalPrice is in minor units.
type Rate struct {
	ServiceCode     string `json:"service_code"`
	ServiceName     string `json:"service_name"`
	TotalPrice      int64  `json:"total_price"`
	Currency        string `json:"currency"`
	MinDeliveryDays int    `json:"min_delivery_days"`
	MaxDeliveryDays int    `json:"max_delivery_days"`
	Description     string `json:"description,omitempty"`
}

// AnalyticsEventRequest is the body of POST /analytics/events.
type AnalyticsEventRequest struct {
	Event      string         `json:"event"`
	Shop       string         `json:"shop,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// APIError represents an error from the S2S API.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Errors     map[string]string `json:"errors,omitempty"` // Field-level errors
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return e.Code + ": " + e.Message
}
