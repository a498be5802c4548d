package carrier

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address represents a shipping address.
type Address struct {
	Name         string
	Company      string
	Line1        string
	Line2        string
	City         string
	ProvinceCode string
	PostalCode   string
	CountryCode  string // ISO 3166-1 alpha-2
	Phone        string
}

// LineItem is a shippable item of an order.
type LineItem struct {
	SKU         string
	Description string
	Quantity    int
	WeightGrams int
	UnitPrice   decimal.Decimal
}

// CreditBalance is the account balance used for admission control.
type CreditBalance struct {
	Credits  int
	Currency string
}

// CourierService is a courier service offered by the backend.
type CourierService struct {
	Code    string
	Name    string
	Enabled bool
}

// AnalyticsEvent is a fire-and-forget tracking event.
type AnalyticsEvent struct {
	Name       string
	ShopID     string
	Properties map[string]any
	OccurredAt time.Time
}

// ============================================================================
// Request/Response Types
// ============================================================================

// OrderRequest is the normalized shipment request built from a platform order.
type OrderRequest struct {
	Reference      string // "<PLATFORM>-<orderNumber>"
	RecipientName  string
	RecipientEmail string
	Phones         []string
	Destination    Address
	CashOnDelivery bool
	Items          []LineItem
	DeclaredValue  decimal.Decimal
	Currency       string
}

// OrderResponse is the response from creating a shipment.
type OrderResponse struct {
	OrderID string
	Waybill string
}

// RateRequest is the request for a checkout-time rate calculation.
type RateRequest struct {
	Origin      Address
	Destination Address
	WeightGrams int
	// DeclaredValue is expressed in minor units of Currency.
	DeclaredValue int64
	Currency      string
	Services      []string
}

// Rate is a quoted price for one courier service. Prices are minor units.
type Rate struct {
	ServiceCode     string
	ServiceName     string
	TotalPrice      int64
	Currency        string
	MinDeliveryDays int
	MaxDeliveryDays int
	Description     string
}
