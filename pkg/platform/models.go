package platform

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Financial statuses that imply cash collection on delivery.
const (
	FinancialStatusPending       = "pending"
	FinancialStatusPartiallyPaid = "partially_paid"
)

// Fulfillment order statuses that still accept fulfillments.
const (
	FulfillmentOrderStatusOpen       = "OPEN"
	FulfillmentOrderStatusInProgress = "IN_PROGRESS"
)

// Order is the order-created webhook payload (REST representation).
type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     int64           `json:"order_number"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	FinancialStatus string          `json:"financial_status"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Currency        string          `json:"currency"`
	ShippingAddress *Address        `json:"shipping_address"`
	BillingAddress  *Address        `json:"billing_address"`
	Customer        *Customer       `json:"customer"`
	LineItems       []LineItem      `json:"line_items"`
}

// Number returns the order number used in carrier references. It falls
// back to the numeric part of Name ("#1001") when order_number is absent.
func (o *Order) Number() string {
	if o.OrderNumber > 0 {
		return strconv.FormatInt(o.OrderNumber, 10)
	}
	return strings.TrimPrefix(strings.TrimSpace(o.Name), "#")
}

// Address is a postal address on an order.
type Address struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Name         string `json:"name"`
	Company      string `json:"company"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	City         string `json:"city"`
	Province     string `json:"province"`
	ProvinceCode string `json:"province_code"`
	Zip          string `json:"zip"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
	Phone        string `json:"phone"`
}

// FullName returns Name or the joined first/last name.
func (a *Address) FullName() string {
	if a.Name != "" {
		return a.Name
	}
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Customer is the buyer attached to an order.
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// LineItem is an order line.
type LineItem struct {
	ID               int64           `json:"id"`
	Title            string          `json:"title"`
	SKU              string          `json:"sku"`
	Quantity         int             `json:"quantity"`
	Grams            *int            `json:"grams"`
	Price            decimal.Decimal `json:"price"`
	RequiresShipping bool            `json:"requires_shipping"`
}

// FulfillmentOrder is a group of line items fulfilled together.
type FulfillmentOrder struct {
	ID        string
	Status    string
	LineItems []FulfillmentOrderLineItem
}

// IsOpen reports whether the unit still has something to fulfill.
func (f *FulfillmentOrder) IsOpen() bool {
	if f.Status != FulfillmentOrderStatusOpen && f.Status != FulfillmentOrderStatusInProgress {
		return false
	}
	for _, li := range f.LineItems {
		if li.RemainingQuantity > 0 {
			return true
		}
	}
	return false
}

// FulfillmentOrderLineItem is a line of a fulfillment order.
type FulfillmentOrderLineItem struct {
	ID                string
	RemainingQuantity int
}

// TrackingInfo is attached to a fulfillment.
type TrackingInfo struct {
	Company string
	Number  string
	URL     string
}

// FulfillmentInput creates a fulfillment for one fulfillment order.
type FulfillmentInput struct {
	FulfillmentOrderID string
	LineItems          []FulfillmentOrderLineItem
	Tracking           TrackingInfo
	NotifyCustomer     bool
}

// Fulfillment is the result of a successful fulfillment creation.
type Fulfillment struct {
	ID     string
	Status string
}

// CarrierServiceInput registers a rate callback.
type CarrierServiceInput struct {
	Name             string
	CallbackURL      string
	ServiceDiscovery bool
	Active           bool
}

// CarrierService is a registered rate callback.
type CarrierService struct {
	ID   string
	Name string
}
