package ordersync

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipbridge/internal/retry"
	"github.com/tournevent/shipbridge/pkg/carrier"
	"github.com/tournevent/shipbridge/pkg/platform"
)

// ReferencePrefix prefixes the carrier idempotency reference.
const ReferencePrefix = "SHOPIFY-"

// Reference returns the carrier reference for an order number.
func Reference(orderNumber string) string {
	return ReferencePrefix + orderNumber
}

// BuildCarrierOrder converts a platform order into a carrier order request.
func BuildCarrierOrder(order *platform.Order) (*carrier.OrderRequest, error) {
	addr := order.ShippingAddress
	if addr == nil {
		addr = order.BillingAddress
	}
	if addr == nil {
		return nil, retry.Terminal(ErrMissingAddress)
	}

	req := &carrier.OrderRequest{
		Reference:      Reference(order.Number()),
		RecipientName:  recipientName(order, addr),
		RecipientEmail: recipientEmail(order),
		Phones:         phones(order, addr),
		Destination: carrier.Address{
			Name:         addr.FullName(),
			Company:      addr.Company,
			Line1:        addr.Address1,
			Line2:        addr.Address2,
			City:         addr.City,
			ProvinceCode: addr.ProvinceCode,
			PostalCode:   addr.Zip,
			CountryCode:  addr.CountryCode,
			Phone:        addr.Phone,
		},
		CashOnDelivery: isCashOnDelivery(order.FinancialStatus),
		DeclaredValue:  declaredValue(order),
		Currency:       order.Currency,
	}

	for _, li := range order.LineItems {
		if !li.RequiresShipping {
			continue
		}
		grams := 0
		if li.Grams != nil {
			grams = *li.Grams
		}
		req.Items = append(req.Items, carrier.LineItem{
			SKU:         li.SKU,
			Description: li.Title,
			Quantity:    li.Quantity,
			WeightGrams: grams,
			UnitPrice:   li.Price,
		})
	}

	return req, nil
}

func isCashOnDelivery(status string) bool {
	return status == platform.FinancialStatusPending || status == platform.FinancialStatusPartiallyPaid
}

func recipientName(order *platform.Order, addr *platform.Address) string {
	if name := addr.FullName(); name != "" {
		return name
	}
	if c := order.Customer; c != nil {
		return strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	return ""
}

func recipientEmail(order *platform.Order) string {
	if order.Email != "" {
		return order.Email
	}
	if order.Customer != nil {
		return order.Customer.Email
	}
	return ""
}

// phones lists the customer phone first, then the address phone when it
// differs. Blank numbers are skipped.
func phones(order *platform.Order, addr *platform.Address) []string {
	var result []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" {
			return
		}
		for _, existing := range result {
			if existing == p {
				return
			}
		}
		result = append(result, p)
	}

	if order.Customer != nil && order.Customer.Phone != "" {
		add(order.Customer.Phone)
	} else {
		add(order.Phone)
	}
	add(addr.Phone)
	return result
}

// declaredValue falls back to the sum of line prices when the order has no total.
func declaredValue(order *platform.Order) decimal.Decimal {
	if !order.TotalPrice.IsZero() {
		return order.TotalPrice
	}
	total := decimal.Zero
	for _, li := range order.LineItems {
		total = total.Add(li.Price.Mul(decimal.NewFromInt(int64(li.Quantity))))
	}
	return total
}
