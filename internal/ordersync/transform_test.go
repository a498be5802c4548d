package ordersync_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipbridge/internal/ordersync"
	"github.com/tournevent/shipbridge/internal/retry"
	"github.com/tournevent/shipbridge/pkg/platform"
)

func intPtr(v int) *int { return &v }

func baseOrder() *platform.Order {
	return &platform.Order{
		ID:              450789469,
		OrderNumber:     1001,
		Email:           "bob.norman@example.com",
		FinancialStatus: "paid",
		TotalPrice:      decimal.RequireFromString("598.94"),
		Currency:        "USD",
		Customer:        &platform.Customer{FirstName: "Bob", LastName: "Norman", Phone: "+16135551111"},
		ShippingAddress: &platform.Address{
			FirstName:    "Bob",
			LastName:     "Norman",
			Address1:     "Chestnut Street 92",
			City:         "Louisville",
			ProvinceCode: "KY",
			Zip:          "40202",
			CountryCode:  "US",
			Phone:        "+15555555555",
		},
		LineItems: []platform.LineItem{
			{ID: 1, Title: "IPod Nano - 8gb", SKU: "IPOD2008BLACK", Quantity: 1, Grams: intPtr(200), Price: decimal.RequireFromString("199.00"), RequiresShipping: true},
			{ID: 2, Title: "Gift Card", Quantity: 1, Price: decimal.RequireFromString("50.00"), RequiresShipping: false},
		},
	}
}

func TestBuildCarrierOrder(t *testing.T) {
	req, err := ordersync.BuildCarrierOrder(baseOrder())

	require.NoError(t, err)
	assert.Equal(t, "SHOPIFY-1001", req.Reference)
	assert.Equal(t, "Bob Norman", req.RecipientName)
	assert.Equal(t, "bob.norman@example.com", req.RecipientEmail)
	assert.Equal(t, []string{"+16135551111", "+15555555555"}, req.Phones)
	assert.Equal(t, "40202", req.Destination.PostalCode)
	assert.False(t, req.CashOnDelivery)
	assert.True(t, req.DeclaredValue.Equal(decimal.RequireFromString("598.94")))
	require.Len(t, req.Items, 1)
	assert.Equal(t, "IPOD2008BLACK", req.Items[0].SKU)
	assert.Equal(t, 200, req.Items[0].WeightGrams)
}

func TestBuildCarrierOrder_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		order     *platform.Order
		cod       bool
		declared  string
		weights   []int
		reference string
	}{
		{
			name: "paid single mug",
			order: &platform.Order{
				ID:              1001,
				OrderNumber:     1001,
				FinancialStatus: "paid",
				TotalPrice:      decimal.RequireFromString("29.99"),
				Currency:        "USD",
				ShippingAddress: &platform.Address{Name: "Ada Lovelace", Address1: "1 Main St", City: "Austin", CountryCode: "US"},
				LineItems: []platform.LineItem{
					{ID: 1, Title: "Mug", Quantity: 1, Grams: intPtr(500), Price: decimal.RequireFromString("29.99"), RequiresShipping: true},
				},
			},
			cod:       false,
			declared:  "29.99",
			weights:   []int{500},
			reference: "SHOPIFY-1001",
		},
		{
			name: "pending with gift card",
			order: func() *platform.Order {
				o := baseOrder()
				o.FinancialStatus = "pending"
				return o
			}(),
			cod:       true,
			declared:  "598.94",
			weights:   []int{200},
			reference: "SHOPIFY-1001",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ordersync.BuildCarrierOrder(tt.order)

			require.NoError(t, err)
			assert.Equal(t, tt.reference, req.Reference)
			assert.Equal(t, tt.cod, req.CashOnDelivery)
			assert.Equal(t, tt.declared, req.DeclaredValue.StringFixed(2))
			assert.Equal(t, "USD", req.Currency)
			weights := make([]int, len(req.Items))
			for i, item := range req.Items {
				weights[i] = item.WeightGrams
			}
			assert.Equal(t, tt.weights, weights)
		})
	}
}

func TestBuildCarrierOrder_CashOnDelivery(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"pending", true},
		{"partially_paid", true},
		{"paid", false},
		{"authorized", false},
		{"refunded", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			order := baseOrder()
			order.FinancialStatus = tt.status

			req, err := ordersync.BuildCarrierOrder(order)

			require.NoError(t, err)
			assert.Equal(t, tt.want, req.CashOnDelivery)
		})
	}
}

func TestBuildCarrierOrder_BillingFallback(t *testing.T) {
	order := baseOrder()
	order.ShippingAddress = nil
	order.BillingAddress = &platform.Address{Name: "Accounts Dept", City: "Ottawa", CountryCode: "CA"}

	req, err := ordersync.BuildCarrierOrder(order)

	require.NoError(t, err)
	assert.Equal(t, "Ottawa", req.Destination.City)
	assert.Equal(t, "Accounts Dept", req.RecipientName)
}

func TestBuildCarrierOrder_MissingAddress(t *testing.T) {
	order := baseOrder()
	order.ShippingAddress = nil

	_, err := ordersync.BuildCarrierOrder(order)

	assert.ErrorIs(t, err, ordersync.ErrMissingAddress)
	assert.True(t, retry.IsTerminal(err))
}

func TestBuildCarrierOrder_Phones(t *testing.T) {
	t.Run("same phone listed once", func(t *testing.T) {
		order := baseOrder()
		order.ShippingAddress.Phone = order.Customer.Phone

		req, err := ordersync.BuildCarrierOrder(order)

		require.NoError(t, err)
		assert.Equal(t, []string{"+16135551111"}, req.Phones)
	})

	t.Run("order phone when customer has none", func(t *testing.T) {
		order := baseOrder()
		order.Customer.Phone = ""
		order.Phone = "+14165550000"
		order.ShippingAddress.Phone = ""

		req, err := ordersync.BuildCarrierOrder(order)

		require.NoError(t, err)
		assert.Equal(t, []string{"+14165550000"}, req.Phones)
	})
}

func TestBuildCarrierOrder_MissingWeightIsZero(t *testing.T) {
	order := baseOrder()
	order.LineItems[0].Grams = nil

	req, err := ordersync.BuildCarrierOrder(order)

	require.NoError(t, err)
	assert.Equal(t, 0, req.Items[0].WeightGrams)
}

func TestBuildCarrierOrder_NameFallsBackToOrderName(t *testing.T) {
	order := baseOrder()
	order.OrderNumber = 0
	order.Name = "#1042"

	req, err := ordersync.BuildCarrierOrder(order)

	require.NoError(t, err)
	assert.Equal(t, "SHOPIFY-1042", req.Reference)
}

func TestKind(t *testing.T) {
	assert.Equal(t, ordersync.KindMissingAddress, ordersync.Kind(retry.Terminal(ordersync.ErrMissingAddress)))
	assert.Equal(t, ordersync.KindInvalidPayload, ordersync.Kind(ordersync.ErrInvalidPayload))
	assert.Equal(t, ordersync.KindUnknown, ordersync.Kind(assert.AnError))
}
