package s2s_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipbridge/pkg/carrier"
	"github.com/tournevent/shipbridge/pkg/carrier/s2s"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestClient(mockClient *s2s.MockAPIClient) *s2s.Client {
	logger := otelzap.New(zap.NewNop())
	return s2s.NewWithAPIClient(s2s.Config{}, mockClient, logger)
}

func TestClient_CreateOrder_Success(t *testing.T) {
	mockAPI := s2s.NewMockAPIClient()
	var captured *s2s.CreateOrderRequest
	mockAPI.OnCreateOrder = func(ctx context.Context, req *s2s.CreateOrderRequest) (*s2s.CreateOrderResponse, error) {
		captured = req
		return &s2s.CreateOrderResponse{OrderID: "S2S-1", Waybill: "WB1"}, nil
	}
	client := newTestClient(mockAPI)

	resp, err := client.CreateOrder(context.Background(), &carrier.OrderRequest{
		Reference:     "SHOPIFY-1001",
		RecipientName: "Ada Lovelace",
		Phones:        []string{"+15550001", "+15550002"},
		Destination:   carrier.Address{Line1: "1 Main St", City: "Austin", CountryCode: "US"},
		Items: []carrier.LineItem{
			{SKU: "MUG", Quantity: 1, WeightGrams: 500, UnitPrice: decimal.RequireFromString("29.99")},
		},
		DeclaredValue: decimal.RequireFromString("29.99"),
		Currency:      "USD",
	})

	require.NoError(t, err)
	assert.Equal(t, "S2S-1", resp.OrderID)
	assert.Equal(t, "WB1", resp.Waybill)

	require.NotNil(t, captured)
	assert.Equal(t, "SHOPIFY-1001", captured.Reference)
	assert.Equal(t, "29.99", captured.DeclaredValue)
	assert.Equal(t, []string{"+15550001", "+15550002"}, captured.Recipient.Phones)
	assert.Equal(t, "1 Main St", captured.Address.Address1)
	require.Len(t, captured.Items, 1)
	assert.Equal(t, 500, captured.Items[0].Weight)
}

func TestClient_CreateOrder_MockDeduplicatesReference(t *testing.T) {
	client := newTestClient(s2s.NewMockAPIClient())
	req := &carrier.OrderRequest{Reference: "SHOPIFY-7", Currency: "USD"}

	first, err := client.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := client.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
}

func TestClient_CreateOrder_ServerErrorIsRetryable(t *testing.T) {
	mockAPI := s2s.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(mockAPI)

	_, err := client.CreateOrder(context.Background(), &carrier.OrderRequest{Reference: "SHOPIFY-1"})

	require.Error(t, err)
	assert.True(t, carrier.IsRetryable(err))
	var carrierErr *carrier.Error
	require.True(t, errors.As(err, &carrierErr))
	assert.Equal(t, 503, carrierErr.StatusCode)
}

func TestClient_CreateOrder_ValidationErrorIsTerminal(t *testing.T) {
	mockAPI := s2s.NewMockAPIClient()
	mockAPI.OnCreateOrder = func(ctx context.Context, req *s2s.CreateOrderRequest) (*s2s.CreateOrderResponse, error) {
		return nil, &s2s.APIError{StatusCode: 422, Code: "INVALID_ADDRESS", Message: "postal code"}
	}
	client := newTestClient(mockAPI)

	_, err := client.CreateOrder(context.Background(), &carrier.OrderRequest{Reference: "SHOPIFY-1"})

	require.Error(t, err)
	assert.False(t, carrier.IsRetryable(err))
}

func TestClient_TransportErrorIsRetryable(t *testing.T) {
	mockAPI := s2s.NewMockAPIClient()
	mockAPI.OnGetBalance = func(ctx context.Context) (*s2s.BalanceResponse, error) {
		return nil, errors.New("connection reset by peer")
	}
	client := newTestClient(mockAPI)

	_, err := client.CreditBalance(context.Background())

	require.Error(t, err)
	assert.True(t, carrier.IsRetryable(err))
}

func TestClient_Unauthorized(t *testing.T) {
	mockAPI := s2s.NewMockAPIClient()
	mockAPI.OnGetBalance = func(ctx context.Context) (*s2s.BalanceResponse, error) {
		return nil, &s2s.APIError{StatusCode: 401, Code: "UNAUTHORIZED", Message: "bad token"}
	}
	client := newTestClient(mockAPI)

	_, err := client.CreditBalance(context.Background())

	assert.ErrorIs(t, err, carrier.ErrAuthenticationFailed)
	assert.False(t, carrier.IsRetryable(err))
}

func TestClient_CourierServices_FiltersDisabled(t *testing.T) {
	client := newTestClient(s2s.NewMockAPIClient())

	services, err := client.CourierServices(context.Background())

	require.NoError(t, err)
	assert.Len(t, services, 2)
	for _, s := range services {
		assert.True(t, s.Enabled)
		assert.NotEqual(t, "S2S_FREIGHT", s.Code)
	}
}

func TestClient_CalculateRates(t *testing.T) {
	mockAPI := s2s.NewMockAPIClient()
	var captured *s2s.RateCalculationRequest
	mockAPI.OnCalculateRates = func(ctx context.Context, req *s2s.RateCalculationRequest) (*s2s.RateCalculationResponse, error) {
		captured = req
		return &s2s.RateCalculationResponse{Rates: []s2s.Rate{
			{ServiceCode: "S2S_STANDARD", ServiceName: "Standard", TotalPrice: 1250, Currency: "USD", MinDeliveryDays: 3, MaxDeliveryDays: 5},
		}}, nil
	}
	client := newTestClient(mockAPI)

	rates, err := client.CalculateRates(context.Background(), &carrier.RateRequest{
		WeightGrams:   1500,
		DeclaredValue: 4999,
		Currency:      "USD",
		Services:      []string{"S2S_STANDARD"},
	})

	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, int64(1250), rates[0].TotalPrice)
	assert.Equal(t, 1500, captured.Weight)
	assert.Equal(t, int64(4999), captured.DeclaredValue)
}

func TestClient_SimulatedLatencyHonorsContext(t *testing.T) {
	mockAPI := s2s.NewMockAPIClient()
	mockAPI.SimulateLatency = time.Hour
	client := newTestClient(mockAPI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.CourierServices(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ObservesCalls(t *testing.T) {
	type call struct {
		op  string
		err bool
	}
	var calls []call
	mockAPI := s2s.NewMockAPIClient()
	mockAPI.OnGetBalance = func(ctx context.Context) (*s2s.BalanceResponse, error) {
		return nil, &s2s.APIError{StatusCode: 503, Code: "SERVICE_UNAVAILABLE"}
	}
	client := s2s.NewWithAPIClient(s2s.Config{
		Observe: func(op string, d time.Duration, err error) {
			assert.GreaterOrEqual(t, d, time.Duration(0))
			calls = append(calls, call{op, err != nil})
		},
	}, mockAPI, otelzap.New(zap.NewNop()))

	_, err := client.CreditBalance(context.Background())
	require.Error(t, err)
	_, err = client.CreateOrder(context.Background(), &carrier.OrderRequest{Reference: "SHOPIFY-1", Currency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, []call{{"credit_balance", true}, {"create_order", false}}, calls)
}
