package s2s_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipbridge/pkg/carrier/s2s"
)

func newHTTPClient(t *testing.T, handler http.HandlerFunc) *s2s.HTTPAPIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return s2s.NewHTTPAPIClient(s2s.HTTPAPIClientConfig{BaseURL: srv.URL, APIToken: "secret-token"})
}

func TestHTTPAPIClient_CreateOrder(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var req s2s.CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SHOPIFY-1001", req.Reference)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orderId":"S2S-1","waybill":"WB1"}`))
	})

	resp, err := client.CreateOrder(context.Background(), &s2s.CreateOrderRequest{Reference: "SHOPIFY-1001"})

	require.NoError(t, err)
	assert.Equal(t, "S2S-1", resp.OrderID)
	assert.Equal(t, "WB1", resp.Waybill)
}

func TestHTTPAPIClient_CreateOrder_MissingOrderID(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := client.CreateOrder(context.Background(), &s2s.CreateOrderRequest{Reference: "SHOPIFY-1"})

	var apiErr *s2s.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "INVALID_RESPONSE", apiErr.Code)
}

func TestHTTPAPIClient_StructuredError(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":"INVALID_ADDRESS","message":"postal code is required","errors":{"postal_code":"required"}}`))
	})

	_, err := client.CreateOrder(context.Background(), &s2s.CreateOrderRequest{Reference: "SHOPIFY-1"})

	var apiErr *s2s.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "INVALID_ADDRESS", apiErr.Code)
	assert.Equal(t, "required", apiErr.Errors["postal_code"])
}

func TestHTTPAPIClient_SimpleError(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"maintenance"}`))
	})

	_, err := client.GetBalance(context.Background())

	var apiErr *s2s.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "HTTP_503", apiErr.Code)
	assert.Equal(t, "maintenance", apiErr.Message)
}

func TestHTTPAPIClient_ListCourierServices(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/couriers/services", r.URL.Path)
		w.Write([]byte(`{"services":[{"code":"STD","name":"Standard","enabled":true}]}`))
	})

	resp, err := client.ListCourierServices(context.Background())

	require.NoError(t, err)
	require.Len(t, resp.Services, 1)
	assert.Equal(t, "STD", resp.Services[0].Code)
}

func TestHTTPAPIClient_TrackEvent_NoContent(t *testing.T) {
	client := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analytics/events", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.TrackEvent(context.Background(), &s2s.AnalyticsEventRequest{Event: "rate_requested"})
	assert.NoError(t, err)
}
