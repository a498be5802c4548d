package s2s

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// GetBalance fetches the credit balance.
// GET /credits/balance
func (c *HTTPAPIClient) GetBalance(ctx context.Context) (*BalanceResponse, error) {
	var result BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/credits/balance", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListCourierServices fetches configured courier services.
// GET /couriers/services
func (c *HTTPAPIClient) ListCourierServices(ctx context.Context) (*CourierServicesResponse, error) {
	var result CourierServicesResponse
	if err := c.do(ctx, http.MethodGet, "/couriers/services", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateOrder creates a shipment. The backend deduplicates on Reference.
// POST /orders
func (c *HTTPAPIClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	var result CreateOrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", req, &result); err != nil {
		return nil, err
	}
	if result.OrderID == "" {
		return nil, &APIError{Code: "INVALID_RESPONSE", Message: "order response missing orderId"}
	}
	return &result, nil
}

// CalculateRates prices a shipment.
// POST /rates/calculate
func (c *HTTPAPIClient) CalculateRates(ctx context.Context, req *RateCalculationRequest) (*RateCalculationResponse, error) {
	var result RateCalculationResponse
	if err := c.do(ctx, http.MethodPost, "/rates/calculate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TrackEvent posts an analytics event.
// POST /analytics/events
func (c *HTTPAPIClient) TrackEvent(ctx context.Context, req *AnalyticsEventRequest) error {
	return c.do(ctx, http.MethodPost, "/analytics/events", req, nil)
}

// do performs a request and decodes a 2xx JSON body into out (if non-nil).
func (c *HTTPAPIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// doRequest performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("User-Agent", "shipbridge/1.0")

	return c.httpClient.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	// Try to parse as a simple error message
	var simpleErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &simpleErr); err == nil {
		msg := simpleErr.Error
		if msg == "" {
			msg = simpleErr.Message
		}
		if msg != "" {
			return &APIError{
				StatusCode: resp.StatusCode,
				Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
				Message:    msg,
			}
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Message:    string(body),
	}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
