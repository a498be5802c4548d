// Package shopify implements the platform client over the Shopify Admin
// GraphQL API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tournevent/shipbridge/pkg/platform"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const orderGIDPrefix = "gid://shopify/Order/"

// Config holds Shopify client configuration for one shop.
type Config struct {
	Shop        string // e.g. "example.myshopify.com"
	AccessToken string
	APIVersion  string
	Endpoint    string // Overrides the derived admin endpoint (tests)
	Timeout     time.Duration
}

// Client is a Shopify Admin GraphQL client for a single shop.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *otelzap.Logger
}

// New creates a client for one shop.
func New(cfg Config, logger *otelzap.Logger) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", cfg.Shop, cfg.APIVersion)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		endpoint: endpoint,
		token:    cfg.AccessToken,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// OrderGID converts a numeric order id into a global id.
func OrderGID(orderID int64) string {
	return orderGIDPrefix + strconv.FormatInt(orderID, 10)
}

// FulfillmentOrders returns the fulfillment orders of an order.
func (c *Client) FulfillmentOrders(ctx context.Context, orderID int64) ([]platform.FulfillmentOrder, error) {
	var data struct {
		Order *struct {
			FulfillmentOrders struct {
				Nodes []struct {
					ID        string `json:"id"`
					Status    string `json:"status"`
					LineItems struct {
						Nodes []struct {
							ID                string `json:"id"`
							RemainingQuantity int    `json:"remainingQuantity"`
						} `json:"nodes"`
					} `json:"lineItems"`
				} `json:"nodes"`
			} `json:"fulfillmentOrders"`
		} `json:"order"`
	}

	vars := map[string]interface{}{"orderId": OrderGID(orderID)}
	if err := c.do(ctx, fulfillmentOrdersQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Order == nil {
		return nil, nil
	}

	result := make([]platform.FulfillmentOrder, 0, len(data.Order.FulfillmentOrders.Nodes))
	for _, node := range data.Order.FulfillmentOrders.Nodes {
		fo := platform.FulfillmentOrder{ID: node.ID, Status: node.Status}
		for _, li := range node.LineItems.Nodes {
			fo.LineItems = append(fo.LineItems, platform.FulfillmentOrderLineItem{
				ID:                li.ID,
				RemainingQuantity: li.RemainingQuantity,
			})
		}
		result = append(result, fo)
	}
	return result, nil
}

// CreateFulfillment creates a fulfillment for one fulfillment order.
func (c *Client) CreateFulfillment(ctx context.Context, input *platform.FulfillmentInput) (*platform.Fulfillment, error) {
	lineItems := make([]map[string]interface{}, len(input.LineItems))
	for i, li := range input.LineItems {
		lineItems[i] = map[string]interface{}{"id": li.ID, "quantity": li.RemainingQuantity}
	}

	tracking := map[string]interface{}{
		"company": input.Tracking.Company,
		"number":  input.Tracking.Number,
	}
	if input.Tracking.URL != "" {
		tracking["url"] = input.Tracking.URL
	}

	vars := map[string]interface{}{
		"fulfillment": map[string]interface{}{
			"lineItemsByFulfillmentOrder": []map[string]interface{}{{
				"fulfillmentOrderId":        input.FulfillmentOrderID,
				"fulfillmentOrderLineItems": lineItems,
			}},
			"trackingInfo":   tracking,
			"notifyCustomer": input.NotifyCustomer,
		},
	}

	var data struct {
		FulfillmentCreate struct {
			Fulfillment *struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"fulfillment"`
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentCreate"`
	}
	if err := c.do(ctx, fulfillmentCreateMutation, vars, &data); err != nil {
		return nil, err
	}

	payload := data.FulfillmentCreate
	if len(payload.UserErrors) > 0 {
		return nil, toUserErrors(payload.UserErrors)
	}
	if payload.Fulfillment == nil {
		return nil, &APIError{Message: "fulfillmentCreate returned no fulfillment"}
	}
	return &platform.Fulfillment{ID: payload.Fulfillment.ID, Status: payload.Fulfillment.Status}, nil
}

// CreateCarrierService registers the rate callback.
func (c *Client) CreateCarrierService(ctx context.Context, input *platform.CarrierServiceInput) (*platform.CarrierService, error) {
	vars := map[string]interface{}{
		"input": map[string]interface{}{
			"name":                     input.Name,
			"callbackUrl":              input.CallbackURL,
			"supportsServiceDiscovery": input.ServiceDiscovery,
			"active":                   input.Active,
		},
	}

	var data struct {
		CarrierServiceCreate struct {
			CarrierService *struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"carrierService"`
			UserErrors []userError `json:"userErrors"`
		} `json:"carrierServiceCreate"`
	}
	if err := c.do(ctx, carrierServiceCreateMutation, vars, &data); err != nil {
		return nil, err
	}

	payload := data.CarrierServiceCreate
	if len(payload.UserErrors) > 0 {
		return nil, toUserErrors(payload.UserErrors)
	}
	if payload.CarrierService == nil {
		return nil, &APIError{Message: "carrierServiceCreate returned no carrier service"}
	}
	return &platform.CarrierService{ID: payload.CarrierService.ID, Name: payload.CarrierService.Name}, nil
}

// GraphQL request/response types
type graphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

func toUserErrors(errs []userError) platform.UserErrors {
	result := make(platform.UserErrors, len(errs))
	for i, e := range errs {
		result[i] = platform.UserError{Field: e.Field, Message: e.Message}
	}
	return result
}

// APIError is a transport-level or top-level GraphQL error.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("shopify: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return "shopify: " + e.Message
}

// do executes a GraphQL operation and decodes data into out.
func (c *Client) do(ctx context.Context, doc document, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{
		Query:         doc.Query,
		OperationName: doc.Operation,
		Variables:     vars,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var gqlResp graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", doc.Operation, err)
	}
	if len(gqlResp.Errors) > 0 {
		msgs := make([]string, len(gqlResp.Errors))
		for i, e := range gqlResp.Errors {
			msgs[i] = e.Message
		}
		c.logger.Ctx(ctx).Warn("Shopify GraphQL errors",
			zap.String("operation", doc.Operation),
			zap.Strings("errors", msgs),
		)
		return &APIError{Message: strings.Join(msgs, "; ")}
	}

	if out == nil || len(gqlResp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", doc.Operation, err)
	}
	return nil
}

var _ platform.Client = (*Client)(nil)
