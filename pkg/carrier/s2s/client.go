// Package s2s provides integration with the S2S logistics API.
package s2s

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tournevent/shipbridge/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const carrierName = "s2s"

// Config holds S2S configuration.
type Config struct {
	APIToken string
	BaseURL  string
	Timeout  time.Duration
	UseMock  bool // When true, uses mock API client
	// Observe, when set, is called after every API call with its duration.
	Observe func(operation string, d time.Duration, err error)
}

// Client is the S2S backend client.
// It implements the carrier.Backend interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new S2S client.
// If cfg.UseMock is true, it uses a mock API client.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, logger *otelzap.Logger) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:  cfg.BaseURL,
			APIToken: cfg.APIToken,
			Timeout:  cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger)
}

// NewWithAPIClient creates a new S2S client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger) *Client {
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    otel.Tracer("shipbridge/s2s"),
	}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

func (c *Client) observe(operation string, start time.Time, err error) {
	if c.config.Observe != nil {
		c.config.Observe(operation, time.Since(start), err)
	}
}

// CreditBalance returns the account credit balance.
func (c *Client) CreditBalance(ctx context.Context) (*carrier.CreditBalance, error) {
	ctx, span := c.tracer.Start(ctx, "s2s.CreditBalance")
	defer span.End()

	start := time.Now()
	resp, err := c.apiClient.GetBalance(ctx)
	c.observe("credit_balance", start, err)
	if err != nil {
		return nil, c.wrapError(ctx, "credit balance", err)
	}
	span.SetAttributes(attribute.Int("s2s.credits", resp.Credits))
	return &carrier.CreditBalance{Credits: resp.Credits, Currency: resp.Currency}, nil
}

// CourierServices returns the enabled courier services.
func (c *Client) CourierServices(ctx context.Context) ([]carrier.CourierService, error) {
	ctx, span := c.tracer.Start(ctx, "s2s.CourierServices")
	defer span.End()

	start := time.Now()
	resp, err := c.apiClient.ListCourierServices(ctx)
	c.observe("courier_services", start, err)
	if err != nil {
		return nil, c.wrapError(ctx, "courier services", err)
	}

	services := make([]carrier.CourierService, 0, len(resp.Services))
	for _, s := range resp.Services {
		if !s.Enabled {
			continue
		}
		services = append(services, carrier.CourierService{Code: s.Code, Name: s.Name, Enabled: true})
	}
	return services, nil
}

// CreateOrder creates a shipment with S2S.
func (c *Client) CreateOrder(ctx context.Context, req *carrier.OrderRequest) (*carrier.OrderResponse, error) {
	ctx, span := c.tracer.Start(ctx, "s2s.CreateOrder",
		trace.WithAttributes(attribute.String("s2s.reference", req.Reference)))
	defer span.End()

	c.logger.Ctx(ctx).Info("Creating S2S order",
		zap.String("reference", req.Reference),
		zap.Int("item_count", len(req.Items)),
		zap.Bool("cod", req.CashOnDelivery),
	)

	start := time.Now()
	apiResp, err := c.apiClient.CreateOrder(ctx, orderRequestToAPI(req))
	c.observe("create_order", start, err)
	if err != nil {
		return nil, c.wrapError(ctx, "create order", err)
	}

	return &carrier.OrderResponse{OrderID: apiResp.OrderID, Waybill: apiResp.Waybill}, nil
}

// CalculateRates prices a shipment for the requested services.
func (c *Client) CalculateRates(ctx context.Context, req *carrier.RateRequest) ([]carrier.Rate, error) {
	ctx, span := c.tracer.Start(ctx, "s2s.CalculateRates")
	defer span.End()

	start := time.Now()
	apiResp, err := c.apiClient.CalculateRates(ctx, &RateCalculationRequest{
		Origin:        addressToAPI(req.Origin),
		Destination:   addressToAPI(req.Destination),
		Weight:        req.WeightGrams,
		DeclaredValue: req.DeclaredValue,
		Currency:      req.Currency,
		Services:      req.Services,
	})
	c.observe("calculate_rates", start, err)
	if err != nil {
		return nil, c.wrapError(ctx, "calculate rates", err)
	}

	rates := make([]carrier.Rate, len(apiResp.Rates))
	for i, r := range apiResp.Rates {
		rates[i] = carrier.Rate{
			ServiceCode:     r.ServiceCode,
			ServiceName:     r.ServiceName,
			TotalPrice:      r.TotalPrice,
			Currency:        r.Currency,
			MinDeliveryDays: r.MinDeliveryDays,
			MaxDeliveryDays: r.MaxDeliveryDays,
			Description:     r.Description,
		}
	}
	return rates, nil
}

// TrackEvent posts an analytics event.
func (c *Client) TrackEvent(ctx context.Context, event *carrier.AnalyticsEvent) error {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	start := time.Now()
	err := c.apiClient.TrackEvent(ctx, &AnalyticsEventRequest{
		Event:      event.Name,
		Shop:       event.ShopID,
		Properties: event.Properties,
		Timestamp:  occurred.UTC().Format(time.RFC3339),
	})
	c.observe("track_event", start, err)
	if err != nil {
		return c.wrapError(ctx, "track event", err)
	}
	return nil
}

// wrapError converts API and transport errors into carrier.Error so the
// retry engine can classify them.
func (c *Client) wrapError(ctx context.Context, op string, err error) error {
	c.logger.Ctx(ctx).Error("S2S API error", zap.String("operation", op), zap.Error(err))

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		ce := carrier.NewError(carrierName, apiErr.Code, apiErr.Message).WithCause(err)
		if apiErr.StatusCode != 0 {
			ce = ce.WithStatusCode(apiErr.StatusCode)
		}
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			ce = ce.WithCause(errors.Join(err, carrier.ErrAuthenticationFailed))
		}
		return ce
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	// Transport failures and timeouts are transient.
	return carrier.NewError(carrierName, "TRANSPORT", op+" failed").
		WithCause(err).
		WithRetryable(true)
}

// ============================================================================
// Conversion helpers: carrier models -> API models
// ============================================================================

func addressToAPI(addr carrier.Address) Address {
	return Address{
		Name:       addr.Name,
		Company:    addr.Company,
		Address1:   addr.Line1,
		Address2:   addr.Line2,
		City:       addr.City,
		Province:   addr.ProvinceCode,
		PostalCode: addr.PostalCode,
		Country:    addr.CountryCode,
		Phone:      addr.Phone,
	}
}

func orderRequestToAPI(req *carrier.OrderRequest) *CreateOrderRequest {
	items := make([]LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = LineItem{
			SKU:         item.SKU,
			Description: item.Description,
			Quantity:    item.Quantity,
			Weight:      item.WeightGrams,
			UnitPrice:   item.UnitPrice.StringFixed(2),
		}
	}

	return &CreateOrderRequest{
		Reference: req.Reference,
		Recipient: Recipient{
			Name:   req.RecipientName,
			Email:  req.RecipientEmail,
			Phones: req.Phones,
		},
		Address:       addressToAPI(req.Destination),
		COD:           req.CashOnDelivery,
		Items:         items,
		DeclaredValue: req.DeclaredValue.StringFixed(2),
		Currency:      req.Currency,
	}
}
