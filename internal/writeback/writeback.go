// Package writeback turns carrier order-ready notifications into platform
// fulfillments.
package writeback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tournevent/shipbridge/internal/store"
	"github.com/tournevent/shipbridge/internal/telemetry"
	"github.com/tournevent/shipbridge/pkg/platform"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ReferencePrefix is the prefix of references minted by order sync.
const ReferencePrefix = "SHOPIFY-"

var (
	// ErrInvalidPayload means a required field is missing or malformed.
	ErrInvalidPayload = errors.New("invalid order-ready payload")

	// ErrInvalidReference means orderRef is not "SHOPIFY-<number>".
	ErrInvalidReference = errors.New("invalid order reference")

	// ErrNoOpenFulfillment means nothing is left to fulfill.
	ErrNoOpenFulfillment = errors.New("no open fulfillment order")

	// ErrFulfillmentRejected wraps the platform's userErrors.
	ErrFulfillmentRejected = errors.New("fulfillment rejected by platform")
)

// OrderReadyPayload is the carrier's order-ready webhook body.
type OrderReadyPayload struct {
	OrderRef       string `json:"orderRef" validate:"required"`
	TrackingNumber string `json:"trackingNumber" validate:"required"`
	Carrier        string `json:"carrier" validate:"required"`
	URL            string `json:"url,omitempty"`
	Status         string `json:"status,omitempty"`
	Waybill        string `json:"waybill,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// FulfillmentResult describes a successful write-back.
type FulfillmentResult struct {
	PlatformOrderID int64
	OrderNumber     string
	FulfillmentID   string
	TrackingURL     string
}

// MappingStore is the subset of the mapping store used for write-back.
type MappingStore interface {
	FindByOrderNumber(ctx context.Context, shopID, orderNumber string) (*store.OrderMapping, error)
	MarkFulfilled(ctx context.Context, shopID string, orderID int64, f store.Fulfillment) (store.Status, error)
}

// Config tunes the orchestrator.
type Config struct {
	// TrackingURLTemplate builds a tracking URL from a waybill when the
	// payload has none. "{waybill}" is replaced.
	TrackingURLTemplate string
}

// Orchestrator performs fulfillment write-back.
type Orchestrator struct {
	clients  platform.ClientProvider
	mappings MappingStore
	cfg      Config
	validate *validator.Validate
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

// New creates a write-back orchestrator. metrics may be nil.
func New(clients platform.ClientProvider, mappings MappingStore, cfg Config, logger *otelzap.Logger, metrics *telemetry.Metrics) *Orchestrator {
	return &Orchestrator{
		clients:  clients,
		mappings: mappings,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer("shipbridge/writeback"),
	}
}

// ParseReference extracts the order number from "SHOPIFY-<number>".
func ParseReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if len(ref) <= len(ReferencePrefix) || !strings.EqualFold(ref[:len(ReferencePrefix)], ReferencePrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	number := ref[len(ReferencePrefix):]
	if _, err := strconv.ParseUint(number, 10, 63); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return number, nil
}

// OnOrderReady fulfills the first open fulfillment order of the referenced
// platform order with the carrier's tracking details.
func (o *Orchestrator) OnOrderReady(ctx context.Context, shopID string, payload OrderReadyPayload) (*FulfillmentResult, error) {
	ctx, span := o.tracer.Start(ctx, "writeback.OnOrderReady", trace.WithAttributes(
		attribute.String("shop.id", shopID),
		attribute.String("order.ref", payload.OrderRef),
	))
	defer span.End()

	result, err := o.onOrderReady(ctx, shopID, payload)
	o.metrics.RecordWriteBack(outcome(err))
	if err != nil && !errors.Is(err, ErrNoOpenFulfillment) {
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (o *Orchestrator) onOrderReady(ctx context.Context, shopID string, payload OrderReadyPayload) (*FulfillmentResult, error) {
	logger := o.logger.Ctx(ctx)

	if err := o.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	orderNumber, err := ParseReference(payload.OrderRef)
	if err != nil {
		return nil, err
	}

	orderID, err := o.resolveOrderID(ctx, shopID, orderNumber)
	if err != nil {
		return nil, err
	}

	client, err := o.clients.ClientFor(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("resolving platform client: %w", err)
	}

	units, err := client.FulfillmentOrders(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing fulfillment orders: %w", err)
	}
	var open *platform.FulfillmentOrder
	for i := range units {
		if units[i].IsOpen() {
			open = &units[i]
			break
		}
	}
	if open == nil {
		logger.Info("No open fulfillment order, nothing to write back",
			zap.String("shop", shopID),
			zap.Int64("order_id", orderID),
			zap.String("order_ref", payload.OrderRef),
		)
		return nil, fmt.Errorf("%w: order %d", ErrNoOpenFulfillment, orderID)
	}

	var lineItems []platform.FulfillmentOrderLineItem
	for _, li := range open.LineItems {
		if li.RemainingQuantity > 0 {
			lineItems = append(lineItems, li)
		}
	}

	trackingURL := o.trackingURL(payload)
	fulfillment, err := client.CreateFulfillment(ctx, &platform.FulfillmentInput{
		FulfillmentOrderID: open.ID,
		LineItems:          lineItems,
		Tracking: platform.TrackingInfo{
			Company: payload.Carrier,
			Number:  payload.TrackingNumber,
			URL:     trackingURL,
		},
		NotifyCustomer: true,
	})
	if err != nil {
		var userErrs platform.UserErrors
		if errors.As(err, &userErrs) {
			logger.Warn("Platform rejected fulfillment",
				zap.String("shop", shopID),
				zap.Int64("order_id", orderID),
				zap.String("user_errors", userErrs.Error()),
			)
			return nil, fmt.Errorf("%w: %w", ErrFulfillmentRejected, userErrs)
		}
		return nil, fmt.Errorf("creating fulfillment: %w", err)
	}

	previous, err := o.mappings.MarkFulfilled(ctx, shopID, orderID, store.Fulfillment{
		OrderNumber:    orderNumber,
		FulfillmentID:  fulfillment.ID,
		TrackingNumber: payload.TrackingNumber,
		TrackingURL:    trackingURL,
	})
	switch {
	case err != nil:
		// The platform already holds the fulfillment; a redelivery would
		// only find NoOpenFulfillment, so the error is logged, not returned.
		logger.Error("Fulfillment created but mapping update failed",
			zap.String("shop", shopID),
			zap.Int64("order_id", orderID),
			zap.String("fulfillment_id", fulfillment.ID),
			zap.Error(err),
		)
	case previous == store.StatusPending, previous == store.StatusFailed:
		logger.Warn("Fulfilled an order that was not synced to the carrier",
			zap.String("shop", shopID),
			zap.Int64("order_id", orderID),
			zap.String("previous_status", string(previous)),
		)
	}

	logger.Info("Fulfillment written back",
		zap.String("shop", shopID),
		zap.Int64("order_id", orderID),
		zap.String("fulfillment_id", fulfillment.ID),
		zap.String("tracking_number", payload.TrackingNumber),
	)
	return &FulfillmentResult{
		PlatformOrderID: orderID,
		OrderNumber:     orderNumber,
		FulfillmentID:   fulfillment.ID,
		TrackingURL:     trackingURL,
	}, nil
}

// resolveOrderID maps an order number to a platform order id, falling back
// to the number itself when no mapping exists.
func (o *Orchestrator) resolveOrderID(ctx context.Context, shopID, orderNumber string) (int64, error) {
	m, err := o.mappings.FindByOrderNumber(ctx, shopID, orderNumber)
	if err == nil {
		return m.PlatformOrderID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("looking up mapping: %w", err)
	}
	id, err := strconv.ParseInt(orderNumber, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReference, orderNumber)
	}
	o.logger.Ctx(ctx).Warn("No mapping for order number, using it as order id",
		zap.String("shop", shopID),
		zap.String("order_number", orderNumber),
	)
	return id, nil
}

// trackingURL prefers the carrier's URL. One that is not an absolute
// http(s) URL is replaced by the waybill template, or dropped.
func (o *Orchestrator) trackingURL(payload OrderReadyPayload) string {
	if payload.URL != "" && o.validate.Var(payload.URL, "http_url") == nil {
		return payload.URL
	}
	if payload.Waybill != "" && o.cfg.TrackingURLTemplate != "" {
		return strings.ReplaceAll(o.cfg.TrackingURLTemplate, "{waybill}", payload.Waybill)
	}
	return ""
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "fulfilled"
	case errors.Is(err, ErrNoOpenFulfillment):
		return "no_open_fulfillment"
	case errors.Is(err, ErrFulfillmentRejected):
		return "rejected"
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrInvalidReference):
		return "invalid"
	default:
		return "error"
	}
}
