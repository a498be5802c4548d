// Package rates answers checkout rate callbacks with live carrier quotes,
// degrading to a fixed fallback quote.
package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipbridge/internal/telemetry"
	"github.com/tournevent/shipbridge/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02 15:04:05 -0700"

// Analytics event names.
const (
	EventRateRequested = "rate_requested"
	EventFallbackUsed  = "fallback_used"
)

// Config tunes the responder.
type Config struct {
	Timeout          time.Duration
	FallbackPrice    decimal.Decimal
	FallbackCurrency string
	FallbackName     string
	FallbackCode     string
	FallbackMinDays  int
	FallbackMaxDays  int
	AnalyticsTimeout time.Duration
}

// DefaultConfig returns a 4s budget and a 9.99 fallback delivered in 3-7 days.
func DefaultConfig() Config {
	return Config{
		Timeout:          4 * time.Second,
		FallbackPrice:    decimal.RequireFromString("9.99"),
		FallbackCurrency: "USD",
		FallbackName:     "Standard Shipping",
		FallbackCode:     "STANDARD_FALLBACK",
		FallbackMinDays:  3,
		FallbackMaxDays:  7,
		AnalyticsTimeout: 5 * time.Second,
	}
}

// Responder produces checkout quotes.
type Responder struct {
	backend carrier.Backend
	cfg     Config
	logger  *otelzap.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	wg sync.WaitGroup
}

// NewResponder creates a responder. Zero config fields take defaults.
func NewResponder(backend carrier.Backend, cfg Config, logger *otelzap.Logger, metrics *telemetry.Metrics) *Responder {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FallbackPrice.IsZero() {
		cfg.FallbackPrice = def.FallbackPrice
	}
	if cfg.FallbackCurrency == "" {
		cfg.FallbackCurrency = def.FallbackCurrency
	}
	if cfg.FallbackName == "" {
		cfg.FallbackName = def.FallbackName
	}
	if cfg.FallbackCode == "" {
		cfg.FallbackCode = def.FallbackCode
	}
	if cfg.FallbackMinDays <= 0 {
		cfg.FallbackMinDays = def.FallbackMinDays
	}
	if cfg.FallbackMaxDays < cfg.FallbackMinDays {
		cfg.FallbackMaxDays = max(def.FallbackMaxDays, cfg.FallbackMinDays)
	}
	if cfg.AnalyticsTimeout <= 0 {
		cfg.AnalyticsTimeout = def.AnalyticsTimeout
	}
	return &Responder{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("shipbridge/rates"),
		now:     time.Now,
	}
}

// GetRates returns live quotes, or exactly one fallback quote when the
// backend fails, returns nothing, or exceeds the timeout. A nil request
// yields the fallback. It never returns an empty list.
func (r *Responder) GetRates(ctx context.Context, shopID string, req *Request) []Quote {
	ctx, span := r.tracer.Start(ctx, "rates.GetRates", trace.WithAttributes(
		attribute.String("shop.id", shopID),
	))
	defer span.End()

	currency := r.cfg.FallbackCurrency
	if req != nil && req.Rate.Currency != "" {
		currency = req.Rate.Currency
	}
	r.track(ctx, EventRateRequested, shopID, map[string]any{"currency": currency})

	if req == nil {
		return r.fallback(ctx, shopID, currency, "malformed request")
	}

	quotes, err := r.live(ctx, req)
	if err != nil {
		r.logger.Ctx(ctx).Warn("Live rates unavailable, serving fallback",
			zap.String("shop", shopID),
			zap.Error(err),
		)
		return r.fallback(ctx, shopID, currency, err.Error())
	}

	span.SetAttributes(attribute.Int("rates.count", len(quotes)))
	r.metrics.RecordRateQuote("live")
	return quotes
}

type liveResult struct {
	quotes []Quote
	err    error
}

// live queries the backend under the configured timeout.
func (r *Responder) live(ctx context.Context, req *Request) ([]Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	done := make(chan liveResult, 1)
	go func() {
		quotes, err := r.quote(ctx, req)
		done <- liveResult{quotes, err}
	}()

	select {
	case res := <-done:
		return res.quotes, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("rate lookup: %w", ctx.Err())
	}
}

func (r *Responder) quote(ctx context.Context, req *Request) ([]Quote, error) {
	services, err := r.backend.CourierServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing courier services: %w", err)
	}
	var codes []string
	for _, s := range services {
		if s.Enabled {
			codes = append(codes, s.Code)
		}
	}
	if len(codes) == 0 {
		return nil, carrier.ErrNoCourierServices
	}

	var grams int
	var value int64
	for _, item := range req.Rate.Items {
		grams += item.Grams * item.Quantity
		value += item.Price * int64(item.Quantity)
	}

	rates, err := r.backend.CalculateRates(ctx, &carrier.RateRequest{
		Origin:        toCarrierAddress(req.Rate.Origin),
		Destination:   toCarrierAddress(req.Rate.Destination),
		WeightGrams:   grams,
		DeclaredValue: value,
		Currency:      req.Rate.Currency,
		Services:      codes,
	})
	if err != nil {
		return nil, fmt.Errorf("calculating rates: %w", err)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("calculating rates: backend returned no rates")
	}

	now := r.now()
	quotes := make([]Quote, 0, len(rates))
	for _, rate := range rates {
		currency := rate.Currency
		if currency == "" {
			currency = req.Rate.Currency
		}
		quotes = append(quotes, Quote{
			ServiceName:     rate.ServiceName,
			ServiceCode:     rate.ServiceCode,
			TotalPrice:      MinorToMajor(rate.TotalPrice),
			Currency:        currency,
			Description:     rate.Description,
			MinDeliveryDate: now.AddDate(0, 0, rate.MinDeliveryDays).Format(dateLayout),
			MaxDeliveryDate: now.AddDate(0, 0, rate.MaxDeliveryDays).Format(dateLayout),
		})
	}
	return quotes, nil
}

func (r *Responder) fallback(ctx context.Context, shopID, currency, reason string) []Quote {
	r.metrics.RecordRateQuote("fallback")
	r.track(ctx, EventFallbackUsed, shopID, map[string]any{"currency": currency, "reason": reason})

	now := r.now()
	return []Quote{{
		ServiceName:     r.cfg.FallbackName,
		ServiceCode:     r.cfg.FallbackCode,
		TotalPrice:      r.cfg.FallbackPrice.StringFixed(2),
		Currency:        currency,
		Description:     fmt.Sprintf("Estimated delivery in %d-%d business days", r.cfg.FallbackMinDays, r.cfg.FallbackMaxDays),
		MinDeliveryDate: now.AddDate(0, 0, r.cfg.FallbackMinDays).Format(dateLayout),
		MaxDeliveryDate: now.AddDate(0, 0, r.cfg.FallbackMaxDays).Format(dateLayout),
	}}
}

// track sends an analytics event in the background. Failures are logged.
func (r *Responder) track(ctx context.Context, name, shopID string, props map[string]any) {
	event := &carrier.AnalyticsEvent{
		Name:       name,
		ShopID:     shopID,
		Properties: props,
		OccurredAt: r.now().UTC(),
	}
	ctx = context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, r.cfg.AnalyticsTimeout)
		defer cancel()
		if err := r.backend.TrackEvent(ctx, event); err != nil {
			r.logger.Ctx(ctx).Debug("Analytics event dropped",
				zap.String("event", name),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight analytics events finish.
func (r *Responder) Wait() {
	r.wg.Wait()
}

// MinorToMajor formats minor currency units as a two-decimal string.
func MinorToMajor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func toCarrierAddress(a Address) carrier.Address {
	return carrier.Address{
		Name:         a.Name,
		Company:      a.Company,
		Line1:        a.Address1,
		Line2:        a.Address2,
		City:         a.City,
		ProvinceCode: a.Province,
		PostalCode:   a.PostalCode,
		CountryCode:  a.Country,
		Phone:        a.Phone,
	}
}
