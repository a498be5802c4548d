// Package server exposes the webhook, rate callback and admin endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/shipbridge/internal/ordersync"
	"github.com/tournevent/shipbridge/internal/rates"
	"github.com/tournevent/shipbridge/internal/signature"
	"github.com/tournevent/shipbridge/internal/store"
	"github.com/tournevent/shipbridge/internal/telemetry"
	"github.com/tournevent/shipbridge/internal/writeback"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Webhook signature headers.
const (
	HeaderShopifySignature = "X-Shopify-Hmac-Sha256"
	HeaderShopifyShop      = "X-Shopify-Shop-Domain"
	HeaderCarrierSignature = "X-S2S-Signature"
)

// OrderSync handles order-created events and operator replays.
type OrderSync interface {
	OnOrderCreated(ctx context.Context, shopID string, raw []byte) ordersync.Outcome
	Resubmit(ctx context.Context, shopID string, orderID int64) (ordersync.Outcome, error)
	ReplayDeadLetter(ctx context.Context, id string) (ordersync.Outcome, error)
	ReplayAll(ctx context.Context, shopID string) (ordersync.ReplaySummary, error)
}

// WriteBack handles carrier order-ready notifications.
type WriteBack interface {
	OnOrderReady(ctx context.Context, shopID string, payload writeback.OrderReadyPayload) (*writeback.FulfillmentResult, error)
}

// RateQuoter answers checkout rate callbacks.
type RateQuoter interface {
	GetRates(ctx context.Context, shopID string, req *rates.Request) []rates.Quote
}

// MappingReader exposes mappings to the admin API.
type MappingReader interface {
	Get(ctx context.Context, shopID string, orderID int64) (*store.OrderMapping, error)
	CountByStatus(ctx context.Context, shopID string) (map[store.Status]int64, error)
}

// DeadLetterAdmin exposes dead letters to the admin API.
type DeadLetterAdmin interface {
	List(ctx context.Context, shopID string) ([]store.DeadLetterEntry, error)
	Delete(ctx context.Context, id string) error
}

// Config holds server configuration.
type Config struct {
	Port int
	// ShopifySecret signs order webhooks and rate callbacks.
	ShopifySecret string
	// CarrierSecret signs order-ready webhooks. Empty disables the check.
	CarrierSecret string
	// AdminToken guards /admin. Empty disables the admin API.
	AdminToken string
	// DefaultShop is used when a request does not name its shop.
	DefaultShop string
	// SyncTimeout bounds order processing detached from the request.
	SyncTimeout time.Duration
}

// Deps are the collaborators served over HTTP.
type Deps struct {
	Sync        OrderSync
	WriteBack   WriteBack
	Rates       RateQuoter
	Mappings    MappingReader
	DeadLetters DeadLetterAdmin
	// Ping reports storage health. Optional.
	Ping func(ctx context.Context) error
	// Gatherer serves /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP server for the bridge.
type Server struct {
	cfg     Config
	deps    Deps
	logger  *otelzap.Logger
	metrics *telemetry.Metrics
	handler http.Handler
}

// New creates a new server instance.
func New(cfg Config, deps Deps, logger *otelzap.Logger, metrics *telemetry.Metrics) *Server {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 30 * time.Second
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		metrics: metrics,
	}
	s.handler = otelhttp.NewHandler(s.routes(), "shipbridge")
	return s
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.instrument)

	router.Get("/health", s.handleHealth)
	router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	shopifySigned := signature.Middleware{
		Header: HeaderShopifySignature,
		Secret: s.cfg.ShopifySecret,
		Logger: s.logger,
	}
	carrierSigned := signature.Middleware{
		Header:        HeaderCarrierSignature,
		Secret:        s.cfg.CarrierSecret,
		AllowUnsigned: true,
		Logger:        s.logger,
	}

	router.With(shopifySigned.Wrap).Post("/webhooks/orders/create", s.handleOrderCreated)
	router.With(carrierSigned.Wrap).Post("/webhooks/carrier/order-ready", s.handleOrderReady)
	router.With(shopifySigned.Wrap).Post("/carrier-service/rates", s.handleRates)

	router.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/mappings/{shop}", s.handleMappingStats)
		r.Get("/mappings/{shop}/{orderID}", s.handleGetMapping)
		r.Post("/mappings/{shop}/{orderID}/resubmit", s.handleResubmit)
		r.Get("/dead-letters", s.handleListDeadLetters)
		r.Post("/dead-letters/replay", s.handleReplayAll)
		r.Post("/dead-letters/{id}/replay", s.handleReplayDeadLetter)
		r.Delete("/dead-letters/{id}", s.handleDeleteDeadLetter)
	})

	return router
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.SyncTimeout + 10*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// instrument records request count and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordWebhook(route, fmt.Sprint(status), time.Since(start).Seconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(r.Context()); err != nil {
			s.logger.Ctx(r.Context()).Error("Health check failed", zap.Error(err))
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
