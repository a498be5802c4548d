package main

import (
	"context"

	"github.com/tournevent/shipbridge/internal/config"
	"github.com/tournevent/shipbridge/internal/ordersync"
	"github.com/tournevent/shipbridge/internal/rates"
	"github.com/tournevent/shipbridge/internal/retry"
	"github.com/tournevent/shipbridge/internal/server"
	"github.com/tournevent/shipbridge/internal/store"
	"github.com/tournevent/shipbridge/internal/telemetry"
	"github.com/tournevent/shipbridge/internal/writeback"
	"github.com/tournevent/shipbridge/pkg/carrier"
	carriermock "github.com/tournevent/shipbridge/pkg/carrier/mock"
	"github.com/tournevent/shipbridge/pkg/carrier/s2s"
	"github.com/tournevent/shipbridge/pkg/platform"
	platformmock "github.com/tournevent/shipbridge/pkg/platform/mock"
	"github.com/tournevent/shipbridge/pkg/platform/shopify"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	return telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:        cfg.OTELEnabled,
		Endpoint:       cfg.OTELEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.Version,
		Attributes:     cfg.Attributes(),
	})
}

// initBackend builds the S2S backend, wrapping it with the Redis courier
// cache when REDIS_URL is set. The returned func releases the cache.
func initBackend(cfg *config.Config, logger *otelzap.Logger, metrics *telemetry.Metrics) (carrier.Backend, func() error, error) {
	noop := func() error { return nil }

	var backend carrier.Backend
	if cfg.S2SUseMock {
		backend = carriermock.New("s2s")
	} else {
		backend = s2s.New(s2s.Config{
			APIToken: cfg.S2SAPIToken,
			BaseURL:  cfg.S2SBaseURL,
			Timeout:  cfg.S2STimeout,
			Observe:  metrics.ObserveBackendCall,
		}, logger)
	}

	if cfg.RedisURL == "" {
		return backend, noop, nil
	}
	cache, err := carrier.NewRedisServiceCache(cfg.RedisURL)
	if err != nil {
		return nil, noop, err
	}
	logger.Info("Courier service cache enabled", zap.Duration("ttl", cfg.CourierCacheTTL))
	return carrier.NewCachingBackend(backend, cache, cfg.CourierCacheTTL, logger), cache.Close, nil
}

func initPlatform(cfg *config.Config, logger *otelzap.Logger) platform.ClientProvider {
	if cfg.ShopifyUseMock {
		return platformmock.NewProvider()
	}
	return shopify.NewStaticProvider(cfg.ShopifyAPIVersion, cfg.ShopifyTimeout, cfg.ShopifyShopTokens, logger)
}

type app struct {
	sync        *ordersync.Orchestrator
	writeBack   *writeback.Orchestrator
	rates       *rates.Responder
	mappings    *store.MappingStore
	deadLetters *store.DeadLetterStore
}

func initApp(cfg *config.Config, db *gorm.DB, backend carrier.Backend, clients platform.ClientProvider, logger *otelzap.Logger, metrics *telemetry.Metrics) *app {
	mappings := store.NewMappingStore(db, store.WithClaimLease(cfg.ClaimLease))
	deadLetters := store.NewDeadLetterStore(db)

	rateCfg := rates.DefaultConfig()
	rateCfg.Timeout = cfg.RateTimeout
	rateCfg.FallbackPrice = cfg.FallbackRatePrice
	rateCfg.FallbackCurrency = cfg.FallbackCurrency

	return &app{
		sync: ordersync.New(backend, mappings, deadLetters, ordersync.Config{
			RequiredCredits: cfg.RequiredCredits,
			Retry: retry.Policy{
				MaxRetries: cfg.SyncMaxRetries,
				BaseDelay:  cfg.SyncBaseDelay,
				Jitter:     cfg.SyncJitter,
			},
		}, logger, metrics),
		writeBack: writeback.New(clients, mappings, writeback.Config{
			TrackingURLTemplate: cfg.S2STrackingURL,
		}, logger, metrics),
		rates:       rates.NewResponder(backend, rateCfg, logger, metrics),
		mappings:    mappings,
		deadLetters: deadLetters,
	}
}

func (a *app) deps(db *gorm.DB) server.Deps {
	return server.Deps{
		Sync:        a.sync,
		WriteBack:   a.writeBack,
		Rates:       a.rates,
		Mappings:    a.mappings,
		DeadLetters: a.deadLetters,
		Ping:        func(context.Context) error { return store.Ping(db) },
	}
}
