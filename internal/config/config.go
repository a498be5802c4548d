package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port       int    `envconfig:"PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	// Database
	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN" default:"file:shipbridge.db?_busy_timeout=5000"`

	// Shopify
	ShopifyAPISecret   string            `envconfig:"SHOPIFY_API_SECRET"`
	ShopifyAPIVersion  string            `envconfig:"SHOPIFY_API_VERSION" default:"2024-10"`
	ShopifyShopTokens  map[string]string `envconfig:"SHOPIFY_SHOP_TOKENS"`
	ShopifyDefaultShop string            `envconfig:"SHOPIFY_DEFAULT_SHOP"`
	ShopifyUseMock     bool              `envconfig:"SHOPIFY_USE_MOCK" default:"false"`
	ShopifyTimeout     time.Duration     `envconfig:"SHOPIFY_TIMEOUT" default:"10s"`
	CarrierCallbackURL string            `envconfig:"CARRIER_CALLBACK_URL"`

	// S2S logistics backend
	S2SBaseURL       string        `envconfig:"S2S_BASE_URL" default:"https://api.s2s.example.com/v1"`
	S2SAPIToken      string        `envconfig:"S2S_API_TOKEN"`
	S2SWebhookSecret string        `envconfig:"S2S_WEBHOOK_SECRET"`
	S2STimeout       time.Duration `envconfig:"S2S_TIMEOUT" default:"10s"`
	S2SUseMock       bool          `envconfig:"S2S_USE_MOCK" default:"false"`
	S2STrackingURL   string        `envconfig:"S2S_TRACKING_URL_TEMPLATE" default:"https://track.s2s.example.com/{waybill}"`

	// Order sync
	RequiredCredits int           `envconfig:"REQUIRED_CREDITS" default:"1"`
	SyncMaxRetries  int           `envconfig:"SYNC_MAX_RETRIES" default:"3"`
	SyncBaseDelay   time.Duration `envconfig:"SYNC_BASE_DELAY" default:"1s"`
	SyncJitter      float64       `envconfig:"SYNC_JITTER" default:"0.1"`
	SyncTimeout     time.Duration `envconfig:"SYNC_TIMEOUT" default:"2m"`
	ClaimLease      time.Duration `envconfig:"CLAIM_LEASE" default:"5m"`

	// Rates
	RateTimeout       time.Duration   `envconfig:"RATE_TIMEOUT" default:"4s"`
	FallbackRatePrice decimal.Decimal `envconfig:"FALLBACK_RATE_PRICE" default:"9.99"`
	FallbackCurrency  string          `envconfig:"FALLBACK_CURRENCY" default:"USD"`

	// Courier service cache
	RedisURL        string        `envconfig:"REDIS_URL"`
	CourierCacheTTL time.Duration `envconfig:"COURIER_CACHE_TTL" default:"5m"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"shipbridge"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.SyncMaxRetries < 0 {
		return fmt.Errorf("config: SYNC_MAX_RETRIES must be >= 0")
	}
	if c.SyncJitter < 0 || c.SyncJitter >= 1 {
		return fmt.Errorf("config: SYNC_JITTER must be in [0, 1)")
	}
	if c.ClaimLease <= c.SyncTimeout {
		return fmt.Errorf("config: CLAIM_LEASE must exceed SYNC_TIMEOUT")
	}
	if !c.S2SUseMock && c.S2SAPIToken == "" {
		return fmt.Errorf("config: S2S_API_TOKEN is required unless S2S_USE_MOCK is set")
	}
	return nil
}

// SyncWorstCase is the longest an order sync can take with the configured
// retry policy: two retried backend calls (credit balance, create order),
// each with every attempt hitting the HTTP timeout and maximum jitter.
func (c *Config) SyncWorstCase() time.Duration {
	attempts := time.Duration(c.SyncMaxRetries + 1)
	var waits time.Duration
	for i := 0; i < c.SyncMaxRetries; i++ {
		waits += c.SyncBaseDelay << i
	}
	waits += time.Duration(float64(waits) * c.SyncJitter)
	return 2 * (attempts*c.S2STimeout + waits)
}

// Attributes describes the deployment for the trace resource.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("database.driver", c.DatabaseDriver),
		attribute.Bool("s2s.mock", c.S2SUseMock),
		attribute.Bool("shopify.mock", c.ShopifyUseMock),
		attribute.Int("shopify.shops", len(c.ShopifyShopTokens)),
	}
}
