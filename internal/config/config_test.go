package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipbridge/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("S2S_USE_MOCK", "true")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 3, cfg.SyncMaxRetries)
	assert.Equal(t, time.Second, cfg.SyncBaseDelay)
	assert.Equal(t, 4*time.Second, cfg.RateTimeout)
	assert.Equal(t, "9.99", cfg.FallbackRatePrice.StringFixed(2))
	assert.Equal(t, "USD", cfg.FallbackCurrency)
	assert.Equal(t, 1, cfg.RequiredCredits)
	assert.Greater(t, cfg.ClaimLease, cfg.SyncTimeout)
}

func TestSyncWorstCase(t *testing.T) {
	t.Setenv("S2S_USE_MOCK", "true")

	cfg, err := config.Load()
	require.NoError(t, err)

	// 2 calls x (4 attempts x 10s + (1s+2s+4s) x 1.1)
	assert.Equal(t, 95400*time.Millisecond, cfg.SyncWorstCase())
	assert.GreaterOrEqual(t, cfg.SyncTimeout, cfg.SyncWorstCase(), "default timeout covers the retry budget")

	cfg.SyncMaxRetries = 0
	assert.Equal(t, 20*time.Second, cfg.SyncWorstCase())
}

func TestLoad_ShopTokens(t *testing.T) {
	t.Setenv("S2S_USE_MOCK", "true")
	t.Setenv("SHOPIFY_SHOP_TOKENS", "a.myshopify.com:shpat_a,b.myshopify.com:shpat_b")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a.myshopify.com": "shpat_a",
		"b.myshopify.com": "shpat_b",
	}, cfg.ShopifyShopTokens)
}

func TestAttributes(t *testing.T) {
	t.Setenv("S2S_USE_MOCK", "true")
	t.Setenv("SHOPIFY_SHOP_TOKENS", "a.myshopify.com:shpat_a")

	cfg, err := config.Load()
	require.NoError(t, err)

	attrs := make(map[string]string)
	for _, kv := range cfg.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, map[string]string{
		"database.driver": "sqlite",
		"s2s.mock":        "true",
		"shopify.mock":    "false",
		"shopify.shops":   "1",
	}, attrs)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"S2S_USE_MOCK": "true", "DATABASE_DRIVER": "mysql"}},
		{"jitter out of range", map[string]string{"S2S_USE_MOCK": "true", "SYNC_JITTER": "1.5"}},
		{"missing token", map[string]string{"S2S_USE_MOCK": "false", "S2S_API_TOKEN": ""}},
		{"lease shorter than sync", map[string]string{"S2S_USE_MOCK": "true", "CLAIM_LEASE": "1m", "SYNC_TIMEOUT": "2m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
