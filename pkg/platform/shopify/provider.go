package shopify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tournevent/shipbridge/pkg/platform"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// StaticProvider resolves clients from a fixed shop→token map.
type StaticProvider struct {
	apiVersion string
	timeout    time.Duration
	tokens     map[string]string
	logger     *otelzap.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewStaticProvider creates a provider over the configured shop tokens.
func NewStaticProvider(apiVersion string, timeout time.Duration, tokens map[string]string, logger *otelzap.Logger) *StaticProvider {
	return &StaticProvider{
		apiVersion: apiVersion,
		timeout:    timeout,
		tokens:     tokens,
		logger:     logger,
		clients:    make(map[string]*Client),
	}
}

// ClientFor returns the cached client for shopID.
func (p *StaticProvider) ClientFor(_ context.Context, shopID string) (platform.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[shopID]; ok {
		return c, nil
	}
	token, ok := p.tokens[shopID]
	if !ok || token == "" {
		return nil, fmt.Errorf("%w: %s", platform.ErrShopNotConfigured, shopID)
	}

	c := New(Config{
		Shop:        shopID,
		AccessToken: token,
		APIVersion:  p.apiVersion,
		Timeout:     p.timeout,
	}, p.logger)
	p.clients[shopID] = c
	return c, nil
}

var _ platform.ClientProvider = (*StaticProvider)(nil)
