package geocode

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CascadeClient tries geocode providers in order until one matches, with
// an optional persistent cache in front. Negative results are cached too,
// so repeated lookups of a bad address don't hammer the providers.
type CascadeClient struct {
	providers []Provider
	cache     Cache
	cacheTTL  time.Duration
}

// CascadeOption configures the CascadeClient.
type CascadeOption func(*CascadeClient)

// WithCache attaches a persistent cache with the given TTL.
func WithCache(cache Cache, ttl time.Duration) CascadeOption {
	return func(c *CascadeClient) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// NewCascade creates a CascadeClient that tries providers in order.
func NewCascade(providers []Provider, opts ...CascadeOption) *CascadeClient {
	c := &CascadeClient{providers: providers}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Geocode implements Client.
func (c *CascadeClient) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, eris.New("geocode: empty address")
	}

	key := CacheKey(address)
	if c.cache != nil {
		cached, err := c.cache.GetGeocode(ctx, key, c.cacheTTL)
		if err != nil {
			zap.L().Debug("geocode: cache lookup failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		result, err := p.Geocode(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "geocode: cascade cancelled")
			}
			zap.L().Debug("geocode: provider error, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			continue
		}
		if result != nil && result.Matched {
			c.store(ctx, key, result)
			return result, nil
		}
	}

	// All providers missed; cache the negative result.
	noMatch := &Result{Matched: false, Source: "cascade"}
	c.store(ctx, key, noMatch)
	return noMatch, nil
}

func (c *CascadeClient) store(ctx context.Context, key string, r *Result) {
	if c.cache == nil {
		return
	}
	if err := c.cache.PutGeocode(ctx, key, *r); err != nil {
		zap.L().Debug("geocode: cache store failed", zap.Error(err))
	}
}
