// Package geocode resolves free-form address strings to WGS84
// coordinates via Nominatim (primary) and the US Census geocoder
// (fallback), with a persistent hashed cache in front.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes addresses.
type Client interface {
	// Geocode resolves a single free-form address. A nil error with
	// Matched=false means no provider found the address.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Source    string  `json:"source"`  // "nominatim", "census", or "cache"
	Quality   string  `json:"quality"` // "rooftop", "centroid", "approximate"
	Matched   bool    `json:"matched"`
}

// Provider represents a single geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, address string) (*Result, error)
	Available() bool
}

// Cache persists geocode results keyed by normalized address hash.
// Implementations return (nil, nil) on a miss.
type Cache interface {
	GetGeocode(ctx context.Context, key string, maxAge time.Duration) (*Result, error)
	PutGeocode(ctx context.Context, key string, r Result) error
}

// newLimiter builds a rate limiter from requests-per-second, with a
// conservative 1 req/s default matching the Nominatim usage policy.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
