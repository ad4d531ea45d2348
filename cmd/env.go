package main

import (
	"context"
	"time"

	"github.com/chesapeake-vector/parcelrisk/internal/config"
	"github.com/chesapeake-vector/parcelrisk/internal/store"
	"github.com/chesapeake-vector/parcelrisk/pkg/geocode"
)

// openStore opens the configured database backend.
func openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store)
}

// buildGeocoder assembles the provider cascade from config, backed by the
// store's geocode cache when enabled.
func buildGeocoder(gcfg config.GeocodeConfig, st store.Store) geocode.Client {
	var providers []geocode.Provider
	for _, name := range gcfg.Providers {
		switch name {
		case "nominatim":
			providers = append(providers, geocode.NewNominatim(
				gcfg.NominatimBaseURL,
				gcfg.NominatimUserAgent,
				geocode.WithNominatimRateLimit(gcfg.RatePerSec),
			))
		case "census":
			providers = append(providers, geocode.NewCensus(
				gcfg.CensusBaseURL,
				geocode.WithCensusRateLimit(gcfg.RatePerSec),
			))
		}
	}

	var opts []geocode.CascadeOption
	if gcfg.CacheEnabled && st != nil {
		ttl := time.Duration(gcfg.CacheTTLDays) * 24 * time.Hour
		opts = append(opts, geocode.WithCache(st, ttl))
	}
	return geocode.NewCascade(providers, opts...)
}
