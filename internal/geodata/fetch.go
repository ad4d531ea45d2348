// Package geodata acquires and parses the upstream geospatial datasets:
// parcel boundaries, wetlands, and roads, as GeoJSON feature services or
// local GeoJSON/shapefile files.
package geodata

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chesapeake-vector/parcelrisk/internal/config"
	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
)

// Fetcher downloads dataset layers over HTTP or from local files.
type Fetcher struct {
	client  *http.Client
	retries int
}

// NewFetcher creates a Fetcher from the data config. If client is nil a
// default client with the configured timeout is used.
func NewFetcher(cfg config.DataConfig, client *http.Client) *Fetcher {
	if client == nil {
		timeout := time.Duration(cfg.TimeoutSecs) * time.Second
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{client: client, retries: cfg.Retries}
}

// FetchAll downloads every configured layer concurrently. Any layer
// failure fails the whole fetch: a dashboard over partial data would
// silently understate risk.
func (f *Fetcher) FetchAll(ctx context.Context, cfg config.DataConfig) (map[string][]byte, error) {
	sources := map[string]string{
		parcel.LayerParcels:  cfg.ParcelsURL,
		parcel.LayerWetlands: cfg.WetlandsURL,
		parcel.LayerRoads:    cfg.RoadsURL,
	}

	results := make(map[string][]byte, len(sources))
	var mu sync.Mutex

	eg, gCtx := errgroup.WithContext(ctx)
	for layer, url := range sources {
		eg.Go(func() error {
			data, err := f.Fetch(gCtx, url)
			if err != nil {
				return eris.Wrapf(err, "geodata: fetch %s", layer)
			}
			mu.Lock()
			results[layer] = data
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Fetch retrieves a single source. URLs without a scheme are read as
// local file paths, which is how test fixtures and offline loads work.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, eris.New("geodata: empty source URL")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		data, err := os.ReadFile(url)
		if err != nil {
			return nil, eris.Wrapf(err, "geodata: read file %s", url)
		}
		return data, nil
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			zap.L().Warn("geodata: retrying fetch",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "geodata: fetch cancelled")
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: build request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: get %s", url)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geodata: %s returned status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: read body")
	}

	zap.L().Info("geodata: fetched source",
		zap.String("url", url),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}
