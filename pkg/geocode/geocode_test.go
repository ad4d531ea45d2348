package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyNormalization(t *testing.T) {
	base := CacheKey("410 Severn Ave, Annapolis, MD")

	assert.Equal(t, base, CacheKey("  410  Severn Ave,  Annapolis, MD "))
	assert.Equal(t, base, CacheKey("410 SEVERN AVE, ANNAPOLIS, MD"))
	assert.NotEqual(t, base, CacheKey("411 Severn Ave, Annapolis, MD"))
	assert.Len(t, base, 64)
}

func TestNominatimGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "parcelrisk-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "410 Severn Ave", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`[{"lat": "38.9708", "lon": "-76.4820", "class": "building", "type": "yes"}]`))
	}))
	defer srv.Close()

	p := NewNominatim(srv.URL, "parcelrisk-test",
		WithNominatimHTTPClient(srv.Client()),
		WithNominatimRateLimit(1000),
	)

	got, err := p.Geocode(context.Background(), "410 Severn Ave")
	require.NoError(t, err)
	assert.True(t, got.Matched)
	assert.InDelta(t, 38.9708, got.Latitude, 1e-9)
	assert.InDelta(t, -76.4820, got.Longitude, 1e-9)
	assert.Equal(t, "nominatim", got.Source)
	assert.Equal(t, "rooftop", got.Quality)
}

func TestNominatimNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	p := NewNominatim(srv.URL, "parcelrisk-test",
		WithNominatimHTTPClient(srv.Client()),
		WithNominatimRateLimit(1000),
	)

	got, err := p.Geocode(context.Background(), "nowhere at all")
	require.NoError(t, err)
	assert.False(t, got.Matched)
}

func TestNominatimServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewNominatim(srv.URL, "parcelrisk-test",
		WithNominatimHTTPClient(srv.Client()),
		WithNominatimRateLimit(1000),
	)

	_, err := p.Geocode(context.Background(), "anything")
	require.Error(t, err)
}

func TestCensusGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocoder/locations/onelineaddress", r.URL.Path)
		assert.Equal(t, censusBenchmark, r.URL.Query().Get("benchmark"))
		_, _ = w.Write([]byte(`{"result": {"addressMatches": [
			{"coordinates": {"x": -76.4820, "y": 38.9708}, "matchedAddress": "410 SEVERN AVE"}
		]}}`))
	}))
	defer srv.Close()

	p := NewCensus(srv.URL, WithCensusHTTPClient(srv.Client()), WithCensusRateLimit(1000))

	got, err := p.Geocode(context.Background(), "410 Severn Ave, Annapolis, MD")
	require.NoError(t, err)
	assert.True(t, got.Matched)
	assert.InDelta(t, 38.9708, got.Latitude, 1e-9)
	assert.Equal(t, "census", got.Source)
}

func TestCensusNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"addressMatches": []}}`))
	}))
	defer srv.Close()

	p := NewCensus(srv.URL, WithCensusHTTPClient(srv.Client()), WithCensusRateLimit(1000))

	got, err := p.Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, got.Matched)
}

// fakeProvider is a scripted Provider for cascade tests.
type fakeProvider struct {
	name      string
	available bool
	result    *Result
	err       error
	calls     int
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return f.available }
func (f *fakeProvider) Geocode(context.Context, string) (*Result, error) {
	f.calls++
	return f.result, f.err
}

// memCache is an in-memory Cache for cascade tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string]Result
}

func newMemCache() *memCache { return &memCache{entries: make(map[string]Result)} }

func (m *memCache) GetGeocode(_ context.Context, key string, _ time.Duration) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.entries[key]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memCache) PutGeocode(_ context.Context, key string, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = r
	return nil
}

func TestCascadeFallsThroughProviders(t *testing.T) {
	broken := &fakeProvider{name: "broken", available: true, err: eris.New("boom")}
	unavailable := &fakeProvider{name: "off", available: false}
	good := &fakeProvider{name: "good", available: true, result: &Result{Latitude: 39, Longitude: -76.6, Matched: true, Source: "good"}}

	c := NewCascade([]Provider{broken, unavailable, good})

	got, err := c.Geocode(context.Background(), "some address")
	require.NoError(t, err)
	assert.True(t, got.Matched)
	assert.Equal(t, "good", got.Source)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 0, unavailable.calls)
	assert.Equal(t, 1, good.calls)
}

func TestCascadeCachesResults(t *testing.T) {
	good := &fakeProvider{name: "good", available: true, result: &Result{Latitude: 39, Longitude: -76.6, Matched: true, Source: "good"}}
	cache := newMemCache()

	c := NewCascade([]Provider{good}, WithCache(cache, time.Hour))

	for i := 0; i < 3; i++ {
		got, err := c.Geocode(context.Background(), "410 Severn Ave")
		require.NoError(t, err)
		assert.True(t, got.Matched)
	}
	assert.Equal(t, 1, good.calls, "second and third lookups served from cache")
}

func TestCascadeCachesNegativeResults(t *testing.T) {
	miss := &fakeProvider{name: "miss", available: true, result: &Result{Matched: false, Source: "miss"}}
	cache := newMemCache()

	c := NewCascade([]Provider{miss}, WithCache(cache, time.Hour))

	for i := 0; i < 2; i++ {
		got, err := c.Geocode(context.Background(), "nowhere")
		require.NoError(t, err)
		assert.False(t, got.Matched)
	}
	assert.Equal(t, 1, miss.calls)
}

func TestCascadeEmptyAddress(t *testing.T) {
	c := NewCascade(nil)
	_, err := c.Geocode(context.Background(), "   ")
	require.Error(t, err)
}
