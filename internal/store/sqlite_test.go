package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
	"github.com/chesapeake-vector/parcelrisk/pkg/geocode"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func testPolygon(t *testing.T, lat, lon float64) *geom.Polygon {
	t.Helper()
	p := geom.NewPolygon(geom.XY)
	_, err := p.SetCoords([][]geom.Coord{{
		{lon - 0.001, lat - 0.001},
		{lon + 0.001, lat - 0.001},
		{lon + 0.001, lat + 0.001},
		{lon - 0.001, lat + 0.001},
		{lon - 0.001, lat - 0.001},
	}})
	require.NoError(t, err)
	return p
}

func TestSQLiteReplaceAndListParcels(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	in := []parcel.Parcel{
		{ID: "P002", Geometry: testPolygon(t, 39.05, -76.64), CentroidLat: 39.05, CentroidLon: -76.64, Score: 80, Properties: []byte(`{"OBJECTID": 2}`)},
		{ID: "P001", Geometry: testPolygon(t, 38.97, -76.48), CentroidLat: 38.97, CentroidLon: -76.48, Score: 40},
	}
	require.NoError(t, s.ReplaceParcels(ctx, in))

	got, err := s.ListParcels(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by id.
	assert.Equal(t, "P001", got[0].ID)
	assert.Equal(t, "P002", got[1].ID)
	assert.InDelta(t, 80, got[1].Score, 1e-9)
	assert.JSONEq(t, `{"OBJECTID": 2}`, string(got[1].Properties))
	assert.True(t, math.IsInf(got[0].WetlandDistance, 1), "wetland distance unknown until scoring")

	// Geometry round-trips through EWKB.
	poly, ok := got[1].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.InDelta(t, -76.64, poly.Bounds().Min(0)+0.001, 1e-9)

	// A second replace fully swaps the dataset.
	require.NoError(t, s.ReplaceParcels(ctx, in[:1]))
	got, err = s.ListParcels(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "P002", got[0].ID)
}

func TestSQLiteUpdateScores(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceParcels(ctx, []parcel.Parcel{
		{ID: "P001", CentroidLat: 38.97, CentroidLon: -76.48},
		{ID: "P002", CentroidLat: 39.05, CentroidLon: -76.64},
	}))

	require.NoError(t, s.UpdateScores(ctx, []parcel.Parcel{
		{ID: "P001", Score: 100, WetlandAdjacent: true, WetlandDistance: 42.5},
		{ID: "P002", Score: 0, WetlandAdjacent: false, WetlandDistance: math.Inf(1)},
	}))

	got, err := s.ListParcels(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.InDelta(t, 100, got[0].Score, 1e-9)
	assert.True(t, got[0].WetlandAdjacent)
	assert.InDelta(t, 42.5, got[0].WetlandDistance, 1e-9)

	assert.InDelta(t, 0, got[1].Score, 1e-9)
	assert.False(t, got[1].WetlandAdjacent)
	assert.True(t, math.IsInf(got[1].WetlandDistance, 1), "infinite distance stored as NULL")
}

func TestSQLiteOverlays(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	wetlands := []parcel.Overlay{
		{ID: "W1", Layer: parcel.LayerWetlands, Geometry: testPolygon(t, 38.99, -76.50), Properties: []byte(`{"type": "tidal"}`)},
		{ID: "W2", Layer: parcel.LayerWetlands, Geometry: testPolygon(t, 39.01, -76.55)},
	}
	roads := []parcel.Overlay{
		{ID: "R1", Layer: parcel.LayerRoads, Geometry: testPolygon(t, 39.00, -76.52)},
	}
	require.NoError(t, s.ReplaceOverlays(ctx, parcel.LayerWetlands, wetlands))
	require.NoError(t, s.ReplaceOverlays(ctx, parcel.LayerRoads, roads))

	got, err := s.ListOverlays(ctx, parcel.LayerWetlands)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "W1", got[0].ID)
	assert.Equal(t, parcel.LayerWetlands, got[0].Layer)
	assert.JSONEq(t, `{"type": "tidal"}`, string(got[0].Properties))

	// Replacing one layer leaves the other intact.
	require.NoError(t, s.ReplaceOverlays(ctx, parcel.LayerWetlands, nil))
	got, err = s.ListOverlays(ctx, parcel.LayerWetlands)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ListOverlays(ctx, parcel.LayerRoads)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteLoadHistory(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.RecordLoad(ctx, LoadRecord{
		Layer:        parcel.LayerParcels,
		FeatureCount: 120,
		Source:       "https://example.com/parcels",
		LoadedAt:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, s.RecordLoad(ctx, LoadRecord{
		Layer:        parcel.LayerWetlands,
		FeatureCount: 45,
		Source:       "https://example.com/wetlands",
		LoadedAt:     time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
	}))

	recs, err := s.ListLoads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first, ids assigned.
	assert.Equal(t, parcel.LayerWetlands, recs[0].Layer)
	assert.Equal(t, 45, recs[0].FeatureCount)
	assert.NotEmpty(t, recs[0].ID)

	recs, err = s.ListLoads(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSQLiteGeocodeCache(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	key := geocode.CacheKey("410 Severn Ave, Annapolis, MD")

	got, err := s.GetGeocode(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got, "miss before put")

	r := geocode.Result{Latitude: 38.9708, Longitude: -76.4820, Source: "census", Quality: "rooftop", Matched: true}
	require.NoError(t, s.PutGeocode(ctx, key, r))

	got, err = s.GetGeocode(ctx, key, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 38.9708, got.Latitude, 1e-9)
	assert.Equal(t, "census", got.Source)
	assert.True(t, got.Matched)

	// Updating the same key overwrites.
	require.NoError(t, s.PutGeocode(ctx, key, geocode.Result{Matched: false, Source: "cascade"}))
	got, err = s.GetGeocode(ctx, key, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Matched)

	// A tiny max age expires the entry.
	time.Sleep(5 * time.Millisecond)
	got, err = s.GetGeocode(ctx, key, time.Nanosecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpenSQLiteDefaultDriver(t *testing.T) {
	s, err := Open(context.Background(), configForSQLite(t))
	require.NoError(t, err)
	defer s.Close()

	parcels, err := s.ListParcels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, parcels)
}
