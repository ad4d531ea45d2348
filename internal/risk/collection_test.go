package risk

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
)

// square builds an axis-aligned square polygon centered at (lat, lon)
// with the given half-width in degrees.
func square(lat, lon, half float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{lon - half, lat - half},
		{lon + half, lat - half},
		{lon + half, lat + half},
		{lon - half, lat + half},
		{lon - half, lat - half},
	}})
}

func testParcel(id string, lat, lon, half, score float64) parcel.Parcel {
	return parcel.Parcel{
		ID:          id,
		Geometry:    square(lat, lon, half),
		CentroidLat: lat,
		CentroidLon: lon,
		Score:       score,
	}
}

func TestNearestReturnsMember(t *testing.T) {
	c := NewCollection([]parcel.Parcel{
		testParcel("P001", 39.00, -76.60, 0.001, 80),
		testParcel("P002", 39.10, -76.70, 0.001, 40),
		testParcel("P003", 39.20, -76.50, 0.001, 95),
	})

	match, err := c.Nearest(context.Background(), Point{Lat: 39.11, Lon: -76.71})
	require.NoError(t, err)
	assert.Equal(t, "P002", match.ParcelID)
	assert.Equal(t, 40.0, match.Score)
	assert.Greater(t, match.Distance, 0.0)
}

func TestNearestInsideParcelIsZero(t *testing.T) {
	c := NewCollection([]parcel.Parcel{
		testParcel("P001", 39.00, -76.60, 0.01, 80),
		testParcel("P002", 39.50, -76.60, 0.01, 40),
	})

	match, err := c.Nearest(context.Background(), Point{Lat: 39.001, Lon: -76.601})
	require.NoError(t, err)
	assert.Equal(t, "P001", match.ParcelID)
	assert.Equal(t, 0.0, match.Distance)
}

func TestNearestEmptyCollection(t *testing.T) {
	c := NewCollection(nil)

	_, err := c.Nearest(context.Background(), Point{Lat: 39, Lon: -76})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestNearestInvalidPoint(t *testing.T) {
	c := NewCollection([]parcel.Parcel{testParcel("P001", 39, -76.6, 0.001, 1)})

	tests := []struct {
		name string
		pt   Point
	}{
		{name: "latitude out of range", pt: Point{Lat: 91, Lon: 0}},
		{name: "longitude out of range", pt: Point{Lat: 0, Lon: -181}},
		{name: "NaN latitude", pt: Point{Lat: math.NaN(), Lon: 0}},
		{name: "infinite longitude", pt: Point{Lat: 0, Lon: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Nearest(context.Background(), tt.pt)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidInput))
		})
	}
}

func TestNearestEquidistantTieBreak(t *testing.T) {
	// Two identical squares mirrored around the query longitude, same
	// latitude: exactly equidistant. Lowest ID must win on every call.
	c := NewCollection([]parcel.Parcel{
		testParcel("P002", 39.0, -76.50, 0.001, 40),
		testParcel("P001", 39.0, -76.70, 0.001, 80),
	})

	for i := 0; i < 50; i++ {
		match, err := c.Nearest(context.Background(), Point{Lat: 39.0, Lon: -76.60})
		require.NoError(t, err)
		assert.Equal(t, "P001", match.ParcelID)
	}
}

func TestNearestAgreesWithLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	var parcels []parcel.Parcel
	for i := 0; i < 300; i++ {
		lat := 38.5 + rng.Float64()
		lon := -77.0 + rng.Float64()
		parcels = append(parcels, testParcel(
			// IDs like P0000 keep lexical order equal to build order.
			"P"+string(rune('0'+i/100%10))+string(rune('0'+i/10%10))+string(rune('0'+i%10)),
			lat, lon, 0.0005+rng.Float64()*0.002, rng.Float64()*100,
		))
	}
	c := NewCollection(parcels)

	for i := 0; i < 100; i++ {
		pt := Point{Lat: 38.4 + rng.Float64()*1.2, Lon: -77.1 + rng.Float64()*1.2}

		match, err := c.Nearest(context.Background(), pt)
		require.NoError(t, err)

		// Brute-force reference over the same sorted order.
		bestID, bestDist := "", math.Inf(1)
		for _, p := range c.Parcels() {
			d := DistanceToGeometry(pt, p.Geometry)
			if d < bestDist || (d == bestDist && p.ID < bestID) {
				bestID, bestDist = p.ID, d
			}
		}

		assert.Equal(t, bestID, match.ParcelID, "query %+v", pt)
		assert.InDelta(t, bestDist, match.Distance, 1e-9)
	}
}

func TestNearestCancelledContext(t *testing.T) {
	c := NewCollection([]parcel.Parcel{testParcel("P001", 39, -76.6, 0.001, 1)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Nearest(ctx, Point{Lat: 39, Lon: -76.6})
	require.Error(t, err)
}

func TestGeomIndexNearestDistance(t *testing.T) {
	idx := NewGeomIndex([]geom.T{
		square(39.0, -76.60, 0.001),
		square(39.5, -76.60, 0.001),
	})
	require.Equal(t, 2, idx.Len())

	// Inside the first square.
	assert.Equal(t, 0.0, idx.NearestDistance(Point{Lat: 39.0, Lon: -76.60}))

	// Roughly 0.009 degrees of latitude south of the first square edge.
	d := idx.NearestDistance(Point{Lat: 38.99, Lon: -76.60})
	assert.InDelta(t, 0.009*metersPerDegree, d, 20)
}

func TestMatchJSONWithoutGeometry(t *testing.T) {
	// No parcel carries geometry, so the match falls back to the lowest
	// ID with an undefined distance. That must still encode as JSON.
	c := NewCollection([]parcel.Parcel{
		{ID: "P002", Score: 40},
		{ID: "P001", Score: 12},
	})

	match, err := c.Nearest(context.Background(), Point{Lat: 39, Lon: -76.6})
	require.NoError(t, err)
	assert.Equal(t, "P001", match.ParcelID)
	assert.True(t, math.IsInf(match.Distance, 1))

	buf, err := json.Marshal(match)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"distance_m":null`)
	assert.Contains(t, string(buf), `"parcel_id":"P001"`)
}

func TestMatchJSONFiniteDistance(t *testing.T) {
	c := NewCollection([]parcel.Parcel{testParcel("P001", 39, -76.6, 0.001, 5)})

	match, err := c.Nearest(context.Background(), Point{Lat: 39, Lon: -76.6})
	require.NoError(t, err)

	buf, err := json.Marshal(match)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"distance_m":0`)
}

func TestGeomIndexWithinGeometryDistance(t *testing.T) {
	wetlands := NewGeomIndex([]geom.T{square(39.0, -76.60, 0.001)})

	near := square(39.0, -76.6025, 0.001) // ~55 m gap
	far := square(39.0, -76.65, 0.001)    // ~4 km gap

	assert.True(t, wetlands.WithinGeometryDistance(near, 100))
	assert.False(t, wetlands.WithinGeometryDistance(far, 100))

	empty := NewGeomIndex(nil)
	assert.False(t, empty.WithinGeometryDistance(near, 100))
	assert.True(t, math.IsInf(empty.NearestGeometryDistance(near), 1))
}

func TestGeomIndexDistanceToLongEdge(t *testing.T) {
	// Wetland facing the middle of a long, thin parcel's north edge.
	// Every parcel corner is kilometers away, so the wetland's own
	// vertices must be measured against the parcel's edges too.
	wetlands := NewGeomIndex([]geom.T{square(39.0005, -76.60, 0.0001)})

	thin := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{-76.65, 38.9999},
		{-76.55, 38.9999},
		{-76.55, 39.0000},
		{-76.65, 39.0000},
		{-76.65, 38.9999},
	}})

	// Gap is 0.0004 degrees of latitude between the wetland's south
	// edge and the parcel's north edge.
	d := wetlands.NearestGeometryDistance(thin)
	assert.InDelta(t, 0.0004*metersPerDegree, d, 1)

	assert.True(t, wetlands.WithinGeometryDistance(thin, 100))
	assert.False(t, wetlands.WithinGeometryDistance(thin, 10))
}
