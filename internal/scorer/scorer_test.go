package scorer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/chesapeake-vector/parcelrisk/internal/config"
	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
)

func square(lat, lon, half float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{lon - half, lat - half},
		{lon + half, lat - half},
		{lon + half, lat + half},
		{lon - half, lat + half},
		{lon - half, lat - half},
	}})
}

func defaultRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		WetlandWeight:       100,
		RoadWeight:          0,
		WetlandBufferMeters: 100,
		RoadBufferMeters:    50,
	}
}

func TestScoreAllWetlandAdjacency(t *testing.T) {
	wetland := square(39.0, -76.60, 0.001)

	s, err := New(defaultRiskConfig(), []geom.T{wetland}, nil)
	require.NoError(t, err)

	parcels := []parcel.Parcel{
		{ID: "near", Geometry: square(39.0, -76.6025, 0.001)}, // ~40 m gap
		{ID: "far", Geometry: square(39.0, -76.70, 0.001)},    // ~8 km gap
		{ID: "nogeom"},
	}

	scored, err := s.ScoreAll(context.Background(), parcels)
	require.NoError(t, err)
	require.Len(t, scored, 3)

	assert.True(t, scored[0].WetlandAdjacent)
	assert.Equal(t, 100.0, scored[0].Score)
	assert.LessOrEqual(t, scored[0].WetlandDistance, 100.0)

	assert.False(t, scored[1].WetlandAdjacent)
	assert.Equal(t, 0.0, scored[1].Score)
	assert.Greater(t, scored[1].WetlandDistance, 100.0)

	assert.False(t, scored[2].WetlandAdjacent)
	assert.Equal(t, 0.0, scored[2].Score)
}

func TestScoreAllRoadComponent(t *testing.T) {
	cfg := defaultRiskConfig()
	cfg.WetlandWeight = 70
	cfg.RoadWeight = 30

	wetland := square(39.0, -76.60, 0.001)
	road := geom.NewLineString(geom.XY).MustSetCoords([]geom.Coord{
		{-76.6025, 38.999},
		{-76.6025, 39.001},
	})

	s, err := New(cfg, []geom.T{wetland}, []geom.T{road})
	require.NoError(t, err)

	parcels := []parcel.Parcel{
		// Adjacent to both the wetland and the road.
		{ID: "both", Geometry: square(39.0, -76.6022, 0.0008)},
		// Adjacent to neither.
		{ID: "neither", Geometry: square(39.3, -76.9, 0.001)},
	}

	scored, err := s.ScoreAll(context.Background(), parcels)
	require.NoError(t, err)

	assert.Equal(t, 100.0, scored[0].Score)
	assert.Equal(t, 0.0, scored[1].Score)
}

func TestScoreAllCancelled(t *testing.T) {
	s, err := New(defaultRiskConfig(), []geom.T{square(39, -76.6, 0.001)}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.ScoreAll(ctx, []parcel.Parcel{{ID: "x", Geometry: square(39, -76.6, 0.001)}})
	require.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.RiskConfig)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*config.RiskConfig) {}, wantErr: false},
		{name: "negative weight", mutate: func(c *config.RiskConfig) { c.WetlandWeight = -1 }, wantErr: true},
		{name: "zero weights", mutate: func(c *config.RiskConfig) { c.WetlandWeight = 0; c.RoadWeight = 0 }, wantErr: true},
		{name: "zero buffer", mutate: func(c *config.RiskConfig) { c.WetlandBufferMeters = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultRiskConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
