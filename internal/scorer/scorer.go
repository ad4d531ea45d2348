// Package scorer computes mosquito-breeding risk scores for parcels from
// their proximity to wetland and road geometries.
package scorer

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/config"
	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
	"github.com/chesapeake-vector/parcelrisk/internal/risk"
)

// Scorer assigns risk scores to parcels. A parcel within the wetland
// buffer distance is wetland-adjacent and receives the wetland weight;
// the optional road component works the same way against road geometries.
type Scorer struct {
	cfg      config.RiskConfig
	wetlands *risk.GeomIndex
	roads    *risk.GeomIndex
}

// New creates a Scorer over the given overlay geometries. roads may be
// empty when the road component is unweighted.
func New(cfg config.RiskConfig, wetlands, roads []geom.T) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scorer{
		cfg:      cfg,
		wetlands: risk.NewGeomIndex(wetlands),
		roads:    risk.NewGeomIndex(roads),
	}, nil
}

// ValidateConfig checks that the scoring weights and buffers are usable.
func ValidateConfig(cfg config.RiskConfig) error {
	if cfg.WetlandWeight < 0 || cfg.RoadWeight < 0 {
		return eris.New("scorer: weights must be >= 0")
	}
	if cfg.WetlandWeight+cfg.RoadWeight <= 0 {
		return eris.New("scorer: weights must sum to a positive number")
	}
	if cfg.WetlandBufferMeters <= 0 {
		return eris.New("scorer: wetland buffer must be > 0 meters")
	}
	if math.IsNaN(cfg.WetlandWeight) || math.IsNaN(cfg.RoadWeight) {
		return eris.New("scorer: weights must be finite")
	}
	return nil
}

// ScoreAll scores every parcel in place and returns the scored slice.
// Parcels with nil geometry keep a zero score.
func (s *Scorer) ScoreAll(ctx context.Context, parcels []parcel.Parcel) ([]parcel.Parcel, error) {
	var adjacent int
	for i := range parcels {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "scorer: score all")
		}
		s.scoreOne(&parcels[i])
		if parcels[i].WetlandAdjacent {
			adjacent++
		}
	}

	zap.L().Info("scorer: scored parcels",
		zap.Int("parcels", len(parcels)),
		zap.Int("wetland_adjacent", adjacent),
		zap.Float64("wetland_buffer_m", s.cfg.WetlandBufferMeters),
	)
	return parcels, nil
}

func (s *Scorer) scoreOne(p *parcel.Parcel) {
	if p.Geometry == nil {
		p.Score = 0
		p.WetlandAdjacent = false
		p.WetlandDistance = math.Inf(1)
		return
	}

	p.WetlandDistance = s.wetlands.NearestGeometryDistance(p.Geometry)
	p.WetlandAdjacent = p.WetlandDistance <= s.cfg.WetlandBufferMeters

	score := 0.0
	if p.WetlandAdjacent {
		score += s.cfg.WetlandWeight
	}
	if s.cfg.RoadWeight > 0 && s.roads.Len() > 0 &&
		s.roads.WithinGeometryDistance(p.Geometry, s.cfg.RoadBufferMeters) {
		score += s.cfg.RoadWeight
	}
	p.Score = score
}
