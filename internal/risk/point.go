package risk

import (
	"math"

	"github.com/rotisserie/eris"
)

// Point is a WGS84 query coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the point is finite and within WGS84 bounds.
// Returns ErrInvalidInput otherwise.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return eris.Wrapf(ErrInvalidInput, "non-finite coordinate (%v, %v)", p.Lat, p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Wrapf(ErrInvalidInput, "latitude %v out of range [-90, 90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return eris.Wrapf(ErrInvalidInput, "longitude %v out of range [-180, 180]", p.Lon)
	}
	return nil
}
