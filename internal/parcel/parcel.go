// Package parcel holds the domain model for land parcels and overlay
// geometries loaded from regional geospatial datasets.
package parcel

import (
	"encoding/json"
	"time"

	"github.com/twpayne/go-geom"
)

// Layer names for the geospatial datasets the service loads.
const (
	LayerParcels  = "parcels"
	LayerWetlands = "wetlands"
	LayerRoads    = "roads"
)

// Layers lists every known overlay layer.
var Layers = []string{LayerParcels, LayerWetlands, LayerRoads}

// Parcel is a land-ownership polygon with a mosquito-breeding risk score.
// Parcels are immutable after load; scoring produces a new batch.
type Parcel struct {
	ID              string          `json:"id"`
	Geometry        geom.T          `json:"-"`
	CentroidLat     float64         `json:"centroid_lat"`
	CentroidLon     float64         `json:"centroid_lon"`
	Score           float64         `json:"score"`
	WetlandAdjacent bool            `json:"wetland_adjacent"`
	WetlandDistance float64         `json:"wetland_distance_m"`
	Properties      json.RawMessage `json:"properties,omitempty"`
	LoadedAt        time.Time       `json:"loaded_at"`
}

// Overlay is a wetland or road geometry used for map display and,
// in the wetlands case, risk scoring.
type Overlay struct {
	ID         string          `json:"id"`
	Layer      string          `json:"layer"`
	Geometry   geom.T          `json:"-"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// ValidLayer reports whether name is a known layer.
func ValidLayer(name string) bool {
	for _, l := range Layers {
		if l == name {
			return true
		}
	}
	return false
}
