package geodata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
)

// scoreProperty is the optional upstream attribute carrying a precomputed
// risk score, as written by earlier versions of the pipeline.
const scoreProperty = "total_score"

// ParseParcels decodes a GeoJSON feature collection into parcels.
// idProperty names the feature property used as the parcel identifier;
// features without it get a positional identifier. Features without
// usable geometry are skipped.
func ParseParcels(data []byte, idProperty string) ([]parcel.Parcel, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geodata: parse parcels GeoJSON")
	}

	now := time.Now().UTC()
	parcels := make([]parcel.Parcel, 0, len(fc.Features))
	var skipped int
	for i, feat := range fc.Features {
		if feat == nil || feat.Geometry == nil {
			skipped++
			continue
		}

		p := parcel.Parcel{
			ID:       featureID(feat.Properties, idProperty, i),
			Geometry: feat.Geometry,
			LoadedAt: now,
		}
		p.CentroidLat, p.CentroidLon = Centroid(feat.Geometry)

		if v, ok := numericProperty(feat.Properties, scoreProperty); ok {
			p.Score = v
		}
		if len(feat.Properties) > 0 {
			if props, err := json.Marshal(feat.Properties); err == nil {
				p.Properties = props
			}
		}
		parcels = append(parcels, p)
	}

	if skipped > 0 {
		zap.L().Debug("geodata: skipped parcel features without geometry",
			zap.Int("skipped", skipped),
		)
	}
	return parcels, nil
}

// ParseOverlays decodes a GeoJSON feature collection into overlay
// geometries for the given layer.
func ParseOverlays(data []byte, layer, idProperty string) ([]parcel.Overlay, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "geodata: parse %s GeoJSON", layer)
	}

	overlays := make([]parcel.Overlay, 0, len(fc.Features))
	for i, feat := range fc.Features {
		if feat == nil || feat.Geometry == nil {
			continue
		}
		o := parcel.Overlay{
			ID:       featureID(feat.Properties, idProperty, i),
			Layer:    layer,
			Geometry: feat.Geometry,
		}
		if len(feat.Properties) > 0 {
			if props, err := json.Marshal(feat.Properties); err == nil {
				o.Properties = props
			}
		}
		overlays = append(overlays, o)
	}
	return overlays, nil
}

// featureID extracts the identifier property, formatted without a
// trailing ".0" for the integer IDs ArcGIS emits as JSON numbers.
func featureID(props map[string]any, idProperty string, index int) string {
	if v, ok := props[idProperty]; ok {
		switch v := v.(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v == float64(int64(v)) {
				return fmt.Sprintf("%d", int64(v))
			}
			return fmt.Sprintf("%v", v)
		case json.Number:
			return v.String()
		}
	}
	return fmt.Sprintf("feature-%d", index)
}

// numericProperty reads a float-valued property.
func numericProperty(props map[string]any, key string) (float64, bool) {
	v, ok := props[key]
	if !ok {
		return 0, false
	}
	switch v := v.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Centroid returns the (lat, lon) centroid of a geometry: the area
// centroid for polygons, otherwise the mean of the vertices.
func Centroid(g geom.T) (lat, lon float64) {
	switch g := g.(type) {
	case *geom.Polygon:
		return polygonCentroid(g)
	case *geom.MultiPolygon:
		// Centroid of the largest member keeps the point inside the
		// dominant shape instead of drifting between islands.
		var best *geom.Polygon
		bestArea := -1.0
		for i := 0; i < g.NumPolygons(); i++ {
			p := g.Polygon(i)
			if a := ringArea(p.LinearRing(0)); a > bestArea {
				best, bestArea = p, a
			}
		}
		if best != nil {
			return polygonCentroid(best)
		}
	}
	return vertexMean(g)
}

func polygonCentroid(p *geom.Polygon) (lat, lon float64) {
	if p.NumLinearRings() == 0 {
		return 0, 0
	}
	fc := p.LinearRing(0).FlatCoords()
	stride := p.Stride()
	if len(fc) < 2 {
		return 0, 0
	}

	// Accumulate relative to the first vertex. Cross products of raw
	// lon/lat magnitudes cancel catastrophically on small rings.
	ox, oy := fc[0], fc[1]
	var area, cx, cy float64
	for i := 0; i+stride+1 < len(fc); i += stride {
		x0, y0 := fc[i]-ox, fc[i+1]-oy
		x1, y1 := fc[i+stride]-ox, fc[i+stride+1]-oy
		cross := x0*y1 - x1*y0
		area += cross
		cx += (x0 + x1) * cross
		cy += (y0 + y1) * cross
	}
	if area == 0 {
		return vertexMean(p)
	}
	area /= 2
	return oy + cy/(6*area), ox + cx/(6*area)
}

func ringArea(r *geom.LinearRing) float64 {
	fc := r.FlatCoords()
	stride := r.Stride()
	var area float64
	for i := 0; i+stride+1 < len(fc); i += stride {
		area += fc[i]*fc[i+stride+1] - fc[i+stride]*fc[i+1]
	}
	if area < 0 {
		area = -area
	}
	return area / 2
}

func vertexMean(g geom.T) (lat, lon float64) {
	fc := g.FlatCoords()
	stride := g.Stride()
	if len(fc) < stride || stride < 2 {
		return 0, 0
	}
	var sx, sy float64
	n := 0
	for i := 0; i+1 < len(fc); i += stride {
		sx += fc[i]
		sy += fc[i+1]
		n++
	}
	return sy / float64(n), sx / float64(n)
}
