package risk

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Distances are planar meters under an equirectangular projection centered
// on the query point's latitude. At county scale the error versus geodesic
// distance is negligible, and the metric is symmetric so equidistant
// parcels measure exactly equal.
const (
	earthRadiusMeters = 6371008.8
	metersPerDegree   = earthRadiusMeters * math.Pi / 180
)

// metric converts lon/lat offsets from a query point into planar meters.
type metric struct {
	lat    float64
	lon    float64
	cosLat float64
}

func newMetric(pt Point) metric {
	return metric{lat: pt.Lat, lon: pt.Lon, cosLat: math.Cos(pt.Lat * math.Pi / 180)}
}

// project returns the planar offset of (lat, lon) from the query point.
func (m metric) project(lat, lon float64) (x, y float64) {
	return (lon - m.lon) * m.cosLat * metersPerDegree, (lat - m.lat) * metersPerDegree
}

// distanceTo returns the distance from the query point to (lat, lon).
func (m metric) distanceTo(lat, lon float64) float64 {
	x, y := m.project(lat, lon)
	return math.Hypot(x, y)
}

// distanceToBox returns the minimum distance from the query point to an
// axis-aligned lon/lat box. Zero when the point is inside the box.
func (m metric) distanceToBox(b bounds) float64 {
	lon := math.Min(math.Max(m.lon, b.minX), b.maxX)
	lat := math.Min(math.Max(m.lat, b.minY), b.maxY)
	return m.distanceTo(lat, lon)
}

// distanceToSegment returns the distance from the query point to the
// segment (lat1,lon1)-(lat2,lon2).
func (m metric) distanceToSegment(lat1, lon1, lat2, lon2 float64) float64 {
	x1, y1 := m.project(lat1, lon1)
	x2, y2 := m.project(lat2, lon2)
	dx, dy := x2-x1, y2-y1
	if dx == 0 && dy == 0 {
		return math.Hypot(x1, y1)
	}
	// Parameter of the projection of the origin onto the segment.
	t := -(x1*dx + y1*dy) / (dx*dx + dy*dy)
	t = math.Min(math.Max(t, 0), 1)
	return math.Hypot(x1+t*dx, y1+t*dy)
}

// distanceToFlatCoords returns the minimum distance from the query point
// to the polyline given as XY flat coordinates (lon, lat order).
func (m metric) distanceToFlatCoords(fc []float64, stride int) float64 {
	best := math.Inf(1)
	if len(fc) < stride {
		return best
	}
	if len(fc) == stride {
		return m.distanceTo(fc[1], fc[0])
	}
	for i := 0; i+stride+1 < len(fc); i += stride {
		d := m.distanceToSegment(fc[i+1], fc[i], fc[i+stride+1], fc[i+stride])
		if d < best {
			best = d
		}
	}
	return best
}

// DistanceToGeometry returns the distance in meters from pt to the nearest
// point of g. Returns 0 when pt lies inside a polygon of g.
func DistanceToGeometry(pt Point, g geom.T) float64 {
	m := newMetric(pt)
	return m.distanceToGeometry(g)
}

func (m metric) distanceToGeometry(g geom.T) float64 {
	switch g := g.(type) {
	case *geom.Point:
		return m.distanceTo(g.Y(), g.X())
	case *geom.MultiPoint:
		best := math.Inf(1)
		for i := 0; i < g.NumPoints(); i++ {
			if d := m.distanceToGeometry(g.Point(i)); d < best {
				best = d
			}
		}
		return best
	case *geom.LineString:
		return m.distanceToFlatCoords(g.FlatCoords(), g.Stride())
	case *geom.MultiLineString:
		best := math.Inf(1)
		for i := 0; i < g.NumLineStrings(); i++ {
			if d := m.distanceToGeometry(g.LineString(i)); d < best {
				best = d
			}
		}
		return best
	case *geom.LinearRing:
		return m.distanceToFlatCoords(g.FlatCoords(), g.Stride())
	case *geom.Polygon:
		return m.distanceToPolygon(g)
	case *geom.MultiPolygon:
		best := math.Inf(1)
		for i := 0; i < g.NumPolygons(); i++ {
			if d := m.distanceToPolygon(g.Polygon(i)); d < best {
				best = d
			}
		}
		return best
	case *geom.GeometryCollection:
		best := math.Inf(1)
		for i := 0; i < g.NumGeoms(); i++ {
			if d := m.distanceToGeometry(g.Geom(i)); d < best {
				best = d
			}
		}
		return best
	default:
		return math.Inf(1)
	}
}

func (m metric) distanceToPolygon(p *geom.Polygon) float64 {
	if p.NumLinearRings() == 0 {
		return math.Inf(1)
	}
	if m.containsPoint(p) {
		return 0
	}
	best := math.Inf(1)
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		if d := m.distanceToFlatCoords(ring.FlatCoords(), ring.Stride()); d < best {
			best = d
		}
	}
	return best
}

// containsPoint reports whether the query point is inside the polygon:
// inside the outer ring and outside every hole.
func (m metric) containsPoint(p *geom.Polygon) bool {
	coord := geom.Coord{m.lon, m.lat}
	outer := p.LinearRing(0)
	if !xy.IsPointInRing(p.Layout(), coord, outer.FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(p.Layout(), coord, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// geomBounds returns the lon/lat bounding box of g.
func geomBounds(g geom.T) bounds {
	b := g.Bounds()
	return bounds{minX: b.Min(0), minY: b.Min(1), maxX: b.Max(0), maxY: b.Max(1)}
}

// boundsGapMeters returns a lower bound in meters on the distance between
// two lon/lat boxes, zero when they overlap. Longitude separation is
// scaled at the largest latitude magnitude either box reaches, which
// understates it, so the bound is safe for pruning.
func boundsGapMeters(a, b bounds) float64 {
	dLon := math.Max(0, math.Max(a.minX-b.maxX, b.minX-a.maxX))
	dLat := math.Max(0, math.Max(a.minY-b.maxY, b.minY-a.maxY))
	maxAbsLat := math.Max(
		math.Max(math.Abs(a.minY), math.Abs(a.maxY)),
		math.Max(math.Abs(b.minY), math.Abs(b.maxY)),
	)
	cosLat := math.Cos(math.Min(maxAbsLat, 90) * math.Pi / 180)
	return metersPerDegree * math.Hypot(dLat, dLon*cosLat)
}
