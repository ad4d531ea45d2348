package risk

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
)

// Match is the result of a nearest-parcel lookup.
type Match struct {
	ParcelID        string  `json:"parcel_id"`
	Distance        float64 `json:"distance_m"`
	Score           float64 `json:"score"`
	WetlandAdjacent bool    `json:"wetland_adjacent"`
}

// MarshalJSON encodes a non-finite distance as null. The fallback match
// for a collection with no indexable geometry carries Distance=+Inf,
// which encoding/json cannot represent.
func (m *Match) MarshalJSON() ([]byte, error) {
	type matchJSON struct {
		ParcelID        string   `json:"parcel_id"`
		Distance        *float64 `json:"distance_m"`
		Score           float64  `json:"score"`
		WetlandAdjacent bool     `json:"wetland_adjacent"`
	}
	out := matchJSON{
		ParcelID:        m.ParcelID,
		Score:           m.Score,
		WetlandAdjacent: m.WetlandAdjacent,
	}
	if !math.IsInf(m.Distance, 0) && !math.IsNaN(m.Distance) {
		d := m.Distance
		out.Distance = &d
	}
	return json.Marshal(out)
}

// Collection is an immutable, indexed set of parcels. Build it once at
// startup; lookups are pure reads and safe for concurrent use.
type Collection struct {
	parcels []parcel.Parcel // sorted by ID ascending
	tree    *rtree
}

// NewCollection indexes the given parcels. The input slice is copied and
// sorted by ID so that index order doubles as the deterministic tie-break
// order.
func NewCollection(parcels []parcel.Parcel) *Collection {
	sorted := make([]parcel.Parcel, len(parcels))
	copy(sorted, parcels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	entries := make([]rtreeEntry, 0, len(sorted))
	for i := range sorted {
		if sorted[i].Geometry == nil {
			continue
		}
		entries = append(entries, rtreeEntry{bounds: geomBounds(sorted[i].Geometry), idx: i})
	}

	zap.L().Debug("risk: built parcel index",
		zap.Int("parcels", len(sorted)),
		zap.Int("indexed", len(entries)),
	)
	return &Collection{parcels: sorted, tree: newRTree(entries)}
}

// Len returns the number of parcels in the collection.
func (c *Collection) Len() int { return len(c.parcels) }

// Parcels returns the underlying parcel slice, sorted by ID. Callers must
// treat it as read-only.
func (c *Collection) Parcels() []parcel.Parcel { return c.parcels }

// Nearest returns the parcel geometrically closest to pt, its distance in
// meters, and its risk score. Equidistant candidates resolve to the lowest
// parcel ID on every call. Returns ErrInvalidInput for a malformed point
// and ErrNotFound for an empty collection.
func (c *Collection) Nearest(ctx context.Context, pt Point) (*Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "risk: nearest")
	}
	if err := pt.Validate(); err != nil {
		return nil, err
	}
	if len(c.parcels) == 0 {
		return nil, eris.Wrap(ErrNotFound, "nearest parcel")
	}

	m := newMetric(pt)
	idx, dist := c.tree.nearest(m,
		func(i int) float64 { return m.distanceToGeometry(c.parcels[i].Geometry) },
		func(a, b int) bool { return a < b },
	)
	if idx < 0 {
		// No indexable geometry; fall back to the lowest ID so the result
		// is still a member of the collection.
		idx = 0
	}

	p := &c.parcels[idx]
	return &Match{
		ParcelID:        p.ID,
		Distance:        dist,
		Score:           p.Score,
		WetlandAdjacent: p.WetlandAdjacent,
	}, nil
}

// GeomIndex is an immutable spatial index over bare geometries, used for
// overlay proximity queries during scoring.
type GeomIndex struct {
	geoms []geom.T
	bnds  []bounds
	tree  *rtree
}

// NewGeomIndex indexes the given geometries. Nil geometries are skipped.
func NewGeomIndex(geoms []geom.T) *GeomIndex {
	kept := make([]geom.T, 0, len(geoms))
	bnds := make([]bounds, 0, len(geoms))
	entries := make([]rtreeEntry, 0, len(geoms))
	for _, g := range geoms {
		if g == nil {
			continue
		}
		b := geomBounds(g)
		entries = append(entries, rtreeEntry{bounds: b, idx: len(kept)})
		kept = append(kept, g)
		bnds = append(bnds, b)
	}
	return &GeomIndex{geoms: kept, bnds: bnds, tree: newRTree(entries)}
}

// Len returns the number of indexed geometries.
func (x *GeomIndex) Len() int { return len(x.geoms) }

// NearestDistance returns the distance in meters from pt to the nearest
// indexed geometry, or +Inf when the index is empty.
func (x *GeomIndex) NearestDistance(pt Point) float64 {
	m := newMetric(pt)
	_, dist := x.tree.nearest(m,
		func(i int) float64 { return m.distanceToGeometry(x.geoms[i]) },
		func(a, b int) bool { return a < b },
	)
	return dist
}

// NearestGeometryDistance returns the distance in meters from g to the
// nearest indexed geometry, measured between geometry boundaries, or +Inf
// when the index is empty. Used for parcel-to-wetland adjacency.
func (x *GeomIndex) NearestGeometryDistance(g geom.T) float64 {
	return x.geometryDistance(g, nil)
}

// WithinGeometryDistance reports whether any indexed geometry lies within
// limit meters of g.
func (x *GeomIndex) WithinGeometryDistance(g geom.T, limit float64) bool {
	d := x.geometryDistance(g, &limit)
	return d <= limit
}

// geometryDistance computes the minimum distance between g and the index
// by sampling vertices against edges in both directions: g's vertices
// against the indexed geometries, then each indexed geometry's vertices
// against g. One direction alone misses a geometry facing the middle of
// a long edge. When limit is non-nil the scan stops at the first sample
// within limit.
func (x *GeomIndex) geometryDistance(g geom.T, limit *float64) float64 {
	best := math.Inf(1)
	if g == nil || x.Len() == 0 {
		return best
	}

	fc := g.FlatCoords()
	stride := g.Stride()
	for i := 0; i+1 < len(fc); i += stride {
		d := x.NearestDistance(Point{Lat: fc[i+1], Lon: fc[i]})
		if d < best {
			best = d
			if limit != nil && best <= *limit {
				return best
			}
		}
	}

	gb := geomBounds(g)
	for i, ig := range x.geoms {
		if boundsGapMeters(x.bnds[i], gb) >= best {
			continue
		}
		ifc := ig.FlatCoords()
		is := ig.Stride()
		for j := 0; j+1 < len(ifc); j += is {
			m := newMetric(Point{Lat: ifc[j+1], Lon: ifc[j]})
			if d := m.distanceToGeometry(g); d < best {
				best = d
				if limit != nil && best <= *limit {
					return best
				}
			}
		}
	}
	return best
}
