package geodata

import (
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
)

// ParcelsFromShapefile reads a parcel shapefile. idField names the DBF
// attribute carrying the parcel identifier; scoreField optionally names a
// precomputed score attribute and may be empty.
func ParcelsFromShapefile(shpPath, idField, scoreField string) ([]parcel.Parcel, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	idIdx := fieldIndex(reader, idField)
	scoreIdx := -1
	if scoreField != "" {
		scoreIdx = fieldIndex(reader, scoreField)
	}

	now := time.Now().UTC()
	var parcels []parcel.Parcel
	var skipped int
	i := -1
	for reader.Next() {
		i++
		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		id := ""
		if idIdx >= 0 {
			id = attribute(reader, idIdx)
		}
		if id == "" {
			id = "feature-" + strconv.Itoa(i)
		}

		p := parcel.Parcel{ID: id, Geometry: g, LoadedAt: now}
		p.CentroidLat, p.CentroidLon = Centroid(g)
		if scoreIdx >= 0 {
			if v, err := strconv.ParseFloat(attribute(reader, scoreIdx), 64); err == nil {
				p.Score = v
			}
		}
		parcels = append(parcels, p)
	}

	if skipped > 0 {
		zap.L().Debug("geodata: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return parcels, nil
}

// OverlaysFromShapefile reads overlay geometries for the given layer.
func OverlaysFromShapefile(shpPath, layer, idField string) ([]parcel.Overlay, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	idIdx := fieldIndex(reader, idField)

	var overlays []parcel.Overlay
	i := -1
	for reader.Next() {
		i++
		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			continue
		}
		id := ""
		if idIdx >= 0 {
			id = attribute(reader, idIdx)
		}
		if id == "" {
			id = "feature-" + strconv.Itoa(i)
		}
		overlays = append(overlays, parcel.Overlay{ID: id, Layer: layer, Geometry: g})
	}
	return overlays, nil
}

// fieldIndex finds a DBF field by case-insensitive name, -1 if absent.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		fname := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(fname, name) {
			return i
		}
	}
	return -1
}

func attribute(reader *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
}

// shapeToGeom converts a shapefile shape to a go-geom geometry in WGS84.
// Returns nil for unsupported or empty shapes.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.PolyLine:
		return polyLineToMultiLineString(s)
	case *shp.Polygon:
		return polygonToMultiPolygon((*shp.PolyLine)(s))
	default:
		return nil
	}
}

// polyLineToMultiLineString converts a shapefile PolyLine to a
// geom.MultiLineString, one linestring per part.
func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
	for i := int32(0); i < pl.NumParts; i++ {
		coords := partCoords(pl.Parts, pl.Points, i, pl.NumParts)
		ls := geom.NewLineStringFlat(geom.XY, flatCoords(coords))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("geodata: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon converts a shapefile Polygon to a
// geom.MultiPolygon, one single-ring polygon per part.
func polygonToMultiPolygon(p *shp.PolyLine) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		coords := partCoords(p.Parts, p.Points, i, p.NumParts)
		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(coords))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("geodata: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geodata: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func partCoords(parts []int32, points []shp.Point, i, numParts int32) []geom.Coord {
	start := parts[i]
	end := int32(len(points))
	if i+1 < numParts {
		end = parts[i+1]
	}
	coords := make([]geom.Coord, 0, end-start)
	for j := start; j < end; j++ {
		coords = append(coords, geom.Coord{points[j].X, points[j].Y})
	}
	return coords
}

func flatCoords(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return flat
}
