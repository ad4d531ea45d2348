package geodata

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestShapeToGeomPoint(t *testing.T) {
	g := shapeToGeom(&shp.Point{X: -76.6, Y: 39.0})
	require.NotNil(t, g)

	pt, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, -76.6, pt.X())
	assert.Equal(t, 39.0, pt.Y())
	assert.Equal(t, 4326, pt.SRID())
}

func TestShapeToGeomPolygon(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 1,
		Parts:    []int32{0},
		Points: []shp.Point{
			{X: -76.61, Y: 39.00},
			{X: -76.59, Y: 39.00},
			{X: -76.59, Y: 39.02},
			{X: -76.61, Y: 39.02},
			{X: -76.61, Y: 39.00},
		},
	}

	g := shapeToGeom(poly)
	require.NotNil(t, g)

	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 5, mp.Polygon(0).LinearRing(0).NumCoords())
}

func TestShapeToGeomMultiPartPolyLine(t *testing.T) {
	pl := &shp.PolyLine{
		NumParts: 2,
		Parts:    []int32{0, 3},
		Points: []shp.Point{
			{X: -76.6, Y: 39.0},
			{X: -76.5, Y: 39.1},
			{X: -76.4, Y: 39.2},
			{X: -76.9, Y: 39.0},
			{X: -76.8, Y: 39.1},
		},
	}

	g := shapeToGeom(pl)
	require.NotNil(t, g)

	mls, ok := g.(*geom.MultiLineString)
	require.True(t, ok)
	require.Equal(t, 2, mls.NumLineStrings())
	assert.Equal(t, 3, mls.LineString(0).NumCoords())
	assert.Equal(t, 2, mls.LineString(1).NumCoords())
}

func TestShapeToGeomEmpty(t *testing.T) {
	assert.Nil(t, shapeToGeom(nil))
	assert.Nil(t, shapeToGeom(&shp.Polygon{}))
	assert.Nil(t, shapeToGeom(&shp.PolyLine{}))
}

func TestParcelsFromShapefileMissingFile(t *testing.T) {
	_, err := ParcelsFromShapefile("testdata/does-not-exist.shp", "OBJECTID", "")
	require.Error(t, err)
}
