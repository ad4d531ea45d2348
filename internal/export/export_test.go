package export

import (
	"bytes"
	"encoding/csv"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
)

var sampleParcels = []parcel.Parcel{
	{ID: "C", Score: 95, WetlandAdjacent: true, WetlandDistance: 12.3, CentroidLat: 38.970800, CentroidLon: -76.482000},
	{ID: "A", Score: 80, WetlandAdjacent: false, WetlandDistance: math.Inf(1), CentroidLat: 39.045700, CentroidLon: -76.641300},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleParcels))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, columns, records[0])
	assert.Equal(t, []string{"C", "95", "true", "12.3", "38.970800", "-76.482000"}, records[1])
	assert.Equal(t, "A", records[2][0])
	assert.Equal(t, "", records[2][3], "unknown wetland distance exports empty")
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1, "header only")
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleParcels))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Parcels", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "parcel_id", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "C", sheet.Rows[1].Cells[0].String())

	score, err := sheet.Rows[1].Cells[1].Float()
	require.NoError(t, err)
	assert.InDelta(t, 95, score, 1e-9)
}

func TestWriteDispatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "", sampleParcels), "empty format defaults to csv")

	err := Write(&buf, "pdf", sampleParcels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", ContentType(FormatCSV))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ContentType(FormatXLSX))
}
