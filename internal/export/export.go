// Package export renders filtered parcel result sets as CSV or XLSX
// downloads.
package export

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
)

// Format names accepted by the export endpoint and CLI.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// columns defines the ordered export columns shared by both formats.
var columns = []string{
	"parcel_id",
	"total_score",
	"wetland_adjacent",
	"wetland_distance_m",
	"centroid_lat",
	"centroid_lon",
}

// WriteCSV writes parcels as CSV with a header row.
func WriteCSV(w io.Writer, parcels []parcel.Parcel) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for i := range parcels {
		if err := cw.Write(buildRow(&parcels[i])); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", parcels[i].ID)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes parcels as a single-sheet XLSX workbook.
func WriteXLSX(w io.Writer, parcels []parcel.Parcel) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Parcels")
	if err != nil {
		return eris.Wrap(err, "export: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, col := range columns {
		header.AddCell().SetString(col)
	}

	for i := range parcels {
		p := &parcels[i]
		row := sheet.AddRow()
		row.AddCell().SetString(p.ID)
		row.AddCell().SetFloat(p.Score)
		row.AddCell().SetBool(p.WetlandAdjacent)
		if math.IsInf(p.WetlandDistance, 0) || math.IsNaN(p.WetlandDistance) {
			row.AddCell().SetString("")
		} else {
			row.AddCell().SetFloat(p.WetlandDistance)
		}
		row.AddCell().SetFloat(p.CentroidLat)
		row.AddCell().SetFloat(p.CentroidLon)
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// Write dispatches to the writer for the named format.
func Write(w io.Writer, format string, parcels []parcel.Parcel) error {
	switch format {
	case "", FormatCSV:
		return WriteCSV(w, parcels)
	case FormatXLSX:
		return WriteXLSX(w, parcels)
	default:
		return eris.Errorf("export: unsupported format %q", format)
	}
}

// ContentType returns the MIME type for the named format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func buildRow(p *parcel.Parcel) []string {
	wetlandDist := ""
	if !math.IsInf(p.WetlandDistance, 0) && !math.IsNaN(p.WetlandDistance) {
		wetlandDist = strconv.FormatFloat(p.WetlandDistance, 'f', 1, 64)
	}
	return []string{
		p.ID,
		strconv.FormatFloat(p.Score, 'f', -1, 64),
		strconv.FormatBool(p.WetlandAdjacent),
		wetlandDist,
		strconv.FormatFloat(p.CentroidLat, 'f', 6, 64),
		strconv.FormatFloat(p.CentroidLon, 'f', 6, 64),
	}
}
