package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/catchment/internal/catchment"
)

// Sheet names of the XLSX workbook.
const (
	SheetSummary    = "Summary"
	SheetCategories = "Categories"
	SheetPOIs       = "POIs"
)

// WriteXLSX writes a workbook with a summary sheet, the category breakdown
// and one row per POI.
func WriteXLSX(w io.Writer, r *catchment.Result) error {
	f, err := Workbook(r)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

// Workbook builds the XLSX workbook for r.
func Workbook(r *catchment.Result) (*xlsx.File, error) {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	addRow(summary, "Analysis ID", r.ID)
	addRow(summary, "Created", r.CreatedAt.UTC().Format("2006-01-02 15:04:05Z"))
	addFloatRow(summary, "Origin latitude", r.Query.Origin.Lat)
	addFloatRow(summary, "Origin longitude", r.Query.Origin.Lon)
	addFloatRow(summary, "Walking time (min)", r.Query.Minutes)
	addFloatRow(summary, "Walking speed (km/h)", r.Query.SpeedKPH)
	addFloatRow(summary, "Area (km²)", r.Stats.AreaKM2)
	addFloatRow(summary, "Street length (km)", r.Stats.StreetLengthKM)
	addIntRow(summary, "Reachable nodes", r.Stats.NodeCount)
	addIntRow(summary, "Reachable edges", r.Stats.EdgeCount)
	addIntRow(summary, "POIs", r.Stats.POICount)

	cats, err := f.AddSheet(SheetCategories)
	if err != nil {
		return nil, eris.Wrap(err, "export: add categories sheet")
	}
	addRow(cats, "Category", "Count", "Color")
	for _, c := range r.Stats.Categories {
		row := cats.AddRow()
		row.AddCell().SetString(string(c.Category))
		row.AddCell().SetInt(c.Count)
		row.AddCell().SetString(c.Color)
	}

	pois, err := f.AddSheet(SheetPOIs)
	if err != nil {
		return nil, eris.Wrap(err, "export: add pois sheet")
	}
	addRow(pois, "ID", "Kind", "Name", "Category", "Label", "Latitude", "Longitude")
	for _, p := range r.POIs {
		row := pois.AddRow()
		row.AddCell().SetString(p.ID)
		row.AddCell().SetString(p.Kind)
		row.AddCell().SetString(p.Name())
		row.AddCell().SetString(string(p.Category))
		row.AddCell().SetString(p.Label)
		row.AddCell().SetFloat(p.Location.Lat)
		row.AddCell().SetFloat(p.Location.Lon)
	}
	return f, nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addFloatRow(sheet *xlsx.Sheet, label string, v float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetFloat(v)
}

func addIntRow(sheet *xlsx.Sheet, label string, v int) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetInt(v)
}
