// Package export renders catchment results as GeoJSON, JSON, YAML, XLSX
// and ESRI shapefiles.
package export

import (
	"encoding/json"
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catchment/internal/catchment"
)

// Format names an output encoding.
type Format string

// Supported formats.
const (
	FormatGeoJSON   Format = "geojson"
	FormatJSON      Format = "json"
	FormatYAML      Format = "yaml"
	FormatXLSX      Format = "xlsx"
	FormatShapefile Format = "shapefile"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatGeoJSON, FormatJSON, FormatYAML, FormatXLSX, FormatShapefile}
}

// ParseFormat resolves a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "shp" {
		f = FormatShapefile
	}
	if !slices.Contains(Formats(), f) {
		return "", eris.Errorf("export: unknown format %q", s)
	}
	return f, nil
}

// Streamable reports whether the format can be written to a single stream.
func (f Format) Streamable() bool {
	return f != FormatShapefile
}

// ContentType returns the HTTP media type of a streamable format.
func (f Format) ContentType() string {
	switch f {
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatYAML:
		return "application/yaml"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Write encodes r to w. Shapefiles span several files; use WriteShapefiles.
func Write(w io.Writer, r *catchment.Result, f Format) error {
	if r == nil {
		return eris.New("export: nil result")
	}
	switch f {
	case FormatGeoJSON:
		fc, err := GeoJSON(r)
		if err != nil {
			return err
		}
		return encodeJSON(w, fc)
	case FormatJSON:
		return encodeJSON(w, r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "export: encode yaml")
		}
		return eris.Wrap(enc.Close(), "export: close yaml encoder")
	case FormatXLSX:
		return WriteXLSX(w, r)
	case FormatShapefile:
		return eris.New("export: shapefile output needs a directory")
	}
	return eris.Errorf("export: unknown format %q", f)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}
