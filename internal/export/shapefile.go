package export

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/catchment/internal/catchment"
	"github.com/sells-group/catchment/internal/geo"
)

// Shapefile layer suffixes. A shapefile holds one geometry type, so each
// layer is written to its own file set.
const (
	ShapefileCatchment = "_catchment.shp"
	ShapefileStreets   = "_streets.shp"
	ShapefilePOIs      = "_pois.shp"
)

// WriteShapefiles writes the catchment polygon, street segments and POIs
// as three shapefiles named base plus a layer suffix inside dir. A
// degenerate catchment has no polygon layer. It returns the .shp paths
// written.
func WriteShapefiles(dir, base string, r *catchment.Result) ([]string, error) {
	if r == nil {
		return nil, eris.New("export: nil result")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create %s", dir)
	}

	var written []string
	if poly, ok := r.Polygon.(*geom.Polygon); ok {
		path := filepath.Join(dir, base+ShapefileCatchment)
		if err := writeCatchmentShapefile(path, poly, r); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	path := filepath.Join(dir, base+ShapefileStreets)
	if err := writeStreetShapefile(path, r); err != nil {
		return written, err
	}
	written = append(written, path)

	path = filepath.Join(dir, base+ShapefilePOIs)
	if err := writePOIShapefile(path, r); err != nil {
		return written, err
	}
	return append(written, path), nil
}

func writeCatchmentShapefile(path string, poly *geom.Polygon, r *catchment.Result) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer w.Close()

	w.SetFields([]shp.Field{ //nolint:errcheck
		shp.StringField("ID", 36),
		shp.FloatField("MINUTES", 8, 2),
		shp.FloatField("SPEED_KPH", 8, 2),
		shp.FloatField("AREA_KM2", 12, 4),
		shp.FloatField("STREET_KM", 12, 3),
		shp.NumberField("POI_COUNT", 8),
	})

	var parts [][]shp.Point
	for i := range poly.NumLinearRings() {
		ring := shpPoints(poly.LinearRing(i).FlatCoords(), poly.Stride())
		// Shapefile outer rings run clockwise.
		if i == 0 {
			reversePoints(ring)
		}
		parts = append(parts, ring)
	}
	n := int(w.Write((*shp.Polygon)(shp.NewPolyLine(parts))))
	w.WriteAttribute(n, 0, r.ID)                   //nolint:errcheck
	w.WriteAttribute(n, 1, r.Query.Minutes)        //nolint:errcheck
	w.WriteAttribute(n, 2, r.Query.SpeedKPH)       //nolint:errcheck
	w.WriteAttribute(n, 3, r.Stats.AreaKM2)        //nolint:errcheck
	w.WriteAttribute(n, 4, r.Stats.StreetLengthKM) //nolint:errcheck
	w.WriteAttribute(n, 5, r.Stats.POICount)       //nolint:errcheck
	return nil
}

func writeStreetShapefile(path string, r *catchment.Result) error {
	w, err := shp.Create(path, shp.POLYLINE)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer w.Close()

	// go-shp formats only int, float64 and string values, so int64 IDs
	// are written as decimal strings.
	w.SetFields([]shp.Field{ //nolint:errcheck
		shp.NumberField("FROM_ID", 19),
		shp.NumberField("TO_ID", 19),
		shp.NumberField("EDGE_KEY", 6),
		shp.NumberField("WAY_ID", 19),
		shp.FloatField("LENGTH_M", 12, 2),
		shp.FloatField("TIME_MIN", 10, 3),
	})
	for _, e := range r.Edges {
		if len(e.Path) < 2 {
			continue
		}
		n := int(w.Write(shp.NewPolyLine([][]shp.Point{pathPoints(e.Path)})))
		w.WriteAttribute(n, 0, strconv.FormatInt(e.From, 10))  //nolint:errcheck
		w.WriteAttribute(n, 1, strconv.FormatInt(e.To, 10))    //nolint:errcheck
		w.WriteAttribute(n, 2, e.Key)                          //nolint:errcheck
		w.WriteAttribute(n, 3, strconv.FormatInt(e.WayID, 10)) //nolint:errcheck
		w.WriteAttribute(n, 4, e.LengthMeters)                 //nolint:errcheck
		w.WriteAttribute(n, 5, e.TimeMinutes)                  //nolint:errcheck
	}
	return nil
}

func writePOIShapefile(path string, r *catchment.Result) error {
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer w.Close()

	w.SetFields([]shp.Field{ //nolint:errcheck
		shp.StringField("ID", 40),
		shp.StringField("KIND", 10),
		shp.StringField("NAME", 80),
		shp.StringField("CATEGORY", 24),
		shp.StringField("LABEL", 120),
		shp.StringField("COLOR", 7),
	})
	for _, p := range r.POIs {
		n := int(w.Write(&shp.Point{X: p.Location.Lon, Y: p.Location.Lat}))
		w.WriteAttribute(n, 0, p.ID)               //nolint:errcheck
		w.WriteAttribute(n, 1, p.Kind)             //nolint:errcheck
		w.WriteAttribute(n, 2, p.Name())           //nolint:errcheck
		w.WriteAttribute(n, 3, string(p.Category)) //nolint:errcheck
		w.WriteAttribute(n, 4, p.Label)            //nolint:errcheck
		w.WriteAttribute(n, 5, p.Category.Color()) //nolint:errcheck
	}
	return nil
}

func shpPoints(flat []float64, stride int) []shp.Point {
	out := make([]shp.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return out
}

func pathPoints(path []geo.Point) []shp.Point {
	out := make([]shp.Point, len(path))
	for i, p := range path {
		out[i] = shp.Point{X: p.Lon, Y: p.Lat}
	}
	return out
}

func reversePoints(pts []shp.Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}
