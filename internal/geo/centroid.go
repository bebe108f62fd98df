package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// ErrEmptyGeometry is returned when a centroid is requested for a geometry
// without coordinates.
var ErrEmptyGeometry = eris.New("geo: empty geometry")

// Centroid returns the representative centroid of g in its own coordinate
// space. Areal geometries use the area centroid, lineal geometries the
// length-weighted midpoint and point sets the arithmetic mean. Areal or
// lineal geometries that collapse to zero size fall back to the next lower
// dimension.
func Centroid(g geom.T) (Point, error) {
	if g == nil || len(g.FlatCoords()) == 0 {
		return Point{}, ErrEmptyGeometry
	}

	g = shellsIfDegenerate(g)
	c, err := xy.Centroid(g)
	if err != nil {
		return Point{}, eris.Wrapf(err, "geo: unsupported geometry %T", g)
	}
	if !finite(c) {
		// Zero-length lines.
		c = xy.PointsCentroidFlat(g.Layout(), g.FlatCoords())
	}
	if !finite(c) {
		return Point{}, eris.New("geo: non-finite centroid")
	}
	return FromCoord(c), nil
}

// shellsIfDegenerate replaces polygons holding a ring too short to have an
// orientation with the line centroid input of their shells.
func shellsIfDegenerate(g geom.T) geom.T {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{t}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	default:
		return g
	}

	degenerate := false
	shells := geom.NewMultiLineString(g.Layout())
	for _, poly := range polys {
		if poly.NumLinearRings() == 0 {
			degenerate = true
			continue
		}
		for r := 0; r < poly.NumLinearRings(); r++ {
			if poly.LinearRing(r).NumCoords() < 4 {
				degenerate = true
			}
		}
		shell := poly.LinearRing(0)
		_ = shells.Push(geom.NewLineStringFlat(shell.Layout(), shell.FlatCoords()))
	}
	if !degenerate {
		return g
	}
	return shells
}

func finite(c geom.Coord) bool {
	for _, v := range c[:2] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
