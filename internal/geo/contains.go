package geo

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// Location of a point relative to a geometry.
type Location int

const (
	// Exterior means the point is outside the geometry.
	Exterior Location = iota
	// Boundary means the point lies on the geometry's boundary.
	Boundary
	// Interior means the point is strictly inside.
	Interior
)

// Locate classifies p against g. Only areal geometries have an interior;
// points and linestrings report Boundary when p lies on them.
func Locate(g geom.T, p Point) Location {
	switch t := g.(type) {
	case *geom.Polygon:
		return locateInPolygon(t, p)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if loc := locateInPolygon(t.Polygon(i), p); loc != Exterior {
				return loc
			}
		}
		return Exterior
	case *geom.LineString:
		if onLine(t.Layout(), t.FlatCoords(), p) {
			return Boundary
		}
		return Exterior
	case *geom.Point:
		if t.X() == p.Lon && t.Y() == p.Lat {
			return Boundary
		}
		return Exterior
	}
	return Exterior
}

// ContainsStrict reports whether p lies strictly inside g.
func ContainsStrict(g geom.T, p Point) bool {
	return Locate(g, p) == Interior
}

// Covers reports whether p lies inside g or on its boundary.
func Covers(g geom.T, p Point) bool {
	return Locate(g, p) != Exterior
}

func locateInPolygon(poly *geom.Polygon, p Point) Location {
	if poly.NumLinearRings() == 0 {
		return Exterior
	}
	shell := locateInRing(poly.LinearRing(0), p)
	if shell != Interior {
		return shell
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		switch locateInRing(poly.LinearRing(i), p) {
		case Boundary:
			return Boundary
		case Interior:
			return Exterior
		}
	}
	return Interior
}

func locateInRing(ring *geom.LinearRing, p Point) Location {
	// Fewer than three vertices plus closure encloses nothing.
	if ring.NumCoords() < 4 {
		if onLine(ring.Layout(), ring.FlatCoords(), p) {
			return Boundary
		}
		return Exterior
	}
	switch xy.LocatePointInRing(ring.Layout(), p.Coord(), ring.FlatCoords()) {
	case location.Interior:
		return Interior
	case location.Boundary:
		return Boundary
	}
	return Exterior
}

func onLine(layout geom.Layout, flat []float64, p Point) bool {
	stride := layout.Stride()
	switch {
	case len(flat) == 0:
		return false
	case len(flat) < 2*stride:
		return flat[0] == p.Lon && flat[1] == p.Lat
	}
	return xy.IsOnLine(layout, p.Coord(), flat)
}
