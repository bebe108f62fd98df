package geo

import (
	"slices"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// ConvexHull returns the convex hull of pts in geographic (lon, lat) space.
//
// The result is a counter-clockwise *geom.Polygon when at least three
// non-collinear points exist, a *geom.LineString between the two extreme
// points when all points are collinear, a *geom.Point when only one distinct
// point exists, and nil for empty input. Output is independent of input order.
func ConvexHull(pts []Point) geom.T {
	uniq := uniquePoints(pts)
	switch len(uniq) {
	case 0:
		return nil
	case 1:
		return geom.NewPointFlat(geom.XY, []float64{uniq[0].Lon, uniq[0].Lat}).SetSRID(SRID)
	case 2:
		return segment(uniq[0], uniq[1])
	}

	flat := make([]float64, 0, 2*len(uniq))
	for _, p := range uniq {
		flat = append(flat, p.Lon, p.Lat)
	}
	switch h := xy.ConvexHullFlat(geom.XY, flat).(type) {
	case *geom.Polygon:
		ring := canonicalRing(h.LinearRing(0).FlatCoords())
		return geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)}).SetSRID(SRID)
	case *geom.LineString:
		a, b := FromCoord(h.Coord(0)), FromCoord(h.Coord(h.NumCoords()-1))
		if comparePoints(a, b) > 0 {
			a, b = b, a
		}
		return segment(a, b)
	}
	// Sorted unique input: the extremes span every collinear point.
	return segment(uniq[0], uniq[len(uniq)-1])
}

func segment(a, b Point) *geom.LineString {
	return geom.NewLineStringFlat(geom.XY, []float64{a.Lon, a.Lat, b.Lon, b.Lat}).SetSRID(SRID)
}

// canonicalRing orients a closed ring counter-clockwise and rotates it to
// start at its smallest vertex.
func canonicalRing(closed []float64) []float64 {
	open := slices.Clone(closed[:len(closed)-2])
	if !xy.IsRingCounterClockwise(geom.XY, closed) {
		for i, j := 0, len(open)-2; i < j; i, j = i+2, j-2 {
			open[i], open[i+1], open[j], open[j+1] = open[j], open[j+1], open[i], open[i+1]
		}
	}
	start := 0
	for i := 2; i < len(open); i += 2 {
		if comparePoints(Point{Lon: open[i], Lat: open[i+1]}, Point{Lon: open[start], Lat: open[start+1]}) < 0 {
			start = i
		}
	}
	ring := make([]float64, 0, len(closed))
	ring = append(ring, open[start:]...)
	ring = append(ring, open[:start]...)
	return append(ring, open[start], open[start+1])
}

// uniquePoints sorts by (lon, lat) and drops exact duplicates.
func uniquePoints(pts []Point) []Point {
	out := slices.Clone(pts)
	slices.SortFunc(out, comparePoints)
	return slices.Compact(out)
}

func comparePoints(a, b Point) int {
	switch {
	case a.Lon < b.Lon:
		return -1
	case a.Lon > b.Lon:
		return 1
	case a.Lat < b.Lat:
		return -1
	case a.Lat > b.Lat:
		return 1
	}
	return 0
}
