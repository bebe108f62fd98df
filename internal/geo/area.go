package geo

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// AreaSquareMeters returns the ground area of g in square metres. The
// geometry is projected into a Lambert azimuthal equal-area frame centred on
// its own centroid before the planar area is taken. Non-areal, empty or
// degenerate geometries have zero area.
func AreaSquareMeters(g geom.T) float64 {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{t}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	default:
		return 0
	}

	c, err := Centroid(g)
	if err != nil {
		return 0
	}
	proj := NewProjection(c)

	var total float64
	for _, poly := range polys {
		for r := 0; r < poly.NumLinearRings(); r++ {
			ring := poly.LinearRing(r)
			// Winding varies between sources; shells add and holes subtract.
			a := math.Abs(xy.SignedArea(geom.XY, projectRing(proj, ring)))
			if r == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	if total < 0 || math.IsNaN(total) {
		return 0
	}
	return total
}

// projectRing returns the ring's vertices as XY metres in proj's frame.
func projectRing(proj *Projection, ring *geom.LinearRing) []float64 {
	out := make([]float64, 0, 2*ring.NumCoords())
	for i := 0; i < ring.NumCoords(); i++ {
		x, y := proj.Forward(FromCoord(ring.Coord(i)))
		out = append(out, x, y)
	}
	return out
}
