// Package geo provides the planar and geodetic primitives used by catchment
// analysis: points, bounding boxes, a local equal-area projection, convex
// hulls, containment tests and centroids.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SRID of WGS84 geographic coordinates.
const SRID = 4326

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate rejects non-finite or out-of-range coordinates.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return eris.Errorf("geo: non-finite coordinate (%v, %v)", p.Lat, p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Errorf("geo: latitude %v out of range", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return eris.Errorf("geo: longitude %v out of range", p.Lon)
	}
	return nil
}

// Coord returns the point as an XY go-geom coordinate (lon, lat).
func (p Point) Coord() geom.Coord {
	return geom.Coord{p.Lon, p.Lat}
}

// FromCoord converts an XY coordinate (lon, lat) back into a Point.
func FromCoord(c geom.Coord) Point {
	return Point{Lat: c.Y(), Lon: c.X()}
}

// BBox represents a geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// BoundsOf returns the bounding box of a geometry in geographic coordinates.
func BoundsOf(g geom.T) BBox {
	b := g.Bounds()
	return BBox{MinLng: b.Min(0), MinLat: b.Min(1), MaxLng: b.Max(0), MaxLat: b.Max(1)}
}

// Contains reports whether p falls inside the box, edges included.
func (b BBox) Contains(p Point) bool {
	return p.Lon >= b.MinLng && p.Lon <= b.MaxLng && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// NewPolygon builds a single-ring polygon from points. The ring is closed
// if the caller did not repeat the first point.
func NewPolygon(ring []Point) (*geom.Polygon, error) {
	if len(ring) < 3 {
		return nil, eris.Errorf("geo: polygon ring needs at least 3 points, got %d", len(ring))
	}
	flat := make([]float64, 0, 2*(len(ring)+1))
	for _, p := range ring {
		flat = append(flat, p.Lon, p.Lat)
	}
	if ring[0] != ring[len(ring)-1] {
		flat = append(flat, ring[0].Lon, ring[0].Lat)
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(SRID), nil
}
