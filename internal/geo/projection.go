package geo

import (
	"math"
)

// WGS84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84E2 = 0.00669437999014
)

// Projection is an oblique Lambert azimuthal equal-area projection on the
// WGS84 ellipsoid, centred on a chosen point. Areas measured in projected
// metres are true ground areas; distances are exact along radials from the
// centre and within a few parts per million elsewhere for catchment-sized
// extents.
type Projection struct {
	center Point

	e      float64
	qp     float64
	rq     float64
	d      float64
	lon0   float64
	sinB1  float64
	cosB1  float64
	hasPol bool
}

// NewProjection returns a local equal-area projection centred on c.
func NewProjection(c Point) *Projection {
	e := math.Sqrt(wgs84E2)
	p := &Projection{center: c, e: e, lon0: radians(c.Lon)}
	p.qp = p.q(math.Pi / 2)
	p.rq = wgs84A * math.Sqrt(p.qp/2)

	phi1 := radians(c.Lat)
	sinPhi1 := math.Sin(phi1)
	b1 := math.Asin(clamp(p.q(phi1)/p.qp, -1, 1))
	p.sinB1, p.cosB1 = math.Sin(b1), math.Cos(b1)

	m1 := math.Cos(phi1) / math.Sqrt(1-wgs84E2*sinPhi1*sinPhi1)
	if p.cosB1 < 1e-12 {
		// Polar aspect: D is undefined, the oblique formulas degenerate.
		p.hasPol = true
		p.d = 1
	} else {
		p.d = wgs84A * m1 / (p.rq * p.cosB1)
	}
	return p
}

// Center returns the projection centre.
func (p *Projection) Center() Point { return p.center }

// Forward projects a geographic point to planar metres (x east, y north).
func (p *Projection) Forward(pt Point) (x, y float64) {
	phi := radians(pt.Lat)
	dLon := radians(pt.Lon) - p.lon0
	beta := math.Asin(clamp(p.q(phi)/p.qp, -1, 1))
	sinB, cosB := math.Sin(beta), math.Cos(beta)

	if p.hasPol {
		// North or south polar aspect.
		rho := p.rq * math.Sqrt(math.Max(0, 2*(1-math.Abs(sinB))))
		if p.sinB1 > 0 {
			return rho * math.Sin(dLon), -rho * math.Cos(dLon)
		}
		return rho * math.Sin(dLon), rho * math.Cos(dLon)
	}

	denom := 1 + p.sinB1*sinB + p.cosB1*cosB*math.Cos(dLon)
	if denom <= 0 {
		// Antipode of the centre; not representable.
		return math.NaN(), math.NaN()
	}
	b := p.rq * math.Sqrt(2/denom)
	x = b * p.d * cosB * math.Sin(dLon)
	y = (b / p.d) * (p.cosB1*sinB - p.sinB1*cosB*math.Cos(dLon))
	return x, y
}

// Distance returns the planar distance in metres between two geographic
// points measured in this projection.
func (p *Projection) Distance(a, b Point) float64 {
	ax, ay := p.Forward(a)
	bx, by := p.Forward(b)
	return math.Hypot(bx-ax, by-ay)
}

// PathLength returns the planar length in metres of a polyline.
func (p *Projection) PathLength(path []Point) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += p.Distance(path[i-1], path[i])
	}
	return total
}

// q is the authalic latitude helper from Snyder, Map Projections (3-12).
func (p *Projection) q(phi float64) float64 {
	s := math.Sin(phi)
	es := p.e * s
	return (1 - wgs84E2) * (s/(1-wgs84E2*s*s) - (1/(2*p.e))*math.Log((1-es)/(1+es)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
