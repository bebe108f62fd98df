package catchment

import (
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/network"
	"github.com/sells-group/catchment/internal/poi"
)

// ErrInvalidQuery is returned for queries outside the configured bounds.
var ErrInvalidQuery = eris.New("catchment: invalid query")

// Query is one catchment request.
type Query struct {
	Origin   geo.Point `json:"origin" yaml:"origin"`
	Minutes  float64   `json:"minutes" yaml:"minutes"`
	SpeedKPH float64   `json:"speed_kph,omitempty" yaml:"speed_kph,omitempty"`
}

// Key identifies the query for caching and deduplication. Coordinates are
// rounded to about 1 cm.
func (q Query) Key() string {
	return fmt.Sprintf("%.7f,%.7f,%g,%g", q.Origin.Lat, q.Origin.Lon, q.Minutes, q.SpeedKPH)
}

// Limits bounds and defaults query parameters.
type Limits struct {
	MinMinutes     float64 `yaml:"min_minutes"`
	MaxMinutes     float64 `yaml:"max_minutes"`
	DefaultMinutes float64 `yaml:"default_minutes"`
	DefaultSpeed   float64 `yaml:"default_speed_kph"`
}

// DefaultLimits allows 1 to 15 minutes at a default of 10, walking at
// network.DefaultWalkSpeedKPH.
func DefaultLimits() Limits {
	return Limits{
		MinMinutes:     1,
		MaxMinutes:     15,
		DefaultMinutes: 10,
		DefaultSpeed:   network.DefaultWalkSpeedKPH,
	}
}

// Normalize fills defaults and validates q against l.
func (l Limits) Normalize(q Query) (Query, error) {
	if err := q.Origin.Validate(); err != nil {
		return q, eris.Wrap(ErrInvalidQuery, err.Error())
	}
	if q.Minutes == 0 {
		q.Minutes = l.DefaultMinutes
	}
	if q.SpeedKPH == 0 {
		q.SpeedKPH = l.DefaultSpeed
	}
	if math.IsNaN(q.Minutes) || q.Minutes < l.MinMinutes || q.Minutes > l.MaxMinutes {
		return q, eris.Wrapf(ErrInvalidQuery, "minutes %v outside [%v, %v]", q.Minutes, l.MinMinutes, l.MaxMinutes)
	}
	if math.IsNaN(q.SpeedKPH) || math.IsInf(q.SpeedKPH, 0) || q.SpeedKPH <= 0 {
		return q, eris.Wrapf(ErrInvalidQuery, "walking speed %v km/h must be positive", q.SpeedKPH)
	}
	return q, nil
}

// EdgeGeometry is one reachable street segment as returned to callers.
type EdgeGeometry struct {
	From         int64       `json:"from" yaml:"from"`
	To           int64       `json:"to" yaml:"to"`
	Key          int         `json:"key" yaml:"key"`
	WayID        int64       `json:"way_id,omitempty" yaml:"way_id,omitempty"`
	LengthMeters float64     `json:"length_m" yaml:"length_m"`
	TimeMinutes  float64     `json:"time_min" yaml:"time_min"`
	Path         []geo.Point `json:"path" yaml:"path"`
}

// Result is a completed analysis. Results are never mutated; a new query
// produces a new Result.
type Result struct {
	ID        string         `json:"id" yaml:"id"`
	Query     Query          `json:"query" yaml:"query"`
	Polygon   geom.T         `json:"-" yaml:"-"`
	Edges     []EdgeGeometry `json:"edges" yaml:"edges"`
	POIs      []poi.Record   `json:"pois" yaml:"pois"`
	Stats     Stats          `json:"stats" yaml:"stats"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
}

// Origin returns the query origin.
func (r *Result) Origin() geo.Point { return r.Query.Origin }

// PolygonCoords returns the outer ring of the catchment polygon, or the
// degenerate point/line coordinates.
func (r *Result) PolygonCoords() []geo.Point {
	if r.Polygon == nil {
		return nil
	}
	var flat []float64
	switch p := r.Polygon.(type) {
	case *geom.Polygon:
		if p.NumLinearRings() > 0 {
			flat = p.LinearRing(0).FlatCoords()
		}
	default:
		flat = p.FlatCoords()
	}
	stride := r.Polygon.Stride()
	out := make([]geo.Point, 0, len(flat)/max(stride, 1))
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, geo.Point{Lon: flat[i], Lat: flat[i+1]})
	}
	return out
}

func edgeGeometries(g *network.Graph, edges []int) []EdgeGeometry {
	out := make([]EdgeGeometry, 0, len(edges))
	for _, ei := range edges {
		e := g.Edges[ei]
		out = append(out, EdgeGeometry{
			From:         g.Nodes[e.From].ID,
			To:           g.Nodes[e.To].ID,
			Key:          e.Key,
			WayID:        e.WayID,
			LengthMeters: e.LengthMeters,
			TimeMinutes:  e.TimeCost,
			Path:         e.Geometry,
		})
	}
	return out
}
