package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/pkg/overpass"
)

// DefaultOverpassTimeout is the server-side query timeout in seconds.
const DefaultOverpassTimeout = 60

// OverpassGraphs fetches walk networks from an Overpass interpreter.
type OverpassGraphs struct {
	Client      overpass.Client
	TimeoutSecs int
}

// FetchWalkNetwork implements GraphProvider. Every way is split into one
// edge per consecutive node pair; parallel segments get increasing keys.
func (o *OverpassGraphs) FetchWalkNetwork(ctx context.Context, center geo.Point, radiusMeters float64) (*RawNetwork, error) {
	ql := overpass.WalkNetworkQuery(center.Lat, center.Lon, radiusMeters, timeoutOr(o.TimeoutSecs))
	res, err := o.Client.Query(ctx, ql)
	if err != nil {
		return nil, eris.Wrap(err, "provider: overpass walk network")
	}
	return networkFromResult(res), nil
}

func networkFromResult(res *overpass.Result) *RawNetwork {
	raw := &RawNetwork{CRS: CRSWGS84}
	seen := make(map[int64]bool)
	type pair struct{ lo, hi int64 }
	keys := make(map[pair]int)

	for _, id := range sortedIDs(res.Ways) {
		way := res.Ways[id]
		if len(way.Nodes) < 2 || len(way.Nodes) != len(way.Geometry) || slices.Contains(way.Nodes, nil) {
			continue
		}
		for i, n := range way.Nodes {
			if !seen[n.ID] {
				seen[n.ID] = true
				raw.Nodes = append(raw.Nodes, RawNode{ID: n.ID, Lat: way.Geometry[i].Lat, Lon: way.Geometry[i].Lon})
			}
			if i == 0 {
				continue
			}
			from, to := way.Nodes[i-1].ID, n.ID
			if from == to {
				continue
			}
			p := pair{lo: min(from, to), hi: max(from, to)}
			raw.Edges = append(raw.Edges, RawEdge{
				From:  from,
				To:    to,
				Key:   keys[p],
				WayID: way.ID,
			})
			keys[p]++
		}
	}
	return raw
}

// OverpassFeatures fetches tagged features from an Overpass interpreter.
type OverpassFeatures struct {
	Client      overpass.Client
	TimeoutSecs int
}

// FetchFeatures implements FeatureProvider. The query covers the bounding
// box of region; containment is decided downstream.
func (o *OverpassFeatures) FetchFeatures(ctx context.Context, region *geom.Polygon, filter TagFilter) (*FeatureCollection, error) {
	if region == nil || region.Empty() {
		return nil, eris.New("provider: overpass features: empty region")
	}
	bb := geo.BoundsOf(region)
	ql := overpass.FeaturesQuery(overpass.BBox{
		South: bb.MinLat,
		West:  bb.MinLng,
		North: bb.MaxLat,
		East:  bb.MaxLng,
	}, filter, timeoutOr(o.TimeoutSecs))

	res, err := o.Client.Query(ctx, ql)
	if err != nil {
		return nil, eris.Wrap(err, "provider: overpass features")
	}

	fc := &FeatureCollection{CRS: CRSWGS84}
	add := func(kind overpass.ElementType, meta overpass.Meta, g geom.T) {
		if len(meta.Tags) == 0 || !filter.Matches(meta.Tags) {
			return
		}
		fc.Features = append(fc.Features, RawFeature{
			ID:       fmt.Sprintf("%s/%d", kind, meta.ID),
			Kind:     string(kind),
			Geometry: g,
			Tags:     meta.Tags,
		})
	}
	for _, id := range sortedIDs(res.Nodes) {
		n := res.Nodes[id]
		add(overpass.ElementTypeNode, n.Meta, geom.NewPointFlat(geom.XY, []float64{n.Lon, n.Lat}).SetSRID(geo.SRID))
	}
	for _, id := range sortedIDs(res.Ways) {
		w := res.Ways[id]
		add(overpass.ElementTypeWay, w.Meta, wayGeometry(w))
	}
	for _, id := range sortedIDs(res.Relations) {
		r := res.Relations[id]
		add(overpass.ElementTypeRelation, r.Meta, relationGeometry(r.Members))
	}
	return fc, nil
}

// wayGeometry returns a closed way as a polygon and an open one as a
// linestring, or nil when the way has too few points.
func wayGeometry(w *overpass.Way) geom.T {
	flat := flatCoords(w.Geometry)
	switch {
	case isClosedRing(flat):
		return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(geo.SRID)
	case len(flat) >= 4:
		return geom.NewLineStringFlat(geom.XY, flat).SetSRID(geo.SRID)
	}
	return nil
}

// relationGeometry builds a multipolygon from the closed outer rings of a
// relation. Inner rings are ignored.
func relationGeometry(members []overpass.RelationMember) geom.T {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(geo.SRID)
	for _, m := range members {
		if m.Type != overpass.ElementTypeWay || m.Way == nil || (m.Role != "outer" && m.Role != "") {
			continue
		}
		flat := flatCoords(m.Way.Geometry)
		if !isClosedRing(flat) {
			continue
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})); err != nil {
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// sortedIDs returns the keys of an element map in ascending order.
func sortedIDs[E any](m map[int64]E) []int64 {
	return slices.Sorted(maps.Keys(m))
}

func flatCoords(pts []overpass.Point) []float64 {
	flat := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		flat = append(flat, p.Lon, p.Lat)
	}
	return flat
}

func isClosedRing(flat []float64) bool {
	n := len(flat)
	return n >= 8 && flat[0] == flat[n-2] && flat[1] == flat[n-1]
}

func timeoutOr(secs int) int {
	if secs <= 0 {
		return DefaultOverpassTimeout
	}
	return secs
}
