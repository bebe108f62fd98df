// Package catchment runs walking catchment analyses: it fetches the walk
// network around an origin, bounds it by walking time, derives the
// catchment polygon, and classifies the points of interest inside it.
package catchment

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/network"
)

// BuildHull returns the convex hull of the reachable nodes and the query
// origin in geographic coordinates. Fewer than three distinct or collinear
// points yield a *geom.Point or *geom.LineString.
func BuildHull(g *network.Graph, rs *network.ReachableSet, origin geo.Point) geom.T {
	pts := make([]geo.Point, 0, len(rs.Nodes)+1)
	for _, i := range rs.Nodes {
		pts = append(pts, g.Nodes[i].Point)
	}
	pts = append(pts, origin)
	return geo.ConvexHull(pts)
}

// IsAreal reports whether a catchment polygon has non-zero extent.
func IsAreal(polygon geom.T) bool {
	_, ok := polygon.(*geom.Polygon)
	return ok
}
