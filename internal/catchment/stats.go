package catchment

import (
	"cmp"
	"slices"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/network"
	"github.com/sells-group/catchment/internal/poi"
)

// Stats summarizes a catchment.
type Stats struct {
	AreaKM2        float64         `json:"area_km2" yaml:"area_km2"`
	StreetLengthKM float64         `json:"street_length_km" yaml:"street_length_km"`
	NodeCount      int             `json:"node_count" yaml:"node_count"`
	EdgeCount      int             `json:"edge_count" yaml:"edge_count"`
	POICount       int             `json:"poi_count" yaml:"poi_count"`
	Categories     []CategoryCount `json:"categories" yaml:"categories"`
}

// CategoryCount is the number of POIs in one category.
type CategoryCount struct {
	Category poi.Category `json:"category" yaml:"category"`
	Count    int          `json:"count" yaml:"count"`
	Color    string       `json:"color" yaml:"color"`
}

// Aggregate computes catchment metrics. Street length sums the physical
// length of each reachable edge once. Area is measured in an equal-area
// projection centred on the polygon; degenerate polygons have zero area.
func Aggregate(g *network.Graph, rs *network.ReachableSet, polygon geom.T, pois []poi.Record) Stats {
	var meters float64
	for _, ei := range rs.Edges {
		meters += g.Edges[ei].LengthMeters
	}

	var area float64
	if polygon != nil {
		area = geo.AreaSquareMeters(polygon) / 1e6
	}

	return Stats{
		AreaKM2:        area,
		StreetLengthKM: meters / 1000,
		NodeCount:      len(rs.Nodes),
		EdgeCount:      len(rs.Edges),
		POICount:       len(pois),
		Categories:     CountCategories(pois),
	}
}

// CountCategories tallies POIs per category, largest first and by name on
// ties.
func CountCategories(pois []poi.Record) []CategoryCount {
	counts := make(map[poi.Category]int)
	for _, p := range pois {
		counts[p.Category]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, CategoryCount{Category: c, Count: n, Color: c.Color()})
	}
	slices.SortFunc(out, func(a, b CategoryCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Category, b.Category))
	})
	return out
}
