// Package network holds the walkable street graph of a single query and the
// time-bounded reachability search over it.
package network

import (
	"cmp"
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/provider"
)

// ErrNoNetworkFound is returned when a fetched region holds no usable walk
// network for the query origin.
var ErrNoNetworkFound = eris.New("network: no walkable street network found")

// Node is a graph vertex with geographic and projected coordinates.
type Node struct {
	ID    int64     `json:"id"`
	Point geo.Point `json:"point"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
}

// Edge is an undirected street segment between two node indices.
type Edge struct {
	From         int         `json:"from"`
	To           int         `json:"to"`
	Key          int         `json:"key"`
	WayID        int64       `json:"way_id,omitempty"`
	LengthMeters float64     `json:"length_m"`
	TimeCost     float64     `json:"time_min"`
	Geometry     []geo.Point `json:"geometry"`
}

// Graph is the walk network of one query, projected into a local metric
// frame. Nodes are ordered by ascending ID and edges by endpoint IDs and key,
// so index order is a stable tie-breaker.
type Graph struct {
	Projection *geo.Projection
	Nodes      []Node
	Edges      []Edge

	index    map[int64]int
	adj      [][]int
	weighted bool
}

// Build converts a provider payload into a projected Graph centred on
// center. Payloads must be in WGS84; any other declared CRS fails fast.
// Nodes with invalid coordinates and edges referencing unknown nodes are
// dropped. A reversed duplicate of an edge with the same key is the same
// physical segment and is kept once. Missing edge lengths are derived from
// the projected edge geometry.
func Build(raw *provider.RawNetwork, center geo.Point) (*Graph, error) {
	if raw == nil || len(raw.Nodes) == 0 || len(raw.Edges) == 0 {
		return nil, ErrNoNetworkFound
	}
	if err := provider.CheckCRS(raw.CRS); err != nil {
		return nil, eris.Wrap(err, "network: build")
	}
	if err := center.Validate(); err != nil {
		return nil, eris.Wrap(err, "network: build center")
	}

	proj := geo.NewProjection(center)
	g := &Graph{Projection: proj, index: make(map[int64]int, len(raw.Nodes))}

	nodes := make([]Node, 0, len(raw.Nodes))
	seen := make(map[int64]bool, len(raw.Nodes))
	var badNodes int
	for _, rn := range raw.Nodes {
		p := geo.Point{Lat: rn.Lat, Lon: rn.Lon}
		if seen[rn.ID] {
			continue
		}
		if p.Validate() != nil {
			badNodes++
			continue
		}
		seen[rn.ID] = true
		x, y := proj.Forward(p)
		nodes = append(nodes, Node{ID: rn.ID, Point: p, X: x, Y: y})
	}
	slices.SortFunc(nodes, func(a, b Node) int { return cmp.Compare(a.ID, b.ID) })
	g.Nodes = nodes
	for i, n := range nodes {
		g.index[n.ID] = i
	}

	type edgeKey struct {
		lo, hi int64
		key    int
	}
	dedup := make(map[edgeKey]bool, len(raw.Edges))
	edges := make([]Edge, 0, len(raw.Edges))
	var dangling int
	for _, re := range raw.Edges {
		from, okFrom := g.index[re.From]
		to, okTo := g.index[re.To]
		if !okFrom || !okTo {
			dangling++
			continue
		}
		k := edgeKey{lo: min(re.From, re.To), hi: max(re.From, re.To), key: re.Key}
		if dedup[k] {
			continue
		}
		dedup[k] = true

		path := re.Geometry
		if len(path) < 2 {
			path = []geo.Point{nodes[from].Point, nodes[to].Point}
		}
		length := re.LengthMeters
		if length <= 0 || math.IsNaN(length) || math.IsInf(length, 0) {
			length = proj.PathLength(path)
		}
		edges = append(edges, Edge{
			From:         from,
			To:           to,
			Key:          re.Key,
			WayID:        re.WayID,
			LengthMeters: length,
			Geometry:     path,
		})
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		return cmp.Or(
			cmp.Compare(nodes[a.From].ID, nodes[b.From].ID),
			cmp.Compare(nodes[a.To].ID, nodes[b.To].ID),
			cmp.Compare(a.Key, b.Key),
		)
	})
	g.Edges = edges

	if badNodes > 0 || dangling > 0 {
		zap.L().Debug("network: dropped malformed elements",
			zap.Int("bad_nodes", badNodes),
			zap.Int("dangling_edges", dangling),
		)
	}
	if len(g.Edges) == 0 {
		return nil, ErrNoNetworkFound
	}

	g.buildAdjacency()
	return g, nil
}

func (g *Graph) buildAdjacency() {
	g.adj = make([][]int, len(g.Nodes))
	for i, e := range g.Edges {
		g.adj[e.From] = append(g.adj[e.From], i)
		if e.To != e.From {
			g.adj[e.To] = append(g.adj[e.To], i)
		}
	}
}

// NodeIndex returns the index of the node with the given ID.
func (g *Graph) NodeIndex(id int64) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Degree returns the number of edges incident to node i.
func (g *Graph) Degree(i int) int {
	if i < 0 || i >= len(g.adj) {
		return 0
	}
	return len(g.adj[i])
}

// Neighbor returns the node at the other end of edge e from node i.
func (g *Graph) Neighbor(e Edge, i int) int {
	if e.From == i {
		return e.To
	}
	return e.From
}

// Weighted reports whether edge time costs have been assigned.
func (g *Graph) Weighted() bool { return g.weighted }
