package network

import (
	"container/heap"
	"math"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catchment/internal/geo"
)

// DefaultSafetyFactor pads the fetch radius so that the true isochrone is
// never truncated by the edge of the fetched region.
const DefaultSafetyFactor = 1.2

// budgetTolerance is the relative slack allowed when summing edge times.
// Times within the slack are clamped to the budget.
const budgetTolerance = 1e-12

// SearchRadius returns the fetch radius in metres for a time budget:
// (minutes/60) * speed * 1000 * safety. Safety factors below 1 are raised
// to 1.
func SearchRadius(minutes, speedKPH, safety float64) float64 {
	if safety < 1 || math.IsNaN(safety) {
		safety = 1
	}
	return (minutes / 60) * speedKPH * 1000 * safety
}

// NearestNode returns the index of the node closest to p in the projected
// frame and its distance in metres. Equal distances resolve to the lowest
// node ID.
func (g *Graph) NearestNode(p geo.Point) (int, float64, error) {
	if len(g.Nodes) == 0 {
		return -1, 0, ErrNoNetworkFound
	}
	px, py := g.Projection.Forward(p)
	best, bestD := -1, math.Inf(1)
	for i, n := range g.Nodes {
		d := math.Hypot(n.X-px, n.Y-py)
		if d < bestD {
			best, bestD = i, d
		}
	}
	if best < 0 {
		return -1, 0, ErrNoNetworkFound
	}
	return best, bestD, nil
}

// ShortestTimes runs Dijkstra from origin over edge time costs and returns
// the shortest walking time of every node reachable within budget minutes.
// Nodes beyond the budget are never settled. A path whose summed time
// exceeds the budget by less than a relative 1e-12 (rounding in the sum) is
// accepted and its time clamped to budget, so every returned time is at
// most budget.
func ShortestTimes(g *Graph, origin int, budget float64) (map[int]float64, error) {
	if !g.weighted {
		return nil, eris.New("network: shortest times: edge time costs not assigned")
	}
	if origin < 0 || origin >= len(g.Nodes) {
		return nil, eris.Errorf("network: origin index %d out of range", origin)
	}
	if budget <= 0 || math.IsNaN(budget) {
		return nil, eris.Errorf("network: time budget must be positive, got %v", budget)
	}

	limit := budget * (1 + budgetTolerance)
	dist := map[int]float64{origin: 0}
	settled := make(map[int]bool)

	pq := &timeQueue{}
	heap.Push(pq, queueItem{node: origin, time: 0})
	for pq.Len() > 0 {
		item := heap.Pop(pq).(queueItem)
		if settled[item.node] {
			continue
		}
		settled[item.node] = true

		for _, ei := range g.adj[item.node] {
			e := g.Edges[ei]
			next := g.Neighbor(e, item.node)
			if settled[next] {
				continue
			}
			t := item.time + e.TimeCost
			if t > limit {
				continue
			}
			t = min(t, budget)
			if old, ok := dist[next]; !ok || t < old {
				dist[next] = t
				heap.Push(pq, queueItem{node: next, time: t})
			}
		}
	}
	return dist, nil
}

// InducedEdges returns, in graph order, every edge whose two endpoints are
// both keys of times. This includes cross-links that lie on no shortest path.
func InducedEdges(g *Graph, times map[int]float64) []int {
	var out []int
	for i, e := range g.Edges {
		_, okFrom := times[e.From]
		_, okTo := times[e.To]
		if okFrom && okTo {
			out = append(out, i)
		}
	}
	return out
}

// ReachableSet is the ego network of an origin node under a time budget.
type ReachableSet struct {
	Origin int             `json:"origin"`
	Budget float64         `json:"budget_min"`
	Times  map[int]float64 `json:"-"`
	Nodes  []int           `json:"nodes"`
	Edges  []int           `json:"edges"`
}

// Contains reports whether node index i is reachable.
func (rs *ReachableSet) Contains(i int) bool {
	_, ok := rs.Times[i]
	return ok
}

// Reachable computes the time-bounded reachable subgraph from origin: the
// nodes within budget minutes and the edges induced by them.
func Reachable(g *Graph, origin int, budget float64) (*ReachableSet, error) {
	times, err := ShortestTimes(g, origin, budget)
	if err != nil {
		return nil, err
	}
	nodes := make([]int, 0, len(times))
	for i := range times {
		nodes = append(nodes, i)
	}
	slices.Sort(nodes)
	return &ReachableSet{
		Origin: origin,
		Budget: budget,
		Times:  times,
		Nodes:  nodes,
		Edges:  InducedEdges(g, times),
	}, nil
}

type queueItem struct {
	node int
	time float64
}

// timeQueue is a min-heap on time, then node index.
type timeQueue []queueItem

func (q timeQueue) Len() int { return len(q) }
func (q timeQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].node < q[j].node
}
func (q timeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timeQueue) Push(x any) { *q = append(*q, x.(queueItem)) }

func (q *timeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
