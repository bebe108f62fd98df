package network

import (
	"math"

	"github.com/rotisserie/eris"
)

// DefaultWalkSpeedKPH is the uniform walking speed used when none is given.
const DefaultWalkSpeedKPH = 4.5

// MetersPerMinute converts a speed in km/h into metres per minute.
func MetersPerMinute(speedKPH float64) float64 {
	return speedKPH * 1000 / 60
}

// AssignWalkTimes sets every edge's TimeCost to its walking time in minutes
// at speedKPH. The graph must come from Build so that lengths are metric.
func AssignWalkTimes(g *Graph, speedKPH float64) error {
	if g == nil {
		return eris.New("network: assign walk times: nil graph")
	}
	if speedKPH <= 0 || math.IsNaN(speedKPH) || math.IsInf(speedKPH, 0) {
		return eris.Errorf("network: invalid walking speed %v km/h", speedKPH)
	}
	if g.Projection == nil {
		return eris.New("network: assign walk times: graph is not in a projected metric frame")
	}

	mpm := MetersPerMinute(speedKPH)
	for i := range g.Edges {
		g.Edges[i].TimeCost = g.Edges[i].LengthMeters / mpm
	}
	g.weighted = true
	return nil
}
