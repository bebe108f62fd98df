package provider

import (
	"context"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/resilience"
)

// GuardedGraphs retries a GraphProvider inside a circuit breaker.
type GuardedGraphs struct {
	Next  GraphProvider
	Guard *resilience.Guard
}

// FetchWalkNetwork implements GraphProvider.
func (g *GuardedGraphs) FetchWalkNetwork(ctx context.Context, center geo.Point, radiusMeters float64) (*RawNetwork, error) {
	raw, err := resilience.Call(ctx, g.Guard, func(ctx context.Context) (*RawNetwork, error) {
		return g.Next.FetchWalkNetwork(ctx, center, radiusMeters)
	})
	if err != nil {
		return nil, NewFetchError(g.Guard.Name, "fetch walk network", err)
	}
	return raw, nil
}

// GuardedFeatures retries a FeatureProvider inside a circuit breaker.
type GuardedFeatures struct {
	Next  FeatureProvider
	Guard *resilience.Guard
}

// FetchFeatures implements FeatureProvider.
func (g *GuardedFeatures) FetchFeatures(ctx context.Context, region *geom.Polygon, filter TagFilter) (*FeatureCollection, error) {
	fc, err := resilience.Call(ctx, g.Guard, func(ctx context.Context) (*FeatureCollection, error) {
		return g.Next.FetchFeatures(ctx, region, filter)
	})
	if err != nil {
		return nil, NewFetchError(g.Guard.Name, "fetch features", err)
	}
	return fc, nil
}
