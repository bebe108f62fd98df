package catchment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/network"
	"github.com/sells-group/catchment/internal/poi"
	"github.com/sells-group/catchment/internal/provider"
)

// ErrAnalysisFailed matches every error returned by Analyzer.Analyze.
var ErrAnalysisFailed = eris.New("catchment: analysis failed")

// AnalysisError reports the stage at which an analysis failed. It matches
// ErrAnalysisFailed with errors.Is and unwraps to the cause, which is
// ErrInvalidQuery, network.ErrNoNetworkFound or a *provider.FetchError for
// the expected failure modes.
type AnalysisError struct {
	Stage string
	Query Query
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("catchment: %s: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Is matches ErrAnalysisFailed.
func (e *AnalysisError) Is(target error) bool { return target == ErrAnalysisFailed }

// Analyzer runs catchment analyses against a graph and a feature provider.
// It is safe for concurrent use; identical in-flight queries share one
// computation.
type Analyzer struct {
	graphs       provider.GraphProvider
	features     provider.FeatureProvider
	limits       Limits
	safety       float64
	fetchTimeout time.Duration
	filter       provider.TagFilter

	group singleflight.Group
	now   func() time.Time
	newID func() string
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLimits sets query bounds and defaults.
func WithLimits(l Limits) Option {
	return func(a *Analyzer) { a.limits = l }
}

// WithSafetyFactor pads the network fetch radius. Values below 1 are
// raised to 1 by network.SearchRadius.
func WithSafetyFactor(f float64) Option {
	return func(a *Analyzer) { a.safety = f }
}

// WithFetchTimeout bounds each provider call. Zero disables the timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.fetchTimeout = d }
}

// WithTagFilter overrides the feature selection.
func WithTagFilter(f provider.TagFilter) Option {
	return func(a *Analyzer) { a.filter = f }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(graphs provider.GraphProvider, features provider.FeatureProvider, opts ...Option) *Analyzer {
	a := &Analyzer{
		graphs:       graphs,
		features:     features,
		limits:       DefaultLimits(),
		safety:       network.DefaultSafetyFactor,
		fetchTimeout: 60 * time.Second,
		filter:       provider.DefaultTagFilter(),
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Limits returns the query bounds in effect.
func (a *Analyzer) Limits() Limits { return a.limits }

// Normalize applies the analyzer's defaults and bounds to q.
func (a *Analyzer) Normalize(q Query) (Query, error) {
	return a.limits.Normalize(q)
}

// Analyze computes the catchment for q. Every error matches
// ErrAnalysisFailed; no partial result is returned on failure.
//
// Identical in-flight queries share one run. The run is detached from every
// caller's cancellation and bounded only by the fetch timeout, so a caller
// that gives up fails alone while the others keep waiting.
func (a *Analyzer) Analyze(ctx context.Context, q Query) (*Result, error) {
	q, err := a.limits.Normalize(q)
	if err != nil {
		analysesTotal.WithLabelValues("invalid").Inc()
		return nil, &AnalysisError{Stage: "validate query", Query: q, Err: err}
	}

	detached := context.WithoutCancel(ctx)
	ch := a.group.DoChan(q.Key(), func() (any, error) {
		return a.run(detached, q)
	})

	select {
	case r := <-ch:
		if r.Shared {
			sharedAnalyses.Inc()
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	case <-ctx.Done():
		analysesTotal.WithLabelValues("canceled").Inc()
		return nil, &AnalysisError{Stage: "wait for analysis", Query: q, Err: ctx.Err()}
	}
}

func (a *Analyzer) run(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	log := zap.L().With(
		zap.Float64("lat", q.Origin.Lat),
		zap.Float64("lon", q.Origin.Lon),
		zap.Float64("minutes", q.Minutes),
		zap.Float64("speed_kph", q.SpeedKPH),
	)

	res, stage, err := a.compute(ctx, q)
	analysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		analysesTotal.WithLabelValues(failureLabel(err)).Inc()
		log.Warn("catchment: analysis failed", zap.String("stage", stage), zap.Error(err))
		return nil, &AnalysisError{Stage: stage, Query: q, Err: err}
	}

	analysesTotal.WithLabelValues("ok").Inc()
	reachableNodes.Observe(float64(res.Stats.NodeCount))
	log.Info("catchment: analysis complete",
		zap.String("id", res.ID),
		zap.Int("nodes", res.Stats.NodeCount),
		zap.Int("edges", res.Stats.EdgeCount),
		zap.Int("pois", res.Stats.POICount),
		zap.Float64("area_km2", res.Stats.AreaKM2),
		zap.Float64("street_km", res.Stats.StreetLengthKM),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// compute runs the pipeline and returns the failing stage with any error.
func (a *Analyzer) compute(ctx context.Context, q Query) (*Result, string, error) {
	radius := network.SearchRadius(q.Minutes, q.SpeedKPH, a.safety)

	raw, err := a.fetchNetwork(ctx, q.Origin, radius)
	if err != nil {
		return nil, "fetch walk network", err
	}

	g, err := network.Build(raw, q.Origin)
	if err != nil {
		return nil, "build graph", err
	}
	if err := network.AssignWalkTimes(g, q.SpeedKPH); err != nil {
		return nil, "assign walk times", err
	}

	origin, dist, err := g.NearestNode(q.Origin)
	if err != nil {
		return nil, "nearest node", err
	}
	if dist > radius {
		return nil, "nearest node", eris.Wrapf(network.ErrNoNetworkFound, "nearest node is %.0f m away, search radius %.0f m", dist, radius)
	}
	if g.Degree(origin) == 0 {
		return nil, "nearest node", eris.Wrapf(network.ErrNoNetworkFound, "nearest node %d has no streets", g.Nodes[origin].ID)
	}

	rs, err := network.Reachable(g, origin, q.Minutes)
	if err != nil {
		return nil, "reachable subgraph", err
	}

	polygon := BuildHull(g, rs, q.Origin)

	records := []poi.Record{}
	if poly, ok := polygon.(*geom.Polygon); ok {
		fc, err := a.fetchFeatures(ctx, poly)
		if err != nil {
			return nil, "fetch features", err
		}
		records = poi.Categorize(poi.Filter(poly, fc.Features))
	}

	return &Result{
		ID:        a.newID(),
		Query:     q,
		Polygon:   polygon,
		Edges:     edgeGeometries(g, rs.Edges),
		POIs:      records,
		Stats:     Aggregate(g, rs, polygon, records),
		CreatedAt: a.now().UTC(),
	}, "", nil
}

func (a *Analyzer) fetchNetwork(ctx context.Context, center geo.Point, radius float64) (*provider.RawNetwork, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	raw, err := a.graphs.FetchWalkNetwork(ctx, center, radius)
	fetchDuration.WithLabelValues("graph").Observe(time.Since(start).Seconds())
	if err != nil {
		if eris.Is(err, network.ErrNoNetworkFound) {
			return nil, err
		}
		return nil, provider.NewFetchError("graph", "fetch walk network", err)
	}
	if raw == nil {
		return nil, network.ErrNoNetworkFound
	}
	return raw, nil
}

func (a *Analyzer) fetchFeatures(ctx context.Context, region *geom.Polygon) (*provider.FeatureCollection, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	fc, err := a.features.FetchFeatures(ctx, region, a.filter)
	fetchDuration.WithLabelValues("features").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, provider.NewFetchError("features", "fetch features", err)
	}
	if fc == nil {
		return &provider.FeatureCollection{}, nil
	}
	if err := provider.CheckCRS(fc.CRS); err != nil {
		return nil, err
	}
	return fc, nil
}

func (a *Analyzer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.fetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.fetchTimeout)
}

func failureLabel(err error) string {
	switch {
	case eris.Is(err, network.ErrNoNetworkFound):
		return "no_network"
	case provider.IsFetchError(err):
		return "fetch_error"
	default:
		return "error"
	}
}
