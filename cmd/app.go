package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/catchment"
	"github.com/sells-group/catchment/internal/config"
	"github.com/sells-group/catchment/internal/fetchcache"
	"github.com/sells-group/catchment/internal/postgis"
	"github.com/sells-group/catchment/internal/provider"
	"github.com/sells-group/catchment/internal/resilience"
	"github.com/sells-group/catchment/internal/session"
	"github.com/sells-group/catchment/pkg/overpass"
)

// appEnv holds the wired analyzer and the resources it owns.
type appEnv struct {
	Analyzer *catchment.Analyzer
	Sessions *session.Store
	Breakers *resilience.Breakers
	Cache    *fetchcache.Cache

	closers []func()
}

// Close releases pools and caches in reverse order of creation.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initApp builds the provider chain for the configured backend:
// backend → retry/circuit guard → fetch cache → analyzer.
func initApp(ctx context.Context, c *config.Config) (*appEnv, error) {
	env := &appEnv{
		Breakers: resilience.NewBreakers(c.Circuit.Resilience()),
		Sessions: session.NewStore(c.Session.MaxSessions, c.Session.TTL()),
	}

	graphs, features, err := backendProviders(ctx, c, env)
	if err != nil {
		env.Close()
		return nil, err
	}

	retry := c.Retry.Resilience()
	backend := c.Provider.Backend
	graphs = &provider.GuardedGraphs{
		Next:  graphs,
		Guard: resilience.NewGuard(backend+".walk_network", retry, env.Breakers),
	}
	features = &provider.GuardedFeatures{
		Next:  features,
		Guard: resilience.NewGuard(backend+".features", retry, env.Breakers),
	}

	if c.Cache.Enabled {
		cache, err := openCache(ctx, c.Cache.Path)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Cache = cache
		env.closers = append(env.closers, func() { _ = cache.Close() })
		graphs = &provider.CachedGraphs{Next: graphs, Cache: cache, TTL: c.Cache.TTL()}
		features = &provider.CachedFeatures{Next: features, Cache: cache, TTL: c.Cache.TTL()}
	}

	env.Analyzer = catchment.NewAnalyzer(graphs, features,
		catchment.WithLimits(c.Walk.Limits()),
		catchment.WithSafetyFactor(c.Walk.SafetyFactor),
		catchment.WithFetchTimeout(c.Provider.FetchTimeout()),
	)

	zap.L().Info("analyzer ready",
		zap.String("backend", backend),
		zap.Bool("cache", c.Cache.Enabled),
	)
	return env, nil
}

func backendProviders(ctx context.Context, c *config.Config, env *appEnv) (provider.GraphProvider, provider.FeatureProvider, error) {
	switch c.Provider.Backend {
	case config.ProviderPostGIS:
		pool, err := postgis.Connect(ctx, c.PostGIS.DatabaseURL, c.PostGIS.Pool)
		if err != nil {
			return nil, nil, err
		}
		env.closers = append(env.closers, pool.Close)
		return &postgis.GraphStore{Pool: pool}, &postgis.FeatureStore{Pool: pool}, nil

	case config.ProviderOverpass:
		client := overpass.NewClient(
			overpass.WithEndpoint(c.Overpass.Endpoint),
			overpass.WithRateLimit(c.Overpass.RateLimit),
			overpass.WithUserAgent(c.Overpass.UserAgent),
			overpass.WithHTTPClient(&http.Client{
				Timeout: time.Duration(c.Overpass.HTTPTimeoutSecs) * time.Second,
			}),
		)
		return &provider.OverpassGraphs{Client: client, TimeoutSecs: c.Overpass.TimeoutSecs},
			&provider.OverpassFeatures{Client: client, TimeoutSecs: c.Overpass.TimeoutSecs},
			nil
	}
	return nil, nil, eris.Errorf("unknown provider backend %q", c.Provider.Backend)
}

func openCache(ctx context.Context, path string) (*fetchcache.Cache, error) {
	cache, err := fetchcache.Open(path)
	if err != nil {
		return nil, err
	}
	if err := cache.Migrate(ctx); err != nil {
		_ = cache.Close()
		return nil, err
	}
	return cache, nil
}
