package provider

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/catchment/internal/fetchcache"
	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/resilience"
)

func TestCheckCRS(t *testing.T) {
	assert.NoError(t, CheckCRS(""))
	assert.NoError(t, CheckCRS(CRSWGS84))

	err := CheckCRS("EPSG:3857")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCRSMismatch))
	assert.Contains(t, err.Error(), "EPSG:3857")
}

func TestFetchError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewFetchError("overpass", "fetch walk network", cause)
	assert.EqualError(t, err, "provider overpass: fetch walk network: dial tcp: connection refused")
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsFetchError(err))

	// Already a FetchError: kept as is.
	assert.Same(t, err, NewFetchError("graph", "other", err))
	assert.Nil(t, NewFetchError("graph", "op", nil))
	assert.False(t, IsFetchError(cause))
}

func TestTagFilter(t *testing.T) {
	f := DefaultTagFilter()
	assert.Equal(t, []string{
		"amenity", "healthcare", "highway", "leisure", "office",
		"public_transport", "railway", "shop", "sport", "tourism",
	}, f.Keys())

	tests := []struct {
		name string
		tags map[string]string
		want bool
	}{
		{"any amenity", map[string]string{"amenity": "cafe"}, true},
		{"empty value for any-key", map[string]string{"shop": ""}, true},
		{"bus stop", map[string]string{"highway": "bus_stop"}, true},
		{"residential street", map[string]string{"highway": "residential"}, false},
		{"rail halt", map[string]string{"railway": "halt"}, true},
		{"rail track", map[string]string{"railway": "rail"}, false},
		{"untagged", map[string]string{"name": "x"}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Matches(tt.tags))
		})
	}
}

type stubGraphs struct {
	calls atomic.Int32
	fail  int32
	err   error
	raw   *RawNetwork
}

func (s *stubGraphs) FetchWalkNetwork(_ context.Context, _ geo.Point, _ float64) (*RawNetwork, error) {
	if s.calls.Add(1) <= s.fail {
		return nil, s.err
	}
	return s.raw, nil
}

type stubFeatures struct {
	calls atomic.Int32
	fc    *FeatureCollection
	err   error
}

func (s *stubFeatures) FetchFeatures(_ context.Context, _ *geom.Polygon, _ TagFilter) (*FeatureCollection, error) {
	s.calls.Add(1)
	return s.fc, s.err
}

func testGuard(name string) *resilience.Guard {
	retry := resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	return resilience.NewGuard(name, retry, resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig()))
}

func TestGuardedGraphs(t *testing.T) {
	raw := &RawNetwork{CRS: CRSWGS84, Nodes: []RawNode{{ID: 1}}}

	t.Run("retries transient failures", func(t *testing.T) {
		next := &stubGraphs{fail: 2, err: resilience.NewTransientError(errors.New("busy"), 429), raw: raw}
		g := &GuardedGraphs{Next: next, Guard: testGuard("overpass")}
		got, err := g.FetchWalkNetwork(context.Background(), geo.Point{}, 100)
		require.NoError(t, err)
		assert.Same(t, raw, got)
		assert.Equal(t, int32(3), next.calls.Load())
	})

	t.Run("wraps permanent failure", func(t *testing.T) {
		next := &stubGraphs{fail: 10, err: errors.New("bad query")}
		g := &GuardedGraphs{Next: next, Guard: testGuard("overpass")}
		_, err := g.FetchWalkNetwork(context.Background(), geo.Point{}, 100)
		require.Error(t, err)
		assert.True(t, IsFetchError(err))
		assert.Equal(t, int32(1), next.calls.Load())
	})
}

func TestGuardedFeatures(t *testing.T) {
	next := &stubFeatures{err: errors.New("boom")}
	g := &GuardedFeatures{Next: next, Guard: testGuard("postgis")}
	_, err := g.FetchFeatures(context.Background(), nil, DefaultTagFilter())
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "postgis", fe.Provider)
}

func newTestCache(t *testing.T) *fetchcache.Cache {
	t.Helper()
	c, err := fetchcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func TestCachedGraphs(t *testing.T) {
	raw := &RawNetwork{
		CRS:   CRSWGS84,
		Nodes: []RawNode{{ID: 1, Lat: 1, Lon: 2}, {ID: 2, Lat: 1.001, Lon: 2}},
		Edges: []RawEdge{{From: 1, To: 2, LengthMeters: 111, Geometry: []geo.Point{{Lat: 1, Lon: 2}, {Lat: 1.001, Lon: 2}}}},
	}
	next := &stubGraphs{raw: raw}
	c := &CachedGraphs{Next: next, Cache: newTestCache(t), TTL: time.Hour}
	ctx := context.Background()

	first, err := c.FetchWalkNetwork(ctx, geo.Point{Lat: 1, Lon: 2}, 500)
	require.NoError(t, err)
	second, err := c.FetchWalkNetwork(ctx, geo.Point{Lat: 1, Lon: 2}, 500)
	require.NoError(t, err)

	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, first, second)

	_, err = c.FetchWalkNetwork(ctx, geo.Point{Lat: 1, Lon: 2}, 600)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load(), "different radius is a different entry")
}

func TestCachedGraphs_DoesNotCacheErrors(t *testing.T) {
	next := &stubGraphs{fail: 1, err: errors.New("down"), raw: &RawNetwork{}}
	c := &CachedGraphs{Next: next, Cache: newTestCache(t), TTL: time.Hour}

	_, err := c.FetchWalkNetwork(context.Background(), geo.Point{}, 100)
	require.Error(t, err)
	_, err = c.FetchWalkNetwork(context.Background(), geo.Point{}, 100)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedFeatures_RoundTripsGeometry(t *testing.T) {
	building := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8})
	fc := &FeatureCollection{
		CRS: CRSWGS84,
		Features: []RawFeature{
			{ID: "node/1", Kind: "node", Geometry: geom.NewPointFlat(geom.XY, []float64{0.5, 0.25}), Tags: map[string]string{"amenity": "cafe"}},
			{ID: "way/2", Kind: "way", Geometry: building, Tags: map[string]string{"building": "yes", "shop": "bakery"}},
			{ID: "way/3", Kind: "way", Tags: map[string]string{"office": "yes"}},
		},
	}
	next := &stubFeatures{fc: fc}
	c := &CachedFeatures{Next: next, Cache: newTestCache(t), TTL: time.Hour}
	region, err := geo.NewPolygon([]geo.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}})
	require.NoError(t, err)

	_, err = c.FetchFeatures(context.Background(), region, DefaultTagFilter())
	require.NoError(t, err)
	got, err := c.FetchFeatures(context.Background(), region, DefaultTagFilter())
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load())

	require.Len(t, got.Features, 3)
	assert.Equal(t, CRSWGS84, got.CRS)
	pt, ok := got.Features[0].Geometry.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, 0.25}, pt.FlatCoords())
	poly, ok := got.Features[1].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, building.FlatCoords(), poly.FlatCoords())
	assert.Equal(t, "bakery", got.Features[1].Tags["shop"])
	assert.Nil(t, got.Features[2].Geometry)

	// A different filter is a different entry.
	_, err = c.FetchFeatures(context.Background(), region, TagFilter{"amenity": nil})
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCached_NilPayloadsAreNotCached(t *testing.T) {
	cache := newTestCache(t)
	region, err := geo.NewPolygon([]geo.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}})
	require.NoError(t, err)

	features := &stubFeatures{}
	cf := &CachedFeatures{Next: features, Cache: cache, TTL: time.Hour}
	for range 2 {
		fc, err := cf.FetchFeatures(context.Background(), region, DefaultTagFilter())
		require.NoError(t, err)
		assert.Nil(t, fc)
	}
	assert.Equal(t, int32(2), features.calls.Load())

	graphs := &stubGraphs{}
	cg := &CachedGraphs{Next: graphs, Cache: cache, TTL: time.Hour}
	for range 2 {
		raw, err := cg.FetchWalkNetwork(context.Background(), geo.Point{}, 100)
		require.NoError(t, err)
		assert.Nil(t, raw)
	}
	assert.Equal(t, int32(2), graphs.calls.Load())
}
