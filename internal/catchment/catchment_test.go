package catchment

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/network"
	"github.com/sells-group/catchment/internal/poi"
	"github.com/sells-group/catchment/internal/provider"
)

var origin = geo.Point{Lat: 52.52, Lon: 13.405}

const (
	metersPerDegLat = 111250.0
)

func metersPerDegLon() float64 { return 111320.0 * math.Cos(origin.Lat*math.Pi/180) }

func offset(north, east float64) geo.Point {
	return geo.Point{Lat: origin.Lat + north/metersPerDegLat, Lon: origin.Lon + east/metersPerDegLon()}
}

// gridNetwork is a (2n+1)² lattice with 100 m spacing centred on origin.
func gridNetwork(n int) *provider.RawNetwork {
	id := func(r, c int) int64 { return int64((r+n)*(2*n+1) + (c + n) + 1) }
	raw := &provider.RawNetwork{CRS: provider.CRSWGS84}
	for r := -n; r <= n; r++ {
		for c := -n; c <= n; c++ {
			p := offset(float64(r)*100, float64(c)*100)
			raw.Nodes = append(raw.Nodes, provider.RawNode{ID: id(r, c), Lat: p.Lat, Lon: p.Lon})
			if c < n {
				raw.Edges = append(raw.Edges, provider.RawEdge{From: id(r, c), To: id(r, c+1), LengthMeters: 100})
			}
			if r < n {
				raw.Edges = append(raw.Edges, provider.RawEdge{From: id(r, c), To: id(r+1, c), LengthMeters: 100})
			}
		}
	}
	return raw
}

type fakeGraphs struct {
	raw   *provider.RawNetwork
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeGraphs) FetchWalkNetwork(ctx context.Context, _ geo.Point, _ float64) (*provider.RawNetwork, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.raw, f.err
}

type fakeFeatures struct {
	fc     *provider.FeatureCollection
	err    error
	calls  atomic.Int32
	region *geom.Polygon
}

func (f *fakeFeatures) FetchFeatures(_ context.Context, region *geom.Polygon, _ provider.TagFilter) (*provider.FeatureCollection, error) {
	f.calls.Add(1)
	f.region = region
	return f.fc, f.err
}

func pointFeature(id string, at geo.Point, tags map[string]string) provider.RawFeature {
	return provider.RawFeature{
		ID:       id,
		Kind:     "node",
		Geometry: geom.NewPointFlat(geom.XY, []float64{at.Lon, at.Lat}),
		Tags:     tags,
	}
}

func TestAnalyze_Grid(t *testing.T) {
	features := &fakeFeatures{fc: &provider.FeatureCollection{
		CRS: provider.CRSWGS84,
		Features: []provider.RawFeature{
			pointFeature("station", offset(50, 50), map[string]string{"railway": "station", "amenity": "restaurant"}),
			pointFeature("bakery", offset(-200, 100), map[string]string{"shop": "bakery"}),
			pointFeature("bench", offset(300, -200), map[string]string{"amenity": "bench"}),
			pointFeature("far", offset(1500, 0), map[string]string{"amenity": "school"}),
			{ID: "broken", Kind: "way", Tags: map[string]string{"office": "yes"}},
		},
	}}
	a := NewAnalyzer(&fakeGraphs{raw: gridNetwork(10)}, features,
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	)

	res, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: 10})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, network.DefaultWalkSpeedKPH, res.Query.SpeedKPH)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), res.CreatedAt)

	poly, ok := res.Polygon.(*geom.Polygon)
	require.True(t, ok, "got %T", res.Polygon)
	assert.True(t, geo.Covers(poly, origin))
	assert.Same(t, poly, features.region)

	// 750 m reach on a 100 m lattice: the 7-hop diamond.
	assert.Equal(t, 113, res.Stats.NodeCount)
	assert.Equal(t, 196, res.Stats.EdgeCount)
	assert.InDelta(t, 19.6, res.Stats.StreetLengthKM, 1e-9)
	assert.InEpsilon(t, 0.98, res.Stats.AreaKM2, 0.01)
	assert.Len(t, res.Edges, 196)

	require.Len(t, res.POIs, 3)
	for _, p := range res.POIs {
		assert.True(t, geo.ContainsStrict(poly, p.Location), p.ID)
		assert.NotEmpty(t, p.Label)
	}
	assert.Equal(t, poi.CategoryTransitRail, res.POIs[0].Category)
	assert.Equal(t, 3, res.Stats.POICount)
	require.Len(t, res.Stats.Categories, 3)
	assert.Equal(t, poi.CategoryGrocery, res.Stats.Categories[0].Category, "ties sort by name")
}

func TestAnalyze_NoNetwork(t *testing.T) {
	tests := []struct {
		name string
		raw  *provider.RawNetwork
	}{
		{"empty payload", &provider.RawNetwork{}},
		{"nil payload", nil},
		{"network out of range", &provider.RawNetwork{
			Nodes: []provider.RawNode{
				{ID: 1, Lat: origin.Lat + 0.1, Lon: origin.Lon},
				{ID: 2, Lat: origin.Lat + 0.101, Lon: origin.Lon},
			},
			Edges: []provider.RawEdge{{From: 1, To: 2}},
		}},
		{"isolated nearest node", &provider.RawNetwork{
			Nodes: []provider.RawNode{
				{ID: 1, Lat: origin.Lat, Lon: origin.Lon},
				{ID: 2, Lat: origin.Lat + 0.002, Lon: origin.Lon},
				{ID: 3, Lat: origin.Lat + 0.003, Lon: origin.Lon},
			},
			Edges: []provider.RawEdge{{From: 2, To: 3}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			features := &fakeFeatures{}
			a := NewAnalyzer(&fakeGraphs{raw: tt.raw}, features)

			res, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: 5})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ErrAnalysisFailed))
			assert.True(t, errors.Is(err, network.ErrNoNetworkFound), err.Error())
			assert.Zero(t, features.calls.Load())
		})
	}
}

func TestAnalyze_FetchErrors(t *testing.T) {
	boom := eris.New("connection reset")

	t.Run("graph", func(t *testing.T) {
		a := NewAnalyzer(&fakeGraphs{err: boom}, &fakeFeatures{})
		_, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: 5})
		require.Error(t, err)
		assert.True(t, provider.IsFetchError(err))
		assert.True(t, errors.Is(err, boom))

		var ae *AnalysisError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, "fetch walk network", ae.Stage)
	})

	t.Run("features", func(t *testing.T) {
		a := NewAnalyzer(&fakeGraphs{raw: gridNetwork(3)}, &fakeFeatures{err: boom})
		_, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: 5})
		require.Error(t, err)
		assert.True(t, provider.IsFetchError(err))
	})

	t.Run("feature crs mismatch", func(t *testing.T) {
		a := NewAnalyzer(&fakeGraphs{raw: gridNetwork(3)}, &fakeFeatures{fc: &provider.FeatureCollection{CRS: "EPSG:32633"}})
		_, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: 5})
		require.Error(t, err)
		assert.True(t, errors.Is(err, provider.ErrCRSMismatch))
	})

	t.Run("timeout", func(t *testing.T) {
		a := NewAnalyzer(&fakeGraphs{raw: gridNetwork(3), delay: time.Second}, &fakeFeatures{},
			WithFetchTimeout(10*time.Millisecond))
		_, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: 5})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestAnalyze_SharesIdenticalInFlightQueries(t *testing.T) {
	graphs := &fakeGraphs{raw: gridNetwork(4), delay: 200 * time.Millisecond}
	a := NewAnalyzer(graphs, &fakeFeatures{fc: &provider.FeatureCollection{}})
	q := Query{Origin: origin, Minutes: 5}

	var wg sync.WaitGroup
	results := make([]*Result, 3)
	errs := make([]error, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = a.Analyze(context.Background(), q)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), graphs.calls.Load())
}

func TestAnalyze_CancellationStaysWithCaller(t *testing.T) {
	graphs := &fakeGraphs{raw: gridNetwork(4), delay: 300 * time.Millisecond}
	a := NewAnalyzer(graphs, &fakeFeatures{fc: &provider.FeatureCollection{}})
	q := Query{Origin: origin, Minutes: 5}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	var (
		wg         sync.WaitGroup
		errA, errB error
		resB       *Result
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = a.Analyze(ctxA, q)
	}()
	go func() {
		defer wg.Done()
		resB, errB = a.Analyze(context.Background(), q)
	}()

	time.Sleep(50 * time.Millisecond)
	cancelA()
	wg.Wait()

	require.Error(t, errA)
	assert.ErrorIs(t, errA, context.Canceled)
	assert.ErrorIs(t, errA, ErrAnalysisFailed)

	require.NoError(t, errB, "a caller that was not cancelled must get its result")
	require.NotNil(t, resB)
	assert.Positive(t, resB.Stats.NodeCount)
	assert.Equal(t, int32(1), graphs.calls.Load())
}

func TestAnalyze_RecoversAfterFailure(t *testing.T) {
	graphs := &fakeGraphs{err: eris.New("overloaded")}
	a := NewAnalyzer(graphs, &fakeFeatures{})

	_, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: 5})
	require.Error(t, err)

	graphs.err = nil
	graphs.raw = gridNetwork(5)
	res, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: 5})
	require.NoError(t, err)
	assert.Positive(t, res.Stats.NodeCount)
}

func TestAnalyze_InvalidQuery(t *testing.T) {
	graphs := &fakeGraphs{raw: gridNetwork(3)}
	a := NewAnalyzer(graphs, &fakeFeatures{})

	for _, q := range []Query{
		{Origin: origin, Minutes: 30},
		{Origin: origin, Minutes: 0.5},
		{Origin: origin, Minutes: 5, SpeedKPH: -1},
		{Origin: geo.Point{Lat: 100}, Minutes: 5},
	} {
		_, err := a.Analyze(context.Background(), q)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidQuery), "%+v", q)
		assert.True(t, errors.Is(err, ErrAnalysisFailed))
	}
	assert.Zero(t, graphs.calls.Load())
}

func TestAnalyze_NoFeatures(t *testing.T) {
	a := NewAnalyzer(&fakeGraphs{raw: gridNetwork(5)}, &fakeFeatures{fc: &provider.FeatureCollection{}})
	res, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: 3})
	require.NoError(t, err)
	assert.Empty(t, res.POIs)
	assert.NotNil(t, res.POIs)
	assert.Zero(t, res.Stats.POICount)
	assert.Empty(t, res.Stats.Categories)
	assert.Positive(t, res.Stats.AreaKM2)
	assert.Positive(t, res.Stats.StreetLengthKM)
}

func TestAnalyze_MonotonicArea(t *testing.T) {
	a := NewAnalyzer(&fakeGraphs{raw: gridNetwork(12)}, &fakeFeatures{fc: &provider.FeatureCollection{}})

	var prevArea float64
	var prevNodes int
	for _, m := range []float64{1, 3, 5, 8, 12, 15} {
		res, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: m})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Stats.AreaKM2, prevArea, "minutes %v", m)
		assert.GreaterOrEqual(t, res.Stats.NodeCount, prevNodes, "minutes %v", m)
		assert.True(t, geo.Covers(res.Polygon, origin))
		prevArea, prevNodes = res.Stats.AreaKM2, res.Stats.NodeCount
	}
}

func TestAnalyze_DegenerateHull(t *testing.T) {
	// A single street running north from the origin: the hull is a line.
	raw := &provider.RawNetwork{
		Nodes: []provider.RawNode{
			{ID: 1, Lat: origin.Lat, Lon: origin.Lon},
			{ID: 2, Lat: offset(100, 0).Lat, Lon: origin.Lon},
		},
		Edges: []provider.RawEdge{{From: 1, To: 2, LengthMeters: 100}},
	}
	features := &fakeFeatures{}
	a := NewAnalyzer(&fakeGraphs{raw: raw}, features)

	res, err := a.Analyze(context.Background(), Query{Origin: origin, Minutes: 5})
	require.NoError(t, err)
	_, isLine := res.Polygon.(*geom.LineString)
	assert.True(t, isLine, "got %T", res.Polygon)
	assert.Zero(t, res.Stats.AreaKM2)
	assert.InDelta(t, 0.1, res.Stats.StreetLengthKM, 1e-9)
	assert.Empty(t, res.POIs)
	assert.Zero(t, features.calls.Load())
	assert.Len(t, res.PolygonCoords(), 2)
}

func TestLimits_Normalize(t *testing.T) {
	l := DefaultLimits()
	q, err := l.Normalize(Query{Origin: origin})
	require.NoError(t, err)
	assert.Equal(t, 10.0, q.Minutes)
	assert.Equal(t, 4.5, q.SpeedKPH)

	q, err = l.Normalize(Query{Origin: origin, Minutes: 15, SpeedKPH: 5})
	require.NoError(t, err)
	assert.Equal(t, 5.0, q.SpeedKPH)

	_, err = l.Normalize(Query{Origin: origin, Minutes: math.NaN()})
	assert.True(t, eris.Is(err, ErrInvalidQuery))
}

func TestCountCategories(t *testing.T) {
	got := CountCategories([]poi.Record{
		{Category: poi.CategoryOffice},
		{Category: poi.CategoryTourism},
		{Category: poi.CategoryTourism},
		{Category: poi.CategoryEducation},
	})
	require.Len(t, got, 3)
	assert.Equal(t, CategoryCount{Category: poi.CategoryTourism, Count: 2, Color: "#D35400"}, got[0])
	assert.Equal(t, poi.CategoryEducation, got[1].Category)
	assert.Equal(t, poi.CategoryOffice, got[2].Category)
}

func TestQuery_Key(t *testing.T) {
	a := Query{Origin: origin, Minutes: 10, SpeedKPH: 4.5}
	b := a
	assert.Equal(t, a.Key(), b.Key())
	b.Minutes = 11
	assert.NotEqual(t, a.Key(), b.Key())
}
