package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catchment/internal/resilience"
)

const wayResponse = `{
  "version": 0.6,
  "generator": "Overpass API 0.7.62",
  "osm3s": {"timestamp_osm_base": "2026-10-01T00:00:00Z"},
  "elements": [
    {
      "type": "way",
      "id": 42,
      "nodes": [1, 2, 3],
      "geometry": [
        {"lat": 52.52, "lon": 13.40},
        {"lat": 52.521, "lon": 13.40},
        {"lat": 52.521, "lon": 13.401}
      ],
      "tags": {"highway": "footway"}
    },
    {"type": "node", "id": 7, "lat": 52.5205, "lon": 13.4005, "tags": {"amenity": "cafe"}}
  ]
}`

func TestQuery_Success(t *testing.T) {
	var gotQL, gotUA, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		gotQL = r.PostForm.Get("data")
		gotUA = r.Header.Get("User-Agent")
		gotCT = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(wayResponse))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Query(context.Background(), "[out:json];node(1);out;")
	require.NoError(t, err)

	assert.Equal(t, "[out:json];node(1);out;", gotQL)
	assert.Equal(t, "catchment/1.0", gotUA)
	assert.Equal(t, "application/x-www-form-urlencoded", gotCT)

	way := res.Ways[42]
	require.NotNil(t, way)
	assert.Equal(t, "footway", way.Tags["highway"])
	require.Len(t, way.Nodes, 3)
	assert.Equal(t, int64(3), way.Nodes[2].ID)
	require.Len(t, way.Geometry, 3)
	assert.Equal(t, 13.401, way.Geometry[2].Lon)

	node := res.Nodes[7]
	require.NotNil(t, node)
	assert.Equal(t, "cafe", node.Tags["amenity"])
	assert.Equal(t, 52.5205, node.Lat)
}

func TestQuery_RelationMembersShareWays(t *testing.T) {
	body := `{"elements": [
	  {"type": "way", "id": 5, "nodes": [1, 2, 3, 1],
	   "geometry": [{"lat": 0, "lon": 0}, {"lat": 0, "lon": 1}, {"lat": 1, "lon": 1}, {"lat": 0, "lon": 0}]},
	  {"type": "relation", "id": 9, "tags": {"type": "multipolygon", "leisure": "park"},
	   "members": [{"type": "way", "ref": 5, "role": "outer"}]}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Query(context.Background(), "[out:json];")
	require.NoError(t, err)

	rel := res.Relations[9]
	require.NotNil(t, rel)
	require.Len(t, rel.Members, 1)
	m := rel.Members[0]
	assert.Equal(t, ElementTypeWay, m.Type)
	assert.Equal(t, "outer", m.Role)
	assert.Same(t, res.Ways[5], m.Way)
	assert.Len(t, m.Way.Geometry, 4)
}

func TestQuery_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{name: "too many requests", status: http.StatusTooManyRequests, body: "rate_limited", transient: true},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, body: "timeout", transient: true},
		{name: "bad query", status: http.StatusBadRequest, body: "parse error", transient: false},
		{name: "runtime remark", status: http.StatusOK, body: `{"elements":[],"remark":"runtime error: Query timed out in \"query\" at line 1"}`, transient: true},
		{name: "malformed body", status: http.StatusOK, body: `{"elements": 5}`, transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Query(context.Background(), "[out:json];")
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err), err.Error())
		})
	}
}

func TestQuery_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"elements":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(srv.URL).Query(ctx, "[out:json];")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestWalkNetworkQuery(t *testing.T) {
	ql := WalkNetworkQuery(52.52, 13.405, 900, 60)
	assert.True(t, strings.HasPrefix(ql, "[out:json][timeout:60];way[\"highway\"]"))
	assert.Contains(t, ql, `["foot"!~"no"]`)
	assert.Contains(t, ql, `["highway"!~"abandoned|bus_guideway|construction|cycleway|motor|`)
	assert.Contains(t, ql, "(around:900.0,52.5200000,13.4050000);")
	assert.True(t, strings.HasSuffix(ql, "out body geom;"))
}

func TestFeaturesQuery(t *testing.T) {
	bb := BBox{South: 52.5, West: 13.3, North: 52.6, East: 13.5}
	ql := FeaturesQuery(bb, map[string][]string{
		"railway": {"station", "halt"},
		"amenity": nil,
		"highway": {"bus_stop"},
	}, 30)

	want := `[out:json][timeout:30];(` +
		`nwr["amenity"](52.5000000,13.3000000,52.6000000,13.5000000);` +
		`nwr["highway"="bus_stop"](52.5000000,13.3000000,52.6000000,13.5000000);` +
		`nwr["railway"~"^(station|halt)$"](52.5000000,13.3000000,52.6000000,13.5000000);` +
		`)->.f;way(r.f);out skel geom;.f out tags geom;`
	assert.Equal(t, want, ql)
}
