package postgis

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/provider"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func mustWKB(t *testing.T, g geom.T) []byte {
	t.Helper()
	b, err := wkb.Marshal(g, wkb.NDR)
	require.NoError(t, err)
	return b
}

func TestGraphStore_FetchWalkNetwork(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	line := geom.NewLineStringFlat(geom.XY, []float64{13.40, 52.52, 13.401, 52.5205, 13.402, 52.52})

	mock.ExpectQuery(regexp.QuoteMeta("FROM geo.walk_edges")).
		WithArgs(13.405, 52.52, 900.0).
		WillReturnRows(pgxmock.NewRows([]string{"from_id", "to_id", "key", "way_id", "length_m", "geom"}).
			AddRow(int64(1), int64(2), 0, int64(10), 0.0, mustWKB(t, line)).
			AddRow(int64(2), int64(3), 0, int64(10), 42.0, []byte{0xde, 0xad}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM geo.walk_nodes n")).
		WithArgs(13.405, 52.52, 900.0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "lat", "lon"}).
			AddRow(int64(1), 52.52, 13.40).
			AddRow(int64(2), 52.52, 13.402).
			AddRow(int64(3), 52.521, 13.402))

	s := &GraphStore{Pool: mock}
	raw, err := s.FetchWalkNetwork(context.Background(), geo.Point{Lat: 52.52, Lon: 13.405}, 900)
	require.NoError(t, err)

	assert.Equal(t, provider.CRSWGS84, raw.CRS)
	require.Len(t, raw.Nodes, 3)
	assert.Equal(t, provider.RawNode{ID: 3, Lat: 52.521, Lon: 13.402}, raw.Nodes[2])

	require.Len(t, raw.Edges, 2)
	assert.Equal(t, int64(10), raw.Edges[0].WayID)
	assert.Equal(t, []geo.Point{{Lat: 52.52, Lon: 13.40}, {Lat: 52.5205, Lon: 13.401}, {Lat: 52.52, Lon: 13.402}}, raw.Edges[0].Geometry)
	assert.Nil(t, raw.Edges[1].Geometry, "undecodable geometry falls back to the straight segment")
	assert.Equal(t, 42.0, raw.Edges[1].LengthMeters)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphStore_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM geo.walk_edges")).WillReturnError(errors.New("connection refused"))

	_, err = (&GraphStore{Pool: mock}).FetchWalkNetwork(context.Background(), geo.Point{}, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgis: query walk edges")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeatureStore_FetchFeatures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	region, err := geo.NewPolygon([]geo.Point{{Lat: 52.5, Lon: 13.3}, {Lat: 52.5, Lon: 13.5}, {Lat: 52.6, Lon: 13.4}})
	require.NoError(t, err)
	filter := provider.DefaultTagFilter()

	pt := geom.NewPointFlat(geom.XY, []float64{13.4, 52.55})
	mock.ExpectQuery(regexp.QuoteMeta("FROM geo.osm_features")).
		WithArgs(13.3, 52.5, 13.5, 52.6, filter.Keys()).
		WillReturnRows(pgxmock.NewRows([]string{"osm_type", "osm_id", "tags", "geom"}).
			AddRow("node", int64(1), []byte(`{"amenity":"cafe","name":"Kaffee"}`), mustWKB(t, pt)).
			AddRow("node", int64(2), []byte(`{"highway":"crossing"}`), mustWKB(t, pt)).
			AddRow("way", int64(3), []byte(`{"shop":"bakery"}`), []byte{0x00}))

	fc, err := (&FeatureStore{Pool: mock}).FetchFeatures(context.Background(), region, filter)
	require.NoError(t, err)

	require.Len(t, fc.Features, 2)
	assert.Equal(t, "node/1", fc.Features[0].ID)
	assert.Equal(t, "Kaffee", fc.Features[0].Tags["name"])
	assert.IsType(t, &geom.Point{}, fc.Features[0].Geometry)
	assert.Equal(t, "way/3", fc.Features[1].ID)
	assert.Nil(t, fc.Features[1].Geometry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeatureStore_BadTags(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	region, err := geo.NewPolygon([]geo.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM geo.osm_features")).
		WillReturnRows(pgxmock.NewRows([]string{"osm_type", "osm_id", "tags", "geom"}).
			AddRow("node", int64(1), []byte(`not json`), []byte{}))

	_, err = (&FeatureStore{Pool: mock}).FetchFeatures(context.Background(), region, provider.DefaultTagFilter())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode tags of node/1")

	_, err = (&FeatureStore{Pool: mock}).FetchFeatures(context.Background(), nil, provider.DefaultTagFilter())
	assert.Error(t, err)
}

func TestMigrate_FreshDB(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	names, err := migrationNames()
	require.NoError(t, err)
	require.Equal(t, []string{"001_walk_network.sql", "002_osm_features.sql"}, names)

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS geo").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM geo.schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_walk_network.sql"))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS geo.osm_features").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO geo.schema_migrations").WithArgs("002_osm_features.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_ApplyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS geo").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM geo.schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS postgis").WillReturnError(errors.New("permission denied"))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	err = Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 001_walk_network.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
