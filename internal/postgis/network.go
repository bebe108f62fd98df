package postgis

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/provider"
)

const edgesWithinSQL = `SELECT from_id, to_id, key, COALESCE(way_id, 0), COALESCE(length_m, 0), ST_AsBinary(geom)
FROM geo.walk_edges
WHERE ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
ORDER BY from_id, to_id, key`

const nodesOfEdgesWithinSQL = `SELECT n.id, ST_Y(n.geom), ST_X(n.geom)
FROM geo.walk_nodes n
WHERE n.id IN (
	SELECT from_id FROM geo.walk_edges
	WHERE ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
	UNION
	SELECT to_id FROM geo.walk_edges
	WHERE ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
)
ORDER BY n.id`

// GraphStore implements provider.GraphProvider over geo.walk_nodes and
// geo.walk_edges.
type GraphStore struct {
	Pool Pool
}

var _ provider.GraphProvider = (*GraphStore)(nil)

// FetchWalkNetwork returns every edge within radiusMeters of center and the
// nodes they touch.
func (s *GraphStore) FetchWalkNetwork(ctx context.Context, center geo.Point, radiusMeters float64) (*provider.RawNetwork, error) {
	raw := &provider.RawNetwork{CRS: provider.CRSWGS84}

	rows, err := s.Pool.Query(ctx, edgesWithinSQL, center.Lon, center.Lat, radiusMeters)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: query walk edges")
	}
	var badGeom int
	for rows.Next() {
		var (
			e    provider.RawEdge
			wkbG []byte
		)
		if err := rows.Scan(&e.From, &e.To, &e.Key, &e.WayID, &e.LengthMeters, &wkbG); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgis: scan walk edge")
		}
		path, err := decodePath(wkbG)
		if err != nil {
			badGeom++
		}
		e.Geometry = path
		raw.Edges = append(raw.Edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgis: iterate walk edges")
	}
	if badGeom > 0 {
		zap.L().Debug("postgis: edges without usable geometry", zap.Int("count", badGeom))
	}

	rows, err = s.Pool.Query(ctx, nodesOfEdgesWithinSQL, center.Lon, center.Lat, radiusMeters)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: query walk nodes")
	}
	defer rows.Close()
	for rows.Next() {
		var n provider.RawNode
		if err := rows.Scan(&n.ID, &n.Lat, &n.Lon); err != nil {
			return nil, eris.Wrap(err, "postgis: scan walk node")
		}
		raw.Nodes = append(raw.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgis: iterate walk nodes")
	}
	return raw, nil
}

// decodePath decodes a WKB linestring. Empty input yields a nil path.
func decodePath(b []byte) ([]geo.Point, error) {
	if len(b) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: decode edge geometry")
	}
	ls, ok := g.(*geom.LineString)
	if !ok {
		return nil, eris.Errorf("postgis: edge geometry is %T, want linestring", g)
	}
	path := make([]geo.Point, 0, ls.NumCoords())
	for i := range ls.NumCoords() {
		path = append(path, geo.FromCoord(ls.Coord(i)))
	}
	return path, nil
}
