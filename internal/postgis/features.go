package postgis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/provider"
)

// featuresInEnvelopeSQL selects features whose geometry meets the region's
// bounding box and that carry at least one of the filter keys.
const featuresInEnvelopeSQL = `SELECT osm_type, osm_id, tags, ST_AsBinary(geom)
FROM geo.osm_features
WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)
  AND tags ?| $5
ORDER BY osm_type, osm_id`

// FeatureStore implements provider.FeatureProvider over geo.osm_features.
type FeatureStore struct {
	Pool Pool
}

var _ provider.FeatureProvider = (*FeatureStore)(nil)

// FetchFeatures returns the features inside the bounding box of region that
// match filter. Value constraints are applied after the key prefilter.
func (s *FeatureStore) FetchFeatures(ctx context.Context, region *geom.Polygon, filter provider.TagFilter) (*provider.FeatureCollection, error) {
	if region == nil || region.Empty() {
		return nil, eris.New("postgis: fetch features: empty region")
	}
	bb := geo.BoundsOf(region)

	rows, err := s.Pool.Query(ctx, featuresInEnvelopeSQL, bb.MinLng, bb.MinLat, bb.MaxLng, bb.MaxLat, filter.Keys())
	if err != nil {
		return nil, eris.Wrap(err, "postgis: query features")
	}
	defer rows.Close()

	fc := &provider.FeatureCollection{CRS: provider.CRSWGS84}
	for rows.Next() {
		var (
			kind    string
			id      int64
			rawTags []byte
			wkbG    []byte
		)
		if err := rows.Scan(&kind, &id, &rawTags, &wkbG); err != nil {
			return nil, eris.Wrap(err, "postgis: scan feature")
		}
		var tags map[string]string
		if err := json.Unmarshal(rawTags, &tags); err != nil {
			return nil, eris.Wrapf(err, "postgis: decode tags of %s/%d", kind, id)
		}
		if !filter.Matches(tags) {
			continue
		}

		f := provider.RawFeature{ID: fmt.Sprintf("%s/%d", kind, id), Kind: kind, Tags: tags}
		// Undecodable geometry leaves Geometry nil; the feature is skipped
		// as malformed downstream.
		if g, err := wkb.Unmarshal(wkbG); err == nil {
			f.Geometry = g
		}
		fc.Features = append(fc.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgis: iterate features")
	}
	return fc, nil
}
