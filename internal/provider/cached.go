package provider

import (
	"context"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/fetchcache"
	"github.com/sells-group/catchment/internal/geo"
)

// Cache kinds.
const (
	CacheKindNetwork  = "walk_network"
	CacheKindFeatures = "features"
)

// PayloadCache stores provider payloads. fetchcache.Cache implements it.
type PayloadCache interface {
	Get(ctx context.Context, kind, key string, dst any) (bool, error)
	Set(ctx context.Context, kind, key string, v any, ttl time.Duration) error
}

var _ PayloadCache = (*fetchcache.Cache)(nil)

// CachedGraphs serves walk networks from a PayloadCache before asking Next.
// Cache failures are logged and never fail a fetch.
type CachedGraphs struct {
	Next  GraphProvider
	Cache PayloadCache
	TTL   time.Duration
}

// FetchWalkNetwork implements GraphProvider.
func (c *CachedGraphs) FetchWalkNetwork(ctx context.Context, center geo.Point, radiusMeters float64) (*RawNetwork, error) {
	key := fetchcache.Key(center.Lat, center.Lon, radiusMeters)

	var cached RawNetwork
	ok, err := c.Cache.Get(ctx, CacheKindNetwork, key, &cached)
	if err != nil {
		zap.L().Warn("provider: walk network cache read failed", zap.Error(err))
	}
	if ok {
		return &cached, nil
	}

	raw, err := c.Next.FetchWalkNetwork(ctx, center, radiusMeters)
	if err != nil || raw == nil {
		return raw, err
	}
	if err := c.Cache.Set(ctx, CacheKindNetwork, key, raw, c.TTL); err != nil {
		zap.L().Warn("provider: walk network cache write failed", zap.Error(err))
	}
	return raw, nil
}

// CachedFeatures serves feature collections from a PayloadCache before
// asking Next. Entries are keyed by the region's bounding box and the tag
// filter.
type CachedFeatures struct {
	Next  FeatureProvider
	Cache PayloadCache
	TTL   time.Duration
}

// cachedFeature is the stored form of a RawFeature with WKB geometry.
type cachedFeature struct {
	ID   string            `json:"id"`
	Kind string            `json:"kind"`
	WKB  []byte            `json:"wkb,omitempty"`
	Tags map[string]string `json:"tags"`
}

type cachedCollection struct {
	CRS      CRS             `json:"crs"`
	Features []cachedFeature `json:"features"`
}

// FetchFeatures implements FeatureProvider.
func (c *CachedFeatures) FetchFeatures(ctx context.Context, region *geom.Polygon, filter TagFilter) (*FeatureCollection, error) {
	b := geo.BoundsOf(region)
	key := fetchcache.Key(b.MinLng, b.MinLat, b.MaxLng, b.MaxLat, filterKey(filter))

	var cached cachedCollection
	ok, err := c.Cache.Get(ctx, CacheKindFeatures, key, &cached)
	if err != nil {
		zap.L().Warn("provider: feature cache read failed", zap.Error(err))
	}
	if ok {
		return decodeCollection(cached), nil
	}

	fc, err := c.Next.FetchFeatures(ctx, region, filter)
	if err != nil || fc == nil {
		return fc, err
	}
	if enc, err := encodeCollection(fc); err != nil {
		zap.L().Warn("provider: feature cache encode failed", zap.Error(err))
	} else if err := c.Cache.Set(ctx, CacheKindFeatures, key, enc, c.TTL); err != nil {
		zap.L().Warn("provider: feature cache write failed", zap.Error(err))
	}
	return fc, nil
}

func filterKey(f TagFilter) string {
	parts := make([]string, 0, len(f))
	for _, k := range f.Keys() {
		parts = append(parts, k+"="+strings.Join(f[k], ","))
	}
	return strings.Join(parts, ";")
}

func encodeCollection(fc *FeatureCollection) (cachedCollection, error) {
	out := cachedCollection{CRS: fc.CRS, Features: make([]cachedFeature, 0, len(fc.Features))}
	for _, f := range fc.Features {
		cf := cachedFeature{ID: f.ID, Kind: f.Kind, Tags: f.Tags}
		if f.Geometry != nil {
			b, err := wkb.Marshal(f.Geometry, wkb.NDR)
			if err != nil {
				return cachedCollection{}, err
			}
			cf.WKB = b
		}
		out.Features = append(out.Features, cf)
	}
	return out, nil
}

func decodeCollection(cc cachedCollection) *FeatureCollection {
	fc := &FeatureCollection{CRS: cc.CRS, Features: make([]RawFeature, 0, len(cc.Features))}
	for _, cf := range cc.Features {
		f := RawFeature{ID: cf.ID, Kind: cf.Kind, Tags: cf.Tags}
		if len(cf.WKB) > 0 {
			// Undecodable geometry stays nil and is skipped downstream.
			if g, err := wkb.Unmarshal(cf.WKB); err == nil {
				f.Geometry = g
			}
		}
		fc.Features = append(fc.Features, f)
	}
	return fc
}
