package export

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/catchment/internal/catchment"
	"github.com/sells-group/catchment/internal/geo"
)

// Layer names carried in the "layer" property of every feature.
const (
	LayerCatchment = "catchment"
	LayerStreet    = "street"
	LayerPOI       = "poi"
)

// GeoJSON returns the result as one FeatureCollection: the catchment
// polygon first, then the reachable street segments, then the POIs.
func GeoJSON(r *catchment.Result) (*geojson.FeatureCollection, error) {
	fc := &geojson.FeatureCollection{}

	if r.Polygon != nil {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.ID,
			Geometry: r.Polygon,
			Properties: map[string]any{
				"layer":            LayerCatchment,
				"origin_lat":       r.Query.Origin.Lat,
				"origin_lon":       r.Query.Origin.Lon,
				"minutes":          r.Query.Minutes,
				"speed_kph":        r.Query.SpeedKPH,
				"area_km2":         r.Stats.AreaKM2,
				"street_length_km": r.Stats.StreetLengthKM,
				"poi_count":        r.Stats.POICount,
			},
		})
	}

	for _, e := range r.Edges {
		if len(e.Path) < 2 {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       fmt.Sprintf("%d-%d-%d", e.From, e.To, e.Key),
			Geometry: lineString(e.Path),
			Properties: map[string]any{
				"layer":    LayerStreet,
				"way_id":   e.WayID,
				"length_m": e.LengthMeters,
				"time_min": e.TimeMinutes,
			},
		})
	}

	for _, p := range r.POIs {
		props := map[string]any{
			"layer":    LayerPOI,
			"kind":     p.Kind,
			"category": string(p.Category),
			"label":    p.Label,
			"color":    p.Category.Color(),
			"radius":   p.Category.MarkerRadius(),
		}
		if name := p.Name(); name != "" {
			props["name"] = name
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         p.ID,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{p.Location.Lon, p.Location.Lat}),
			Properties: props,
		})
	}
	return fc, nil
}

func lineString(path []geo.Point) *geom.LineString {
	flat := make([]float64, 0, 2*len(path))
	for _, p := range path {
		flat = append(flat, p.Lon, p.Lat)
	}
	return geom.NewLineStringFlat(geom.XY, flat)
}
