package poi

import (
	"maps"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/geo"
	"github.com/sells-group/catchment/internal/provider"
)

// Record is a feature retained inside a catchment polygon. Category and
// Label are zero until Categorize runs and are not changed afterwards.
type Record struct {
	ID       string    `json:"id" yaml:"id"`
	Kind     string    `json:"kind" yaml:"kind"`
	Geometry geom.T    `json:"-" yaml:"-"`
	Location geo.Point `json:"location" yaml:"location"`
	Tags     Tags      `json:"tags" yaml:"tags"`
	Category Category  `json:"category,omitempty" yaml:"category,omitempty"`
	Label    string    `json:"label,omitempty" yaml:"label,omitempty"`
}

// Name returns the feature's name tag, if any.
func (r Record) Name() string { return r.Tags["name"] }

// RepresentativePoint returns the point used for containment tests: the
// geometry itself for points, the area centroid for polygons, and the
// length-weighted centroid for lines.
func RepresentativePoint(g geom.T) (geo.Point, error) {
	p, err := geo.Centroid(g)
	if err != nil {
		return geo.Point{}, err
	}
	if err := p.Validate(); err != nil {
		return geo.Point{}, err
	}
	return p, nil
}

// Filter returns the features whose representative point lies strictly
// inside polygon. Features with missing or unusable geometry are skipped.
// A degenerate polygon retains nothing.
func Filter(polygon geom.T, features []provider.RawFeature) []Record {
	out := make([]Record, 0)
	if _, ok := polygon.(*geom.Polygon); !ok {
		if _, multi := polygon.(*geom.MultiPolygon); !multi {
			return out
		}
	}

	var skipped int
	for _, f := range features {
		if f.Geometry == nil {
			skipped++
			continue
		}
		loc, err := RepresentativePoint(f.Geometry)
		if err != nil {
			skipped++
			zap.L().Debug("poi: skipping feature",
				zap.String("id", f.ID),
				zap.Error(err),
			)
			continue
		}
		if !geo.ContainsStrict(polygon, loc) {
			continue
		}
		out = append(out, Record{
			ID:       f.ID,
			Kind:     f.Kind,
			Geometry: f.Geometry,
			Location: loc,
			Tags:     Tags(maps.Clone(f.Tags)),
		})
	}

	if skipped > 0 {
		zap.L().Debug("poi: skipped malformed features",
			zap.Int("skipped", skipped),
			zap.Int("total", len(features)),
		)
	}
	return out
}

// Categorize returns a copy of records with Category and Label assigned.
func Categorize(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.Category = Classify(r.Tags)
		r.Label = Label(r.Category, r.Tags)
		out[i] = r
	}
	return out
}
