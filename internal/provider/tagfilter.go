package provider

import (
	"slices"
	"sort"
)

// TagFilter selects features by tag. Each key maps to the accepted values;
// an empty value list accepts any value, including the empty string.
type TagFilter map[string][]string

// DefaultTagFilter returns the feature selection used for catchment POIs.
func DefaultTagFilter() TagFilter {
	return TagFilter{
		"amenity":          nil,
		"shop":             nil,
		"office":           nil,
		"leisure":          nil,
		"healthcare":       nil,
		"sport":            nil,
		"public_transport": nil,
		"tourism":          nil,
		"highway":          {"bus_stop"},
		"railway":          {"station", "halt", "subway_entrance"},
	}
}

// Keys returns the filter keys in sorted order.
func (f TagFilter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether tags satisfy at least one filter entry.
func (f TagFilter) Matches(tags map[string]string) bool {
	for key, values := range f {
		v, ok := tags[key]
		if !ok {
			continue
		}
		if len(values) == 0 || slices.Contains(values, v) {
			return true
		}
	}
	return false
}
