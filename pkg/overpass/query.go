package overpass

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// walkExcludedHighways are highway values that pedestrians cannot use.
const walkExcludedHighways = "abandoned|bus_guideway|construction|cycleway|motor|no|planned|platform|proposed|raceway|razed"

// WalkNetworkQuery returns the QL for all walkable ways within radius
// metres of (lat, lon), with node IDs and geometry.
func WalkNetworkQuery(lat, lon, radiusMeters float64, timeoutSecs int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];", timeoutSecs)
	b.WriteString(`way["highway"]["area"!~"yes"]["access"!~"private"]`)
	fmt.Fprintf(&b, `["highway"!~"%s"]`, walkExcludedHighways)
	b.WriteString(`["foot"!~"no"]["service"!~"private"]`)
	fmt.Fprintf(&b, "(around:%.1f,%.7f,%.7f);", radiusMeters, lat, lon)
	b.WriteString("out body geom;")
	return b.String()
}

// BBox is a south/west/north/east query box.
type BBox struct {
	South, West, North, East float64
}

func (bb BBox) String() string {
	return fmt.Sprintf("%.7f,%.7f,%.7f,%.7f", bb.South, bb.West, bb.North, bb.East)
}

// FeaturesQuery returns the QL for nodes, ways and relations inside bbox
// that carry any of the filter's tags. A key with no values matches any
// value; otherwise the value must be one of those listed.
func FeaturesQuery(bbox BBox, filter map[string][]string, timeoutSecs int) string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];(", timeoutSecs)
	for _, k := range keys {
		fmt.Fprintf(&b, "nwr%s(%s);", tagClause(k, filter[k]), bbox)
	}
	// Ways referenced by matching relations come first so their geometry
	// is known when the relations are decoded.
	b.WriteString(")->.f;way(r.f);out skel geom;.f out tags geom;")
	return b.String()
}

func tagClause(key string, values []string) string {
	switch len(values) {
	case 0:
		return fmt.Sprintf("[%q]", key)
	case 1:
		return fmt.Sprintf("[%q=%q]", key, values[0])
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = regexp.QuoteMeta(v)
	}
	return fmt.Sprintf("[%q~%q]", key, "^("+strings.Join(quoted, "|")+")$")
}
