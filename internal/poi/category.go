// Package poi filters raw features against a catchment polygon and assigns
// each retained feature a category with an ordered rule list.
package poi

// Category is the display class of a point of interest.
type Category string

// Categories, in rule order.
const (
	CategoryTransitRail  Category = "Transit (Train/Rail)"
	CategoryTransitOther Category = "Transit (Bus/Other)"
	CategoryEducation    Category = "Education"
	CategoryWorship      Category = "Worship"
	CategoryHealthcare   Category = "Healthcare"
	CategoryGrocery      Category = "Grocery"
	CategoryLeisureSport Category = "Leisure/Sport"
	CategoryTourism      Category = "Tourism"
	CategoryOffice       Category = "Office"
	CategoryOthers       Category = "Others"
)

// Categories returns every category in rule order.
func Categories() []Category {
	return []Category{
		CategoryTransitRail,
		CategoryTransitOther,
		CategoryEducation,
		CategoryWorship,
		CategoryHealthcare,
		CategoryGrocery,
		CategoryLeisureSport,
		CategoryTourism,
		CategoryOffice,
		CategoryOthers,
	}
}

// Marker radii in pixels.
const (
	markerRadiusRail    = 7
	markerRadiusDefault = 5
	fallbackColor       = "#808080"
)

var palette = map[Category]string{
	CategoryOffice:       "#7F8C8D",
	CategoryHealthcare:   "#C0392B",
	CategoryTransitRail:  "#8E44AD",
	CategoryTransitOther: "#F39C12",
	CategoryLeisureSport: "#27AE60",
	CategoryTourism:      "#D35400",
	CategoryEducation:    "#F1C40F",
	CategoryWorship:      "#9B59B6",
	CategoryGrocery:      "#2ECC71",
	CategoryOthers:       "#16A085",
}

// Color returns the hex marker colour for c. Unknown categories are gray.
func (c Category) Color() string {
	if v, ok := palette[c]; ok {
		return v
	}
	return fallbackColor
}

// MarkerRadius returns the map marker radius for c. Rail stations are drawn
// larger than everything else.
func (c Category) MarkerRadius() int {
	if c == CategoryTransitRail {
		return markerRadiusRail
	}
	return markerRadiusDefault
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := palette[c]
	return ok
}

func (c Category) String() string { return string(c) }
