package poi

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tags is a sparse OSM tag mapping. A key present with an empty value is
// distinct from an absent key.
type Tags map[string]string

// Has reports whether key is present, regardless of its value.
func (t Tags) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Is reports whether key is present with one of the given values.
func (t Tags) Is(key string, values ...string) bool {
	v, ok := t[key]
	return ok && slices.Contains(values, v)
}

// Rule maps a tag predicate to a category.
type Rule struct {
	Name     string
	Match    func(Tags) bool
	Category Category
}

// Rules is the classification rule list. Order is significant: the first
// matching rule wins.
var Rules = []Rule{
	{
		Name:     "railway",
		Match:    func(t Tags) bool { return t.Has("railway") },
		Category: CategoryTransitRail,
	},
	{
		Name:     "public_transport_or_bus_stop",
		Match:    func(t Tags) bool { return t.Has("public_transport") || t.Is("highway", "bus_stop") },
		Category: CategoryTransitOther,
	},
	{
		Name: "amenity_education",
		Match: func(t Tags) bool {
			return t.Is("amenity", "school", "university", "college", "kindergarten", "language_school")
		},
		Category: CategoryEducation,
	},
	{
		Name:     "amenity_worship",
		Match:    func(t Tags) bool { return t.Is("amenity", "place_of_worship") },
		Category: CategoryWorship,
	},
	{
		Name:     "amenity_healthcare",
		Match:    func(t Tags) bool { return t.Is("amenity", "clinic", "hospital", "pharmacy", "doctors", "dentist") },
		Category: CategoryHealthcare,
	},
	{
		Name:     "healthcare",
		Match:    func(t Tags) bool { return t.Has("healthcare") },
		Category: CategoryHealthcare,
	},
	{
		Name: "shop_grocery",
		Match: func(t Tags) bool {
			return t.Is("shop", "supermarket", "convenience", "greengrocer", "bakery", "market")
		},
		Category: CategoryGrocery,
	},
	{
		Name:     "leisure_or_sport",
		Match:    func(t Tags) bool { return t.Has("leisure") || t.Has("sport") },
		Category: CategoryLeisureSport,
	},
	{
		Name:     "tourism",
		Match:    func(t Tags) bool { return t.Has("tourism") },
		Category: CategoryTourism,
	},
	{
		Name:     "office",
		Match:    func(t Tags) bool { return t.Has("office") },
		Category: CategoryOffice,
	},
}

// Classify returns the category of the first rule in Rules that matches
// tags, or CategoryOthers.
func Classify(tags Tags) Category {
	return ClassifyWith(Rules, tags)
}

// ClassifyWith evaluates rules top-down against tags.
func ClassifyWith(rules []Rule, tags Tags) Category {
	for _, r := range rules {
		if r.Match(tags) {
			return r.Category
		}
	}
	return CategoryOthers
}

// MatchingRule returns the name of the first rule in Rules that matches
// tags, or "" when none does.
func MatchingRule(tags Tags) string {
	for _, r := range Rules {
		if r.Match(tags) {
			return r.Name
		}
	}
	return ""
}

// Label builds the display label "<category>: <amenity>", with the amenity
// value humanized. Features without an amenity are labelled "Location".
func Label(c Category, tags Tags) string {
	name := "Location"
	if v := strings.TrimSpace(tags["amenity"]); v != "" {
		name = cases.Title(language.English).String(strings.ReplaceAll(v, "_", " "))
	}
	return string(c) + ": " + name
}
