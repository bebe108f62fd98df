// Package provider defines the contracts for the two external data sources
// a catchment analysis depends on: a walkable street network fetched around
// a point, and tagged map features fetched over a region.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/catchment/internal/geo"
)

// CRS identifies the coordinate reference system of provider payloads.
type CRS string

// CRSWGS84 is geographic longitude/latitude in degrees (EPSG:4326). Both
// providers must deliver coordinates in this system.
const CRSWGS84 CRS = "EPSG:4326"

// ErrCRSMismatch is returned when a payload declares a coordinate system
// other than CRSWGS84.
var ErrCRSMismatch = eris.New("provider: unexpected coordinate reference system")

// RawNode is a street network vertex.
type RawNode struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RawEdge is a street segment between two nodes. LengthMeters may be zero,
// in which case the length is derived from Geometry (or the straight line
// between the endpoints) after projection. Key distinguishes parallel edges
// between the same pair of nodes.
type RawEdge struct {
	From         int64       `json:"from"`
	To           int64       `json:"to"`
	Key          int         `json:"key"`
	WayID        int64       `json:"way_id,omitempty"`
	LengthMeters float64     `json:"length_m,omitempty"`
	Geometry     []geo.Point `json:"geometry,omitempty"`
}

// RawNetwork is a provider's walk network payload.
type RawNetwork struct {
	CRS   CRS       `json:"crs"`
	Nodes []RawNode `json:"nodes"`
	Edges []RawEdge `json:"edges"`
}

// RawFeature is one tagged map feature. Geometry may be a point, linestring,
// polygon or multipolygon; nil geometry marks a malformed feature.
type RawFeature struct {
	ID       string            `json:"id"`
	Kind     string            `json:"kind"`
	Geometry geom.T            `json:"-"`
	Tags     map[string]string `json:"tags"`
}

// FeatureCollection is a provider's feature payload.
type FeatureCollection struct {
	CRS      CRS          `json:"crs"`
	Features []RawFeature `json:"features"`
}

// GraphProvider supplies a walkable street network around a point.
type GraphProvider interface {
	FetchWalkNetwork(ctx context.Context, center geo.Point, radiusMeters float64) (*RawNetwork, error)
}

// FeatureProvider supplies tagged features intersecting a region.
type FeatureProvider interface {
	FetchFeatures(ctx context.Context, region *geom.Polygon, filter TagFilter) (*FeatureCollection, error)
}

// CheckCRS fails fast when a payload is not in CRSWGS84. An empty CRS is
// treated as undeclared and accepted as WGS84.
func CheckCRS(c CRS) error {
	if c == "" || c == CRSWGS84 {
		return nil
	}
	return eris.Wrapf(ErrCRSMismatch, "provider: got %q, want %q", c, CRSWGS84)
}

// FetchError reports a provider failure. It is surfaced to callers as a
// failed analysis and is safe to retry.
type FetchError struct {
	Provider string
	Op       string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err as a FetchError unless it already is one.
func NewFetchError(providerName, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Provider: providerName, Op: op, Err: err}
}

// IsFetchError reports whether err is or wraps a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
