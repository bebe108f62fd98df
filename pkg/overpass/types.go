package overpass

import gooverpass "github.com/serjvanilla/go-overpass"

// Response types are those of the go-overpass decoder. Elements are keyed
// by OSM ID and linked by pointer: a way's nodes and a relation's members
// point at the same values as the top-level maps.
type (
	Result         = gooverpass.Result
	Meta           = gooverpass.Meta
	Node           = gooverpass.Node
	Way            = gooverpass.Way
	Relation       = gooverpass.Relation
	RelationMember = gooverpass.RelationMember
	Point          = gooverpass.Point
	ElementType    = gooverpass.ElementType
)

// Element types.
const (
	ElementTypeNode     = gooverpass.ElementTypeNode
	ElementTypeWay      = gooverpass.ElementTypeWay
	ElementTypeRelation = gooverpass.ElementTypeRelation
)
