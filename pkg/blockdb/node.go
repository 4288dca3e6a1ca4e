package blockdb

import "github.com/chazu/blockwalk/pkg/geom"

// NodeKind enumerates the kinds of nodes a traversal distinguishes.
type NodeKind int

const (
	KindDefinition NodeKind = iota // block definition or layout (container)
	KindReference                  // placed instance of a definition
	KindPayload                    // leaf entity
)

func (k NodeKind) String() string {
	switch k {
	case KindDefinition:
		return "definition"
	case KindReference:
		return "reference"
	case KindPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Node is the fundamental element of the drawing database.
type Node struct {
	ID     NodeID   `json:"id"`
	Kind   NodeKind `json:"kind"`
	Name   string   `json:"name,omitempty"`
	Erased bool     `json:"erased,omitempty"`
	Data   NodeData `json:"data"`
}

// NodeData is the interface for kind-specific node payloads.
type NodeData interface {
	nodeData() // marker method restricting implementations to this package
}

// DefinitionData holds the interior of a block definition or layout.
type DefinitionData struct {
	Children  []NodeID `json:"children,omitempty"`
	Origin    geom.Vec `json:"origin"`               // base point subtracted by references
	Layout    bool     `json:"layout,omitempty"`     // root space with no instantiating reference
	Anonymous bool     `json:"anonymous,omitempty"`  // generated copy, e.g. a dynamic block variant
	DynamicOf NodeID   `json:"dynamic_of,omitempty"` // canonical definition of an anonymous variant
}

func (*DefinitionData) nodeData() {}

// Placement is the position, per-axis scale and Z rotation (degrees) of a
// reference.
type Placement struct {
	Position geom.Vec `json:"position"`
	Scale    geom.Vec `json:"scale"`
	Rotation float64  `json:"rotation"`
}

// DefaultPlacement places a reference at the origin with unit scale.
func DefaultPlacement() Placement {
	return Placement{Scale: geom.Vec{X: 1, Y: 1, Z: 1}}
}

// ReferenceData is a placed instance of a definition.
type ReferenceData struct {
	Definition NodeID `json:"definition"`
	Placement
}

func (*ReferenceData) nodeData() {}

// Transform maps the target definition's space (with base point origin) into
// the space containing the reference.
func (r *ReferenceData) Transform(origin geom.Vec) geom.Matrix {
	m := geom.Compose(geom.Translate(r.Position), geom.RotateZ(r.Rotation))
	m = geom.Compose(m, geom.Scale(r.Scale))
	return geom.Compose(m, geom.Translate(geom.Vec{X: -origin.X, Y: -origin.Y, Z: -origin.Z}))
}

// PayloadData wraps a leaf entity.
type PayloadData struct {
	Entity Entity `json:"entity"`
}

func (*PayloadData) nodeData() {}

// Definition returns the definition data of n, or nil.
func (n *Node) Definition() *DefinitionData {
	d, _ := n.Data.(*DefinitionData)
	return d
}

// Reference returns the reference data of n, or nil.
func (n *Node) Reference() *ReferenceData {
	d, _ := n.Data.(*ReferenceData)
	return d
}

// Entity returns the payload entity of n, or nil.
func (n *Node) Entity() Entity {
	if d, ok := n.Data.(*PayloadData); ok {
		return d.Entity
	}
	return nil
}

// IsContainer reports whether n is a definition.
func IsContainer(n *Node) bool {
	return n != nil && n.Kind == KindDefinition && n.Definition() != nil
}

// IsReference reports whether n is a block reference.
func IsReference(n *Node) bool {
	return n != nil && n.Kind == KindReference && n.Reference() != nil
}

// IsPayload reports whether n is a leaf entity.
func IsPayload(n *Node) bool {
	return n != nil && n.Kind == KindPayload && n.Entity() != nil
}
