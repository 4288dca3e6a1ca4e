package document

import (
	"fmt"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/geom"
)

// Vec is a point in documents, written as [x, y, z].
type Vec [3]float64

func vecOf(v geom.Vec) Vec { return Vec{v.X, v.Y, v.Z} }

func (v Vec) point() geom.Vec { return geom.Vec{X: v[0], Y: v[1], Z: v[2]} }

func vecPtr(v geom.Vec) *Vec {
	if v == (geom.Vec{}) {
		return nil
	}
	p := vecOf(v)
	return &p
}

func (v *Vec) orZero() geom.Vec {
	if v == nil {
		return geom.Vec{}
	}
	return v.point()
}

// Item is one child of a block: a payload entity or an insert. Type selects
// which fields apply.
type Item struct {
	Type string `json:"type" yaml:"type" toml:"type"`

	// line
	From *Vec `json:"from,omitempty" yaml:"from,omitempty" toml:"from,omitempty"`
	To   *Vec `json:"to,omitempty" yaml:"to,omitempty" toml:"to,omitempty"`

	// arc, circle
	Center *Vec    `json:"center,omitempty" yaml:"center,omitempty" toml:"center,omitempty"`
	Radius float64 `json:"radius,omitempty" yaml:"radius,omitempty" toml:"radius,omitempty"`
	Start  float64 `json:"start,omitempty" yaml:"start,omitempty" toml:"start,omitempty"`
	End    float64 `json:"end,omitempty" yaml:"end,omitempty" toml:"end,omitempty"`

	// polyline
	Vertices []Vec `json:"vertices,omitempty" yaml:"vertices,omitempty" toml:"vertices,omitempty"`
	Closed   bool  `json:"closed,omitempty" yaml:"closed,omitempty" toml:"closed,omitempty"`

	// text
	Value  string  `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Height float64 `json:"height,omitempty" yaml:"height,omitempty" toml:"height,omitempty"`

	// solid
	Shape  string       `json:"shape,omitempty" yaml:"shape,omitempty" toml:"shape,omitempty"`
	Size   *Vec         `json:"size,omitempty" yaml:"size,omitempty" toml:"size,omitempty"`
	Matrix *[12]float64 `json:"matrix,omitempty" yaml:"matrix,omitempty" toml:"matrix,omitempty"`

	// insert
	Block string `json:"block,omitempty" yaml:"block,omitempty" toml:"block,omitempty"`
	Scale *Vec   `json:"scale,omitempty" yaml:"scale,omitempty" toml:"scale,omitempty"`

	// text and insert
	At       *Vec    `json:"at,omitempty" yaml:"at,omitempty" toml:"at,omitempty"`
	Rotation float64 `json:"rotation,omitempty" yaml:"rotation,omitempty" toml:"rotation,omitempty"`
}

// TypeInsert is the item type of an insert.
const TypeInsert = "insert"

// EntityItem converts a payload entity into its document form.
func EntityItem(e blockdb.Entity) (Item, error) {
	it := Item{Type: string(e.Type())}
	switch v := e.(type) {
	case *blockdb.Line:
		from, to := vecOf(v.From), vecOf(v.To)
		it.From, it.To = &from, &to
	case *blockdb.Arc:
		c := vecOf(v.Center)
		it.Center, it.Radius, it.Start, it.End = &c, v.Radius, v.StartAngle, v.EndAngle
	case *blockdb.Circle:
		c := vecOf(v.Center)
		it.Center, it.Radius = &c, v.Radius
	case *blockdb.Polyline:
		it.Closed = v.Closed
		for _, p := range v.Vertices {
			it.Vertices = append(it.Vertices, vecOf(p))
		}
	case *blockdb.Text:
		it.Value, it.Height, it.Rotation = v.Value, v.Height, v.Rotation
		it.At = vecPtr(v.Position)
	case *blockdb.Solid:
		size := vecOf(v.Size)
		m := geom.Affine(v.Placement)
		it.Shape, it.Size, it.Matrix = v.Shape.String(), &size, &m
	default:
		return Item{}, fmt.Errorf("unsupported entity %T", e)
	}
	return it, nil
}

// InsertItem converts a reference placement into its document form.
func InsertItem(block string, p blockdb.Placement) Item {
	it := Item{Type: TypeInsert, Block: block, Rotation: p.Rotation, At: vecPtr(p.Position)}
	if p.Scale != (geom.Vec{X: 1, Y: 1, Z: 1}) {
		s := vecOf(p.Scale)
		it.Scale = &s
	}
	return it
}

// Placement returns the placement of an insert item. A missing scale is
// unit scale.
func (it Item) Placement() blockdb.Placement {
	p := blockdb.DefaultPlacement()
	p.Position = it.At.orZero()
	p.Rotation = it.Rotation
	if it.Scale != nil {
		p.Scale = it.Scale.point()
	}
	return p
}

// Entity converts a payload item back into an entity.
func (it Item) Entity() (blockdb.Entity, error) {
	switch blockdb.EntityType(it.Type) {
	case blockdb.TypeLine:
		return &blockdb.Line{From: it.From.orZero(), To: it.To.orZero()}, nil
	case blockdb.TypeArc:
		return &blockdb.Arc{Center: it.Center.orZero(), Radius: it.Radius, StartAngle: it.Start, EndAngle: it.End}, nil
	case blockdb.TypeCircle:
		return &blockdb.Circle{Center: it.Center.orZero(), Radius: it.Radius}, nil
	case blockdb.TypePolyline:
		p := &blockdb.Polyline{Closed: it.Closed}
		for _, v := range it.Vertices {
			p.Vertices = append(p.Vertices, v.point())
		}
		return p, nil
	case blockdb.TypeText:
		return &blockdb.Text{Value: it.Value, Position: it.At.orZero(), Height: it.Height, Rotation: it.Rotation}, nil
	case blockdb.TypeSolid:
		s, err := it.solid()
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown item type %q", it.Type)
}

func (it Item) solid() (*blockdb.Solid, error) {
	s := &blockdb.Solid{Size: it.Size.orZero(), Placement: geom.Identity()}
	switch it.Shape {
	case blockdb.ShapeBox.String():
		s.Shape = blockdb.ShapeBox
	case blockdb.ShapeCylinder.String():
		s.Shape = blockdb.ShapeCylinder
	default:
		return nil, fmt.Errorf("unknown solid shape %q", it.Shape)
	}
	if it.Matrix != nil {
		s.Placement = geom.FromAffine(*it.Matrix)
	}
	return s, nil
}
