package blockdb

import (
	"math"

	"github.com/chazu/blockwalk/pkg/geom"
)

// EntityType names a payload type. Types form a single-inheritance tree
// rooted at TypeEntity; dispatch walks it from the concrete type upward.
type EntityType string

const (
	TypeNone     EntityType = ""
	TypeEntity   EntityType = "entity"
	TypeCurve    EntityType = "curve"
	TypeLine     EntityType = "line"
	TypeArc      EntityType = "arc"
	TypeCircle   EntityType = "circle"
	TypePolyline EntityType = "polyline"
	TypeText     EntityType = "text"
	TypeSolid    EntityType = "solid"
)

var entityParents = map[EntityType]EntityType{
	TypeEntity:   TypeNone,
	TypeCurve:    TypeEntity,
	TypeLine:     TypeCurve,
	TypeArc:      TypeCurve,
	TypeCircle:   TypeCurve,
	TypePolyline: TypeCurve,
	TypeText:     TypeEntity,
	TypeSolid:    TypeEntity,
}

// Parent returns the next less specific type, or TypeNone at the root.
func (t EntityType) Parent() EntityType {
	return entityParents[t]
}

// Is reports whether t equals ancestor or descends from it.
func (t EntityType) Is(ancestor EntityType) bool {
	for cur := t; cur != TypeNone; cur = cur.Parent() {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// Known reports whether t is part of the type tree.
func (t EntityType) Known() bool {
	_, ok := entityParents[t]
	return ok
}

// Entity is a leaf drawing object.
type Entity interface {
	Type() EntityType
	// Transform returns a copy mapped through m. Arcs, circles and text are
	// exact only for uniformly scaled transforms.
	Transform(m geom.Matrix) Entity
	// Points returns representative points used for extents.
	Points() []geom.Vec
}

// Curve is an entity with a measurable length.
type Curve interface {
	Entity
	Length() float64
}

// Compile-time interface checks.
var (
	_ Curve  = (*Line)(nil)
	_ Curve  = (*Arc)(nil)
	_ Curve  = (*Circle)(nil)
	_ Curve  = (*Polyline)(nil)
	_ Entity = (*Text)(nil)
	_ Entity = (*Solid)(nil)
)

// ---------------------------------------------------------------------------
// Curves
// ---------------------------------------------------------------------------

// Line is a straight segment.
type Line struct {
	From geom.Vec `json:"from"`
	To   geom.Vec `json:"to"`
}

func (*Line) Type() EntityType { return TypeLine }

func (l *Line) Transform(m geom.Matrix) Entity {
	return &Line{From: geom.Apply(m, l.From), To: geom.Apply(m, l.To)}
}

func (l *Line) Points() []geom.Vec { return []geom.Vec{l.From, l.To} }

func (l *Line) Length() float64 { return geom.Distance(l.From, l.To) }

// Arc is a counter-clockwise circular arc in the XY plane. Angles are in
// degrees.
type Arc struct {
	Center     geom.Vec `json:"center"`
	Radius     float64  `json:"radius"`
	StartAngle float64  `json:"start_angle"`
	EndAngle   float64  `json:"end_angle"`
}

func (*Arc) Type() EntityType { return TypeArc }

// Sweep returns the included angle in degrees, in (0, 360].
func (a *Arc) Sweep() float64 {
	s := math.Mod(a.EndAngle-a.StartAngle, 360)
	if s <= 0 {
		s += 360
	}
	return s
}

func (a *Arc) pointAt(deg float64) geom.Vec {
	r := deg * math.Pi / 180
	return geom.Vec{
		X: a.Center.X + a.Radius*math.Cos(r),
		Y: a.Center.Y + a.Radius*math.Sin(r),
		Z: a.Center.Z,
	}
}

func (a *Arc) Transform(m geom.Matrix) Entity {
	c := geom.Apply(m, a.Center)
	sp := geom.Apply(m, a.pointAt(a.StartAngle))
	ep := geom.Apply(m, a.pointAt(a.EndAngle))
	start := angleOf(c, sp)
	end := angleOf(c, ep)
	if geom.Determinant(m) < 0 {
		start, end = end, start
	}
	return &Arc{Center: c, Radius: a.Radius * geom.UniformScale(m), StartAngle: start, EndAngle: end}
}

func (a *Arc) Points() []geom.Vec {
	const steps = 16
	pts := make([]geom.Vec, 0, steps+1)
	sweep := a.Sweep()
	for i := 0; i <= steps; i++ {
		pts = append(pts, a.pointAt(a.StartAngle+sweep*float64(i)/steps))
	}
	return pts
}

func (a *Arc) Length() float64 { return a.Radius * a.Sweep() * math.Pi / 180 }

// Circle is a full circle in the XY plane.
type Circle struct {
	Center geom.Vec `json:"center"`
	Radius float64  `json:"radius"`
}

func (*Circle) Type() EntityType { return TypeCircle }

func (c *Circle) Transform(m geom.Matrix) Entity {
	return &Circle{Center: geom.Apply(m, c.Center), Radius: c.Radius * geom.UniformScale(m)}
}

func (c *Circle) Points() []geom.Vec {
	return []geom.Vec{
		{X: c.Center.X - c.Radius, Y: c.Center.Y, Z: c.Center.Z},
		{X: c.Center.X + c.Radius, Y: c.Center.Y, Z: c.Center.Z},
		{X: c.Center.X, Y: c.Center.Y - c.Radius, Z: c.Center.Z},
		{X: c.Center.X, Y: c.Center.Y + c.Radius, Z: c.Center.Z},
	}
}

func (c *Circle) Length() float64 { return 2 * math.Pi * c.Radius }

// Polyline is a chain of straight segments.
type Polyline struct {
	Vertices []geom.Vec `json:"vertices"`
	Closed   bool       `json:"closed,omitempty"`
}

func (*Polyline) Type() EntityType { return TypePolyline }

func (p *Polyline) Transform(m geom.Matrix) Entity {
	out := &Polyline{Vertices: make([]geom.Vec, len(p.Vertices)), Closed: p.Closed}
	for i, v := range p.Vertices {
		out.Vertices[i] = geom.Apply(m, v)
	}
	return out
}

func (p *Polyline) Points() []geom.Vec { return p.Vertices }

func (p *Polyline) Length() float64 {
	var total float64
	for i := 1; i < len(p.Vertices); i++ {
		total += geom.Distance(p.Vertices[i-1], p.Vertices[i])
	}
	if p.Closed && len(p.Vertices) > 2 {
		total += geom.Distance(p.Vertices[len(p.Vertices)-1], p.Vertices[0])
	}
	return total
}

// ---------------------------------------------------------------------------
// Annotation
// ---------------------------------------------------------------------------

// Text is a single-line annotation.
type Text struct {
	Value    string   `json:"value"`
	Position geom.Vec `json:"position"`
	Height   float64  `json:"height"`
	Rotation float64  `json:"rotation"` // degrees
}

func (*Text) Type() EntityType { return TypeText }

func (t *Text) Transform(m geom.Matrix) Entity {
	return &Text{
		Value:    t.Value,
		Position: geom.Apply(m, t.Position),
		Height:   t.Height * geom.UniformScale(m),
		Rotation: t.Rotation + geom.RotationZ(m),
	}
}

func (t *Text) Points() []geom.Vec { return []geom.Vec{t.Position} }

// ---------------------------------------------------------------------------
// Solids
// ---------------------------------------------------------------------------

// SolidShape distinguishes solid primitives.
type SolidShape int

const (
	ShapeBox      SolidShape = iota // Size is length x width x height, min corner at origin
	ShapeCylinder                   // Size.X is the radius, Size.Z the height, centred on origin
)

func (s SolidShape) String() string {
	switch s {
	case ShapeBox:
		return "box"
	case ShapeCylinder:
		return "cylinder"
	default:
		return "unknown"
	}
}

// Solid is a 3D primitive placed by its own matrix.
type Solid struct {
	Shape     SolidShape  `json:"shape"`
	Size      geom.Vec    `json:"size"`
	Placement geom.Matrix `json:"-"`
}

// NewBox returns a box of the given size with its min corner at at.
func NewBox(size, at geom.Vec) *Solid {
	return &Solid{Shape: ShapeBox, Size: size, Placement: geom.Translate(at)}
}

// NewCylinder returns a Z-aligned cylinder centred on at.
func NewCylinder(radius, height float64, at geom.Vec) *Solid {
	return &Solid{
		Shape:     ShapeCylinder,
		Size:      geom.Vec{X: radius, Y: radius, Z: height},
		Placement: geom.Translate(at),
	}
}

func (*Solid) Type() EntityType { return TypeSolid }

func (s *Solid) Transform(m geom.Matrix) Entity {
	return &Solid{Shape: s.Shape, Size: s.Size, Placement: geom.Compose(m, s.Placement)}
}

// Points returns the placed corners of the solid's local bounding box.
func (s *Solid) Points() []geom.Vec {
	lo, hi := geom.Vec{}, s.Size
	if s.Shape == ShapeCylinder {
		lo = geom.Vec{X: -s.Size.X, Y: -s.Size.X, Z: -s.Size.Z / 2}
		hi = geom.Vec{X: s.Size.X, Y: s.Size.X, Z: s.Size.Z / 2}
	}
	pts := make([]geom.Vec, 0, 8)
	for _, x := range []float64{lo.X, hi.X} {
		for _, y := range []float64{lo.Y, hi.Y} {
			for _, z := range []float64{lo.Z, hi.Z} {
				pts = append(pts, geom.Apply(s.Placement, geom.Vec{X: x, Y: y, Z: z}))
			}
		}
	}
	return pts
}

// angleOf returns the direction from center to p in degrees, in [0, 360).
func angleOf(center, p geom.Vec) float64 {
	a := math.Mod(math.Atan2(p.Y-center.Y, p.X-center.X)*180/math.Pi, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360-1e-9 {
		a = 0
	}
	return a
}
