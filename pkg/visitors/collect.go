package visitors

import (
	"math"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/geom"
	"github.com/chazu/blockwalk/pkg/traverse"
)

// worldTransform returns the stack's accumulated transform, or the identity
// outside any frame.
func worldTransform[C any](s *traverse.Stack[C]) geom.Matrix {
	m, err := s.Transform()
	if err != nil {
		return geom.Identity()
	}
	return m
}

// Collected is one payload seen by a Collector.
type Collected[T blockdb.Entity] struct {
	Node   blockdb.NodeID
	Path   []string
	Entity T
	// World is Entity mapped into root space.
	World blockdb.Entity
}

// Collector records every payload assignable to T with its frame path and a
// root-space copy.
type Collector[T blockdb.Entity] struct {
	*traverse.Dispatcher[struct{}]

	Items []Collected[T]
}

// NewCollector returns an empty collector.
func NewCollector[T blockdb.Entity]() *Collector[T] {
	c := &Collector[T]{}
	c.Dispatcher = traverse.Restrict[T](traverse.NewDispatcher[struct{}]().Default(c.collect))
	return c
}

func (c *Collector[T]) collect(s *traverse.Stack[struct{}], n *blockdb.Node, e blockdb.Entity) error {
	path, _ := s.Path()
	c.Items = append(c.Items, Collected[T]{
		Node:   n.ID,
		Path:   path,
		Entity: e.(T),
		World:  e.Transform(worldTransform(s)),
	})
	return nil
}

// Run walks roots with this collector.
func (c *Collector[T]) Run(store blockdb.Store, roots []blockdb.NodeID, nested bool, opts ...traverse.Option) (traverse.Stats, error) {
	t := traverse.New[struct{}](store, c, opts...)
	err := t.Visit(roots, nested)
	return t.Stats(), err
}

// Bounds is an axis-aligned box. The zero value is empty.
type Bounds struct {
	Min, Max geom.Vec
	valid    bool
}

// Empty reports whether no point has been added.
func (b Bounds) Empty() bool {
	return !b.valid
}

// Add grows b to contain p.
func (b *Bounds) Add(p geom.Vec) {
	if !b.valid {
		b.Min, b.Max, b.valid = p, p, true
		return
	}
	b.Min = geom.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
	b.Max = geom.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
}

// Size returns Max-Min, or the zero vector when empty.
func (b Bounds) Size() geom.Vec {
	if !b.valid {
		return geom.Vec{}
	}
	return geom.Vec{X: b.Max.X - b.Min.X, Y: b.Max.Y - b.Min.Y, Z: b.Max.Z - b.Min.Z}
}

// Extents accumulates the root-space bounds of every payload.
type Extents struct {
	*traverse.Dispatcher[struct{}]

	Bounds   Bounds
	Payloads int
}

// NewExtents returns an empty accumulator.
func NewExtents() *Extents {
	x := &Extents{}
	x.Dispatcher = traverse.NewDispatcher[struct{}]().Default(x.add)
	return x
}

func (x *Extents) add(s *traverse.Stack[struct{}], _ *blockdb.Node, e blockdb.Entity) error {
	m := worldTransform(s)
	for _, p := range e.Points() {
		x.Bounds.Add(geom.Apply(m, p))
	}
	x.Payloads++
	return nil
}

// Run walks roots with this accumulator.
func (x *Extents) Run(store blockdb.Store, roots []blockdb.NodeID, opts ...traverse.Option) (traverse.Stats, error) {
	t := traverse.New[struct{}](store, x, opts...)
	err := t.Visit(roots, true)
	return t.Stats(), err
}
