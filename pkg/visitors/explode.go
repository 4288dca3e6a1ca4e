package visitors

import (
	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/geom"
	"github.com/chazu/blockwalk/pkg/traverse"
	"github.com/pkg/errors"
)

// ExplodeFrame is the per-frame context of DeepExplode: the payloads found
// directly in the frame's definition.
type ExplodeFrame struct {
	Pending []blockdb.Entity
}

// Release implements traverse.Releaser.
func (f *ExplodeFrame) Release() {
	f.Pending = nil
}

// DeepExplode copies every payload of type T found inside references into a
// destination definition, mapped into root space. Each frame's payloads are
// copied when the frame is left, once per reference path. Frames whose
// accumulated transform does not scale uniformly are skipped, and their
// payloads counted in Skipped. Payloads outside any reference are already in
// root space and are left alone.
//
// Copies are held back until the walk has finished, so a destination the
// walk reaches later never sees its own copies as payloads.
type DeepExplode[T blockdb.Entity] struct {
	*traverse.Dispatcher[*ExplodeFrame]

	appender  blockdb.Appender
	dest      blockdb.NodeID
	Tolerance float64

	clones []blockdb.Entity

	Result  []blockdb.NodeID
	Skipped int
}

// NewDeepExplode returns a visitor appending copies to dest through a.
func NewDeepExplode[T blockdb.Entity](a blockdb.Appender, dest blockdb.NodeID) *DeepExplode[T] {
	x := &DeepExplode[T]{appender: a, dest: dest, Tolerance: geom.DefaultTolerance}
	x.Dispatcher = traverse.Restrict[T](traverse.NewDispatcher[*ExplodeFrame]().Default(x.collect))
	return x
}

// NewContext implements traverse.Contextual.
func (x *DeepExplode[T]) NewContext(*traverse.Frame[*ExplodeFrame]) *ExplodeFrame {
	return &ExplodeFrame{}
}

func (x *DeepExplode[T]) collect(s *traverse.Stack[*ExplodeFrame], _ *blockdb.Node, e blockdb.Entity) error {
	if s.Depth() == 0 {
		return nil
	}
	ctx, err := s.Context()
	if err != nil {
		return err
	}
	ctx.Pending = append(ctx.Pending, e)
	return nil
}

// OnExitFrame maps the frame's pending payloads into root space and queues
// them for Flush.
func (x *DeepExplode[T]) OnExitFrame(s *traverse.Stack[*ExplodeFrame]) error {
	f, err := s.Current()
	if err != nil {
		return err
	}
	ctx, ok := f.Peek()
	if !ok || len(ctx.Pending) == 0 {
		return nil
	}
	m := f.Transform()
	if !geom.IsUniformScaled(m, x.Tolerance) {
		x.Skipped += len(ctx.Pending)
		return nil
	}
	for _, e := range ctx.Pending {
		x.clones = append(x.clones, e.Transform(m))
	}
	return nil
}

// Flush appends the queued copies to the destination in visit order and
// records their ids in Result.
func (x *DeepExplode[T]) Flush() error {
	for len(x.clones) > 0 {
		e := x.clones[0]
		id, err := x.appender.Append(x.dest, e)
		if err != nil {
			return errors.Wrapf(err, "explode %s into %s", e.Type(), x.dest.Short())
		}
		x.Result = append(x.Result, id)
		x.clones = x.clones[1:]
	}
	x.clones = nil
	return nil
}

// Run explodes everything reachable from roots. Nothing is appended when
// the walk fails.
func (x *DeepExplode[T]) Run(store blockdb.Store, roots []blockdb.NodeID, opts ...traverse.Option) (traverse.Stats, error) {
	t := traverse.New[*ExplodeFrame](store, x, opts...)
	if err := t.Visit(roots, true); err != nil {
		x.clones = nil
		return t.Stats(), err
	}
	return t.Stats(), x.Flush()
}
