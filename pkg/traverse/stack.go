package traverse

import (
	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/geom"
)

// Frame is one entered reference.
type Frame[C any] struct {
	Reference  *blockdb.Node
	Definition *blockdb.Node
	// Local maps the definition's space into the parent frame's space.
	Local geom.Matrix
	// Name is the display name of Definition.
	Name string

	parent *Frame[C]
	depth  int

	world    geom.Matrix
	hasWorld bool

	factory ContextFactory[C]
	ctx     C
	hasCtx  bool
	closed  bool
}

// Parent returns the enclosing frame, or nil for an outermost frame.
func (f *Frame[C]) Parent() *Frame[C] {
	return f.parent
}

// Depth returns 1 for an outermost frame.
func (f *Frame[C]) Depth() int {
	return f.depth
}

// Closed reports whether the frame has been popped.
func (f *Frame[C]) Closed() bool {
	return f.closed
}

// Transform returns the accumulated transform mapping this frame's space to
// root space: the outermost local transform first, this frame's last.
func (f *Frame[C]) Transform() geom.Matrix {
	if !f.hasWorld {
		if f.parent == nil {
			f.world = f.Local
		} else {
			f.world = geom.Compose(f.parent.Transform(), f.Local)
		}
		f.hasWorld = true
	}
	return f.world
}

// Path returns the names from the outermost frame down to f.
func (f *Frame[C]) Path() []string {
	path := make([]string, f.depth)
	for cur := f; cur != nil; cur = cur.parent {
		path[cur.depth-1] = cur.Name
	}
	return path
}

// Context returns the frame's context, creating it on first use.
func (f *Frame[C]) Context() (C, error) {
	if f.closed {
		var zero C
		return zero, ErrFrameClosed
	}
	if !f.hasCtx {
		if f.factory != nil {
			f.ctx = f.factory(f)
		}
		f.hasCtx = true
	}
	return f.ctx, nil
}

// Peek returns the context without creating it.
func (f *Frame[C]) Peek() (C, bool) {
	return f.ctx, f.hasCtx
}

func (f *Frame[C]) close() {
	if f.hasCtx {
		if r, ok := any(f.ctx).(Releaser); ok {
			r.Release()
		}
	}
	f.closed = true
}

// Stack is the chain of frames currently entered by a traversal.
type Stack[C any] struct {
	frames  []*Frame[C]
	factory ContextFactory[C]
}

// NewStack returns an empty stack whose frames build their contexts with
// factory. A nil factory leaves every context at its zero value.
func NewStack[C any](factory ContextFactory[C]) *Stack[C] {
	return &Stack[C]{factory: factory}
}

// Push enters a frame for ref, whose resolved definition is def.
func (s *Stack[C]) Push(ref, def *blockdb.Node, local geom.Matrix, name string) *Frame[C] {
	f := &Frame[C]{
		Reference:  ref,
		Definition: def,
		Local:      local,
		Name:       name,
		depth:      len(s.frames) + 1,
		factory:    s.factory,
	}
	if n := len(s.frames); n > 0 {
		f.parent = s.frames[n-1]
	}
	s.frames = append(s.frames, f)
	return f
}

// Pop leaves the innermost frame, releasing its context.
func (s *Stack[C]) Pop() error {
	n := len(s.frames)
	if n == 0 {
		return ErrNoFrame
	}
	f := s.frames[n-1]
	s.frames[n-1] = nil
	s.frames = s.frames[:n-1]
	f.close()
	return nil
}

// Current returns the innermost frame.
func (s *Stack[C]) Current() (*Frame[C], error) {
	if len(s.frames) == 0 {
		return nil, ErrNoFrame
	}
	return s.frames[len(s.frames)-1], nil
}

// Transform returns the accumulated transform of the innermost frame.
func (s *Stack[C]) Transform() (geom.Matrix, error) {
	f, err := s.Current()
	if err != nil {
		return geom.Identity(), err
	}
	return f.Transform(), nil
}

// Path returns the frame names, outermost first.
func (s *Stack[C]) Path() ([]string, error) {
	f, err := s.Current()
	if err != nil {
		return nil, err
	}
	return f.Path(), nil
}

// Context returns the context of the innermost frame.
func (s *Stack[C]) Context() (C, error) {
	f, err := s.Current()
	if err != nil {
		var zero C
		return zero, err
	}
	return f.Context()
}

// Depth returns the number of entered frames.
func (s *Stack[C]) Depth() int {
	return len(s.frames)
}

// Frames returns a copy of the frames, outermost first.
func (s *Stack[C]) Frames() []*Frame[C] {
	out := make([]*Frame[C], len(s.frames))
	copy(out, s.frames)
	return out
}

// unwind pops every frame left behind by a failed run.
func (s *Stack[C]) unwind() {
	for len(s.frames) > 0 {
		_ = s.Pop()
	}
}
