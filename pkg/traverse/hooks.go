package traverse

import "github.com/chazu/blockwalk/pkg/blockdb"

// Hooks are the extension points of a traversal. C is the type of the
// per-frame context value.
type Hooks[C any] interface {
	// AdmitDefinition is asked once per definition per run. A definition
	// that is not admitted is never entered through any reference.
	AdmitDefinition(def *blockdb.Node) bool
	// AdmitReference is asked for every reference instance.
	AdmitReference(ref *blockdb.Node) bool
	// OnEnterFrame runs after a reference's frame has been pushed.
	OnEnterFrame(s *Stack[C]) error
	// OnExitFrame runs after all children of the frame were visited, before
	// the frame is popped. It is skipped when the subtree failed.
	OnExitFrame(s *Stack[C]) error
	// OnPayload runs for every admitted payload entity.
	OnPayload(s *Stack[C], n *blockdb.Node) error
}

// NopHooks admits everything and does nothing. Embed it to override only
// the hooks a visitor needs.
type NopHooks[C any] struct{}

func (NopHooks[C]) AdmitDefinition(*blockdb.Node) bool { return true }
func (NopHooks[C]) AdmitReference(*blockdb.Node) bool { return true }
func (NopHooks[C]) OnEnterFrame(*Stack[C]) error { return nil }
func (NopHooks[C]) OnExitFrame(*Stack[C]) error { return nil }
func (NopHooks[C]) OnPayload(*Stack[C], *blockdb.Node) error { return nil }

// ContextFactory creates the context value of a frame. It is called at most
// once per frame, on first access.
type ContextFactory[C any] func(f *Frame[C]) C

// Contextual is implemented by hooks that supply per-frame contexts.
type Contextual[C any] interface {
	NewContext(f *Frame[C]) C
}

// Releaser is implemented by context values that hold resources. Release is
// called when the owning frame is popped.
type Releaser interface {
	Release()
}

// PayloadFilter is implemented by hooks that only care about some payloads.
// Rejected payloads are dropped when a definition is scanned, so they never
// reach OnPayload.
type PayloadFilter interface {
	AcceptPayload(e blockdb.Entity) bool
}
