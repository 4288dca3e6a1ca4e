package traverse

import (
	"fmt"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidRoot is returned for a zero or unknown root id.
	ErrInvalidRoot = errors.New("invalid root")
	// ErrErased is returned when a root has been erased.
	ErrErased = errors.New("root is erased")
	// ErrWrongKind is returned when a root is neither a definition nor a reference.
	ErrWrongKind = errors.New("root must be a definition or a reference")
	// ErrUnresolved is returned when a reference's definition cannot be resolved.
	ErrUnresolved = errors.New("unresolved reference")
	// ErrCycle is returned when a reference re-enters a definition that is
	// already active on the current path.
	ErrCycle = errors.New("reference cycle")
	// ErrNoFrame is returned when frame state is read with an empty stack.
	ErrNoFrame = errors.New("no active frame")
	// ErrFrameClosed is returned when the context of a popped frame is read.
	ErrFrameClosed = errors.New("frame is closed")
)

// Error describes a fatal traversal failure and the node that caused it.
// Errors returned by hooks are never wrapped in an Error.
type Error struct {
	Op   string
	Node blockdb.NodeID
	Err  error
}

func (e *Error) Error() string {
	if e.Node.IsZero() {
		return fmt.Sprintf("traverse: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("traverse: %s %s: %v", e.Op, e.Node.Short(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
