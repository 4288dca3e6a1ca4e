package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds a script evaluation when no WithTimeout option is
// given.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("evaluation timed out")
	// ErrSuperseded is returned to a caller whose evaluation finished after
	// a newer Evaluate call on the same Engine had started.
	ErrSuperseded = errors.New("evaluation superseded by newer request")
	// ErrPanic wraps a panic recovered from the interpreter.
	ErrPanic = errors.New("panic during evaluation")
)

// TimeoutError reports a script that did not finish within Limit. The
// interpreter goroutine may still be running when it is returned.
type TimeoutError struct {
	Limit time.Duration
	// Cause is the context error that ended the wait: DeadlineExceeded for
	// the engine's own limit, or whatever the caller's context reported.
	Cause error
}

func (e *TimeoutError) Error() string {
	if errors.Is(e.Cause, context.Canceled) {
		return "evaluation canceled"
	}
	return fmt.Sprintf("evaluation timed out after %s", e.Limit)
}

// Is makes errors.Is(err, ErrTimeout) hold for any TimeoutError.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.Cause }

// outcome is what an interpreter goroutine hands back.
type outcome struct {
	gen    uint64
	db     *blockdb.Database
	errors []EvalError
	err    error
}

// await blocks until an evaluation reports on ch or ctx ends. A result
// whose generation is no longer current is dropped with ErrSuperseded.
func (e *Engine) await(ctx context.Context, ch <-chan outcome) (*blockdb.Database, []EvalError, error) {
	select {
	case o := <-ch:
		if cur := e.currentGeneration(); o.gen != cur {
			return nil, nil, errors.Wrapf(ErrSuperseded, "generation %d, current %d", o.gen, cur)
		}
		return o.db, o.errors, o.err
	case <-ctx.Done():
		return nil, nil, &TimeoutError{Limit: e.timeout, Cause: ctx.Err()}
	}
}

func (e *Engine) currentGeneration() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}
