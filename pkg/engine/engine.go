// Package engine provides the Lisp evaluation engine for drawing scripts.
// It wraps zygomys in a sandboxed environment and produces a block database
// from user source code.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/blockwalk/pkg/blockdb"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal problem in the produced database, such
// as an unused block definition.
type EvalWarning struct {
	Message string
	NodeID  blockdb.NodeID
}

// EvalResult bundles the full output of an evaluation.
type EvalResult struct {
	Database *blockdb.Database
	Errors   []EvalError
	Warnings []EvalWarning
}

// Engine wraps the zygomys interpreter for drawing scripts.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism. Only the most recent call's
// result is delivered; earlier callers still waiting get ErrSuperseded.
type Engine struct {
	timeout time.Duration

	mu         sync.Mutex
	generation uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds each evaluation. Non-positive values keep
// DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout reports the per-evaluation limit.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Evaluate is EvaluateContext with a background context.
func (e *Engine) Evaluate(source string) (*blockdb.Database, []EvalError, error) {
	return e.EvaluateContext(context.Background(), source)
}

// EvaluateContext takes Lisp source code and produces a new block database.
//
// Script problems (syntax errors, unknown symbols, bad builtin arguments)
// come back as EvalErrors with a nil database and a nil error. The error
// return is reserved for the evaluation itself failing: a *TimeoutError
// when ctx or the engine's limit ends first, ErrSuperseded, or ErrPanic.
func (e *Engine) EvaluateContext(ctx context.Context, source string) (*blockdb.Database, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go e.run(gen, source, ch)
	return e.await(ctx, ch)
}

// run evaluates source and reports on ch, turning an interpreter panic into
// ErrPanic. ch is buffered so an abandoned run never blocks.
func (e *Engine) run(gen uint64, source string, ch chan<- outcome) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("generation", gen).Errorf("script panic: %v", r)
			ch <- outcome{gen: gen, err: errors.Wrapf(ErrPanic, "%v", r)}
		}
	}()
	db, evalErrs, err := e.evaluate(source)
	ch <- outcome{gen: gen, db: db, errors: evalErrs, err: err}
}

// EvaluateFull evaluates source and, on success, reports the validation
// warnings of the produced database alongside it.
func (e *Engine) EvaluateFull(ctx context.Context, source string) (*EvalResult, error) {
	db, evalErrs, err := e.EvaluateContext(ctx, source)
	if err != nil {
		return nil, err
	}
	res := &EvalResult{Database: db, Errors: evalErrs}
	if db == nil {
		return res, nil
	}
	for _, v := range blockdb.Validate(db) {
		if v.Severity == blockdb.SeverityError {
			res.Errors = append(res.Errors, EvalError{Message: v.Error()})
			continue
		}
		res.Warnings = append(res.Warnings, EvalWarning{Message: v.Message, NodeID: v.NodeID})
	}
	return res, nil
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*blockdb.Database, []EvalError, error) {
	db := blockdb.New()

	// Empty source is a valid program that produces an empty database.
	if strings.TrimSpace(source) == "" {
		return db, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, db)

	err := env.LoadString(preprocessSource(source))
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	_, err = env.Run()
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	logrus.WithFields(logrus.Fields{
		"nodes":   db.NodeCount(),
		"layouts": len(db.Layouts),
	}).Debug("script evaluated")
	return db, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values,
// extracting line information where the message carries it.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, p := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := p.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
