package traverse

import (
	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stats summarises one Visit run.
type Stats struct {
	Frames      int // references entered
	Payloads    int // payloads handed to OnPayload
	CacheHits   int
	CacheMisses int
	MaxDepth    int
}

// Option configures a Traverser.
type Option func(*options)

type options struct {
	flat       bool
	resolution blockdb.Resolution
	retain     bool
	filter     func(blockdb.Entity) bool
	log        *logrus.Entry
}

// WithFlat visits every distinct definition at most once per run and pushes
// no frames. Hooks then see an empty Stack.
func WithFlat(flat bool) Option {
	return func(o *options) { o.flat = flat }
}

// WithResolution selects how references resolve to definitions.
func WithResolution(r blockdb.Resolution) Option {
	return func(o *options) { o.resolution = r }
}

// WithRetainedCache keeps the VisitCache between flat runs for as long as
// the store generation does not change. It has no effect in contextual mode.
func WithRetainedCache(retain bool) Option {
	return func(o *options) { o.retain = retain }
}

// WithPayloadFilter drops payloads rejected by accept when definitions are
// scanned. It overrides a PayloadFilter implemented by the hooks.
func WithPayloadFilter(accept func(blockdb.Entity) bool) Option {
	return func(o *options) { o.filter = accept }
}

// WithLogger sets the logger for run diagnostics.
func WithLogger(log *logrus.Entry) Option {
	return func(o *options) { o.log = log }
}

// Traverser walks a Store. It is not safe for concurrent use, and hooks must
// not call Visit on the Traverser that invoked them.
type Traverser[C any] struct {
	store blockdb.Store
	hooks Hooks[C]
	opts  options

	stack *Stack[C]
	cache *VisitCache
	stats Stats

	cacheGen   uint64
	cacheValid bool

	active map[blockdb.NodeID]bool // definitions on the current path
	seen   map[blockdb.NodeID]bool // definitions entered this run, flat mode
}

// New returns a Traverser over store. A nil hooks value visits without
// side effects. Hooks implementing Contextual supply frame contexts, and
// hooks implementing PayloadFilter restrict the payloads scanned.
func New[C any](store blockdb.Store, hooks Hooks[C], opts ...Option) *Traverser[C] {
	if hooks == nil {
		hooks = NopHooks[C]{}
	}
	o := options{log: logrus.WithField("component", "traverse")}
	for _, opt := range opts {
		opt(&o)
	}
	if o.filter == nil {
		if pf, ok := hooks.(PayloadFilter); ok {
			o.filter = pf.AcceptPayload
		}
	}
	var factory ContextFactory[C]
	if c, ok := hooks.(Contextual[C]); ok {
		factory = c.NewContext
	}
	return &Traverser[C]{
		store:  store,
		hooks:  hooks,
		opts:   o,
		stack:  NewStack(factory),
		cache:  NewVisitCache(),
		active: make(map[blockdb.NodeID]bool),
		seen:   make(map[blockdb.NodeID]bool),
	}
}

// Stack returns the traversal stack. Its state is only meaningful inside a
// hook.
func (t *Traverser[C]) Stack() *Stack[C] {
	return t.stack
}

// Cache returns the visit cache.
func (t *Traverser[C]) Cache() *VisitCache {
	return t.cache
}

// Stats returns the statistics of the last run.
func (t *Traverser[C]) Stats() Stats {
	return t.stats
}

// Visit walks every root in order. A reference root is entered like any
// other reference; a definition root has its children visited without a
// frame. With visitNested false only references at root level are entered:
// payloads inside them are visited but references inside them are not.
//
// All roots are checked before anything is visited. Hook errors are
// returned unchanged and abort the run; the stack is empty afterwards.
func (t *Traverser[C]) Visit(roots []blockdb.NodeID, visitNested bool) (err error) {
	nodes := make([]*blockdb.Node, 0, len(roots))
	for _, id := range roots {
		n, err := t.openRoot(id)
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}

	t.begin()
	t.opts.log.WithFields(logrus.Fields{
		"roots":  len(nodes),
		"nested": visitNested,
		"flat":   t.opts.flat,
	}).Debug("traversal started")

	defer func() {
		t.stack.unwind()
		t.active = make(map[blockdb.NodeID]bool)
		if err != nil {
			t.cacheValid = false
		}
		t.opts.log.WithFields(logrus.Fields{
			"frames":       t.stats.Frames,
			"payloads":     t.stats.Payloads,
			"cache_hits":   t.stats.CacheHits,
			"cache_misses": t.stats.CacheMisses,
			"max_depth":    t.stats.MaxDepth,
			"failed":       err != nil,
		}).Debug("traversal finished")
	}()

	for _, n := range nodes {
		if blockdb.IsReference(n) {
			err = t.enter(n, 0, visitNested)
		} else {
			err = t.visitRoot(n, visitNested)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Traverser[C]) openRoot(id blockdb.NodeID) (*blockdb.Node, error) {
	if id.IsZero() {
		return nil, &Error{Op: "root", Err: ErrInvalidRoot}
	}
	n, err := t.store.Open(id)
	if err != nil {
		return nil, &Error{Op: "root", Node: id, Err: errors.Wrap(ErrInvalidRoot, err.Error())}
	}
	if n == nil {
		return nil, &Error{Op: "root", Node: id, Err: ErrInvalidRoot}
	}
	if n.Erased {
		return nil, &Error{Op: "root", Node: id, Err: ErrErased}
	}
	if !blockdb.IsContainer(n) && !blockdb.IsReference(n) {
		return nil, &Error{Op: "root", Node: id, Err: errors.Wrapf(ErrWrongKind, "got %s", n.Kind)}
	}
	return n, nil
}

// begin resets per-run state. The cache survives only for retained flat
// runs over an unchanged store.
func (t *Traverser[C]) begin() {
	t.stats = Stats{}
	t.seen = make(map[blockdb.NodeID]bool)
	gen := t.store.Generation()
	keep := t.opts.flat && t.opts.retain && t.cacheValid && gen == t.cacheGen
	if !keep {
		t.cache.Clear()
	}
	t.cacheGen = gen
	t.cacheValid = true
}

// visitRoot visits the children of a root definition. Root definitions are
// neither admitted nor cached.
func (t *Traverser[C]) visitRoot(def *blockdb.Node, nested bool) error {
	entry, err := t.scan(def, false)
	if err != nil {
		return err
	}
	if t.opts.flat {
		t.seen[def.ID] = true
	}
	t.active[def.ID] = true
	defer delete(t.active, def.ID)
	return t.visitChildren(entry.Children, 0, nested)
}

// enter visits the definition behind ref. level counts the references
// entered above ref.
func (t *Traverser[C]) enter(ref *blockdb.Node, level int, nested bool) error {
	if !t.hooks.AdmitReference(ref) {
		return nil
	}
	defID, err := blockdb.ResolveDefinition(t.store, ref, t.opts.resolution)
	if err != nil {
		return &Error{Op: "resolve", Node: ref.ID, Err: errors.Wrap(ErrUnresolved, err.Error())}
	}
	if t.active[defID] {
		return &Error{Op: "enter", Node: ref.ID, Err: errors.Wrapf(ErrCycle, "definition %s", defID.Short())}
	}
	def, err := t.store.Open(defID)
	if err != nil {
		return &Error{Op: "resolve", Node: ref.ID, Err: errors.Wrap(ErrUnresolved, err.Error())}
	}
	if def == nil {
		return &Error{Op: "resolve", Node: ref.ID, Err: ErrUnresolved}
	}

	entry, hit, err := t.cache.Get(defID, func() (*CacheEntry, error) {
		return t.scan(def, true)
	})
	if err != nil {
		return err
	}
	if hit {
		t.stats.CacheHits++
	} else {
		t.stats.CacheMisses++
	}
	if !entry.Admitted {
		return nil
	}

	if t.opts.flat {
		if t.seen[defID] {
			return nil
		}
		t.seen[defID] = true
		t.active[defID] = true
		defer delete(t.active, defID)
		t.track(level + 1)
		return t.visitChildren(entry.Children, level+1, nested)
	}

	local := ref.Reference().Transform(def.Definition().Origin)
	t.stack.Push(ref, def, local, blockdb.EffectiveName(t.store, def))
	t.active[defID] = true
	defer func() {
		delete(t.active, defID)
		_ = t.stack.Pop()
	}()
	t.stats.Frames++
	t.track(t.stack.Depth())

	if err := t.hooks.OnEnterFrame(t.stack); err != nil {
		return err
	}
	if err := t.visitChildren(entry.Children, level+1, nested); err != nil {
		return err
	}
	return t.hooks.OnExitFrame(t.stack)
}

func (t *Traverser[C]) track(depth int) {
	if depth > t.stats.MaxDepth {
		t.stats.MaxDepth = depth
	}
}

func (t *Traverser[C]) visitChildren(children []*blockdb.Node, level int, nested bool) error {
	for _, child := range children {
		if blockdb.IsReference(child) {
			if level > 0 && !nested {
				continue
			}
			if err := t.enter(child, level, nested); err != nil {
				return err
			}
			continue
		}
		t.stats.Payloads++
		if err := t.hooks.OnPayload(t.stack, child); err != nil {
			return err
		}
	}
	return nil
}

// scan enumerates and filters the children of def. Erased children and
// nested definitions are dropped.
func (t *Traverser[C]) scan(def *blockdb.Node, admit bool) (*CacheEntry, error) {
	entry := &CacheEntry{Admitted: true}
	if admit && !t.hooks.AdmitDefinition(def) {
		entry.Admitted = false
		return entry, nil
	}
	ids, err := t.store.Children(def.ID)
	if err != nil {
		return nil, &Error{Op: "children", Node: def.ID, Err: err}
	}
	for _, id := range ids {
		n, err := t.store.Open(id)
		if err != nil {
			return nil, &Error{Op: "open", Node: id, Err: err}
		}
		if n == nil {
			return nil, &Error{Op: "open", Node: id, Err: ErrUnresolved}
		}
		switch {
		case n.Erased:
		case blockdb.IsReference(n):
			entry.Children = append(entry.Children, n)
		case blockdb.IsPayload(n):
			if t.opts.filter == nil || t.opts.filter(n.Entity()) {
				entry.Children = append(entry.Children, n)
			}
		}
	}
	return entry, nil
}
