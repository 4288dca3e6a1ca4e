package traverse

import "github.com/chazu/blockwalk/pkg/blockdb"

// HandlerFunc handles one payload. e is n's entity.
type HandlerFunc[C any] func(s *Stack[C], n *blockdb.Node, e blockdb.Entity) error

// Dispatcher routes payloads to the handler registered for the most
// specific type in the payload's type chain. It embeds NopHooks, so a
// Dispatcher is itself usable as traversal hooks.
type Dispatcher[C any] struct {
	NopHooks[C]

	handlers map[blockdb.EntityType]HandlerFunc[C]
	fallback HandlerFunc[C]
	accept   func(blockdb.Entity) bool

	// resolved memoises lookups per concrete type; a nil value means no
	// registered handler matched.
	resolved map[blockdb.EntityType]HandlerFunc[C]
}

// NewDispatcher returns a dispatcher with no handlers.
func NewDispatcher[C any]() *Dispatcher[C] {
	return &Dispatcher[C]{
		handlers: make(map[blockdb.EntityType]HandlerFunc[C]),
		resolved: make(map[blockdb.EntityType]HandlerFunc[C]),
	}
}

// Handle registers h for t and every type below it that has no closer
// registration.
func (d *Dispatcher[C]) Handle(t blockdb.EntityType, h HandlerFunc[C]) *Dispatcher[C] {
	d.handlers[t] = h
	d.resolved = make(map[blockdb.EntityType]HandlerFunc[C])
	return d
}

// Default sets the handler used when no registration matches.
func (d *Dispatcher[C]) Default(h HandlerFunc[C]) *Dispatcher[C] {
	d.fallback = h
	return d
}

// Restrict limits d to entities whose Go type is assignable to T. Other
// payloads are skipped without reaching any handler, the default included.
func Restrict[T blockdb.Entity, C any](d *Dispatcher[C]) *Dispatcher[C] {
	d.accept = func(e blockdb.Entity) bool {
		_, ok := e.(T)
		return ok
	}
	return d
}

// AcceptPayload implements PayloadFilter.
func (d *Dispatcher[C]) AcceptPayload(e blockdb.Entity) bool {
	return e != nil && (d.accept == nil || d.accept(e))
}

// Resolve returns the handler chosen for t, or nil if only the default
// would run.
func (d *Dispatcher[C]) Resolve(t blockdb.EntityType) HandlerFunc[C] {
	if h, ok := d.resolved[t]; ok {
		return h
	}
	var h HandlerFunc[C]
	for cur := t; cur != blockdb.TypeNone; cur = cur.Parent() {
		if found, ok := d.handlers[cur]; ok {
			h = found
			break
		}
	}
	d.resolved[t] = h
	return h
}

// Dispatch invokes exactly one handler for n, or none when n is filtered
// out or nothing matches and there is no default.
func (d *Dispatcher[C]) Dispatch(s *Stack[C], n *blockdb.Node) error {
	e := n.Entity()
	if !d.AcceptPayload(e) {
		return nil
	}
	h := d.Resolve(e.Type())
	if h == nil {
		h = d.fallback
	}
	if h == nil {
		return nil
	}
	return h(s, n, e)
}

// OnPayload implements Hooks.
func (d *Dispatcher[C]) OnPayload(s *Stack[C], n *blockdb.Node) error {
	return d.Dispatch(s, n)
}
