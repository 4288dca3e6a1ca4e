// Package visitors holds ready-made traversal hooks: counters, collectors,
// an extents accumulator and the deep explode visitor.
package visitors

import (
	"sort"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/traverse"
)

// NameCount pairs a definition or entity type name with a count.
type NameCount struct {
	Name  string
	Count int
}

func sortedCounts(m map[string]int) []NameCount {
	out := make([]NameCount, 0, len(m))
	for name, n := range m {
		out = append(out, NameCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// BlockCounter counts references per definition name. In contextual mode a
// reference inside a definition placed N times counts N times; in flat mode
// every reference instance in the drawing counts once.
type BlockCounter struct {
	traverse.NopHooks[struct{}]

	store      blockdb.Store
	resolution blockdb.Resolution

	Counts map[string]int
}

// NewBlockCounter returns a counter that names definitions the way a
// traversal with resolution r resolves them.
func NewBlockCounter(store blockdb.Store, r blockdb.Resolution) *BlockCounter {
	return &BlockCounter{store: store, resolution: r, Counts: make(map[string]int)}
}

// AdmitReference counts ref and admits it.
func (c *BlockCounter) AdmitReference(ref *blockdb.Node) bool {
	id, err := blockdb.ResolveDefinition(c.store, ref, c.resolution)
	if err != nil {
		// The traversal reports the broken reference itself.
		return true
	}
	def, err := c.store.Open(id)
	if err != nil {
		return true
	}
	c.Counts[blockdb.EffectiveName(c.store, def)]++
	return true
}

// AcceptPayload implements traverse.PayloadFilter. Counting blocks needs no
// payloads at all.
func (c *BlockCounter) AcceptPayload(blockdb.Entity) bool {
	return false
}

// Total returns the number of counted references.
func (c *BlockCounter) Total() int {
	total := 0
	for _, n := range c.Counts {
		total += n
	}
	return total
}

// Sorted returns the counts, most frequent first.
func (c *BlockCounter) Sorted() []NameCount {
	return sortedCounts(c.Counts)
}

// Run walks roots with this counter, always resolving references the way
// the counter names them.
func (c *BlockCounter) Run(roots []blockdb.NodeID, nested bool, opts ...traverse.Option) (traverse.Stats, error) {
	opts = append(opts, traverse.WithResolution(c.resolution))
	t := traverse.New[struct{}](c.store, c, opts...)
	err := t.Visit(roots, nested)
	return t.Stats(), err
}

// EntityCounter counts payloads assignable to T, keyed by entity type.
type EntityCounter[T blockdb.Entity] struct {
	*traverse.Dispatcher[struct{}]

	Counts map[blockdb.EntityType]int
}

// NewEntityCounter returns an empty counter.
func NewEntityCounter[T blockdb.Entity]() *EntityCounter[T] {
	c := &EntityCounter[T]{Counts: make(map[blockdb.EntityType]int)}
	c.Dispatcher = traverse.Restrict[T](traverse.NewDispatcher[struct{}]().Default(c.count))
	return c
}

func (c *EntityCounter[T]) count(_ *traverse.Stack[struct{}], _ *blockdb.Node, e blockdb.Entity) error {
	c.Counts[e.Type()]++
	return nil
}

// Total returns the number of counted payloads.
func (c *EntityCounter[T]) Total() int {
	total := 0
	for _, n := range c.Counts {
		total += n
	}
	return total
}

// Sorted returns the counts per type, most frequent first.
func (c *EntityCounter[T]) Sorted() []NameCount {
	m := make(map[string]int, len(c.Counts))
	for t, n := range c.Counts {
		m[string(t)] = n
	}
	return sortedCounts(m)
}

// Run walks roots with this counter.
func (c *EntityCounter[T]) Run(store blockdb.Store, roots []blockdb.NodeID, nested bool, opts ...traverse.Option) (traverse.Stats, error) {
	t := traverse.New[struct{}](store, c, opts...)
	err := t.Visit(roots, nested)
	return t.Stats(), err
}
