package blockdb

import (
	"fmt"
	"sort"

	"github.com/chazu/blockwalk/pkg/geom"
	"github.com/pkg/errors"
)

// Compile-time interface checks.
var (
	_ Store    = (*Database)(nil)
	_ Appender = (*Database)(nil)
)

// Database is an in-memory drawing database. It is not safe for concurrent
// mutation.
type Database struct {
	Nodes     map[NodeID]*Node  `json:"nodes"`
	NameIndex map[string]NodeID `json:"name_index"` // definition and layout names
	Layouts   []NodeID          `json:"layouts"`

	generation uint64
}

// New creates an empty Database.
func New() *Database {
	return &Database{
		Nodes:     make(map[NodeID]*Node),
		NameIndex: make(map[string]NodeID),
	}
}

// Generation returns a counter bumped by every mutation.
func (db *Database) Generation() uint64 {
	return db.generation
}

func (db *Database) touch() {
	db.generation++
}

// AddNode adds a pre-built node. Named definitions are indexed by name.
func (db *Database) AddNode(n *Node) error {
	if _, exists := db.Nodes[n.ID]; exists {
		return errors.Errorf("node %s already exists", n.ID.Short())
	}
	if n.Kind == KindDefinition && n.Name != "" {
		if _, taken := db.NameIndex[n.Name]; taken {
			return errors.Wrapf(ErrDuplicateName, "%q", n.Name)
		}
		db.NameIndex[n.Name] = n.ID
	}
	db.Nodes[n.ID] = n
	if dd := n.Definition(); dd != nil && dd.Layout {
		db.Layouts = append(db.Layouts, n.ID)
	}
	db.touch()
	return nil
}

// AddDefinition creates an empty block definition with base point origin.
func (db *Database) AddDefinition(name string, origin geom.Vec) (*Node, error) {
	n := &Node{
		ID:   NewNodeID("block/" + name),
		Kind: KindDefinition,
		Name: name,
		Data: &DefinitionData{Origin: origin},
	}
	if err := db.AddNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddLayout creates an empty root space such as "Model".
func (db *Database) AddLayout(name string) (*Node, error) {
	n := &Node{
		ID:   NewNodeID("layout/" + name),
		Kind: KindDefinition,
		Name: name,
		Data: &DefinitionData{Layout: true},
	}
	if err := db.AddNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddVariant creates an anonymous definition standing in for canonical, the
// way a dynamic block instance gets its own generated copy.
func (db *Database) AddVariant(name string, canonical NodeID) (*Node, error) {
	canon, err := db.definition(canonical)
	if err != nil {
		return nil, err
	}
	n := &Node{
		ID:   NewNodeID("variant/" + name),
		Kind: KindDefinition,
		Name: name,
		Data: &DefinitionData{
			Origin:    canon.Definition().Origin,
			Anonymous: true,
			DynamicOf: canonical,
		},
	}
	if err := db.AddNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddEntity appends a payload entity to a definition with a deterministic id.
func (db *Database) AddEntity(def NodeID, e Entity) (NodeID, error) {
	d, err := db.definition(def)
	if err != nil {
		return ZeroID, err
	}
	id := NewNodeID(fmt.Sprintf("%s/%d/%s", d.ID, len(d.Definition().Children), e.Type()))
	return db.appendChild(d, &Node{ID: id, Kind: KindPayload, Data: &PayloadData{Entity: e}})
}

// Append adds e to dest under a fresh random id. It implements Appender.
func (db *Database) Append(dest NodeID, e Entity) (NodeID, error) {
	d, err := db.definition(dest)
	if err != nil {
		return ZeroID, err
	}
	return db.appendChild(d, &Node{ID: NewRandomNodeID(), Kind: KindPayload, Data: &PayloadData{Entity: e}})
}

// Insert places a reference to target inside def.
func (db *Database) Insert(def, target NodeID, p Placement) (NodeID, error) {
	d, err := db.definition(def)
	if err != nil {
		return ZeroID, err
	}
	if _, err := db.definition(target); err != nil {
		return ZeroID, errors.Wrap(err, "insert target")
	}
	if p.Scale == (geom.Vec{}) {
		p.Scale = geom.Vec{X: 1, Y: 1, Z: 1}
	}
	id := NewNodeID(fmt.Sprintf("%s/%d/insert/%s", d.ID, len(d.Definition().Children), target))
	return db.appendChild(d, &Node{
		ID:   id,
		Kind: KindReference,
		Data: &ReferenceData{Definition: target, Placement: p},
	})
}

func (db *Database) appendChild(def *Node, child *Node) (NodeID, error) {
	if _, exists := db.Nodes[child.ID]; exists {
		return ZeroID, errors.Errorf("node %s already exists", child.ID.Short())
	}
	db.Nodes[child.ID] = child
	dd := def.Definition()
	dd.Children = append(dd.Children, child.ID)
	db.touch()
	return child.ID, nil
}

// Erase marks a node as erased. Erased nodes stay in the database but are
// skipped by traversals and rejected as roots.
func (db *Database) Erase(id NodeID) error {
	n, ok := db.Nodes[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "node %s", id.Short())
	}
	n.Erased = true
	db.touch()
	return nil
}

// Open returns the node with the given id. It implements Store.
func (db *Database) Open(id NodeID) (*Node, error) {
	n, ok := db.Nodes[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "node %s", id.Short())
	}
	return n, nil
}

// Children returns a copy of the direct children of a definition. It
// implements Store.
func (db *Database) Children(def NodeID) ([]NodeID, error) {
	d, err := db.definition(def)
	if err != nil {
		return nil, err
	}
	children := d.Definition().Children
	out := make([]NodeID, len(children))
	copy(out, children)
	return out, nil
}

func (db *Database) definition(id NodeID) (*Node, error) {
	n, ok := db.Nodes[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "definition %s", id.Short())
	}
	if !IsContainer(n) {
		return nil, errors.Wrapf(ErrNotDefinition, "node %s is %s", id.Short(), n.Kind)
	}
	return n, nil
}

// Lookup returns the definition or layout with the given name, or nil.
func (db *Database) Lookup(name string) *Node {
	id, ok := db.NameIndex[name]
	if !ok {
		return nil
	}
	return db.Nodes[id]
}

// MustLookup returns the definition with the given name, or panics.
func (db *Database) MustLookup(name string) *Node {
	n := db.Lookup(name)
	if n == nil {
		panic(fmt.Sprintf("blockdb: no definition named %q", name))
	}
	return n
}

// Get returns the node with the given ID, or nil.
func (db *Database) Get(id NodeID) *Node {
	return db.Nodes[id]
}

// Definitions returns every non-layout definition sorted by name.
func (db *Database) Definitions() []*Node {
	var defs []*Node
	for _, n := range db.Nodes {
		if dd := n.Definition(); dd != nil && !dd.Layout {
			defs = append(defs, n)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// NodeCount returns the total number of nodes.
func (db *Database) NodeCount() int {
	return len(db.Nodes)
}
