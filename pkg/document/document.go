// Package document reads and writes drawing databases as YAML, JSON or TOML
// files, optionally zstd-compressed.
package document

import (
	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Version is the document schema version written by Encode.
const Version = 1

// Document is the on-disk form of a drawing database. Blocks reference each
// other by name, so node ids are not stored.
type Document struct {
	Version int     `json:"version" yaml:"version" toml:"version"`
	Layouts []Block `json:"layouts,omitempty" yaml:"layouts,omitempty" toml:"layouts,omitempty"`
	Blocks  []Block `json:"blocks,omitempty" yaml:"blocks,omitempty" toml:"blocks,omitempty"`
}

// Block is a layout, a block definition or a dynamic variant. Items keep
// the order of the definition's children.
type Block struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	// Origin is the base point subtracted by inserts.
	Origin *Vec `json:"origin,omitempty" yaml:"origin,omitempty" toml:"origin,omitempty"`
	// DynamicOf names the canonical block of a dynamic variant.
	DynamicOf string `json:"dynamic_of,omitempty" yaml:"dynamic_of,omitempty" toml:"dynamic_of,omitempty"`
	Items     []Item `json:"items,omitempty" yaml:"items,omitempty" toml:"items,omitempty"`
}

// FromDatabase converts db into a document. Erased nodes are dropped.
func FromDatabase(db *blockdb.Database) (*Document, error) {
	doc := &Document{Version: Version}
	for _, id := range db.Layouts {
		n := db.Get(id)
		if n == nil || n.Erased {
			continue
		}
		b, err := blockOf(db, n)
		if err != nil {
			return nil, err
		}
		doc.Layouts = append(doc.Layouts, b)
	}
	for _, n := range db.Definitions() {
		if n.Erased {
			continue
		}
		b, err := blockOf(db, n)
		if err != nil {
			return nil, err
		}
		doc.Blocks = append(doc.Blocks, b)
	}
	return doc, nil
}

func blockOf(db *blockdb.Database, def *blockdb.Node) (Block, error) {
	dd := def.Definition()
	b := Block{Name: def.Name, Origin: vecPtr(dd.Origin)}
	if !dd.DynamicOf.IsZero() {
		canon := db.Get(dd.DynamicOf)
		if canon == nil {
			return Block{}, errors.Errorf("block %q: canonical %s not found", def.Name, dd.DynamicOf.Short())
		}
		b.DynamicOf = canon.Name
	}
	for _, cid := range dd.Children {
		child := db.Get(cid)
		if child == nil || child.Erased {
			continue
		}
		switch {
		case blockdb.IsPayload(child):
			it, err := EntityItem(child.Entity())
			if err != nil {
				return Block{}, errors.Wrapf(err, "block %q", def.Name)
			}
			b.Items = append(b.Items, it)
		case blockdb.IsReference(child):
			ref := child.Reference()
			target := db.Get(ref.Definition)
			if target == nil {
				return Block{}, errors.Errorf("block %q: insert target %s not found", def.Name, ref.Definition.Short())
			}
			b.Items = append(b.Items, InsertItem(target.Name, ref.Placement))
		}
	}
	return b, nil
}

// ToDatabase builds a database from doc. Every container is created before
// any item is added, so inserts may name blocks declared later. All item
// errors are reported together.
func ToDatabase(doc *Document) (*blockdb.Database, error) {
	if doc.Version > Version {
		return nil, errors.Errorf("document version %d is newer than supported version %d", doc.Version, Version)
	}
	db := blockdb.New()

	for _, b := range doc.Layouts {
		if _, err := db.AddLayout(b.Name); err != nil {
			return nil, errors.Wrapf(err, "layout %q", b.Name)
		}
	}
	var variants []Block
	for _, b := range doc.Blocks {
		if b.DynamicOf != "" {
			variants = append(variants, b)
			continue
		}
		if _, err := db.AddDefinition(b.Name, b.Origin.orZero()); err != nil {
			return nil, errors.Wrapf(err, "block %q", b.Name)
		}
	}
	for _, b := range variants {
		canon := db.Lookup(b.DynamicOf)
		if canon == nil {
			return nil, errors.Errorf("block %q: no canonical block named %q", b.Name, b.DynamicOf)
		}
		if _, err := db.AddVariant(b.Name, canon.ID); err != nil {
			return nil, errors.Wrapf(err, "block %q", b.Name)
		}
	}

	var result *multierror.Error
	for _, b := range append(append([]Block{}, doc.Layouts...), doc.Blocks...) {
		def := db.Lookup(b.Name)
		for i, it := range b.Items {
			if err := addItem(db, def.ID, it); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "block %q item %d", b.Name, i))
			}
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return db, nil
}

func addItem(db *blockdb.Database, def blockdb.NodeID, it Item) error {
	if it.Type == TypeInsert {
		target := db.Lookup(it.Block)
		if target == nil {
			return errors.Errorf("no block named %q", it.Block)
		}
		_, err := db.Insert(def, target.ID, it.Placement())
		return err
	}
	e, err := it.Entity()
	if err != nil {
		return err
	}
	_, err = db.AddEntity(def, e)
	return err
}
