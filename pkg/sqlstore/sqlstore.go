// Package sqlstore keeps a drawing database in SQLite. A Store can be loaded
// into memory or traversed in place, since it implements blockdb.Store.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/document"
	"github.com/chazu/blockwalk/pkg/geom"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Compile-time interface checks.
var (
	_ blockdb.Store    = (*Store)(nil)
	_ blockdb.Appender = (*Store)(nil)
)

// Store is the SQLite data access layer for drawings.
type Store struct {
	db         *sql.DB
	generation uint64
}

// Open opens a SQLite database at path with WAL mode enabled. Call Migrate
// before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return errors.Wrap(err, "migrate")
	}
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'generation'`).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.generation = 0
	case err != nil:
		return errors.Wrap(err, "read generation")
	default:
		if s.generation, err = strconv.ParseUint(v, 10, 64); err != nil {
			return errors.Wrapf(err, "parse generation %q", v)
		}
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS nodes (
  seq     INTEGER PRIMARY KEY AUTOINCREMENT,
  id      TEXT NOT NULL UNIQUE,
  kind    INTEGER NOT NULL,
  name    TEXT,
  erased  BOOLEAN NOT NULL DEFAULT FALSE,
  target  TEXT,
  data    TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name) WHERE name IS NOT NULL AND name != '';

CREATE TABLE IF NOT EXISTS children (
  parent   TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  child    TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
  PRIMARY KEY (parent, position)
);

CREATE TABLE IF NOT EXISTS meta (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`

// definitionData is the JSON column of a definition row. target holds
// DynamicOf.
type definitionData struct {
	Origin    document.Vec `json:"origin"`
	Layout    bool         `json:"layout,omitempty"`
	Anonymous bool         `json:"anonymous,omitempty"`
}

// Generation implements blockdb.Store. It changes on every Save, Append or
// Erase through this Store.
func (s *Store) Generation() uint64 {
	return s.generation
}

func (s *Store) bump(tx *sql.Tx) error {
	s.generation++
	_, err := tx.Exec(`INSERT INTO meta(key, value) VALUES ('generation', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.FormatUint(s.generation, 10))
	return err
}

// ---------------------------------------------------------------------------
// Whole-database transfer
// ---------------------------------------------------------------------------

// Save replaces the stored drawing with db in one transaction. Layouts are
// written first so Load restores their order.
func (s *Store) Save(db *blockdb.Database) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	for _, q := range []string{`DELETE FROM children`, `DELETE FROM nodes`} {
		if _, err := tx.Exec(q); err != nil {
			return errors.Wrap(err, "clear")
		}
	}

	order := make([]blockdb.NodeID, 0, db.NodeCount())
	order = append(order, db.Layouts...)
	isLayout := make(map[blockdb.NodeID]bool, len(db.Layouts))
	for _, id := range db.Layouts {
		isLayout[id] = true
	}
	rest := make([]blockdb.NodeID, 0, db.NodeCount())
	for id := range db.Nodes {
		if !isLayout[id] {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	order = append(order, rest...)

	for _, id := range order {
		if err := insertNodeTx(tx, db.Nodes[id]); err != nil {
			return err
		}
	}
	for _, id := range order {
		dd := db.Nodes[id].Definition()
		if dd == nil {
			continue
		}
		for i, child := range dd.Children {
			if err := insertChildTx(tx, id, i, child); err != nil {
				return err
			}
		}
	}
	if err := s.bump(tx); err != nil {
		return errors.Wrap(err, "bump generation")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	logrus.WithFields(logrus.Fields{
		"nodes":      len(order),
		"generation": s.generation,
	}).Debug("drawing saved")
	return nil
}

// Load reads the whole stored drawing into memory.
func (s *Store) Load() (*blockdb.Database, error) {
	rows, err := s.db.Query(`SELECT id, kind, name, erased, target, data FROM nodes ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, "query nodes")
	}
	var nodes []*blockdb.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	children, err := s.allChildren()
	if err != nil {
		return nil, err
	}

	db := blockdb.New()
	for _, n := range nodes {
		if dd := n.Definition(); dd != nil {
			dd.Children = children[n.ID]
		}
		if err := db.AddNode(n); err != nil {
			return nil, errors.Wrap(err, "load node")
		}
	}
	return db, nil
}

func (s *Store) allChildren() (map[blockdb.NodeID][]blockdb.NodeID, error) {
	rows, err := s.db.Query(`SELECT parent, child FROM children ORDER BY parent, position`)
	if err != nil {
		return nil, errors.Wrap(err, "query children")
	}
	defer rows.Close()
	out := make(map[blockdb.NodeID][]blockdb.NodeID)
	for rows.Next() {
		var parent, child string
		if err := rows.Scan(&parent, &child); err != nil {
			return nil, err
		}
		out[blockdb.NodeID(parent)] = append(out[blockdb.NodeID(parent)], blockdb.NodeID(child))
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// blockdb.Store
// ---------------------------------------------------------------------------

// Open implements blockdb.Store. Definitions come back with their children
// filled in.
func (s *Store) Open(id blockdb.NodeID) (*blockdb.Node, error) {
	row := s.db.QueryRow(`SELECT id, kind, name, erased, target, data FROM nodes WHERE id = ?`, string(id))
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(blockdb.ErrNotFound, "node %s", id.Short())
	}
	if err != nil {
		return nil, err
	}
	if dd := n.Definition(); dd != nil {
		if dd.Children, err = s.children(id); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Children implements blockdb.Store.
func (s *Store) Children(def blockdb.NodeID) ([]blockdb.NodeID, error) {
	n, err := s.Open(def)
	if err != nil {
		return nil, err
	}
	if !blockdb.IsContainer(n) {
		return nil, errors.Wrapf(blockdb.ErrNotDefinition, "node %s is %s", def.Short(), n.Kind)
	}
	return n.Definition().Children, nil
}

func (s *Store) children(def blockdb.NodeID) ([]blockdb.NodeID, error) {
	rows, err := s.db.Query(`SELECT child FROM children WHERE parent = ? ORDER BY position`, string(def))
	if err != nil {
		return nil, errors.Wrap(err, "query children")
	}
	defer rows.Close()
	var out []blockdb.NodeID
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		out = append(out, blockdb.NodeID(child))
	}
	return out, rows.Err()
}

// Lookup returns the id of the definition or layout with the given name.
func (s *Store) Lookup(name string) (blockdb.NodeID, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM nodes WHERE name = ? AND kind = ?`, name, int(blockdb.KindDefinition)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return blockdb.ZeroID, errors.Wrapf(blockdb.ErrNotFound, "definition %q", name)
	}
	if err != nil {
		return blockdb.ZeroID, err
	}
	return blockdb.NodeID(id), nil
}

// Layouts returns the stored layout ids in insertion order.
func (s *Store) Layouts() ([]blockdb.NodeID, error) {
	rows, err := s.db.Query(`SELECT id, data FROM nodes WHERE kind = ? ORDER BY seq`, int(blockdb.KindDefinition))
	if err != nil {
		return nil, errors.Wrap(err, "query layouts")
	}
	defer rows.Close()
	var out []blockdb.NodeID
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var dd definitionData
		if err := json.Unmarshal([]byte(data), &dd); err != nil {
			return nil, errors.Wrapf(err, "decode definition %s", id)
		}
		if dd.Layout {
			out = append(out, blockdb.NodeID(id))
		}
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// In-place mutation
// ---------------------------------------------------------------------------

// Append implements blockdb.Appender: it adds e to the end of dest.
func (s *Store) Append(dest blockdb.NodeID, e blockdb.Entity) (blockdb.NodeID, error) {
	if _, err := s.Children(dest); err != nil {
		return blockdb.ZeroID, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return blockdb.ZeroID, errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM children WHERE parent = ?`, string(dest)).Scan(&next); err != nil {
		return blockdb.ZeroID, errors.Wrap(err, "next position")
	}
	n := &blockdb.Node{ID: blockdb.NewRandomNodeID(), Kind: blockdb.KindPayload, Data: &blockdb.PayloadData{Entity: e}}
	if err := insertNodeTx(tx, n); err != nil {
		return blockdb.ZeroID, err
	}
	if err := insertChildTx(tx, dest, next, n.ID); err != nil {
		return blockdb.ZeroID, err
	}
	if err := s.bump(tx); err != nil {
		return blockdb.ZeroID, errors.Wrap(err, "bump generation")
	}
	if err := tx.Commit(); err != nil {
		return blockdb.ZeroID, errors.Wrap(err, "commit")
	}
	return n.ID, nil
}

// Erase marks a node erased.
func (s *Store) Erase(id blockdb.NodeID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE nodes SET erased = TRUE WHERE id = ?`, string(id))
	if err != nil {
		return errors.Wrap(err, "erase")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(blockdb.ErrNotFound, "node %s", id.Short())
	}
	if err := s.bump(tx); err != nil {
		return errors.Wrap(err, "bump generation")
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Row encoding
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*blockdb.Node, error) {
	var (
		id, data     string
		kind         int
		name, target sql.NullString
		erased       bool
	)
	if err := row.Scan(&id, &kind, &name, &erased, &target, &data); err != nil {
		return nil, err
	}
	n := &blockdb.Node{ID: blockdb.NodeID(id), Kind: blockdb.NodeKind(kind), Name: name.String, Erased: erased}

	switch n.Kind {
	case blockdb.KindDefinition:
		var dd definitionData
		if err := json.Unmarshal([]byte(data), &dd); err != nil {
			return nil, errors.Wrapf(err, "decode definition %s", id)
		}
		n.Data = &blockdb.DefinitionData{
			Origin:    geom.Vec{X: dd.Origin[0], Y: dd.Origin[1], Z: dd.Origin[2]},
			Layout:    dd.Layout,
			Anonymous: dd.Anonymous,
			DynamicOf: blockdb.NodeID(target.String),
		}
	case blockdb.KindReference:
		var it document.Item
		if err := json.Unmarshal([]byte(data), &it); err != nil {
			return nil, errors.Wrapf(err, "decode reference %s", id)
		}
		n.Data = &blockdb.ReferenceData{Definition: blockdb.NodeID(target.String), Placement: it.Placement()}
	case blockdb.KindPayload:
		var it document.Item
		if err := json.Unmarshal([]byte(data), &it); err != nil {
			return nil, errors.Wrapf(err, "decode payload %s", id)
		}
		e, err := it.Entity()
		if err != nil {
			return nil, errors.Wrapf(err, "decode payload %s", id)
		}
		n.Data = &blockdb.PayloadData{Entity: e}
	default:
		return nil, errors.Errorf("node %s has unknown kind %d", id, kind)
	}
	return n, nil
}

func insertNodeTx(tx *sql.Tx, n *blockdb.Node) error {
	var (
		target sql.NullString
		data   any
	)
	switch d := n.Data.(type) {
	case *blockdb.DefinitionData:
		if !d.DynamicOf.IsZero() {
			target = sql.NullString{String: string(d.DynamicOf), Valid: true}
		}
		data = definitionData{
			Origin:    document.Vec{d.Origin.X, d.Origin.Y, d.Origin.Z},
			Layout:    d.Layout,
			Anonymous: d.Anonymous,
		}
	case *blockdb.ReferenceData:
		target = sql.NullString{String: string(d.Definition), Valid: true}
		data = document.InsertItem("", d.Placement)
	case *blockdb.PayloadData:
		it, err := document.EntityItem(d.Entity)
		if err != nil {
			return errors.Wrapf(err, "encode payload %s", n.ID.Short())
		}
		data = it
	default:
		return errors.Errorf("node %s has no data", n.ID.Short())
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "encode node %s", n.ID.Short())
	}
	var name sql.NullString
	if n.Name != "" {
		name = sql.NullString{String: n.Name, Valid: true}
	}
	_, err = tx.Exec(`INSERT INTO nodes (id, kind, name, erased, target, data) VALUES (?, ?, ?, ?, ?, ?)`,
		string(n.ID), int(n.Kind), name, n.Erased, target, string(raw))
	if err != nil {
		return errors.Wrapf(err, "insert node %s", n.ID.Short())
	}
	return nil
}

func insertChildTx(tx *sql.Tx, parent blockdb.NodeID, position int, child blockdb.NodeID) error {
	_, err := tx.Exec(`INSERT INTO children (parent, position, child) VALUES (?, ?, ?)`,
		string(parent), position, string(child))
	if err != nil {
		return errors.Wrapf(err, "insert child %s of %s", child.Short(), parent.Short())
	}
	return nil
}
