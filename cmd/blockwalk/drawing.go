package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/document"
	"github.com/chazu/blockwalk/pkg/engine"
	"github.com/chazu/blockwalk/pkg/sqlstore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	scriptExt = ".bwl"
	sqliteExt = ".db"
)

// drawing is an opened input file. Scripts and documents are loaded into
// memory; a SQLite database is traversed in place.
type drawing struct {
	path  string
	db    *blockdb.Database
	store *sqlstore.Store
}

// openDrawing loads path according to its extension.
func (o *rootOptions) openDrawing(ctx context.Context, path string) (*drawing, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case scriptExt:
		db, err := evalScript(ctx, path, o.cfg.Script.Timeout)
		if err != nil {
			return nil, err
		}
		return &drawing{path: path, db: db}, nil
	case sqliteExt:
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		s, err := sqlstore.Open(path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, err
		}
		return &drawing{path: path, store: s}, nil
	default:
		db, err := document.Load(path)
		if err != nil {
			return nil, err
		}
		return &drawing{path: path, db: db}, nil
	}
}

func evalScript(ctx context.Context, path string, timeout time.Duration) (*blockdb.Database, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := engine.NewEngine(engine.WithTimeout(timeout)).EvaluateFull(ctx, string(src))
	if err != nil {
		return nil, scriptError(path, err)
	}
	for _, w := range res.Warnings {
		logrus.WithField("node", w.NodeID.Short()).Warn(w.Message)
	}
	if len(res.Errors) > 0 {
		first := res.Errors[0]
		if len(res.Errors) > 1 {
			return nil, errors.Errorf("%s:%d:%d: %s (and %d more)", path, first.Line, first.Col, first.Message, len(res.Errors)-1)
		}
		return nil, errors.Errorf("%s:%d:%d: %s", path, first.Line, first.Col, first.Message)
	}
	return res.Database, nil
}

// scriptError annotates a failed evaluation. A script that runs past its
// limit is reported with the setting that raises it.
func scriptError(path string, err error) error {
	var te *engine.TimeoutError
	if errors.As(err, &te) && errors.Is(te.Cause, context.DeadlineExceeded) {
		return errors.Wrapf(err, "%s (raise --script-timeout or script.timeout)", path)
	}
	return errors.Wrap(err, path)
}

// Close releases the SQLite handle, if any.
func (d *drawing) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

func (d *drawing) source() blockdb.Store {
	if d.store != nil {
		return d.store
	}
	return d.db
}

func (d *drawing) appender() blockdb.Appender {
	if d.store != nil {
		return d.store
	}
	return d.db
}

// database returns the drawing as an in-memory Database, loading it from
// SQLite when needed.
func (d *drawing) database() (*blockdb.Database, error) {
	if d.db == nil {
		db, err := d.store.Load()
		if err != nil {
			return nil, err
		}
		d.db = db
	}
	return d.db, nil
}

func (d *drawing) lookup(name string) (blockdb.NodeID, error) {
	if d.store != nil {
		return d.store.Lookup(name)
	}
	n := d.db.Lookup(name)
	if n == nil {
		return blockdb.ZeroID, errors.Wrapf(blockdb.ErrNotFound, "definition %q", name)
	}
	return n.ID, nil
}

func (d *drawing) layouts() ([]blockdb.NodeID, error) {
	if d.store != nil {
		return d.store.Layouts()
	}
	return d.db.Layouts, nil
}

// saveDrawing writes db to path: a .db path replaces the contents of a
// SQLite store, anything else is written as a document.
func saveDrawing(path string, db *blockdb.Database) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case scriptExt:
		return errors.Errorf("%s: cannot write scripts", path)
	case sqliteExt:
		s, err := sqlstore.Open(path)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Migrate(); err != nil {
			return err
		}
		return s.Save(db)
	default:
		return document.Save(path, db)
	}
}
