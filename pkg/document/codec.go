package document

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Format is a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// CompressedSuffix marks a zstd-compressed document, as in "plant.yaml.zst".
const CompressedSuffix = ".zst"

// ErrUnknownFormat is returned for unrecognised format names or extensions.
var ErrUnknownFormat = errors.New("unknown document format")

// ParseFormat parses a format name such as "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", errors.Wrapf(ErrUnknownFormat, "%q", s)
}

// FormatForPath picks the format from a file name and reports whether the
// file is compressed.
func FormatForPath(path string) (Format, bool, error) {
	compressed := strings.HasSuffix(path, CompressedSuffix)
	base := strings.TrimSuffix(path, CompressedSuffix)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	f, err := ParseFormat(ext)
	if err != nil {
		return "", false, errors.Wrapf(err, "file %s", path)
	}
	return f, compressed, nil
}

// Encode writes db to w in format f.
func Encode(w io.Writer, db *blockdb.Database, f Format) error {
	doc, err := FromDatabase(db)
	if err != nil {
		return err
	}
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(doc), "encode json")
	case FormatTOML:
		return errors.Wrap(toml.NewEncoder(w).Encode(doc), "encode toml")
	}
	return errors.Wrapf(ErrUnknownFormat, "%q", f)
}

// Decode reads a document in format f from r and builds its database.
func Decode(r io.Reader, f Format) (*blockdb.Database, error) {
	var doc Document
	switch f {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "decode yaml")
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode json")
		}
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode toml")
		}
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", f)
	}
	return ToDatabase(&doc)
}

// Load reads the document at path, choosing the format from its extension.
func Load(path string) (*blockdb.Database, error) {
	f, compressed, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open document")
	}
	defer file.Close()

	var r io.Reader = file
	if compressed {
		zr, err := zstd.NewReader(file)
		if err != nil {
			return nil, errors.Wrap(err, "open zstd stream")
		}
		defer zr.Close()
		r = zr
	}

	db, err := Decode(r, f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	logrus.WithFields(logrus.Fields{
		"path":   path,
		"format": f,
		"nodes":  db.NodeCount(),
	}).Debug("document loaded")
	return db, nil
}

// Save writes db to path, choosing the format from its extension. The file
// is only replaced once encoding has succeeded.
func Save(path string, db *blockdb.Database) error {
	f, compressed, err := FormatForPath(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if compressed {
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return errors.Wrap(err, "open zstd stream")
		}
		if err := Encode(zw, db, f); err != nil {
			zw.Close()
			return err
		}
		if err := zw.Close(); err != nil {
			return errors.Wrap(err, "flush zstd stream")
		}
	} else if err := Encode(&buf, db, f); err != nil {
		return err
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "write document")
	}
	logrus.WithFields(logrus.Fields{
		"path":       path,
		"format":     f,
		"compressed": compressed,
		"bytes":      buf.Len(),
	}).Debug("document saved")
	return nil
}
