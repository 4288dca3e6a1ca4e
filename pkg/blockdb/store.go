package blockdb

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a NodeID does not name a node.
	ErrNotFound = errors.New("node not found")
	// ErrNotDefinition is returned when a definition was expected.
	ErrNotDefinition = errors.New("node is not a definition")
	// ErrNotReference is returned when a reference was expected.
	ErrNotReference = errors.New("node is not a reference")
	// ErrDuplicateName is returned when a definition name is already taken.
	ErrDuplicateName = errors.New("duplicate definition name")
	// ErrErased is returned when an operation targets an erased node.
	ErrErased = errors.New("node is erased")
)

// Store is the read contract a traversal needs from a drawing database.
// Children must return the same order for the duration of one traversal.
type Store interface {
	// Open should report a missing node with ErrNotFound; a nil node with
	// a nil error is treated the same way.
	Open(id NodeID) (*Node, error)
	Children(def NodeID) ([]NodeID, error)
	// Generation changes whenever the node graph is mutated.
	Generation() uint64
}

// Appender adds an entity to a definition, returning the new node's id.
type Appender interface {
	Append(dest NodeID, e Entity) (NodeID, error)
}

// Resolution selects which definition a reference resolves to.
type Resolution int

const (
	// ResolveInstantiated returns the definition the reference targets
	// directly, including anonymous dynamic-block variants.
	ResolveInstantiated Resolution = iota
	// ResolveCanonical follows anonymous variants to the shared definition.
	ResolveCanonical
)

func (r Resolution) String() string {
	switch r {
	case ResolveInstantiated:
		return "instantiated"
	case ResolveCanonical:
		return "canonical"
	default:
		return "unknown"
	}
}

// ParseResolution is the inverse of Resolution.String.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "", "instantiated":
		return ResolveInstantiated, nil
	case "canonical":
		return ResolveCanonical, nil
	}
	return 0, errors.Errorf("unknown resolution %q, expected instantiated or canonical", s)
}

// ResolveDefinition returns the id of the definition ref targets under the
// given policy. The returned definition is known to exist and not be erased.
func ResolveDefinition(s Store, ref *Node, r Resolution) (NodeID, error) {
	rd := ref.Reference()
	if rd == nil {
		return ZeroID, errors.Wrapf(ErrNotReference, "node %s", ref.ID.Short())
	}
	def, err := openDefinition(s, rd.Definition)
	if err != nil {
		return ZeroID, errors.Wrapf(err, "reference %s", ref.ID.Short())
	}
	if r == ResolveCanonical {
		if dd := def.Definition(); !dd.DynamicOf.IsZero() {
			canon, err := openDefinition(s, dd.DynamicOf)
			if err != nil {
				return ZeroID, errors.Wrapf(err, "reference %s: canonical of %s", ref.ID.Short(), def.ID.Short())
			}
			return canon.ID, nil
		}
	}
	return def.ID, nil
}

// EffectiveName returns the display name of a definition: the canonical
// definition's name for anonymous variants, its own name otherwise.
func EffectiveName(s Store, def *Node) string {
	dd := def.Definition()
	if dd == nil || dd.DynamicOf.IsZero() {
		return def.Name
	}
	if canon, err := s.Open(dd.DynamicOf); err == nil && canon != nil && canon.Name != "" {
		return canon.Name
	}
	return def.Name
}

func openDefinition(s Store, id NodeID) (*Node, error) {
	if id.IsZero() {
		return nil, errors.Wrap(ErrNotFound, "empty definition id")
	}
	n, err := s.Open(id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, errors.Wrapf(ErrNotFound, "definition %s", id.Short())
	}
	if n.Erased {
		return nil, errors.Wrapf(ErrErased, "definition %s", id.Short())
	}
	if !IsContainer(n) {
		return nil, errors.Wrapf(ErrNotDefinition, "node %s is %s", id.Short(), n.Kind)
	}
	return n, nil
}
