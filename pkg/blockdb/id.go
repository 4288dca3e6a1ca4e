package blockdb

import "github.com/google/uuid"

// NodeID is the stable identity of a node in a drawing database.
type NodeID string

// ZeroID is the empty NodeID.
const ZeroID NodeID = ""

// idNamespace seeds the name-based UUIDs produced by NewNodeID.
var idNamespace = uuid.MustParse("6f1c2a8e-9d3b-4c57-a0e2-3b8d5f7c1e42")

// NewNodeID derives a deterministic NodeID from a path such as "block/Door".
func NewNodeID(path string) NodeID {
	return NodeID(uuid.NewSHA1(idNamespace, []byte(path)).String())
}

// NewRandomNodeID returns a fresh NodeID, used for cloned entities.
func NewRandomNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// IsZero reports whether id is unset.
func (id NodeID) IsZero() bool {
	return id == ZeroID
}

// Short returns the first 8 characters, for log and error messages.
func (id NodeID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}

func (id NodeID) String() string {
	return string(id)
}
