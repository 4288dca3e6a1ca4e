package traverse

import "github.com/chazu/blockwalk/pkg/blockdb"

// CacheEntry is the memoised scan of one definition.
type CacheEntry struct {
	// Admitted is the AdmitDefinition result.
	Admitted bool
	// Children holds the live references and accepted payloads of the
	// definition, in store order. It is empty when Admitted is false.
	Children []*blockdb.Node
}

// VisitCache maps definition ids to their scanned children.
type VisitCache struct {
	entries map[blockdb.NodeID]*CacheEntry
	scans   int
}

// NewVisitCache returns an empty cache.
func NewVisitCache() *VisitCache {
	return &VisitCache{entries: make(map[blockdb.NodeID]*CacheEntry)}
}

// Get returns the entry for def, calling scan to build it on the first
// request. The boolean reports a cache hit. A failed scan is not stored.
func (c *VisitCache) Get(def blockdb.NodeID, scan func() (*CacheEntry, error)) (*CacheEntry, bool, error) {
	if e, ok := c.entries[def]; ok {
		return e, true, nil
	}
	c.scans++
	e, err := scan()
	if err != nil {
		return nil, false, err
	}
	c.entries[def] = e
	return e, false, nil
}

// Has reports whether def has been scanned.
func (c *VisitCache) Has(def blockdb.NodeID) bool {
	_, ok := c.entries[def]
	return ok
}

// Len returns the number of cached definitions.
func (c *VisitCache) Len() int {
	return len(c.entries)
}

// Scans returns how many scans ran since the last Clear.
func (c *VisitCache) Scans() int {
	return c.scans
}

// Clear drops every entry.
func (c *VisitCache) Clear() {
	c.entries = make(map[blockdb.NodeID]*CacheEntry)
	c.scans = 0
}
