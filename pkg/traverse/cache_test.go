package traverse_test

import (
	"testing"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/traverse"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitCacheScansOnce(t *testing.T) {
	c := traverse.NewVisitCache()
	id := blockdb.NewNodeID("block/Sub")
	calls := 0
	scan := func() (*traverse.CacheEntry, error) {
		calls++
		return &traverse.CacheEntry{Admitted: true}, nil
	}

	first, hit, err := c.Get(id, scan)
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := c.Get(id, scan)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Scans())

	c.Clear()
	assert.Zero(t, c.Len())
	assert.False(t, c.Has(id))
}

func TestVisitCacheDoesNotStoreFailures(t *testing.T) {
	c := traverse.NewVisitCache()
	id := blockdb.NewNodeID("block/Broken")
	_, _, err := c.Get(id, func() (*traverse.CacheEntry, error) {
		return nil, errors.New("store unavailable")
	})
	require.Error(t, err)
	assert.False(t, c.Has(id))
}
