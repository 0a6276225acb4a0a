package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T, maxAge time.Duration) *SiteCache {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	cache, err := NewSiteCache(maxAge)
	require.NoError(t, err)
	return cache
}

func TestSiteCache(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		cache := testCache(t, time.Hour)
		cache.Store([]Site{{ID: "s-1", Name: "ctools-site"}})

		sites, ok := cache.Load()

		require.True(t, ok)
		require.Len(t, sites, 1)
		assert.Equal(t, "ctools-site", sites[0].Name)
	})

	t.Run("missing cache", func(t *testing.T) {
		cache := testCache(t, time.Hour)

		_, ok := cache.Load()

		assert.False(t, ok)
	})

	t.Run("expired cache is discarded", func(t *testing.T) {
		cache := testCache(t, 1)
		cache.Store([]Site{{ID: "s-1"}})

		time.Sleep(time.Millisecond)
		_, ok := cache.Load()

		assert.False(t, ok)
	})
}
