package platform

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SiteCache persists the fleet's site list between invocations so repeated
// runs against a large fleet can skip the enumeration call.
type SiteCache struct {
	path   string
	maxAge time.Duration
}

// cacheFile is the on-disk cache format.
type cacheFile struct {
	FetchedAt time.Time `json:"fetched_at"`
	Sites     []Site    `json:"sites"`
}

// NewSiteCache creates a cache rooted at the user cache directory.
func NewSiteCache(maxAge time.Duration) (*SiteCache, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate cache directory: %w", err)
	}
	return &SiteCache{
		path:   filepath.Join(dir, "fleetctl", "sites.json"),
		maxAge: maxAge,
	}, nil
}

// Load returns the cached site list, or ok=false when the cache is missing,
// unreadable, or older than the configured max age.
func (c *SiteCache) Load() ([]Site, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, false
	}

	var cached cacheFile
	if err := json.Unmarshal(data, &cached); err != nil {
		slog.Warn("discarding unreadable site cache", "path", c.path, "err", err)
		return nil, false
	}

	if time.Since(cached.FetchedAt) > c.maxAge {
		slog.Debug("site cache expired", "fetched_at", cached.FetchedAt)
		return nil, false
	}

	return cached.Sites, true
}

// Store writes a fresh site list to the cache. Failures are logged, not
// fatal; the cache is an optimization.
func (c *SiteCache) Store(sites []Site) {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		slog.Warn("failed to create cache directory", "err", err)
		return
	}

	data, err := json.Marshal(cacheFile{
		FetchedAt: time.Now(),
		Sites:     sites,
	})
	if err != nil {
		slog.Warn("failed to encode site cache", "err", err)
		return
	}

	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		slog.Warn("failed to write site cache", "path", c.path, "err", err)
	}
}
