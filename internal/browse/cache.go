// Package browse holds the client-side view of a remote drive: memoized
// folder listings, the expandable tree built from them, and the set of
// files the user has checked for loading.
package browse

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dl-alexandre/bimview/internal/logging"
	"github.com/dl-alexandre/bimview/internal/metrics"
	"github.com/dl-alexandre/bimview/internal/store"
	"github.com/dl-alexandre/bimview/internal/types"
	"golang.org/x/sync/singleflight"
)

type cacheKey struct {
	driveID  string
	folderID string
}

func (k cacheKey) String() string {
	return k.driveID + "/" + k.folderID
}

// CacheStats is a point-in-time view of cache effectiveness
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// FolderCache memoizes folder listings per (drive, folder). Concurrent
// lookups of the same folder share one fetch; failed fetches are not stored.
type FolderCache struct {
	store  store.FileStore
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[cacheKey]*types.FolderListing
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewFolderCache creates a cache in front of s. A ttl of zero keeps
// listings for the lifetime of the cache.
func NewFolderCache(s store.FileStore, ttl time.Duration, logger logging.Logger) *FolderCache {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &FolderCache{
		store:   s,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[cacheKey]*types.FolderListing),
	}
}

// Get returns the listing of folderID, fetching it on a miss. The returned
// listing is shared and must not be modified.
func (c *FolderCache) Get(ctx context.Context, driveID, folderID string) (*types.FolderListing, error) {
	key := cacheKey{driveID: driveID, folderID: folderID}

	if listing, ok := c.lookup(key); ok {
		c.hits.Add(1)
		metrics.RecordCacheLookup(true)
		return listing, nil
	}
	c.misses.Add(1)
	metrics.RecordCacheLookup(false)

	// The fetch is shared by every waiter on key, so it must not die with
	// the caller that happened to start it. Each caller still stops
	// waiting when its own ctx is done.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		// Another caller may have filled the entry while this one waited
		if listing, ok := c.lookup(key); ok {
			return listing, nil
		}
		return c.fetch(fetchCtx, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.FolderListing), nil
	}
}

func (c *FolderCache) lookup(key cacheKey) (*types.FolderListing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	listing, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(listing.FetchedAt) >= c.ttl {
		return nil, false
	}
	return listing, true
}

func (c *FolderCache) fetch(ctx context.Context, key cacheKey) (*types.FolderListing, error) {
	start := time.Now()
	nodes, err := c.store.ListChildren(ctx, key.driveID, key.folderID)
	metrics.RecordStoreRequest(c.store.Name(), "list", time.Since(start), err)
	if err != nil {
		c.logger.Warn("Folder listing failed",
			logging.F("driveId", key.driveID),
			logging.F("folderId", key.folderID),
			logging.F("error", err.Error()),
		)
		return nil, err
	}

	listing := &types.FolderListing{
		DriveID:   key.driveID,
		FolderID:  key.folderID,
		Nodes:     nodes,
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	c.entries[key] = listing
	n := len(c.entries)
	c.mu.Unlock()
	metrics.SetCacheEntries(n)

	c.logger.Debug("Cached folder listing",
		logging.F("driveId", key.driveID),
		logging.F("folderId", key.folderID),
		logging.F("children", len(nodes)),
		logging.F("duration", time.Since(start)),
	)
	return listing, nil
}

// Invalidate drops the listing of one folder so the next Get refetches it
func (c *FolderCache) Invalidate(driveID, folderID string) {
	c.mu.Lock()
	delete(c.entries, cacheKey{driveID: driveID, folderID: folderID})
	n := len(c.entries)
	c.mu.Unlock()
	metrics.SetCacheEntries(n)
}

// Reset drops every listing
func (c *FolderCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]*types.FolderListing)
	c.mu.Unlock()
	metrics.SetCacheEntries(0)
}

// Stats returns hit and miss counters and the current entry count
func (c *FolderCache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: n}
}
