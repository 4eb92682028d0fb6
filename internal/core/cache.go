package core

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/drivepool/drivepool/internal/model"
)

const (
	searchCacheSize  = 128
	listingCacheSize = 256
)

// listingSnapshot is a cached ListChildren result. The records it holds are
// copies, never aliases into the live tree.
type listingSnapshot struct {
	Folders []*model.Folder
	Files   []*model.File
}

// derivedCache holds every cache of data derived from the registry and the
// hierarchy: search results, folder listings, and the stats aggregates.
// The LRUs synchronize internally; the stats memos are guarded by mu so
// concurrent readers can populate them safely.
//
// Invalidation is wholesale: any mutating operation clears everything.
// Targeted invalidation by folder id would be an optimization, not a
// correctness requirement.
type derivedCache struct {
	search  *lru.Cache[string, []SearchHit]
	listing *lru.Cache[string, listingSnapshot]

	mu           sync.Mutex
	stats        *model.PoolStats
	accountStats []model.AccountUsage
}

func newDerivedCache() *derivedCache {
	search, _ := lru.New[string, []SearchHit](searchCacheSize)
	listing, _ := lru.New[string, listingSnapshot](listingCacheSize)
	return &derivedCache{search: search, listing: listing}
}

// Stats returns the memoized pool summary, or nil on a miss.
func (c *derivedCache) Stats() *model.PoolStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// SetStats memoizes the pool summary.
func (c *derivedCache) SetStats(s *model.PoolStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = s
}

// ClearStats drops only the pool-summary memo.
func (c *derivedCache) ClearStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = nil
}

// AccountStats returns the memoized per-account summaries, or nil on a miss.
func (c *derivedCache) AccountStats() []model.AccountUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountStats
}

// SetAccountStats memoizes the per-account summaries.
func (c *derivedCache) SetAccountStats(u []model.AccountUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountStats = u
}

// InvalidateAll wipes every derived result.
func (c *derivedCache) InvalidateAll() {
	c.search.Purge()
	c.listing.Purge()
	c.mu.Lock()
	c.stats = nil
	c.accountStats = nil
	c.mu.Unlock()
}
