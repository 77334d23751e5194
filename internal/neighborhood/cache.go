package neighborhood

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/banshee-data/lidarfeatures/internal/pointcloud"
)

// Cache memoizes one KD-tree per cloud. Entries reference the indexed x and
// y columns weakly: an entry whose columns were replaced or collected is a
// miss and gets rebuilt. Entries are dropped when their cloud is collected.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]*cacheEntry

	hits, misses atomic.Int64
}

type cacheEntry struct {
	mu    sync.Mutex
	x, y  weak.Pointer[pointcloud.Attribute]
	n     int
	index *Index
}

var defaultCache = NewCache()

// Default returns the process-wide cache.
func Default() *Cache { return defaultCache }

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint64]*cacheEntry)}
}

// Get returns the index for pc, building it under the entry lock on a miss.
func (c *Cache) Get(pc *pointcloud.PointCloud) *Index {
	xa, _ := pc.Attribute(pointcloud.X)
	ya, _ := pc.Attribute(pointcloud.Y)

	c.mu.Lock()
	e, ok := c.entries[pc.ID()]
	if !ok {
		e = &cacheEntry{}
		c.entries[pc.ID()] = e
		runtime.AddCleanup(pc, c.evict, pc.ID())
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index != nil && e.x.Value() == xa && e.y.Value() == ya && e.n == len(xa.Data) {
		c.hits.Add(1)
		return e.index
	}
	c.misses.Add(1)
	e.index = NewIndex(xa.Data, ya.Data)
	e.x = weak.Make(xa)
	e.y = weak.Make(ya)
	e.n = len(xa.Data)
	return e.index
}

func (c *Cache) evict(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Stats returns the hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
