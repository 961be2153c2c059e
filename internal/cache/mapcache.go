package cache

import (
	"sync"

	"github.com/cornerculling/extension/internal/mapfile"
)

// MapCache maps map names to their parsed occluder sets for the session
type MapCache struct {
	mu   sync.RWMutex
	maps map[string]*mapfile.Map
}

// NewMapCache creates a new MapCache
func NewMapCache() *MapCache {
	return &MapCache{
		maps: make(map[string]*mapfile.Map),
	}
}

// Get retrieves a parsed map by name
func (c *MapCache) Get(name string) (*mapfile.Map, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.maps[name]
	return m, ok
}

// Set stores a parsed map by name. Placeholder maps are not cached so a
// file that appears later is picked up on the next load.
func (c *MapCache) Set(name string, m *mapfile.Map) {
	if m == nil || m.Placeholder {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maps[name] = m
}

// Delete removes a map by name
func (c *MapCache) Delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.maps, name)
}

// Reset clears all maps from the cache
func (c *MapCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maps = make(map[string]*mapfile.Map)
}
