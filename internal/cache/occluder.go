// Package cache keeps the short per-pair memory of occluders that recently
// blocked a sightline, plus parsed map files for quick reloads.
package cache

import (
	"github.com/cornerculling/extension/internal/geometry"
	"github.com/cornerculling/extension/internal/spatial"
)

// DefaultSize is the number of occluder slots kept per ordered pair.
const DefaultSize = 3

// Resolver turns a ref into a cuboid of the current occluder set.
type Resolver interface {
	Resolve(ref spatial.Ref) (*geometry.Cuboid, bool)
}

type slot struct {
	ref   spatial.Ref
	stamp int64
}

// OccluderCache holds up to size refs per ordered (observer, target) pair.
// It is owned by the culling controller and is not safe for concurrent use.
type OccluderCache struct {
	characters int
	size       int
	slots      []slot
}

// NewOccluderCache allocates a dense cache for the given roster capacity.
func NewOccluderCache(characters, size int) *OccluderCache {
	if size <= 0 {
		size = DefaultSize
	}
	return &OccluderCache{
		characters: characters,
		size:       size,
		slots:      make([]slot, characters*characters*size),
	}
}

// Size returns the number of slots per pair.
func (c *OccluderCache) Size() int {
	return c.size
}

func (c *OccluderCache) pair(observer, target int) []slot {
	start := (observer*c.characters + target) * c.size
	return c.slots[start : start+c.size]
}

// TryBlock tests the pair's cached occluders against the bundle. The first
// one that still blocks is stamped with tick and true is returned. Empty
// slots and refs into a replaced occluder set count as misses.
func (c *OccluderCache) TryBlock(observer, target int, tick int64, peeks *geometry.Peeks, vol *geometry.PeekVolume, r Resolver, blocking geometry.BlockingFunc) bool {
	slots := c.pair(observer, target)
	for i := range slots {
		if !slots[i].ref.Valid() {
			continue
		}
		cuboid, ok := r.Resolve(slots[i].ref)
		if !ok {
			continue
		}
		if blocking(peeks, vol, cuboid) {
			slots[i].stamp = tick
			return true
		}
	}
	return false
}

// Record stores ref in the pair's least recently confirmed slot.
// Empty slots are filled first.
func (c *OccluderCache) Record(observer, target int, ref spatial.Ref, tick int64) {
	slots := c.pair(observer, target)
	oldest := 0
	for i := range slots {
		if !slots[i].ref.Valid() {
			oldest = i
			break
		}
		if slots[i].stamp < slots[oldest].stamp {
			oldest = i
		}
	}
	slots[oldest] = slot{ref: ref, stamp: tick}
}

// Entries returns the valid refs cached for a pair.
func (c *OccluderCache) Entries(observer, target int) []spatial.Ref {
	var refs []spatial.Ref
	for _, s := range c.pair(observer, target) {
		if s.ref.Valid() {
			refs = append(refs, s.ref)
		}
	}
	return refs
}

// Clear empties every slot of every pair.
func (c *OccluderCache) Clear() {
	clear(c.slots)
}
