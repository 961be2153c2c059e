// Package spatial indexes the static occluders of a map so the culling
// pipeline can find a blocking cuboid without scanning the whole set.
package spatial

import (
	"slices"

	"github.com/dhconnelly/rtreego"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/cornerculling/extension/internal/geometry"
)

const (
	dimensions  = 3
	minChildren = 4
	maxChildren = 16

	// padding keeps flat boxes (a zero-thickness wall) representable as rectangles.
	padding = 1e-3
)

// Ref identifies a cuboid of one particular occluder set. A Ref from an
// older generation never resolves.
type Ref struct {
	Index      int32
	Generation uint32
}

// Valid reports whether the ref was ever assigned.
func (r Ref) Valid() bool {
	return r.Generation != 0
}

type entry struct {
	index int32
	rect  rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// Index is an R-tree over cuboid bounding boxes, built once per occluder
// set. Queries reuse a scratch buffer and must not run concurrently.
type Index struct {
	tree       *rtreego.Rtree
	cuboids    []geometry.Cuboid
	generation uint32

	candidates []candidate
}

type candidate struct {
	index int32
	dist  float64
}

// Build bulk-loads an index for the given occluder set.
func Build(cuboids []geometry.Cuboid, generation uint32) *Index {
	idx := &Index{
		cuboids:    cuboids,
		generation: generation,
	}
	if len(cuboids) == 0 {
		return idx
	}

	objs := make([]rtreego.Spatial, 0, len(cuboids))
	for i := range cuboids {
		objs = append(objs, &entry{index: int32(i), rect: toRect(cuboids[i].Bounds)})
	}
	idx.tree = rtreego.NewTree(dimensions, minChildren, maxChildren, objs...)
	return idx
}

// Len returns the number of indexed cuboids.
func (idx *Index) Len() int {
	return len(idx.cuboids)
}

// Generation returns the occluder-set generation this index was built for.
func (idx *Index) Generation() uint32 {
	return idx.generation
}

// Resolve returns the cuboid behind ref if it belongs to this generation.
func (idx *Index) Resolve(ref Ref) (*geometry.Cuboid, bool) {
	if ref.Generation != idx.generation || ref.Index < 0 || int(ref.Index) >= len(idx.cuboids) {
		return nil, false
	}
	return &idx.cuboids[ref.Index], true
}

// Cuboids exposes the indexed set. Callers must not modify it.
func (idx *Index) Cuboids() []geometry.Cuboid {
	return idx.cuboids
}

// FindBlocking returns the first cuboid, closest to eye first, that blocks
// every sightline of the bundle. Candidates are pruned against the box
// spanning eye, target, all four peeks and the whole silhouette, which
// contains every segment IsBlocking will test.
func (idx *Index) FindBlocking(eye, target mgl64.Vec3, peeks *geometry.Peeks, vol *geometry.PeekVolume, blocking geometry.BlockingFunc) (Ref, bool) {
	if idx.tree == nil {
		return Ref{}, false
	}

	query := peeks.Bounds()
	query.Union(vol.Bounds())
	query.Extend(eye)
	query.Extend(target)

	hits := idx.tree.SearchIntersect(toRect(query))
	if len(hits) == 0 {
		return Ref{}, false
	}

	idx.candidates = idx.candidates[:0]
	for _, h := range hits {
		e := h.(*entry)
		idx.candidates = append(idx.candidates, candidate{
			index: e.index,
			dist:  idx.cuboids[e.index].Bounds.DistanceSq(eye),
		})
	}
	slices.SortFunc(idx.candidates, func(a, b candidate) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return int(a.index - b.index)
	})

	for _, c := range idx.candidates {
		if blocking(peeks, vol, &idx.cuboids[c.index]) {
			return Ref{Index: c.index, Generation: idx.generation}, true
		}
	}
	return Ref{}, false
}

func toRect(b geometry.AABB) rtreego.Rect {
	point := rtreego.Point{b.Min[0] - padding, b.Min[1] - padding, b.Min[2] - padding}
	lengths := []float64{
		b.Max[0] - b.Min[0] + 2*padding,
		b.Max[1] - b.Min[1] + 2*padding,
		b.Max[2] - b.Min[2] + 2*padding,
	}
	// Lengths are strictly positive for any non-empty box.
	r, _ := rtreego.NewRect(point, lengths)
	return r
}
