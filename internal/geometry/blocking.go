package geometry

import "github.com/go-gl/mathgl/mgl64"

// BlockingFunc decides whether an occluder blocks every sightline of a bundle.
type BlockingFunc func(peeks *Peeks, target *PeekVolume, c *Cuboid) bool

// IsBlocking reports whether c intersects every segment from peeks 0 and 1
// to the upper silhouette and from peeks 2 and 3 to the lower silhouette.
// Segments are evaluated in batches of BatchWidth and the first open batch
// ends the test.
func IsBlocking(peeks *Peeks, target *PeekVolume, c *Cuboid) bool {
	var b segmentBatch
	fillBatch(&b, peeks[0], peeks[1], &target.Upper)
	if !b.intersectsAll(c) {
		return false
	}
	fillBatch(&b, peeks[2], peeks[3], &target.Lower)
	return b.intersectsAll(c)
}

// IsBlockingScalar is the one-segment-at-a-time equivalent of IsBlocking.
func IsBlockingScalar(peeks *Peeks, target *PeekVolume, c *Cuboid) bool {
	for i := 0; i < 2; i++ {
		for _, v := range target.Upper {
			if _, ok := SegmentBlockedBy(c, peeks[i], v); !ok {
				return false
			}
		}
	}
	for i := 2; i < 4; i++ {
		for _, v := range target.Lower {
			if _, ok := SegmentBlockedBy(c, peeks[i], v); !ok {
				return false
			}
		}
	}
	return true
}

func fillBatch(b *segmentBatch, p0, p1 mgl64.Vec3, verts *[4]mgl64.Vec3) {
	b.reset()
	for _, p := range [2]mgl64.Vec3{p0, p1} {
		for _, v := range verts {
			b.add(p, v)
		}
	}
}
