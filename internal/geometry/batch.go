package geometry

import "github.com/go-gl/mathgl/mgl64"

// BatchWidth is the number of segments tested together against one cuboid:
// two peeks times the four vertices of one silhouette half.
const BatchWidth = 8

// segmentBatch stores up to BatchWidth segments in structure-of-arrays form
// so that one face plane is evaluated against every lane before moving on.
type segmentBatch struct {
	n          int
	sx, sy, sz [BatchWidth]float64
	dx, dy, dz [BatchWidth]float64
	enter      [BatchWidth]float64
	exit       [BatchWidth]float64
}

func (b *segmentBatch) reset() {
	b.n = 0
}

func (b *segmentBatch) add(start, end mgl64.Vec3) {
	d := end.Sub(start)
	i := b.n
	b.sx[i], b.sy[i], b.sz[i] = start[0], start[1], start[2]
	b.dx[i], b.dy[i], b.dz[i] = d[0], d[1], d[2]
	b.n++
}

// clip narrows every lane's window by one plane and reports false as soon
// as any lane has become empty.
func (b *segmentBatch) clip(f *Face) bool {
	var num, denom [BatchWidth]float64
	for i := 0; i < b.n; i++ {
		num[i], denom[i] = planeTerms(f, b.sx[i], b.sy[i], b.sz[i], b.dx[i], b.dy[i], b.dz[i])
	}

	open := true
	for i := 0; i < b.n; i++ {
		if denom[i] == 0 {
			if num[i] < 0 {
				open = false
			}
			continue
		}
		t := num[i] / denom[i]
		if denom[i] < 0 {
			if t > b.enter[i] {
				b.enter[i] = t
			}
		} else if t < b.exit[i] {
			b.exit[i] = t
		}
		if b.enter[i] > b.exit[i] {
			open = false
		}
	}
	return open
}

// intersectsAll reports whether the cuboid intersects every lane.
func (b *segmentBatch) intersectsAll(c *Cuboid) bool {
	for i := 0; i < b.n; i++ {
		b.enter[i], b.exit[i] = 0, 1
	}
	for i := range c.Faces {
		if !b.clip(&c.Faces[i]) {
			return false
		}
	}
	return true
}
