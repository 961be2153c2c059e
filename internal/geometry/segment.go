package geometry

import "github.com/go-gl/mathgl/mgl64"

// planeTerms returns the Cyrus-Beck numerator and denominator of a segment
// (start s, direction d) against one face plane. Products are rounded
// explicitly so the scalar and batched paths never diverge through FMA.
func planeTerms(f *Face, sx, sy, sz, dx, dy, dz float64) (num, denom float64) {
	n, p := f.Normal, f.Point
	num = float64(n[0]*(p[0]-sx)) + float64(n[1]*(p[1]-sy)) + float64(n[2]*(p[2]-sz))
	denom = float64(n[0]*dx) + float64(n[1]*dy) + float64(n[2]*dz)
	return num, denom
}

// SegmentBlockedBy clips the segment start->end against the cuboid and
// returns the entry time in [0,1], or false when the segment misses it.
func SegmentBlockedBy(c *Cuboid, start, end mgl64.Vec3) (float64, bool) {
	d := end.Sub(start)
	enter, exit := 0.0, 1.0
	for i := range c.Faces {
		num, denom := planeTerms(&c.Faces[i], start[0], start[1], start[2], d[0], d[1], d[2])
		if denom == 0 {
			// Parallel to the plane: either always inside or never.
			if num < 0 {
				return 0, false
			}
			continue
		}
		t := num / denom
		if denom < 0 {
			if t > enter {
				enter = t
			}
		} else if t < exit {
			exit = t
		}
		if enter > exit {
			return 0, false
		}
	}
	return enter, true
}
