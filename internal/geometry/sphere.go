package geometry

import "github.com/go-gl/mathgl/mgl64"

// Sphere is an optional round occluder.
type Sphere struct {
	Center mgl64.Vec3
	Radius float64
}

// Bounds returns the sphere's bounding box.
func (s *Sphere) Bounds() AABB {
	r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	return AABB{Min: s.Center.Sub(r), Max: s.Center.Add(r)}
}

// intersects reports whether the segment start->end passes within the radius.
func (s *Sphere) intersects(start, end mgl64.Vec3) bool {
	d := end.Sub(start)
	toCenter := s.Center.Sub(start)
	t := 0.0
	if l := d.Dot(d); l > 0 {
		t = toCenter.Dot(d) / l
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	closest := start.Add(d.Mul(t))
	diff := s.Center.Sub(closest)
	return diff.Dot(diff) <= s.Radius*s.Radius
}

// IsBlockingSphere is the sphere counterpart of IsBlocking, using the same
// peek to silhouette pairing.
func IsBlockingSphere(peeks *Peeks, target *PeekVolume, s *Sphere) bool {
	for i := 0; i < 2; i++ {
		for _, v := range target.Upper {
			if !s.intersects(peeks[i], v) {
				return false
			}
		}
	}
	for i := 2; i < 4; i++ {
		for _, v := range target.Lower {
			if !s.intersects(peeks[i], v) {
				return false
			}
		}
	}
	return true
}
