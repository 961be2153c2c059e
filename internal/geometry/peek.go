package geometry

import "github.com/go-gl/mathgl/mgl64"

const (
	barrelLength = 100.0

	footprintRadius       = 25.0
	movingFootprintRadius = 32.0
	movingSpeedThreshold  = 5.0
)

var torsoOffsets = [3]mgl64.Vec3{
	{16, 0, 12},
	{-10, -15, 5},
	{-10, 15, 5},
}

// Peeks are the four candidate camera positions of an observer, ordered
// +H+V, -H+V, -H-V, +H-V relative to facing the target.
type Peeks [4]mgl64.Vec3

// PeekVolume is a target silhouette split into the half matched against
// high peeks and the half matched against low peeks.
type PeekVolume struct {
	Upper [4]mgl64.Vec3
	Lower [4]mgl64.Vec3
}

// NewPeekVolume derives a silhouette from a character pose. Angles are in degrees.
func NewPeekVolume(eye, base mgl64.Vec3, yaw, pitch, speed float64) PeekVolume {
	yawRot := mgl64.Rotate3DZ(mgl64.DegToRad(yaw))
	pitchRot := mgl64.Rotate3DY(mgl64.DegToRad(pitch))

	var v PeekVolume
	v.Upper[0] = eye.Add(yawRot.Mul3x1(pitchRot.Mul3x1(mgl64.Vec3{barrelLength, 0, 0})))
	for i, off := range torsoOffsets {
		v.Upper[i+1] = eye.Add(yawRot.Mul3x1(off))
	}

	r := footprintRadius
	if speed > movingSpeedThreshold {
		r = movingFootprintRadius
	}
	footprint := [4]mgl64.Vec3{{r, r, 0}, {-r, r, 0}, {-r, -r, 0}, {r, -r, 0}}
	for i, off := range footprint {
		v.Lower[i] = base.Add(yawRot.Mul3x1(off))
	}
	return v
}

// Center returns the mean of all silhouette vertices.
func (v *PeekVolume) Center() mgl64.Vec3 {
	var sum mgl64.Vec3
	for i := range v.Upper {
		sum = sum.Add(v.Upper[i]).Add(v.Lower[i])
	}
	return sum.Mul(1.0 / 8)
}

// Bounds returns the box around every silhouette vertex.
func (v *PeekVolume) Bounds() AABB {
	b := EmptyAABB()
	for i := range v.Upper {
		b.Extend(v.Upper[i])
		b.Extend(v.Lower[i])
	}
	return b
}

// PossiblePeeks spans a rectangle around eye, perpendicular to the
// eye->target direction, with the given half-width and half-height.
func PossiblePeeks(eye, target mgl64.Vec3, horizontal, vertical float64) Peeks {
	dir := normalize(target.Sub(eye))
	h := mgl64.Vec3{-dir[1], dir[0], 0}.Mul(horizontal)
	v := mgl64.Vec3{0, 0, vertical}
	return Peeks{
		eye.Add(h).Add(v),
		eye.Sub(h).Add(v),
		eye.Sub(h).Sub(v),
		eye.Add(h).Sub(v),
	}
}

// Bounds returns the box around the four peeks.
func (p *Peeks) Bounds() AABB {
	b := EmptyAABB()
	for _, q := range p {
		b.Extend(q)
	}
	return b
}
