// Package geometry holds the static occluder shapes and the exact
// line-of-sight predicates evaluated by the culling pipeline.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrVertexCount is returned when a cuboid is built from anything other than 8 vertices.
var ErrVertexCount = errors.New("cuboid requires exactly 8 vertices")

// Vertex ordering expected by BuildCuboid:
//
//	   .1------0
//	 .' |    .'|
//	2---+--3'  |
//	|   |  |   |
//	|  .5--+---4
//	|.'    | .'
//	6------7'
var faceVertexMap = [6][4]int{
	{0, 1, 2, 3},
	{2, 6, 7, 3},
	{0, 3, 7, 4},
	{0, 4, 5, 1},
	{1, 5, 6, 2},
	{4, 7, 6, 5},
}

// Face is one bounding plane of a convex occluder.
type Face struct {
	Point  mgl64.Vec3
	Normal mgl64.Vec3 // outward, unit length
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// EmptyAABB returns a box that any Extend call will replace.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Min: mgl64.Vec3{inf, inf, inf},
		Max: mgl64.Vec3{-inf, -inf, -inf},
	}
}

// Extend grows the box to contain p.
func (b *AABB) Extend(p mgl64.Vec3) {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
}

// Union grows the box to contain o.
func (b *AABB) Union(o AABB) {
	b.Extend(o.Min)
	b.Extend(o.Max)
}

// Overlaps reports whether the two boxes share at least one point.
func (b AABB) Overlaps(o AABB) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// DistanceSq returns the squared distance from p to the closest point of the box.
func (b AABB) DistanceSq(p mgl64.Vec3) float64 {
	var d float64
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			d += (b.Min[i] - p[i]) * (b.Min[i] - p[i])
		} else if p[i] > b.Max[i] {
			d += (p[i] - b.Max[i]) * (p[i] - b.Max[i])
		}
	}
	return d
}

// Cuboid is an immutable convex hexahedron.
type Cuboid struct {
	Faces  [6]Face
	Bounds AABB
}

// BuildCuboid computes face planes and bounds from 8 vertices in the
// canonical ordering. Only the count is validated.
func BuildCuboid(vertices []mgl64.Vec3) (Cuboid, error) {
	if len(vertices) != 8 {
		return Cuboid{}, fmt.Errorf("%w: got %d", ErrVertexCount, len(vertices))
	}

	var c Cuboid
	for i, idx := range faceVertexMap {
		p0, p1, p2 := vertices[idx[0]], vertices[idx[1]], vertices[idx[2]]
		c.Faces[i] = Face{
			Point:  p0,
			Normal: normalize(p1.Sub(p0).Cross(p2.Sub(p0))),
		}
	}

	c.Bounds = EmptyAABB()
	for _, v := range vertices {
		c.Bounds.Extend(v)
	}
	return c, nil
}

// NewCuboidFromFaces builds a cuboid from explicit bounds and face planes.
// Normals are normalized; the caller is responsible for their orientation.
func NewCuboidFromFaces(min, max mgl64.Vec3, faces [6]Face) Cuboid {
	c := Cuboid{Faces: faces}
	for i := range c.Faces {
		c.Faces[i].Normal = normalize(c.Faces[i].Normal)
	}
	c.Bounds = EmptyAABB()
	c.Bounds.Extend(min)
	c.Bounds.Extend(max)
	return c
}

// AABBVertices expands two opposite corners into the canonical 8-vertex ordering.
func AABBVertices(a, b mgl64.Vec3) []mgl64.Vec3 {
	lo := mgl64.Vec3{math.Min(a[0], b[0]), math.Min(a[1], b[1]), math.Min(a[2], b[2])}
	hi := mgl64.Vec3{math.Max(a[0], b[0]), math.Max(a[1], b[1]), math.Max(a[2], b[2])}
	return []mgl64.Vec3{
		{hi[0], hi[1], hi[2]},
		{lo[0], hi[1], hi[2]},
		{lo[0], lo[1], hi[2]},
		{hi[0], lo[1], hi[2]},
		{hi[0], hi[1], lo[2]},
		{lo[0], hi[1], lo[2]},
		{lo[0], lo[1], lo[2]},
		{hi[0], lo[1], lo[2]},
	}
}

// NewBox builds an axis-aligned cuboid from two opposite corners.
func NewBox(a, b mgl64.Vec3) Cuboid {
	c, _ := BuildCuboid(AABBVertices(a, b))
	return c
}

// normalize returns the zero vector for zero-length input instead of NaNs.
func normalize(v mgl64.Vec3) mgl64.Vec3 {
	l := v.Len()
	if l == 0 {
		return mgl64.Vec3{}
	}
	return v.Mul(1 / l)
}
