// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"
)

// Vec3 is a 3-component float32 vector.
type Vec3 = f32.Vec3

// Vec4 is a 4-component float32 vector. Quaternions use (x, y, z, w) order.
type Vec4 = f32.Vec4

// Ray is a parametric ray Origin + t*Direction.
type Ray struct {
	// Origin is the ray start point.
	Origin Vec3

	// Direction is the ray direction. It does not need to be normalized; hit distances are
	// expressed in multiples of its length.
	Direction Vec3
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float32) Vec3 {
	return Add3(r.Origin, Scale3(r.Direction, t))
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min Vec3
	Max Vec3
}

// EmptyAABB returns an inverted box that any Extend call will replace.
func EmptyAABB() AABB {
	return AABB{
		Min: Vec3{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32},
		Max: Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32},
	}
}

// Empty reports whether the box contains no points.
func (b AABB) Empty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Extend grows the box to include p.
func (b AABB) Extend(p Vec3) AABB {
	return AABB{Min: Min3(b.Min, p), Max: Max3(b.Max, p)}
}

// Union returns the smallest box containing both b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{Min: Min3(b.Min, o.Min), Max: Max3(b.Max, o.Max)}
}

// Center returns the box centroid.
func (b AABB) Center() Vec3 {
	return Scale3(Add3(b.Min, b.Max), 0.5)
}

// HalfArea returns half the surface area of the box, the SAH cost metric.
func (b AABB) HalfArea() float32 {
	if b.Empty() {
		return 0
	}
	d := Sub3(b.Max, b.Min)
	return d[0]*d[1] + d[1]*d[2] + d[0]*d[2]
}

// Transform returns the axis-aligned bounds of b after applying the affine transform m.
func (b AABB) Transform(m Mat4) AABB {
	if b.Empty() {
		return b
	}
	out := EmptyAABB()
	for i := 0; i < 8; i++ {
		corner := Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			corner[0] = b.Max[0]
		}
		if i&2 != 0 {
			corner[1] = b.Max[1]
		}
		if i&4 != 0 {
			corner[2] = b.Max[2]
		}
		out = out.Extend(TransformPoint(m, corner))
	}
	return out
}

// IntersectRay returns the entry and exit parameters of r against the box, clipped to
// [tMin, tMax]. ok is false when the ray misses the box inside that interval.
func (b AABB) IntersectRay(r Ray, invDir Vec3, tMin, tMax float32) (float32, float32, bool) {
	for axis := 0; axis < 3; axis++ {
		t0 := (b.Min[axis] - r.Origin[axis]) * invDir[axis]
		t1 := (b.Max[axis] - r.Origin[axis]) * invDir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaN from 0 * inf is treated as "no constraint" on this axis.
		if t0 == t0 && t0 > tMin {
			tMin = t0
		}
		if t1 == t1 && t1 < tMax {
			tMax = t1
		}
		if tMin > tMax {
			return 0, 0, false
		}
	}
	return tMin, tMax, true
}

// InverseDirection returns 1/d per component, mapping zero components to +Inf.
func InverseDirection(d Vec3) Vec3 {
	var out Vec3
	for i := 0; i < 3; i++ {
		if d[i] == 0 {
			out[i] = math32.Inf(1)
		} else {
			out[i] = 1 / d[i]
		}
	}
	return out
}
