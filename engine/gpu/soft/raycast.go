package soft

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/chewxy/math32"
)

// RayFlags control traversal of a ray query or traced ray.
type RayFlags uint32

const (
	RayFlagNone                     RayFlags = 0
	RayFlagOpaque                   RayFlags = 1
	RayFlagNoOpaque                 RayFlags = 2
	RayFlagTerminateOnFirstHit      RayFlags = 4
	RayFlagSkipClosestHitShader     RayFlags = 8
	RayFlagCullBackFacingTriangles  RayFlags = 16
	RayFlagCullFrontFacingTriangles RayFlags = 32
	RayFlagCullOpaque               RayFlags = 64
	RayFlagCullNoOpaque             RayFlags = 128
)

// Below this determinant magnitude a ray is treated as parallel to a triangle.
const parallelEpsilon = 1e-12

// Hit describes the committed intersection of a ray with a TLAS.
type Hit struct {
	Hit bool
	T   float32

	// InstanceIndex is the position of the instance in the TLAS.
	InstanceIndex uint32
	// InstanceCustomIndex is the 24-bit custom index of the instance.
	InstanceCustomIndex uint32
	// SBTRecordOffset is the instance's shader-binding-table record offset.
	SBTRecordOffset uint32
	PrimitiveIndex  uint32
	Barycentrics    [2]float32
	FrontFace       bool

	// Normal is the world-space geometric normal facing the ray origin, normalized.
	Normal        common.Vec3
	ObjectToWorld common.Mat4
}

// TopLevel is a shader-visible view of a built TLAS.
type TopLevel struct {
	as *accelStructure
}

// TopLevelOf returns the view of a TLAS created by a soft Device. Foreign or bottom-level
// structures give an invalid view.
func TopLevelOf(as gpu.AccelerationStructure) TopLevel {
	a, ok := as.(*accelStructure)
	if !ok || a.typ != gpu.AccelerationStructureTypeTopLevel {
		return TopLevel{}
	}
	return TopLevel{as: a}
}

// Valid reports whether the view references a built TLAS.
func (t TopLevel) Valid() bool {
	return t.as != nil && t.as.built && t.as.tlas != nil
}

// Intersect traverses the TLAS and returns the committed hit. Triangles are front facing when
// their vertices appear counter-clockwise from the ray origin in object space. Ties in distance
// are broken by lower instance index, then lower primitive index, so the result does not depend
// on tree layout.
//
// Parameters:
//   - flags: ray flags
//   - cullMask: instance mask filter; an instance is skipped when mask&cullMask == 0
//   - r: the world-space ray
//   - tMin: minimum hit distance
//   - tMax: maximum hit distance
//
// Returns:
//   - Hit: the committed hit, Hit.Hit false on a miss
func (t TopLevel) Intersect(flags RayFlags, cullMask uint8, r common.Ray, tMin, tMax float32) Hit {
	var best Hit
	if !t.Valid() {
		return best
	}
	data := t.as.tlas
	data.tree.Traverse(r, tMin, tMax, func(item int32, limit float32) (float32, bool) {
		inst := &data.instances[item]
		if inst.blas == nil || inst.blas.blas == nil || inst.record.Mask&cullMask == 0 {
			return limit, false
		}
		local := common.Ray{
			Origin:    common.TransformPoint(inst.worldToObject, r.Origin),
			Direction: common.TransformVector(inst.worldToObject, r.Direction),
		}
		geom := inst.blas.blas
		stop := false
		geom.tree.Traverse(local, tMin, limit, func(prim int32, primLimit float32) (float32, bool) {
			h, ok := intersectTriangle(geom, prim, local, tMin, primLimit, flags, inst)
			if !ok {
				return primLimit, false
			}
			if best.Hit && (h.T > best.T || (h.T == best.T && (uint32(item) > best.InstanceIndex ||
				(uint32(item) == best.InstanceIndex && uint32(prim) > best.PrimitiveIndex)))) {
				return primLimit, false
			}
			h.InstanceIndex = uint32(item)
			h.InstanceCustomIndex = inst.record.CustomIndex
			h.SBTRecordOffset = inst.record.ShaderBindingTableRecordOffset
			h.PrimitiveIndex = uint32(prim)
			h.ObjectToWorld = inst.objectToWorld
			best = h
			if flags&RayFlagTerminateOnFirstHit != 0 {
				stop = true
				return h.T, true
			}
			return h.T, false
		})
		if best.Hit && best.T < limit {
			limit = best.T
		}
		return limit, stop
	})
	if best.Hit {
		n := common.Cross3(geomEdge(t.as.tlas, best, 1), geomEdge(t.as.tlas, best, 2))
		n = common.Normalize3(common.TransformVector(transposeInverse3(best.ObjectToWorld), n))
		if common.Dot3(n, r.Direction) > 0 {
			n = common.Scale3(n, -1)
		}
		best.Normal = n
	}
	return best
}

func geomEdge(t *tlasData, h Hit, edge int) common.Vec3 {
	g := t.instances[h.InstanceIndex].blas.blas
	if edge == 1 {
		return g.e1[h.PrimitiveIndex]
	}
	return g.e2[h.PrimitiveIndex]
}

func transposeInverse3(m common.Mat4) common.Mat4 {
	it, ok := common.InverseTranspose4(m)
	if !ok {
		return m
	}
	return it
}

// intersectTriangle runs the Moller-Trumbore test and applies facing, culling and opacity rules.
func intersectTriangle(g *blasData, prim int32, r common.Ray, tMin, tMax float32, flags RayFlags, inst *tlasInstance) (Hit, bool) {
	e1, e2 := g.e1[prim], g.e2[prim]
	p := common.Cross3(r.Direction, e2)
	det := common.Dot3(e1, p)
	if math32.Abs(det) < parallelEpsilon {
		return Hit{}, false
	}
	invDet := 1 / det
	s := common.Sub3(r.Origin, g.v0[prim])
	u := common.Dot3(s, p) * invDet
	if u < 0 || u > 1 {
		return Hit{}, false
	}
	q := common.Cross3(s, e1)
	v := common.Dot3(r.Direction, q) * invDet
	if v < 0 || u+v > 1 {
		return Hit{}, false
	}
	t := common.Dot3(e2, q) * invDet
	if t < tMin || t > tMax {
		return Hit{}, false
	}

	front := det > 0
	if inst.record.Flags&gpu.GeometryInstanceTriangleFlipFacing != 0 {
		front = !front
	}
	if inst.record.Flags&gpu.GeometryInstanceTriangleFacingCullDisable == 0 {
		if front && flags&RayFlagCullFrontFacingTriangles != 0 {
			return Hit{}, false
		}
		if !front && flags&RayFlagCullBackFacingTriangles != 0 {
			return Hit{}, false
		}
	}

	opaque := g.opaque
	switch {
	case inst.record.Flags&gpu.GeometryInstanceForceOpaque != 0:
		opaque = true
	case inst.record.Flags&gpu.GeometryInstanceForceNoOpaque != 0:
		opaque = false
	}
	switch {
	case flags&RayFlagOpaque != 0:
		opaque = true
	case flags&RayFlagNoOpaque != 0:
		opaque = false
	}
	if (opaque && flags&RayFlagCullOpaque != 0) || (!opaque && flags&RayFlagCullNoOpaque != 0) {
		return Hit{}, false
	}

	return Hit{Hit: true, T: t, Barycentrics: [2]float32{u, v}, FrontFace: front}, true
}
