package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu/bvh"
)

// Reported build sizes, per primitive unless noted.
const (
	asHeaderSize         = 64
	asNodeSize           = 32
	asTriangleSize       = 48
	asInstanceRecordSize = gpu.ASInstanceSize
	asScratchPerItem     = 32
	asScratchBase        = 256
	asUpdateScratchItem  = 16
	asUpdateScratchBase  = 128
)

// Leaf size used for both levels.
const maxLeafItems = 4

type blasData struct {
	v0, e1, e2 []common.Vec3
	opaque     bool
	tree       *bvh.Tree
}

type tlasInstance struct {
	record        gpu.ASInstance
	objectToWorld common.Mat4
	worldToObject common.Mat4
	blas          *accelStructure
}

type tlasData struct {
	instances []tlasInstance
	tree      *bvh.Tree
}

type accelStructure struct {
	dev    *Device
	label  string
	typ    gpu.AccelerationStructureType
	buf    *buffer
	offset uint64
	size   uint64

	built      bool
	buildFlags gpu.BuildAccelerationStructureFlags
	primitives uint32
	blas       *blasData
	tlas       *tlasData

	destroyed bool
}

func (a *accelStructure) Label() string                       { return a.label }
func (a *accelStructure) Type() gpu.AccelerationStructureType { return a.typ }
func (a *accelStructure) Buffer() gpu.Buffer                  { return a.buf }
func (a *accelStructure) DeviceAddress() gpu.DeviceAddress    { return a.buf.address + gpu.DeviceAddress(a.offset) }

func (a *accelStructure) Destroy() {
	if a.destroyed {
		return
	}
	a.destroyed = true
	delete(a.dev.structures, a.DeviceAddress())
}

func requiredSizes(t gpu.AccelerationStructureType, n uint64) gpu.AccelerationStructureBuildSizes {
	if n == 0 {
		return gpu.AccelerationStructureBuildSizes{}
	}
	item := uint64(asTriangleSize)
	if t == gpu.AccelerationStructureTypeTopLevel {
		item = asInstanceRecordSize
	}
	return gpu.AccelerationStructureBuildSizes{
		AccelerationStructureSize: asHeaderSize + 2*n*asNodeSize + n*item,
		BuildScratchSize:          n*asScratchPerItem + asScratchBase,
		UpdateScratchSize:         n*asUpdateScratchItem + asUpdateScratchBase,
	}
}

// GetAccelerationStructureBuildSizes reports sizes proportional to the primitive count. Zero
// primitives report zero sizes.
func (d *Device) GetAccelerationStructureBuildSizes(info *gpu.AccelerationStructureBuildGeometryInfo, maxPrimitiveCounts []uint32) (gpu.AccelerationStructureBuildSizes, error) {
	if !d.features.AccelerationStructure {
		return gpu.AccelerationStructureBuildSizes{}, &gpu.Error{Op: "vkGetAccelerationStructureBuildSizesKHR", Kind: gpu.ErrorKindUnsupported, Result: gpu.ErrorFeatureNotPresent}
	}
	if len(maxPrimitiveCounts) != len(info.Geometries) {
		return gpu.AccelerationStructureBuildSizes{}, gpu.NewError("vkGetAccelerationStructureBuildSizesKHR", gpu.ErrorKindInvalidUsage, "%d primitive counts for %d geometries", len(maxPrimitiveCounts), len(info.Geometries))
	}
	var n uint64
	for _, c := range maxPrimitiveCounts {
		n += uint64(c)
	}
	return requiredSizes(info.Type, n), nil
}

// CreateAccelerationStructure places a structure inside a buffer with ACCELERATION_STRUCTURE_STORAGE
// usage.
func (d *Device) CreateAccelerationStructure(desc gpu.AccelerationStructureDescriptor) (gpu.AccelerationStructure, error) {
	const op = "vkCreateAccelerationStructureKHR"
	if !d.features.AccelerationStructure {
		return nil, &gpu.Error{Op: op, Kind: gpu.ErrorKindUnsupported, Result: gpu.ErrorFeatureNotPresent}
	}
	b, ok := desc.Buffer.(*buffer)
	if !ok || b.destroyed {
		return nil, gpu.NewError(op, gpu.ErrorKindInvalidUsage, "structure %q needs a live device buffer", desc.Label)
	}
	if b.usage&gpu.BufferUsageAccelerationStructureStorage == 0 {
		return nil, gpu.NewError(op, gpu.ErrorKindInvalidUsage, "buffer %q lacks ACCELERATION_STRUCTURE_STORAGE usage", b.label)
	}
	if desc.Size == 0 || desc.Offset+desc.Size > b.size {
		return nil, gpu.NewError(op, gpu.ErrorKindInvalidUsage, "structure %q range [%d,+%d) outside buffer of %d bytes", desc.Label, desc.Offset, desc.Size, b.size)
	}
	as := &accelStructure{dev: d, label: desc.Label, typ: desc.Type, buf: b, offset: desc.Offset, size: desc.Size}
	d.structures[as.DeviceAddress()] = as
	return as, nil
}

// execBuild runs one recorded build against the executor's hazard state.
func (x *executor) execBuild(info gpu.AccelerationStructureBuildGeometryInfo, ranges []gpu.AccelerationStructureBuildRangeInfo) error {
	const op = "vkCmdBuildAccelerationStructuresKHR"
	d := x.dev
	dst, ok := info.Dst.(*accelStructure)
	if !ok || dst.destroyed {
		return x.fail(op, "build destination is not a live acceleration structure")
	}
	if dst.typ != info.Type {
		return x.fail(op, "structure %q is %s, build is %s", dst.label, dst.typ, info.Type)
	}
	if len(ranges) != len(info.Geometries) {
		return x.fail(op, "%d ranges for %d geometries", len(ranges), len(info.Geometries))
	}

	var n uint64
	for _, r := range ranges {
		n += uint64(r.PrimitiveCount)
	}
	sizes := requiredSizes(info.Type, n)
	if dst.size < sizes.AccelerationStructureSize {
		return x.fail(op, "structure %q is %d bytes, build needs %d", dst.label, dst.size, sizes.AccelerationStructureSize)
	}

	var src *accelStructure
	scratchSize := sizes.BuildScratchSize
	if info.Mode == gpu.BuildAccelerationStructureModeUpdate {
		src, ok = info.Src.(*accelStructure)
		if !ok || src.destroyed || !src.built {
			return x.fail(op, "update of %q needs a built source structure", dst.label)
		}
		if src.buildFlags&gpu.BuildAccelerationStructureAllowUpdate == 0 {
			return x.fail(op, "update source %q was not built with ALLOW_UPDATE", src.label)
		}
		if uint64(src.primitives) != n {
			return x.fail(op, "update of %q changes primitive count %d -> %d", dst.label, src.primitives, n)
		}
		scratchSize = sizes.UpdateScratchSize
	}

	_, scratchBuf, ok := d.resolveRange(info.ScratchData, scratchSize)
	if !ok {
		return x.fail(op, "scratch address %#x does not cover %d bytes", info.ScratchData, scratchSize)
	}
	if scratchBuf.usage&gpu.BufferUsageStorage == 0 {
		return x.fail(op, "scratch buffer %q lacks STORAGE_BUFFER usage", scratchBuf.label)
	}
	if x.scratchHazard(info.ScratchData, scratchSize) {
		return x.fail(op, "scratch range %#x+%d reused without an acceleration-structure build barrier", info.ScratchData, scratchSize)
	}

	switch info.Type {
	case gpu.AccelerationStructureTypeBottomLevel:
		data, err := x.readTriangles(info, ranges)
		if err != nil {
			return err
		}
		if src != nil {
			data.tree = refitCopy(src, dst, src.blas.tree, triangleBounds(data))
		} else {
			data.tree = bvh.Build(triangleBounds(data), maxLeafItems)
		}
		dst.blas = data
	case gpu.AccelerationStructureTypeTopLevel:
		data, err := x.readInstances(info, ranges)
		if err != nil {
			return err
		}
		boxes := instanceBounds(data)
		if src != nil {
			data.tree = refitCopy(src, dst, src.tlas.tree, boxes)
		} else {
			data.tree = bvh.Build(boxes, maxLeafItems)
		}
		dst.tlas = data
	}

	dst.built = true
	dst.buildFlags = info.Flags
	dst.primitives = uint32(n)
	x.pendingScratch = append(x.pendingScratch, addrRange{info.ScratchData, scratchSize})
	x.pendingASWrites[dst] = true

	d.stats.Builds[BuildKey{Type: info.Type, Mode: info.Mode}]++
	x.traceBuild(info, n)
	return nil
}

func (x *executor) readTriangles(info gpu.AccelerationStructureBuildGeometryInfo, ranges []gpu.AccelerationStructureBuildRangeInfo) (*blasData, error) {
	const op = "vkCmdBuildAccelerationStructuresKHR"
	d := x.dev
	data := &blasData{opaque: true}
	for gi, g := range info.Geometries {
		if g.Type != gpu.GeometryTypeTriangles {
			return nil, x.fail(op, "bottom-level geometry %d is not triangles", gi)
		}
		t := g.Triangles
		if t.VertexFormat != gpu.FormatR32G32B32Sfloat {
			return nil, x.fail(op, "vertex format %s unsupported", t.VertexFormat)
		}
		if t.VertexStride < 12 {
			return nil, x.fail(op, "vertex stride %d below 12", t.VertexStride)
		}
		if g.Flags&gpu.GeometryOpaque == 0 {
			data.opaque = false
		}
		r := ranges[gi]
		isize := t.IndexType.Size()
		indexBytes, ibuf, ok := d.resolveRange(t.IndexData+gpu.DeviceAddress(r.PrimitiveOffset), uint64(r.PrimitiveCount)*3*isize)
		if !ok {
			return nil, x.fail(op, "index data %#x does not cover %d triangles", t.IndexData, r.PrimitiveCount)
		}
		vertexBytes, vbuf, ok := d.resolveRange(t.VertexData, (uint64(t.MaxVertex)+uint64(r.FirstVertex))*t.VertexStride+12)
		if !ok {
			return nil, x.fail(op, "vertex data %#x does not cover %d vertices", t.VertexData, t.MaxVertex+1)
		}
		for _, b := range []*buffer{ibuf, vbuf} {
			if b.usage&gpu.BufferUsageAccelerationStructureBuildInputReadOnly == 0 {
				return nil, x.fail(op, "buffer %q lacks ACCELERATION_STRUCTURE_BUILD_INPUT_READ_ONLY usage", b.label)
			}
			if x.pendingTransfer[b] {
				return nil, x.fail(op, "buffer %q read by a build before its transfer write was made visible", b.label)
			}
		}
		for p := uint32(0); p < r.PrimitiveCount; p++ {
			var v [3]common.Vec3
			for k := 0; k < 3; k++ {
				off := (uint64(p)*3 + uint64(k)) * isize
				var idx uint32
				if t.IndexType == gpu.IndexTypeUint16 {
					idx = uint32(binary.LittleEndian.Uint16(indexBytes[off:]))
				} else {
					idx = binary.LittleEndian.Uint32(indexBytes[off:])
				}
				if idx > t.MaxVertex {
					return nil, x.fail(op, "index %d exceeds max vertex %d", idx, t.MaxVertex)
				}
				vo := (uint64(idx) + uint64(r.FirstVertex)) * t.VertexStride
				v[k] = common.Vec3{
					math.Float32frombits(binary.LittleEndian.Uint32(vertexBytes[vo:])),
					math.Float32frombits(binary.LittleEndian.Uint32(vertexBytes[vo+4:])),
					math.Float32frombits(binary.LittleEndian.Uint32(vertexBytes[vo+8:])),
				}
			}
			data.v0 = append(data.v0, v[0])
			data.e1 = append(data.e1, common.Sub3(v[1], v[0]))
			data.e2 = append(data.e2, common.Sub3(v[2], v[0]))
		}
	}
	return data, nil
}

func (x *executor) readInstances(info gpu.AccelerationStructureBuildGeometryInfo, ranges []gpu.AccelerationStructureBuildRangeInfo) (*tlasData, error) {
	const op = "vkCmdBuildAccelerationStructuresKHR"
	d := x.dev
	if len(info.Geometries) != 1 || info.Geometries[0].Type != gpu.GeometryTypeInstances {
		return nil, x.fail(op, "top-level build needs exactly one instances geometry")
	}
	g := info.Geometries[0].Instances
	if g.ArrayOfPointers {
		return nil, x.fail(op, "arrays of instance pointers are not supported")
	}
	count := uint64(ranges[0].PrimitiveCount)
	raw, ibuf, ok := d.resolveRange(g.Data+gpu.DeviceAddress(ranges[0].PrimitiveOffset), count*gpu.ASInstanceSize)
	if !ok {
		return nil, x.fail(op, "instance data %#x does not cover %d instances", g.Data, count)
	}
	if ibuf.usage&gpu.BufferUsageAccelerationStructureBuildInputReadOnly == 0 {
		return nil, x.fail(op, "instance buffer %q lacks ACCELERATION_STRUCTURE_BUILD_INPUT_READ_ONLY usage", ibuf.label)
	}
	if x.pendingTransfer[ibuf] {
		return nil, x.fail(op, "instance buffer %q read by a build before its transfer write was made visible", ibuf.label)
	}
	if ibuf.props&gpu.MemoryPropertyHostVisible != 0 {
		d.warn(gpu.WarningBestPracticesHostVisibleDeviceBuffer, "instance buffer %q is host visible", ibuf.label)
	}

	data := &tlasData{instances: make([]tlasInstance, count)}
	for i := uint64(0); i < count; i++ {
		rec, err := gpu.UnmarshalASInstance(raw[i*gpu.ASInstanceSize:])
		if err != nil {
			return nil, x.fail(op, "instance %d: %v", i, err)
		}
		inst := tlasInstance{record: rec, objectToWorld: common.FromRowMajor3x4(rec.Transform)}
		inv, ok := common.Invert4(inst.objectToWorld)
		if !ok {
			return nil, x.fail(op, "instance %d transform is singular", i)
		}
		inst.worldToObject = inv
		if rec.AccelerationStructureReference != 0 {
			blas, ok := d.structures[rec.AccelerationStructureReference]
			if !ok || blas.typ != gpu.AccelerationStructureTypeBottomLevel || !blas.built {
				return nil, x.fail(op, "instance %d references %#x which is not a built BLAS", i, rec.AccelerationStructureReference)
			}
			if x.pendingASWrites[blas] {
				return nil, x.fail(op, "instance %d references BLAS %q before its build was made visible", i, blas.label)
			}
			inst.blas = blas
		}
		data.instances[i] = inst
	}
	return data, nil
}

// refitCopy refits the source topology for the destination. An in-place update refits the shared
// tree; a separate destination gets its own node array so the source stays valid.
func refitCopy(src, dst *accelStructure, tree *bvh.Tree, boxes []common.AABB) *bvh.Tree {
	if src != dst {
		clone := *tree
		clone.Nodes = append([]bvh.Node(nil), tree.Nodes...)
		tree = &clone
	}
	tree.Refit(boxes)
	return tree
}

func triangleBounds(b *blasData) []common.AABB {
	boxes := make([]common.AABB, len(b.v0))
	for i, v0 := range b.v0 {
		boxes[i] = common.EmptyAABB().Extend(v0).Extend(common.Add3(v0, b.e1[i])).Extend(common.Add3(v0, b.e2[i]))
	}
	return boxes
}

func instanceBounds(t *tlasData) []common.AABB {
	boxes := make([]common.AABB, len(t.instances))
	for i, inst := range t.instances {
		if inst.blas == nil || inst.blas.blas == nil {
			boxes[i] = common.EmptyAABB()
			continue
		}
		boxes[i] = inst.blas.blas.tree.Bounds().Transform(inst.objectToWorld)
	}
	return boxes
}

func (x *executor) traceBuild(info gpu.AccelerationStructureBuildGeometryInfo, n uint64) {
	x.record(TraceEntry{
		Command: "BuildAccelerationStructure",
		Detail:  fmt.Sprintf("%s %s %q primitives=%d", info.Type, info.Mode, info.Dst.Label(), n),
	})
}
