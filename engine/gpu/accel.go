package gpu

// AccelerationStructureType selects a bottom-level (triangles) or top-level (instances) structure.
type AccelerationStructureType int

const (
	AccelerationStructureTypeTopLevel AccelerationStructureType = iota
	AccelerationStructureTypeBottomLevel
)

func (t AccelerationStructureType) String() string {
	if t == AccelerationStructureTypeTopLevel {
		return "TLAS"
	}
	return "BLAS"
}

// BuildAccelerationStructureFlags tune how a structure is built.
type BuildAccelerationStructureFlags uint32

const (
	BuildAccelerationStructureAllowUpdate BuildAccelerationStructureFlags = 1 << iota
	BuildAccelerationStructureAllowCompaction
	BuildAccelerationStructurePreferFastTrace
	BuildAccelerationStructurePreferFastBuild
	BuildAccelerationStructureLowMemory
)

// BuildAccelerationStructureMode selects a full build or an incremental update (refit).
type BuildAccelerationStructureMode int

const (
	BuildAccelerationStructureModeBuild BuildAccelerationStructureMode = iota
	BuildAccelerationStructureModeUpdate
)

func (m BuildAccelerationStructureMode) String() string {
	if m == BuildAccelerationStructureModeUpdate {
		return "update"
	}
	return "build"
}

// GeometryType is the geometry kind referenced by a build.
type GeometryType int

const (
	GeometryTypeTriangles GeometryType = iota
	GeometryTypeInstances
)

// GeometryFlags are per-geometry build flags.
type GeometryFlags uint32

const (
	GeometryOpaque GeometryFlags = 1 << iota
	GeometryNoDuplicateAnyHitInvocation
)

// GeometryInstanceFlags are per-instance flags stored in the top 8 bits of an instance record.
type GeometryInstanceFlags uint8

const (
	GeometryInstanceTriangleFacingCullDisable GeometryInstanceFlags = 1 << iota
	GeometryInstanceTriangleFlipFacing
	GeometryInstanceForceOpaque
	GeometryInstanceForceNoOpaque
)

// TrianglesData describes indexed triangle geometry for a bottom-level build.
type TrianglesData struct {
	VertexFormat  Format
	VertexData    DeviceAddress
	VertexStride  uint64
	MaxVertex     uint32
	IndexType     IndexType
	IndexData     DeviceAddress
	TransformData DeviceAddress
}

// InstancesData points at a tightly packed array of ASInstance records.
type InstancesData struct {
	ArrayOfPointers bool
	Data            DeviceAddress
}

// AccelerationStructureGeometry is one geometry of a build.
type AccelerationStructureGeometry struct {
	Type      GeometryType
	Triangles TrianglesData
	Instances InstancesData
	Flags     GeometryFlags
}

// AccelerationStructureBuildGeometryInfo describes one build or update.
type AccelerationStructureBuildGeometryInfo struct {
	Type       AccelerationStructureType
	Flags      BuildAccelerationStructureFlags
	Mode       BuildAccelerationStructureMode
	Src        AccelerationStructure
	Dst        AccelerationStructure
	Geometries []AccelerationStructureGeometry
	// ScratchData is the device address of the scratch region used by the build.
	ScratchData DeviceAddress
}

// AccelerationStructureBuildRangeInfo gives the primitive range of one geometry.
type AccelerationStructureBuildRangeInfo struct {
	PrimitiveCount  uint32
	PrimitiveOffset uint32
	FirstVertex     uint32
	TransformOffset uint32
}

// AccelerationStructureBuildSizes is the driver-reported memory requirement of a build.
type AccelerationStructureBuildSizes struct {
	AccelerationStructureSize uint64
	UpdateScratchSize         uint64
	BuildScratchSize          uint64
}

// AccelerationStructureDescriptor creates a structure inside an existing buffer.
type AccelerationStructureDescriptor struct {
	Label  string
	Type   AccelerationStructureType
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// AccelerationStructure is an opaque BLAS or TLAS object.
type AccelerationStructure interface {
	// Label returns the debug name.
	Label() string

	// Type returns whether the structure is top or bottom level.
	Type() AccelerationStructureType

	// Buffer returns the storage buffer backing the structure.
	Buffer() Buffer

	// DeviceAddress returns the address referenced by instance records.
	DeviceAddress() DeviceAddress

	// Destroy releases the structure. The backing buffer is owned by the caller.
	Destroy()
}
