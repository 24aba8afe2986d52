// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// AS usage flags, analogous to Usage but restricted to the
// resources that back acceleration structures and the buffers
// that feed their builds.
const (
	// The buffer can store an acceleration structure.
	UASStorage Usage = 1 << (iota + 8)
	// The buffer can be used as scratch space for AS builds.
	UASScratch
	// The buffer can provide geometry (vertex/index/transform)
	// or instance data for AS builds.
	UASBuildInput
	// The buffer can provide a shader binding table.
	UASShaderTable
)

// GeomType is the type of geometry fed into a bottom-level
// acceleration structure build.
type GeomType int

// Geometry types.
const (
	GeomTriangles GeomType = iota
	GeomAABBs
)

// GeomTriangleData describes a triangle geometry for a
// bottom-level AS build. Offsets and strides are in bytes.
type GeomTriangleData struct {
	VertexFormat VertexFmt
	VertexBuf    Buffer
	VertexOff    int64
	VertexStride int64
	MaxVertex    int
	IndexFormat  IndexFmt
	IndexBuf     Buffer
	IndexOff     int64
	// TransformBuf optionally provides a 3x4 row-major affine
	// transform applied to this geometry's vertices prior to
	// building. Nil means identity.
	TransformBuf Buffer
	TransformOff int64
}

// GeomDesc describes one geometry entry of a bottom-level AS.
// Exactly one of Triangles/AABBs is meaningful, selected by Type.
type GeomDesc struct {
	Type      GeomType
	Triangles GeomTriangleData
	Opaque    bool
}

// BuildRange describes, for a single geometry entry, which
// primitives participate in the build.
type BuildRange struct {
	PrimitiveCount  int
	PrimitiveOffset int64
	FirstVertex     int
	TransformOffset int64
}

// ASSizes reports the buffer sizes required to hold an
// acceleration structure and to build/update it.
type ASSizes struct {
	ASSize      int64
	BuildScratch int64
	UpdateScratch int64
}

// BottomAS is a bottom-level acceleration structure: the GPU
// representation of a single mesh's triangle data, ready to be
// referenced by instances in a TopAS.
type BottomAS interface {
	Destroyer

	// DeviceAddress returns the address used to reference this
	// structure from a top-level acceleration structure instance.
	DeviceAddress() uint64
}

// TopAS is a top-level acceleration structure: a collection of
// instances, each referencing a BottomAS, ready to be bound for
// ray tracing.
type TopAS interface {
	Destroyer
}

// ASInstance is a single instance entry of a top-level AS build,
// matching the layout ray-tracing hardware expects: a 3x4
// row-major affine transform, a reference to a bottom-level
// structure, and hit-shader/visibility selectors.
type ASInstance struct {
	Transform      [12]float32
	CustomIndex    uint32
	Mask           uint8
	SBTOffset      uint32
	Flags          uint32
	ASReference    uint64
}

// Instance flags.
const (
	InstanceFlagTriangleFacingCullDisable uint32 = 1 << iota
	InstanceFlagTriangleFlipFacing
	InstanceFlagForceOpaque
	InstanceFlagForceNoOpaque
)

// AccelBuilder is the interface a GPU implements to support
// acceleration-structure builds. It is distinct from GPU's core
// resource-creation methods because not every backend supports
// hardware ray tracing.
type AccelBuilder interface {
	// BottomASSizes computes the sizes required to build (and,
	// if fastTrace is false, later update) a bottom-level AS
	// from the given geometries.
	BottomASSizes(geoms []GeomDesc, primCounts []int, fastTrace bool) (ASSizes, error)

	// NewBottomAS allocates the backing buffer for a
	// bottom-level AS of the given size and creates the
	// structure's handle.
	NewBottomAS(size int64) (BottomAS, error)

	// TopASSizes computes the sizes required to build (and,
	// if fastTrace is false, later update) a top-level AS
	// holding instanceCount instances.
	TopASSizes(instanceCount int, fastTrace bool) (ASSizes, error)

	// NewTopAS allocates the backing buffer for a top-level AS
	// of the given size and creates the structure's handle.
	NewTopAS(size int64) (TopAS, error)
}

// AccelCmdBuffer is the interface a CmdBuffer implements to
// record acceleration-structure build commands. It must only be
// used between BeginBlit/EndBlit, mirroring how copy commands are
// recorded (see CmdBuffer).
type AccelCmdBuffer interface {
	// BuildBottomAS records a bottom-level AS build (or, if src
	// is non-nil, an in-place update that reuses src's backing
	// storage and writes into dst).
	// scratch/scratchOff identify scratch space sized according
	// to a prior BottomASSizes call.
	BuildBottomAS(dst BottomAS, src BottomAS, geoms []GeomDesc, ranges []BuildRange, scratch Buffer, scratchOff int64)

	// BuildTopAS records a top-level AS build (or update, as
	// above) from instanceCount driver.ASInstance records
	// starting at instanceOff in instanceBuf.
	BuildTopAS(dst TopAS, src TopAS, instanceBuf Buffer, instanceOff int64, instanceCount int, scratch Buffer, scratchOff int64)

	// ASBarrier inserts a barrier ordering every AS write
	// recorded so far in this command buffer before any
	// subsequent AS read (e.g., a ray-tracing dispatch that
	// reads a TopAS).
	ASBarrier()
}
