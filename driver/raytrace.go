// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// RTStage is a mask of ray-tracing programmable stages, extending
// Stage for use in shader binding table group descriptions.
type RTStage int

// Ray-tracing stages.
const (
	SRayGen RTStage = 1 << iota
	SMiss
	SClosestHit
	SAnyHit
	SIntersection
)

// HitGroupType selects how a hit group's shaders are combined.
type HitGroupType int

// Hit group types.
const (
	// A hit group with only a closest-hit shader.
	HitTriangles HitGroupType = iota
	// A hit group with closest-hit and any-hit shaders, used for
	// alpha-tested geometry.
	HitTrianglesAnyHit
)

// ShaderGroup describes one entry of a ray-tracing pipeline's
// shader binding table: either a single general shader (raygen or
// miss) or a hit group (closest-hit plus optional any-hit).
type ShaderGroup struct {
	General    ShaderFunc
	ClosestHit ShaderFunc
	AnyHit     ShaderFunc
	Type       HitGroupType
}

// RTState defines a ray-tracing pipeline: a flat list of shader
// groups (raygen stages, miss stages, hit groups) plus the
// descriptor table visible to every stage, and the maximum
// recursion depth the pipeline must support.
type RTState struct {
	Groups     []ShaderGroup
	Desc       DescTable
	MaxRecurse int
}

// ShaderTable describes the device-visible regions of a shader
// binding table, one per ray-tracing stage kind. Offsets and
// strides are in bytes, as required by the hardware's alignment
// rules; the concrete alignment is reported through Limits.
type ShaderTable struct {
	RayGen  ShaderTableRegion
	Miss    ShaderTableRegion
	HitGrp  ShaderTableRegion
	Callable ShaderTableRegion
}

// ShaderTableRegion identifies a contiguous run of equally-sized
// shader records within a ShaderTable's backing buffer.
type ShaderTableRegion struct {
	Buf    Buffer
	Off    int64
	Stride int64
	Size   int64
}

// RTPipelineBuilder is the interface a GPU implements to support
// ray-tracing pipelines and their shader binding tables. Not every
// backend supports hardware ray tracing, so this is kept separate
// from GPU's core pipeline creation method.
type RTPipelineBuilder interface {
	// NewRTPipeline creates a ray-tracing pipeline from state.
	NewRTPipeline(state *RTState) (Pipeline, error)

	// NewShaderTable builds a shader binding table for a
	// pipeline previously created by NewRTPipeline.
	NewShaderTable(pl Pipeline) (*ShaderTable, error)
}

// RTCmdBuffer is the interface a CmdBuffer implements to dispatch
// ray-tracing work. It must only be called during BeginWork/EndWork,
// mirroring Dispatch for compute work.
type RTCmdBuffer interface {
	// TraceRays dispatches width*height*depth rays using the
	// given pipeline and shader table.
	TraceRays(pl Pipeline, table *ShaderTable, width, height, depth int)
}
