// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"

	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/internal/ctxt"
)

// RaygenStage identifies one of the fixed-order raygen passes the
// frame scheduler dispatches every frame (spec.md §4.7 step 4).
type RaygenStage int

const (
	StagePrimary RaygenStage = iota
	StageReflRefr
	StageDirect
	StageIndirectInit
	StageGradients
	StageInitialReservoirs
	StageIndirectFinal
	StageVolumetric

	numRaygenStages
)

// RaygenOrder is the fixed dispatch order for the raygen stages
// (spec.md §4.7 step 4): PRIMARY, REFL_REFR, DIRECT, INDIRECT_INIT,
// GRADIENTS, INITIAL_RESERVOIRS, INDIRECT_FINAL, VOLUMETRIC.
var RaygenOrder = [numRaygenStages]RaygenStage{
	StagePrimary, StageReflRefr, StageDirect, StageIndirectInit,
	StageGradients, StageInitialReservoirs, StageIndirectFinal, StageVolumetric,
}

func (s RaygenStage) String() string {
	switch s {
	case StagePrimary:
		return "PRIMARY"
	case StageReflRefr:
		return "REFL_REFR"
	case StageDirect:
		return "DIRECT"
	case StageIndirectInit:
		return "INDIRECT_INIT"
	case StageGradients:
		return "GRADIENTS"
	case StageInitialReservoirs:
		return "INITIAL_RESERVOIRS"
	case StageIndirectFinal:
		return "INDIRECT_FINAL"
	case StageVolumetric:
		return "VOLUMETRIC"
	default:
		return "UNKNOWN"
	}
}

// Miss shader indices (spec.md §2.11's "2 miss"): a closest-hit-found
// trace uses MissRadiance, a shadow/occlusion-only trace uses
// MissShadow.
const (
	MissRadiance = iota
	MissShadow

	numMissShaders
)

// Hit group indices (spec.md §2.11's "2 hit"): opaque triangles use a
// closest-hit-only group, alpha-tested ("cutout") geometry adds an
// any-hit shader (driver.HitTrianglesAnyHit).
const (
	HitOpaque = iota
	HitAlphaTested

	numHitGroups
)

// RTPipelineConfig names every shader function a ray-tracing pipeline
// needs: one per raygen stage, one per miss shader, closest-hit (and,
// for HitAlphaTested, any-hit) per hit group.
type RTPipelineConfig struct {
	Raygen [numRaygenStages]driver.ShaderFunc
	Miss   [numMissShaders]driver.ShaderFunc
	Hit    [numHitGroups]struct {
		ClosestHit driver.ShaderFunc
		AnyHit     driver.ShaderFunc // only used by HitAlphaTested
	}
	MaxRecurse int
}

// RTPipeline wraps the driver-level ray-tracing pipeline and its
// shader binding table, tracking the byte offset of each raygen
// stage's record within the SBT's RayGen region so Dispatch can
// select one stage at a time (spec.md §4.7 step 4; a single
// driver.RTCmdBuffer.TraceRays call fires exactly one raygen shader
// per invocation, so the scheduler issues numRaygenStages calls in
// RaygenOrder, each pointed at a different SBT offset).
type RTPipeline struct {
	pipeline driver.Pipeline
	table    *driver.ShaderTable
	desc     driver.DescTable

	raygenStride int64
}

// NewRTPipeline builds the ray-tracing pipeline and its shader
// binding table from cfg, binding desc as the descriptor table every
// stage sees (spec.md §2.11, §2.14).
func NewRTPipeline(cfg *RTPipelineConfig, desc driver.DescTable) (*RTPipeline, error) {
	builder, ok := ctxt.GPU().(driver.RTPipelineBuilder)
	if !ok {
		return nil, newErr(GenericError, "driver does not implement RTPipelineBuilder")
	}

	groups := make([]driver.ShaderGroup, 0, numRaygenStages+numMissShaders+numHitGroups)
	for _, fn := range cfg.Raygen {
		groups = append(groups, driver.ShaderGroup{General: fn})
	}
	for _, fn := range cfg.Miss {
		groups = append(groups, driver.ShaderGroup{General: fn})
	}
	for i, h := range cfg.Hit {
		g := driver.ShaderGroup{ClosestHit: h.ClosestHit, Type: driver.HitTriangles}
		if i == HitAlphaTested {
			g.AnyHit = h.AnyHit
			g.Type = driver.HitTrianglesAnyHit
		}
		groups = append(groups, g)
	}

	state := &driver.RTState{Groups: groups, Desc: desc, MaxRecurse: cfg.MaxRecurse}
	pl, err := builder.NewRTPipeline(state)
	if err != nil {
		return nil, err
	}
	table, err := builder.NewShaderTable(pl)
	if err != nil {
		pl.Destroy()
		return nil, err
	}
	if numRaygenStages == 0 || table.RayGen.Stride == 0 {
		pl.Destroy()
		return nil, newErr(GenericError, "shader table has no raygen stride")
	}
	return &RTPipeline{pipeline: pl, table: table, desc: desc, raygenStride: table.RayGen.Stride}, nil
}

// raygenTable returns the ShaderTable restricted to the single
// raygen record at stage, leaving Miss/HitGrp/Callable untouched.
func (p *RTPipeline) raygenTable(stage RaygenStage) driver.ShaderTable {
	t := *p.table
	t.RayGen.Off += int64(stage) * p.raygenStride
	t.RayGen.Size = p.raygenStride
	return t
}

// Dispatch records one raygen stage's TraceRays call over a
// width*height*1 grid (spec.md §4.7 step 4). cmd must already be
// within a BeginWork/EndWork block with the pipeline's descriptor
// table bound.
func (p *RTPipeline) Dispatch(cmd driver.CmdBuffer, stage RaygenStage, width, height int) error {
	rt, ok := cmd.(driver.RTCmdBuffer)
	if !ok {
		return newErr(GenericError, "command buffer does not implement RTCmdBuffer")
	}
	if stage < 0 || stage >= numRaygenStages {
		return newErr(WrongArgument, fmt.Sprintf("undefined raygen stage %d", stage))
	}
	table := p.raygenTable(stage)
	rt.TraceRays(p.pipeline, &table, width, height, 1)
	return nil
}

// Pipeline returns the underlying driver.Pipeline, e.g. to bind it
// via CmdBuffer.SetPipeline before Dispatch.
func (p *RTPipeline) Pipeline() driver.Pipeline { return p.pipeline }

// Destroy releases the pipeline. The shader binding table's backing
// buffer is owned by the driver implementation and released with it.
func (p *RTPipeline) Destroy() {
	if p == nil {
		return
	}
	if p.pipeline != nil {
		p.pipeline.Destroy()
	}
	*p = RTPipeline{}
}
