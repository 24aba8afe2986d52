// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/mireva/rtcore/driver"
)

// MaxFramesInFlight is N in spec.md §4.7's "ring of N command
// buffers", fixed at 2.
const MaxFramesInFlight = 2

// MaxSectorCount and MaxLightListSize (plain_light_list's capacity
// is MaxSectorCount*MaxLightListSize) are defined in lightlists.go,
// next to the accumulator they bound.

// Scene composes the acceleration-structure manager, the light
// manager and the light grid into the per-frame submit sequence
// spec.md §2.10 calls the "scene root": upload_geometry and the
// light upload_* operations funnel into these three subsystems, and
// SubmitFrame drains them in the order §4.5/§4.6 require.
type Scene struct {
	accel  *ASManager
	lights *LightManager
	grid   *LightGrid

	matSlot func(MaterialHandle) uint32
}

// SceneParams bounds the capacities the scene's subsystems are
// created with.
type SceneParams struct {
	NFrame                int
	VertexCap             int
	IndexCap              int
	MaxMovable            int
	MaxInstances          int
	GridCellSize          float32
	DisableGeometrySkybox bool
	ResolveSlot           func(MaterialHandle) uint32
}

// NewScene allocates the AS manager, light manager and light grid.
func NewScene(p *SceneParams) (s *Scene, err error) {
	s = &Scene{matSlot: p.ResolveSlot}
	defer func() {
		if err != nil {
			s.Destroy()
			s = nil
		}
	}()
	s.accel, err = NewASManager(p.NFrame, p.VertexCap, p.IndexCap, p.MaxMovable, p.MaxInstances, p.DisableGeometrySkybox)
	if err != nil {
		return
	}
	s.lights, err = NewLightManager(p.NFrame)
	if err != nil {
		return
	}
	s.grid, err = NewLightGrid(p.NFrame, p.GridCellSize)
	if err != nil {
		return
	}
	return
}

// Accel exposes the acceleration-structure manager for
// start_new_scene/upload_geometry/update_geometry_*/
// submit_static_geometries (spec.md §6.1).
func (s *Scene) Accel() *ASManager { return s.accel }

// Lights exposes the light manager for the upload_*_light operations.
func (s *Scene) Lights() *LightManager { return s.lights }

// Grid exposes the light grid for pipeline installation and
// per-frame dispatch.
func (s *Scene) Grid() *LightGrid { return s.grid }

// BeginFrame resets the scene's per-frame collections ahead of the
// host recording new dynamic uploads (spec.md §4.5 step 1, §4.6
// prepare_for_frame).
func (s *Scene) BeginFrame(cmd driver.CmdBuffer, frame int) error {
	s.lights.PrepareForFrame(cmd, frame)
	return s.accel.BeginDynamic(frame)
}

// SubmitFrameResult reports what SubmitFrame actually built, so the
// scheduler can decide whether to dispatch the light grid and
// raygen stages (spec.md §4.5.2's "try_build_tlas returns false").
type SubmitFrameResult struct {
	TLASBuilt     bool
	InstanceCount int
}

// SubmitFrame drains the dynamic geometry collector, builds BLAS/TLAS
// for this frame, uploads the geometry-instance table and copies the
// light manager's staging state to the device — steps 4.5.4-4.5.7 and
// §4.6's copy_from_staging, in the order the frame scheduler invokes
// before dispatching the light grid (spec.md §4.7 step 3-4).
func (s *Scene) SubmitFrame(cmd driver.CmdBuffer, frame int) (SubmitFrameResult, error) {
	if err := s.accel.SubmitDynamic(cmd); err != nil {
		return SubmitFrameResult{}, err
	}
	insts := s.accel.PrepareForBuildingTLAS()
	built, err := s.accel.TryBuildTLAS(cmd, frame, insts)
	if err != nil {
		return SubmitFrameResult{}, err
	}
	s.accel.UploadInstanceTable(cmd, frame, s.matSlot)
	s.lights.CopyFromStaging(cmd, frame)
	return SubmitFrameResult{TLASBuilt: built, InstanceCount: len(insts)}, nil
}

// DispatchLightGrid records the light-grid compute pass and swaps its
// ping-pong buffers for next frame's temporal reuse (spec.md §4.6.2,
// §4.7 step 4's "Compute light grid").
func (s *Scene) DispatchLightGrid(cmd driver.CmdBuffer) error {
	if err := s.grid.Dispatch(cmd); err != nil {
		return err
	}
	s.grid.Swap()
	s.grid.SwapReSTIR()
	return nil
}

// SetCullMask forwards the caller-supplied TLAS instance mask visible
// to the current camera (spec.md §4.5.1) to ASManager.SetCullMask;
// it is a pass-through point so callers do not reach past Scene into
// Accel() for this one value.
func (s *Scene) SetCullMask(mask CullMask) { s.accel.SetCullMask(mask) }

// GridOriginFor is a thin wrapper around GridOrigin using the scene's
// configured cell size, convenient for callers that only have a
// *Scene handle.
func (s *Scene) GridOriginFor(camera mgl32.Vec3) mgl32.Vec3 {
	return GridOrigin(camera, s.grid.CellWorldSize())
}

// Destroy releases every owned subsystem.
func (s *Scene) Destroy() {
	if s == nil {
		return
	}
	s.accel.Destroy()
	s.lights.Destroy()
	s.grid.Destroy()
	*s = Scene{}
}
