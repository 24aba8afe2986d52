// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/internal/ctxt"
	"github.com/mireva/rtcore/internal/bitm"
)

// Hit-group indices into the shader binding table (spec.md §2.11,
// §4.5.1).
const (
	HitGroupOpaque uint32 = iota
	HitGroupAlphaTested
)

// TLAS instance mask bits and the matching custom-index flags OR'd
// into instance_custom_index (spec.md §4.5.1).
const (
	MaskWorld0 uint8 = 1 << iota
	MaskWorld1
	MaskWorld2
	MaskFirstPerson
	MaskFirstPersonViewer
	MaskReflectRefract
	MaskSkybox
)

const (
	CustomIndexDynamic uint32 = 1 << iota
	CustomIndexFirstPerson
	CustomIndexFirstPersonViewer
	CustomIndexReflect
	CustomIndexSkybox
)

// sceneState is the AS manager's scene-mutation state machine
// (spec.md §4.5).
type sceneState int

const (
	sceneIdle sceneState = iota
	sceneRecordingStatic
	scenePerFrameDynamic
)

const transformSlotSize = 48 // bytes: one row-major 3x4 float32 transform

// ASManager is the central scene-mutation state machine: it owns
// the static and dynamic vertex collectors, the per-filter BLAS
// sets, the movable-geometry transform table, and the per-frame
// TLAS build (spec.md §2.6, §4.5).
type ASManager struct {
	state sceneState

	builder *ASBuilder
	insts   *instanceTable

	staticVtx  *VertexCollector
	dynamicVtx *VertexCollector

	staticBLAS  map[Filter]*BLAS
	dynamicBLAS map[Filter]*BLAS

	tlas    []TLAS
	instBuf *AutoBuffer

	movableXform *AutoBuffer
	movableSpan  bitm.Bitm[uint32]
	movableOff   map[GeometryID]span
	movableMoved map[GeometryID]bool

	nFrame   int
	cullMask CullMask

	// disableSkybox mirrors config.DisableGeometrySkybox
	// (disable_geometry_skybox, spec.md §6.2): when set, PV_SKYBOX
	// BLASes are dropped from the TLAS instance list entirely instead
	// of being tracked as their own instances.
	disableSkybox bool
}

// NewASManager creates an AS manager sized for the given capacities.
// nFrame is MaxFramesInFlight; vertexCap/indexCap bound each
// collector; maxMovable bounds the number of live STATIC_MOVABLE
// geometries; maxInstances bounds the geometry-instance table.
// disableSkybox mirrors config.DisableGeometrySkybox.
func NewASManager(nFrame, vertexCap, indexCap, maxMovable, maxInstances int, disableSkybox bool) (*ASManager, error) {
	insts, err := newInstanceTable(nFrame, maxInstances)
	if err != nil {
		return nil, err
	}
	staticVtx, err := NewVertexCollector(true, nFrame, vertexCap, indexCap, insts)
	if err != nil {
		insts.destroy()
		return nil, err
	}
	dynamicVtx, err := NewVertexCollector(false, nFrame, vertexCap, indexCap, insts)
	if err != nil {
		insts.destroy()
		staticVtx.Destroy()
		return nil, err
	}
	builder, err := NewASBuilder(scratchBudget(vertexCap))
	if err != nil {
		insts.destroy()
		staticVtx.Destroy()
		dynamicVtx.Destroy()
		return nil, err
	}
	instBuf, err := NewAutoBuffer(nFrame, int64(NFilter)*2*int64(driverASInstanceSize), driver.UASBuildInput)
	if err != nil {
		insts.destroy()
		builder.Destroy()
		staticVtx.Destroy()
		dynamicVtx.Destroy()
		return nil, err
	}
	movableXform, err := NewAutoBuffer(1, int64(maxMovable)*transformSlotSize, driver.UASBuildInput)
	if err != nil {
		insts.destroy()
		instBuf.Destroy()
		builder.Destroy()
		staticVtx.Destroy()
		dynamicVtx.Destroy()
		return nil, err
	}
	m := &ASManager{
		builder:      builder,
		insts:        insts,
		staticVtx:    staticVtx,
		dynamicVtx:   dynamicVtx,
		staticBLAS:   make(map[Filter]*BLAS),
		dynamicBLAS:  make(map[Filter]*BLAS),
		tlas:         make([]TLAS, nFrame),
		instBuf:      instBuf,
		movableXform: movableXform,
		movableOff:   make(map[GeometryID]span),
		movableMoved: make(map[GeometryID]bool),
		nFrame:        nFrame,
		cullMask:      CullMask(MaskWorld0 | MaskWorld1 | MaskWorld2),
		disableSkybox: disableSkybox,
	}
	m.movableSpan.Grow((maxMovable + 31) / 32)
	return m, nil
}

// driverASInstanceSize is the on-GPU size of one driver.ASInstance
// record: a 3x4 transform (48 bytes) followed by custom-index, mask
// (padded to 4 bytes), sbt-offset, flags and a 64-bit AS reference.
const driverASInstanceSize = 48 + 4 + 4 + 4 + 4 + 8

func scratchBudget(vertexCap int) int64 {
	// A conservative per-filter scratch budget: the AS builder only
	// ever holds one frame's worth of queued builds at a time.
	return int64(vertexCap) * 64
}

// StartNewScene enters the recording-static state (spec.md §4.5):
// the geometry-instance table is reset and only STATIC* uploads are
// accepted until SubmitStaticGeometries.
func (m *ASManager) StartNewScene() error {
	m.insts.reset()
	m.movableOff = make(map[GeometryID]span)
	m.movableSpan.Clear()
	m.movableMoved = make(map[GeometryID]bool)
	if err := m.staticVtx.BeginCollecting(0); err != nil {
		return err
	}
	m.state = sceneRecordingStatic
	return nil
}

// AddStaticGeometry accepts one STATIC* geometry while recording.
func (m *ASManager) AddStaticGeometry(g *GeometryUpload) (int, error) {
	if m.state != sceneRecordingStatic {
		return 0, newErr(WrongArgument, "AddStaticGeometry called outside a start_new_scene/submit_static_geometries recording interval")
	}
	if g.Filter.CF() == CFDynamic {
		return 0, newErr(WrongArgument, "AddStaticGeometry called with a DYNAMIC filter")
	}
	idx, err := m.staticVtx.AddGeometry(g)
	if err != nil {
		return 0, err
	}
	if g.Filter.CF() == CFStaticMovable {
		s, ok := m.movableOff[g.ID]
		if !ok {
			var err error
			if s, err = m.allocMovable(); err != nil {
				return 0, err
			}
			m.movableOff[g.ID] = s
		}
		m.writeMovableTransform(s, g.Transform)
		if err := m.staticVtx.SetTransformBuf(g.ID, m.movableXform.Device(), s.byteOff()); err != nil {
			return 0, err
		}
	}
	return idx, nil
}

func (m *ASManager) allocMovable() (span, error) {
	i, ok := m.movableSpan.Search()
	if !ok {
		return span{}, newErr(WrongArgument, "movable-geometry transform table is full")
	}
	m.movableSpan.Set(i)
	return span{start: i, end: i + 1}, nil
}

func (s span) byteOffN(n int64) int64 { return int64(s.start) * n }

func (m *ASManager) writeMovableTransform(s span, t mgl32.Mat4) {
	buf := m.movableXform.Map(0)
	base := s.byteOffN(transformSlotSize)
	// Row-major 3x4: drop the last row of the 4x4 (always 0,0,0,1).
	put := func(off int64, v float32) {
		binary.LittleEndian.PutUint32(buf[base+off:], math.Float32bits(v))
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			put(int64(row*4+col)*4, t.At(row, col))
		}
	}
}

// UpdateGeometryTransform rewrites a live STATIC_MOVABLE geometry's
// transform (spec.md §4.2, §4.5.2).
func (m *ASManager) UpdateGeometryTransform(id GeometryID, t mgl32.Mat4) error {
	s, ok := m.movableOff[id]
	if !ok {
		return newErr(WrongMovableUpdate, "geometry is not a live static-movable geometry")
	}
	if err := m.staticVtx.UpdateTransform(id, t); err != nil {
		return err
	}
	m.writeMovableTransform(s, t)
	m.movableMoved[id] = true
	return nil
}

// UpdateGeometryTexCoords overwrites texture-coordinate entries of a
// live STATIC* geometry.
func (m *ASManager) UpdateGeometryTexCoords(id GeometryID, offset, count int, layers [TexCoordLayer][]mgl32.Vec2) error {
	return m.staticVtx.UpdateTexCoords(id, offset, count, layers)
}

// SubmitStaticGeometries ends the recording interval, builds every
// non-empty static BLAS, and blocks until the GPU has completed the
// build (spec.md §4.5 "Static submitted").
func (m *ASManager) SubmitStaticGeometries(cmd driver.CmdBuffer) error {
	if m.state != sceneRecordingStatic {
		return newErr(WrongArgument, "SubmitStaticGeometries called outside a recording interval")
	}
	m.staticVtx.EndCollecting()
	ac, err := accelCmd(cmd)
	if err != nil {
		return err
	}
	m.staticVtx.CopyToDevice(cmd)
	m.staticVtx.CopyDirty(cmd)
	m.movableXform.CopyFromStaging(cmd, 0, []BufferRegion{{Offset: 0, Size: m.movableXform.Size()}})

	ab, err := accelBuilder()
	if err != nil {
		return err
	}
	for _, f := range Filters {
		if f.CF() == CFDynamic {
			continue
		}
		geoms := m.staticVtx.AsGeometries(f)
		if len(geoms) == 0 {
			continue
		}
		fastTrace := f.CF() == CFStaticNonMovable
		sizes, err := ab.BottomASSizes(geoms, m.staticVtx.PrimitiveCounts(f), fastTrace)
		if err != nil {
			return err
		}
		b, ok := m.staticBLAS[f]
		if !ok {
			b = &BLAS{Filter: f}
			m.staticBLAS[f] = b
		}
		if err := b.RecreateIfNotValid(ab, sizes, len(geoms)); err != nil {
			return err
		}
		m.builder.AddBLAS(b.as, geoms, m.staticVtx.AsBuildRanges(f), sizes, fastTrace, false, f.CF() == CFStaticMovable)
	}
	cmd.BeginBlit(false)
	m.builder.BuildBottomLevel(ac)
	ac.ASBarrier()
	cmd.EndBlit()

	ch := make(chan error, 1)
	ctxt.GPU().Commit([]driver.CmdBuffer{cmd}, ch)
	if err := <-ch; err != nil {
		return newErr(GenericError, err.Error())
	}
	m.insts.markStatic()
	m.state = scenePerFrameDynamic
	return nil
}

// BeginDynamic starts the dynamic-collection phase of a frame
// (spec.md §4.5 step 1).
func (m *ASManager) BeginDynamic(frame int) error {
	if m.state == sceneRecordingStatic {
		return newErr(WrongArgument, "BeginDynamic called while recording a static scene")
	}
	m.state = scenePerFrameDynamic
	m.insts.prepareForFrame()
	return m.dynamicVtx.BeginCollecting(frame)
}

// AddDynamicGeometry accepts one DYNAMIC geometry for the current
// frame (spec.md §4.5 step 2).
func (m *ASManager) AddDynamicGeometry(g *GeometryUpload) (int, error) {
	if m.state != scenePerFrameDynamic {
		return 0, newErr(WrongArgument, "AddDynamicGeometry called while recording a static scene")
	}
	if g.Filter.CF() != CFDynamic {
		return 0, newErr(WrongArgument, "AddDynamicGeometry called with a non-DYNAMIC filter")
	}
	return m.dynamicVtx.AddGeometry(g)
}

// SubmitDynamic ends dynamic collection, rebuilds every dynamic
// BLAS, and emits the AS build-memory barrier (spec.md §4.5 step 3).
func (m *ASManager) SubmitDynamic(cmd driver.CmdBuffer) error {
	m.dynamicVtx.EndCollecting()
	ac, err := accelCmd(cmd)
	if err != nil {
		return err
	}
	m.dynamicVtx.CopyToDevice(cmd)

	ab, err := accelBuilder()
	if err != nil {
		return err
	}
	for f, bucket := range m.dynamicVtx.buckets {
		if len(bucket.geoms) == 0 {
			continue
		}
		sizes, err := ab.BottomASSizes(bucket.geoms, bucket.prims, false)
		if err != nil {
			return err
		}
		b, ok := m.dynamicBLAS[f]
		if !ok {
			b = &BLAS{Filter: f}
			m.dynamicBLAS[f] = b
		}
		if err := b.RecreateIfNotValid(ab, sizes, len(bucket.geoms)); err != nil {
			return err
		}
		m.builder.AddBLAS(b.as, bucket.geoms, bucket.ranges, sizes, false, false, false)
	}
	cmd.BeginBlit(false)
	m.builder.BuildBottomLevel(ac)
	ac.ASBarrier()
	cmd.EndBlit()
	return nil
}

// ResubmitStaticTexCoords flushes any texture-coordinate updates
// that landed this frame (spec.md §4.5 step 4).
func (m *ASManager) ResubmitStaticTexCoords(cmd driver.CmdBuffer) {
	m.staticVtx.CopyDirty(cmd)
}

// ResubmitStaticMovable, if any movable transform changed this frame,
// updates every non-empty movable BLAS in place, reusing its storage
// (spec.md §4.5 step 5).
func (m *ASManager) ResubmitStaticMovable(cmd driver.CmdBuffer) error {
	if len(m.movableMoved) == 0 {
		return nil
	}
	ac, err := accelCmd(cmd)
	if err != nil {
		return err
	}
	m.movableXform.CopyFromStaging(cmd, 0, []BufferRegion{{Offset: 0, Size: m.movableXform.Size()}})
	ab, err := accelBuilder()
	if err != nil {
		return err
	}
	for f, b := range m.staticBLAS {
		if f.CF() != CFStaticMovable || b.IsEmpty() {
			continue
		}
		geoms := m.staticVtx.AsGeometries(f)
		sizes, err := ab.BottomASSizes(geoms, m.staticVtx.PrimitiveCounts(f), false)
		if err != nil {
			return err
		}
		m.builder.AddBLAS(b.as, geoms, m.staticVtx.AsBuildRanges(f), sizes, false, true, true)
	}
	cmd.BeginBlit(false)
	m.builder.BuildBottomLevel(ac)
	ac.ASBarrier()
	cmd.EndBlit()
	m.movableMoved = make(map[GeometryID]bool)
	return nil
}

// setupTLASInstanceFromBLAS derives a TLAS instance from a non-empty
// BLAS, or reports that it should be skipped (spec.md §4.5.1).
// Skybox geometry normally participates in the TLAS as its own
// tracked instance, masked so only the primary-visibility raygen
// stages hit it; disableSkybox (config.DisableGeometrySkybox) drops
// it entirely instead, matching "acceleration structures related to
// skybox won't be built" (spec.md §6.2).
func setupTLASInstanceFromBLAS(l *BLAS, isDynamic bool, cullMask CullMask, disableSkybox bool) (driver.ASInstance, bool) {
	if l.IsEmpty() {
		return driver.ASInstance{}, false
	}
	if l.Filter.PV() == PVSkybox && disableSkybox {
		return driver.ASInstance{}, false
	}
	var inst driver.ASInstance
	inst.Transform = [12]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0}
	inst.ASReference = l.DeviceAddress()

	var customIndex uint32
	if isDynamic {
		customIndex |= CustomIndexDynamic
	}
	var mask uint8
	switch pv := l.Filter.PV(); pv {
	case PVSkybox:
		mask = MaskSkybox
		customIndex |= CustomIndexSkybox
	case PVFirstPerson:
		mask = MaskFirstPerson
		customIndex |= CustomIndexFirstPerson
	case PVFirstPersonViewer:
		mask = MaskFirstPersonViewer
		customIndex |= CustomIndexFirstPersonViewer
	default:
		matched := false
		for k, w := range worldPV {
			if pv != w {
				continue
			}
			matched = true
			if cullMask&CullMask(1<<uint(k)) == 0 {
				return driver.ASInstance{}, false
			}
			mask = uint8(1 << uint(k))
		}
		if !matched {
			return driver.ASInstance{}, false
		}
	}
	if l.Filter.PT() == PTReflectRefract {
		mask = MaskReflectRefract
		customIndex |= CustomIndexReflect
	}
	inst.Mask = mask
	inst.CustomIndex = customIndex
	if l.Filter.PT() == PTOpaque {
		inst.SBTOffset = HitGroupOpaque
	} else {
		inst.SBTOffset = HitGroupAlphaTested
	}
	inst.Flags = driver.InstanceFlagTriangleFacingCullDisable
	if l.Filter.PT() == PTOpaque {
		inst.Flags |= driver.InstanceFlagForceOpaque
	} else {
		inst.Flags |= driver.InstanceFlagForceNoOpaque
	}
	return inst, true
}

// PrepareForBuildingTLAS walks every static then dynamic BLAS,
// derives zero or one TLAS instance per BLAS, and returns the
// resulting instance list (spec.md §4.5 step 6).
func (m *ASManager) PrepareForBuildingTLAS() []driver.ASInstance {
	insts := make([]driver.ASInstance, 0, len(m.staticBLAS)+len(m.dynamicBLAS))
	for _, f := range Filters {
		if f.CF() == CFDynamic {
			continue
		}
		if b, ok := m.staticBLAS[f]; ok {
			if inst, ok := setupTLASInstanceFromBLAS(b, false, m.cullMask, m.disableSkybox); ok {
				insts = append(insts, inst)
			}
		}
	}
	for _, f := range Filters {
		if f.CF() != CFDynamic {
			continue
		}
		if b, ok := m.dynamicBLAS[f]; ok {
			if inst, ok := setupTLASInstanceFromBLAS(b, true, m.cullMask, m.disableSkybox); ok {
				insts = append(insts, inst)
			}
		}
	}
	return insts
}

func writeASInstance(buf []byte, off int64, inst driver.ASInstance) {
	for i, v := range inst.Transform {
		binary.LittleEndian.PutUint32(buf[off+int64(i)*4:], math.Float32bits(v))
	}
	o := off + 48
	binary.LittleEndian.PutUint32(buf[o:], inst.CustomIndex)
	buf[o+4] = inst.Mask
	binary.LittleEndian.PutUint32(buf[o+8:], inst.SBTOffset)
	binary.LittleEndian.PutUint32(buf[o+12:], inst.Flags)
	binary.LittleEndian.PutUint64(buf[o+16:], inst.ASReference)
}

// TryBuildTLAS fills the TLAS instance buffer, builds the top-level
// AS for frame, and updates frame's TLAS. It returns false without
// touching the TLAS if there are no instances this frame (spec.md
// §4.5 step 7).
func (m *ASManager) TryBuildTLAS(cmd driver.CmdBuffer, frame int, insts []driver.ASInstance) (bool, error) {
	t := &m.tlas[frame%len(m.tlas)]
	if len(insts) == 0 {
		t.Invalidate()
		return false, nil
	}
	buf := m.instBuf.Map(frame)
	for i, inst := range insts {
		writeASInstance(buf, int64(i)*driverASInstanceSize, inst)
	}
	ac, err := accelCmd(cmd)
	if err != nil {
		return false, err
	}
	m.instBuf.CopyFromStaging(cmd, frame, []BufferRegion{{Offset: 0, Size: int64(len(insts)) * driverASInstanceSize}})

	ab, err := accelBuilder()
	if err != nil {
		return false, err
	}
	sizes, err := ab.TopASSizes(len(insts), false)
	if err != nil {
		return false, err
	}
	if err := t.RecreateIfNotValid(ab, sizes); err != nil {
		return false, err
	}
	m.builder.AddTLAS(t.as, m.instBuf.Device(), 0, len(insts), sizes, false, false)
	cmd.BeginBlit(false)
	m.builder.BuildTopLevel(ac)
	ac.ASBarrier()
	cmd.EndBlit()
	return true, nil
}

// TLASFor returns frame's top-level acceleration structure slot. It
// is never nil; its Valid method reports false if TryBuildTLAS has
// not produced a TLAS for that slot.
func (m *ASManager) TLASFor(frame int) *TLAS { return &m.tlas[frame%len(m.tlas)] }

// SetCullMask sets the frame's ray-cull mask over PVWorld0..2
// (spec.md §4.5.1).
func (m *ASManager) SetCullMask(mask CullMask) { m.cullMask = mask }

// MatchPrev returns the geometry-instance previous-frame match
// table for the current frame (spec.md §3.3, §3.5).
func (m *ASManager) MatchPrev() []uint32 { return m.insts.matchPrev() }

// UploadInstanceTable stages and copies the geometry-instance table
// to device for frame (spec.md §3.3, §4.5's per-frame submit
// sequence). matSlot resolves each layer's MaterialHandle to its
// descriptor-heap slot; it is supplied by the material package.
func (m *ASManager) UploadInstanceTable(cmd driver.CmdBuffer, frame int, matSlot func(MaterialHandle) uint32) {
	m.insts.copyToDevice(cmd, frame, matSlot)
}

// InstanceTableBuffer returns the device buffer holding the packed
// geometry-instance table.
func (m *ASManager) InstanceTableBuffer() driver.Buffer { return m.insts.device() }

// Destroy releases every owned buffer and acceleration structure.
func (m *ASManager) Destroy() {
	if m == nil {
		return
	}
	for _, b := range m.staticBLAS {
		b.Destroy()
	}
	for _, b := range m.dynamicBLAS {
		b.Destroy()
	}
	for i := range m.tlas {
		m.tlas[i].Destroy()
	}
	m.staticVtx.Destroy()
	m.dynamicVtx.Destroy()
	m.builder.Destroy()
	m.instBuf.Destroy()
	m.movableXform.Destroy()
	m.insts.destroy()
	*m = ASManager{}
}
