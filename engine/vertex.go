// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/internal/bitm"
	"github.com/mireva/rtcore/internal/pack"
)

// spanBlock is the granularity, in bytes, of the vertex/index span
// allocator, in the manner of the teacher's mesh/storage.go spanBlock.
const spanBlock = 256

// span identifies a byte range of a shared buffer, in units of
// spanBlock.
type span struct{ start, end int }

func (s span) byteOff() int64 { return int64(s.start) * spanBlock }
func (s span) byteLen() int64 { return int64(s.end-s.start) * spanBlock }
func (s span) empty() bool    { return s.start >= s.end }

// geomSlot is the per-geometry bookkeeping a VertexCollector needs
// to answer UpdateTransform/UpdateTexCoords and to locate the
// geometry-instance record it emitted.
type geomSlot struct {
	filter    Filter
	posSpan   span
	nrmSpan   span
	texSpan   [TexCoordLayer]span
	colSpan   span
	idxSpan   span
	instIdx   int
	bucketIdx int
}

// filterBucket accumulates one filter's AS-builder inputs
// (spec.md §4.2 responsibility 2).
type filterBucket struct {
	geoms  []driver.GeomDesc
	ranges []driver.BuildRange
	prims  []int
}

// VertexCollector packs triangle data from geometry uploads into a
// shared vertex buffer — one contiguous byte span per attribute
// semantic, after the fashion of the teacher's Mesh/Semantic layout,
// rather than a single interleaved struct — and a shared index
// buffer, classified by Filter. It produces the build descriptors
// the AS builder consumes and emits a record into the shared
// geometry-instance table for every accepted geometry (spec.md
// §2.3, §4.2).
//
// One instance serves every STATIC_NON_MOVABLE/STATIC_MOVABLE filter
// (a single, frame-independent buffer pair); a second instance,
// re-collected every frame, serves every DYNAMIC filter.
type VertexCollector struct {
	static bool
	insts  *instanceTable

	vtx *AutoBuffer
	idx *AutoBuffer

	vtxSpan bitm.Bitm[uint32]
	idxSpan bitm.Bitm[uint32]

	buckets map[Filter]*filterBucket
	slots   map[GeometryID]*geomSlot

	dirty     []BufferRegion
	recording bool
	curFrame  int
}

// vertexBlocks/indexBlocks convert a capacity, in elements, to a
// span count at the collector's fixed per-attribute stride.
func vertexBlocks(cap int) int { return blocks(int64(cap) * 4 * (3 + 3 + 2*TexCoordLayer + 1)) }
func indexBlocks(cap int) int  { return blocks(int64(cap) * 4) }
func blocks(nbyte int64) int   { return int((nbyte + spanBlock - 1) / spanBlock) }

// NewVertexCollector creates a collector backed by an AutoBuffer
// sized for vertexCap vertices and indexCap indices. insts is the
// geometry-instance table this collector emits records into, shared
// with the AS manager that owns both collectors.
func NewVertexCollector(static bool, nFrame int, vertexCap, indexCap int, insts *instanceTable) (*VertexCollector, error) {
	n := nFrame
	if static {
		n = 1
	}
	vtxSize := int64(vertexCap) * 4 * (3 + 3 + 2*TexCoordLayer + 1)
	idxSize := int64(indexCap) * 4
	vtx, err := NewAutoBuffer(n, vtxSize, driver.UVertexData|driver.UASBuildInput)
	if err != nil {
		return nil, err
	}
	idx, err := NewAutoBuffer(n, idxSize, driver.UIndexData|driver.UASBuildInput)
	if err != nil {
		vtx.Destroy()
		return nil, err
	}
	c := &VertexCollector{
		static:  static,
		insts:   insts,
		vtx:     vtx,
		idx:     idx,
		buckets: make(map[Filter]*filterBucket),
		slots:   make(map[GeometryID]*geomSlot),
	}
	nb := (vertexBlocks(vertexCap) + 31) / 32
	c.vtxSpan.Grow(nb)
	nb = (indexBlocks(indexCap) + 31) / 32
	c.idxSpan.Grow(nb)
	return c, nil
}

func (c *VertexCollector) bucket(f Filter) *filterBucket {
	b, ok := c.buckets[f]
	if !ok {
		b = &filterBucket{}
		c.buckets[f] = b
	}
	return b
}

// BeginCollecting starts a new collection pass. For the dynamic
// collector every prior geometry and span is discarded, since
// dynamic collections are valid for exactly one frame (spec.md
// §3.2); the static collector only clears its per-filter build
// lists, since static vertex/index data outlives scene resets.
func (c *VertexCollector) BeginCollecting(frame int) error {
	if c.recording {
		return newErr(GenericError, "vertex collector: BeginCollecting called while already recording")
	}
	c.recording = true
	c.curFrame = frame
	if !c.static {
		c.vtxSpan.Clear()
		c.idxSpan.Clear()
		c.slots = make(map[GeometryID]*geomSlot)
	}
	for _, b := range c.buckets {
		b.geoms = b.geoms[:0]
		b.ranges = b.ranges[:0]
		b.prims = b.prims[:0]
	}
	return nil
}

// EndCollecting ends the current collection pass.
func (c *VertexCollector) EndCollecting() { c.recording = false }

// AddGeometry accepts one geometry upload, packs its attributes into
// the next free spans of the shared buffers, appends its AS-build
// descriptors to its filter's bucket, and emits a geometry-instance
// record. It returns the instance table's dense index for the
// geometry (its "local index").
func (c *VertexCollector) AddGeometry(g *GeometryUpload) (int, error) {
	if !c.recording {
		return 0, newErr(GenericError, "vertex collector: AddGeometry called outside a collecting pass")
	}
	wantStatic := g.Filter.CF() != CFDynamic
	if wantStatic != c.static {
		return 0, newErr(WrongArgument, "geometry filter's lifetime class does not match this collector")
	}
	if _, ok := c.slots[g.ID]; ok {
		return 0, newErr(IDNotUnique, fmt.Sprintf("geometry id %d already live", uint64(g.ID)))
	}
	if err := g.validate(); err != nil {
		return 0, err
	}

	slot := &geomSlot{filter: g.Filter}
	var err error
	if slot.posSpan, err = c.allocVtx(g.VertexCount * 12); err != nil {
		return 0, err
	}
	c.writeVec3(c.vtx.Map(c.curFrame), slot.posSpan, g.Positions)

	if len(g.Normals) > 0 {
		if slot.nrmSpan, err = c.allocVtx(g.VertexCount * 12); err != nil {
			return 0, err
		}
		c.writeVec3(c.vtx.Map(c.curFrame), slot.nrmSpan, g.Normals)
	}
	for i := range g.TexCoords {
		if len(g.TexCoords[i]) == 0 {
			continue
		}
		if slot.texSpan[i], err = c.allocVtx(g.VertexCount * 8); err != nil {
			return 0, err
		}
		c.writeVec2(c.vtx.Map(c.curFrame), slot.texSpan[i], g.TexCoords[i])
	}
	if len(g.Colors) > 0 {
		if slot.colSpan, err = c.allocVtx(g.VertexCount * 4); err != nil {
			return 0, err
		}
		c.writeColors(c.vtx.Map(c.curFrame), slot.colSpan, g.Colors)
	}
	if len(g.Indices) > 0 {
		if slot.idxSpan, err = c.allocIdx(len(g.Indices) * 4); err != nil {
			return 0, err
		}
		c.writeIndices(c.idx.Map(c.curFrame), slot.idxSpan, g.Indices)
	}

	geom := driver.GeomDesc{
		Type: driver.GeomTriangles,
		Triangles: driver.GeomTriangleData{
			VertexFormat: driver.Float32x3,
			VertexBuf:    c.vtx.Device(),
			VertexOff:    slot.posSpan.byteOff(),
			VertexStride: 12,
			MaxVertex:    g.VertexCount - 1,
		},
		Opaque: g.Filter.PT() == PTOpaque,
	}
	rng := driver.BuildRange{PrimitiveCount: g.PrimitiveCount()}
	if len(g.Indices) > 0 {
		geom.Triangles.IndexFormat = driver.Index32
		geom.Triangles.IndexBuf = c.idx.Device()
		geom.Triangles.IndexOff = slot.idxSpan.byteOff()
	}

	b := c.bucket(g.Filter)
	slot.bucketIdx = len(b.geoms)
	b.geoms = append(b.geoms, geom)
	b.ranges = append(b.ranges, rng)
	b.prims = append(b.prims, g.PrimitiveCount())

	rec := GeometryInstance{
		Model:        g.Transform,
		PrevModel:    g.Transform,
		BaseVertex:   uint32(slot.posSpan.byteOff() / 12),
		VertexCount:  uint32(g.VertexCount),
		MaterialIDs:  g.LayerMaterials,
		LayerColors:  g.LayerColors,
		Roughness:    g.DefaultRoughness,
		Metallic:     g.DefaultMetallic,
		EmissionMult: g.DefaultEmission,
	}
	if len(g.Indices) > 0 {
		rec.BaseIndex = uint32(slot.idxSpan.byteOff() / 4)
		rec.IndexCount = uint32(len(g.Indices))
	}
	switch g.Filter.CF() {
	case CFStaticMovable:
		rec.Flags |= InstanceFlagMovable
	case CFDynamic:
		rec.Flags |= InstanceFlagDynamic
	}
	idx, err := c.insts.add(g.ID, rec)
	if err != nil {
		return 0, err
	}
	slot.instIdx = idx
	c.slots[g.ID] = slot
	return idx, nil
}

// UpdateTransform rewrites the model matrix of a live
// STATIC_MOVABLE geometry's instance record, without touching its
// vertex data (spec.md §4.2, §4.5.2).
func (c *VertexCollector) UpdateTransform(id GeometryID, m mgl32.Mat4) error {
	slot, ok := c.slots[id]
	if !ok || slot.filter.CF() != CFStaticMovable {
		return newErr(WrongMovableUpdate, fmt.Sprintf("geometry id %d is not a live static-movable geometry", uint64(id)))
	}
	rec := c.insts.record(slot.instIdx)
	rec.PrevModel = rec.Model
	rec.Model = m
	return nil
}

// UpdateTexCoords overwrites count texture-coordinate entries of a
// live STATIC* geometry's layers, starting at offset, and records
// the affected byte ranges as dirty so the caller can resubmit them
// via a staging copy (spec.md §4.2, §4.5 step 4.5.4).
func (c *VertexCollector) UpdateTexCoords(id GeometryID, offset, count int, layers [TexCoordLayer][]mgl32.Vec2) error {
	slot, ok := c.slots[id]
	if !ok || slot.filter.CF() == CFDynamic {
		return newErr(WrongStaticTexCoordUpdate, fmt.Sprintf("geometry id %d is not a live static geometry", uint64(id)))
	}
	buf := c.vtx.Map(c.curFrame)
	for i, vs := range layers {
		if len(vs) == 0 || slot.texSpan[i].empty() {
			continue
		}
		base := slot.texSpan[i].byteOff() + int64(offset)*8
		for j, v := range vs[:min(len(vs), count)] {
			putVec2(buf[base+int64(j)*8:], v)
		}
		c.dirty = append(c.dirty, BufferRegion{Offset: base, Size: int64(min(len(vs), count)) * 8})
	}
	return nil
}

// SetTransformBuf points a live geometry's queued GeomDesc at a
// per-geometry affine-transform buffer, used by STATIC_MOVABLE
// geometries so that motion is baked into the BLAS build rather than
// the always-identity TLAS instance transform (spec.md §4.5 step 5,
// §4.5.1).
func (c *VertexCollector) SetTransformBuf(id GeometryID, buf driver.Buffer, off int64) error {
	slot, ok := c.slots[id]
	if !ok || slot.filter.CF() != CFStaticMovable {
		return newErr(WrongMovableUpdate, fmt.Sprintf("geometry id %d is not a live static-movable geometry", uint64(id)))
	}
	g := &c.buckets[slot.filter].geoms[slot.bucketIdx]
	g.Triangles.TransformBuf = buf
	g.Triangles.TransformOff = off
	return nil
}

// DirtyRegions returns and clears the list of byte ranges written
// by UpdateTexCoords since the last call.
func (c *VertexCollector) DirtyRegions() []BufferRegion {
	d := c.dirty
	c.dirty = nil
	return d
}

// CopyToDevice flushes every occupied span of the vertex and index
// buffers to their device buffers for frame (spec.md §4.5 steps
// submit_static/submit_dynamic).
func (c *VertexCollector) CopyToDevice(cmd driver.CmdBuffer) {
	if n := c.vtxSpan.Len() - c.vtxSpan.Rem(); n > 0 {
		c.vtx.CopyFromStaging(cmd, c.curFrame, []BufferRegion{{Offset: 0, Size: int64(n) * spanBlock}})
	}
	if n := c.idxSpan.Len() - c.idxSpan.Rem(); n > 0 {
		c.idx.CopyFromStaging(cmd, c.curFrame, []BufferRegion{{Offset: 0, Size: int64(n) * spanBlock}})
	}
}

// CopyDirty flushes only the byte ranges accumulated by
// UpdateTexCoords.
func (c *VertexCollector) CopyDirty(cmd driver.CmdBuffer) {
	if len(c.dirty) == 0 {
		return
	}
	c.vtx.CopyFromStaging(cmd, c.curFrame, c.dirty)
	c.dirty = nil
}

// AsGeometries returns filter's pending AS-build geometry
// descriptors.
func (c *VertexCollector) AsGeometries(f Filter) []driver.GeomDesc { return c.buckets[f].safeGeoms() }

// AsBuildRanges returns filter's pending AS-build ranges.
func (c *VertexCollector) AsBuildRanges(f Filter) []driver.BuildRange {
	return c.buckets[f].safeRanges()
}

// PrimitiveCounts returns filter's per-geometry primitive counts.
func (c *VertexCollector) PrimitiveCounts(f Filter) []int { return c.buckets[f].safePrims() }

// AreGeometriesEmpty reports whether every filter in mask has no
// pending geometry.
func (c *VertexCollector) AreGeometriesEmpty(mask []Filter) bool {
	for _, f := range mask {
		if len(c.AsGeometries(f)) > 0 {
			return false
		}
	}
	return true
}

func (b *filterBucket) safeGeoms() []driver.GeomDesc {
	if b == nil {
		return nil
	}
	return b.geoms
}

func (b *filterBucket) safeRanges() []driver.BuildRange {
	if b == nil {
		return nil
	}
	return b.ranges
}

func (b *filterBucket) safePrims() []int {
	if b == nil {
		return nil
	}
	return b.prims
}

func (c *VertexCollector) allocVtx(nbyte int) (span, error) {
	n := blocks(int64(nbyte))
	i, ok := c.vtxSpan.SearchRange(n)
	if !ok {
		return span{}, newErr(GenericError, "vertex buffer capacity exceeded")
	}
	for j := i; j < i+n; j++ {
		c.vtxSpan.Set(j)
	}
	return span{start: i, end: i + n}, nil
}

func (c *VertexCollector) allocIdx(nbyte int) (span, error) {
	n := blocks(int64(nbyte))
	i, ok := c.idxSpan.SearchRange(n)
	if !ok {
		return span{}, newErr(GenericError, "index buffer capacity exceeded")
	}
	for j := i; j < i+n; j++ {
		c.idxSpan.Set(j)
	}
	return span{start: i, end: i + n}, nil
}

func putFloat32(dst []byte, v float32) { binary.LittleEndian.PutUint32(dst, math.Float32bits(v)) }

func putVec2(dst []byte, v mgl32.Vec2) {
	putFloat32(dst[0:4], v[0])
	putFloat32(dst[4:8], v[1])
}

func putVec3(dst []byte, v mgl32.Vec3) {
	putFloat32(dst[0:4], v[0])
	putFloat32(dst[4:8], v[1])
	putFloat32(dst[8:12], v[2])
}

func (c *VertexCollector) writeVec3(buf []byte, s span, vs []mgl32.Vec3) {
	base := s.byteOff()
	for i, v := range vs {
		putVec3(buf[base+int64(i)*12:], v)
	}
}

func (c *VertexCollector) writeVec2(buf []byte, s span, vs []mgl32.Vec2) {
	base := s.byteOff()
	for i, v := range vs {
		putVec2(buf[base+int64(i)*8:], v)
	}
}

func (c *VertexCollector) writeColors(buf []byte, s span, vs []mgl32.Vec4) {
	base := s.byteOff()
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[base+int64(i)*4:], pack.Unorm4x8(v[0], v[1], v[2], v[3]))
	}
}

func (c *VertexCollector) writeIndices(buf []byte, s span, idx []uint32) {
	base := s.byteOff()
	for i, v := range idx {
		binary.LittleEndian.PutUint32(buf[base+int64(i)*4:], v)
	}
}

// Destroy releases the collector's buffers.
func (c *VertexCollector) Destroy() {
	if c == nil {
		return
	}
	c.vtx.Destroy()
	c.idx.Destroy()
	*c = VertexCollector{}
}
