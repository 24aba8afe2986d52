// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mireva/rtcore/driver"
)

// Instance record flags (spec.md §3.3's `flags` field).
const (
	InstanceFlagMovable uint32 = 1 << iota
	InstanceFlagDynamic
)

// GeometryInstance is one record of the geometry-instance table
// consumed by the closest-hit/any-hit shaders (spec.md §3.3).
type GeometryInstance struct {
	Model     mgl32.Mat4
	PrevModel mgl32.Mat4
	Flags     uint32

	BaseVertex  uint32
	BaseIndex   uint32
	VertexCount uint32
	IndexCount  uint32

	MaterialIDs [TexCoordLayer]MaterialHandle
	LayerColors [TexCoordLayer]mgl32.Vec4

	Roughness    float32
	Metallic     float32
	EmissionMult float32
}

// instanceRecordSize is the packed GPU size of one GeometryInstance:
// two 4x4 transforms, five uint32 fields, three material-handle
// slots, three layer colors and three scalar material blend terms
// (spec.md §3.3).
const instanceRecordSize = 64 + 64 + 4*5 + 16*TexCoordLayer + 16*TexCoordLayer + 4*3

// instanceTable is the geometry-instance table plus its stable
// identity map (spec.md §3.3, §3.5): one dense record per live
// geometry, with a previous-frame match array rebuilt every frame.
// Static records occupy [0:staticCount) and persist across frames;
// dynamic records occupy [staticCount:] and are replaced in full by
// every BeginDynamic (spec.md §4.5 step 1).
type instanceTable struct {
	recs        []GeometryInstance
	staticCount int
	ids         *identityMap[GeometryID]

	buf *AutoBuffer
}

func newInstanceTable(nFrame, cap int) (*instanceTable, error) {
	buf, err := NewAutoBuffer(nFrame, int64(cap)*instanceRecordSize, driver.UGeneric)
	if err != nil {
		return nil, err
	}
	return &instanceTable{ids: newIdentityMap[GeometryID](), buf: buf}, nil
}

// markStatic records the current record count as the static
// boundary, called once static submission completes (spec.md §4.5
// "Static submitted").
func (t *instanceTable) markStatic() { t.staticCount = len(t.recs) }

// prepareForFrame discards last frame's dynamic records (the dynamic
// collector re-populates them in full every frame) and preps the
// identity map's previous-frame snapshot.
func (t *instanceTable) prepareForFrame() {
	t.recs = t.recs[:t.staticCount]
	t.ids.PrepareForFrame(len(t.recs))
}

// add appends rec under id, returning its dense index, or an
// IDNotUnique error if id is already live this frame.
func (t *instanceTable) add(id GeometryID, rec GeometryInstance) (int, error) {
	idx := len(t.recs)
	if t.ids.Add(id, idx) {
		return 0, newErr(IDNotUnique, fmt.Sprintf("geometry id %d already registered this frame", uint64(id)))
	}
	t.recs = append(t.recs, rec)
	return idx, nil
}

// record returns a pointer to the instance record at idx, for
// in-place transform/tex-coord updates.
func (t *instanceTable) record(idx int) *GeometryInstance { return &t.recs[idx] }

func (t *instanceTable) reset() {
	t.recs = t.recs[:0]
	t.staticCount = 0
	t.ids.Reset()
}

func (t *instanceTable) matchPrev() []uint32 { return t.ids.MatchPrev() }

// putInstanceRecord packs one GeometryInstance for GPU consumption.
// matSlot resolves a MaterialHandle to the descriptor-heap slot the
// material package's LRU cache assigned it (spec.md §6.1); NilMaterial
// resolves to slot 0xffffffff.
func putInstanceRecord(dst []byte, rec GeometryInstance, matSlot func(MaterialHandle) uint32) {
	putMat4(dst[0:], rec.Model)
	putMat4(dst[64:], rec.PrevModel)
	off := 128
	binary.LittleEndian.PutUint32(dst[off:], rec.Flags)
	binary.LittleEndian.PutUint32(dst[off+4:], rec.BaseVertex)
	binary.LittleEndian.PutUint32(dst[off+8:], rec.BaseIndex)
	binary.LittleEndian.PutUint32(dst[off+12:], rec.VertexCount)
	binary.LittleEndian.PutUint32(dst[off+16:], rec.IndexCount)
	off += 20
	for i, h := range rec.MaterialIDs {
		var slot uint32 = 0xffffffff
		if h != NilMaterial && matSlot != nil {
			slot = matSlot(h)
		}
		binary.LittleEndian.PutUint32(dst[off+i*16:], slot)
	}
	off += 16 * TexCoordLayer
	for i, c := range rec.LayerColors {
		putVec4At(dst[off+i*16:], c)
	}
	off += 16 * TexCoordLayer
	putFloat32(dst[off:], rec.Roughness)
	putFloat32(dst[off+4:], rec.Metallic)
	putFloat32(dst[off+8:], rec.EmissionMult)
}

func putMat4(dst []byte, m mgl32.Mat4) {
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			binary.LittleEndian.PutUint32(dst[(row*4+col)*4:], math.Float32bits(m.At(row, col)))
		}
	}
}

func putVec4At(dst []byte, v mgl32.Vec4) {
	putFloat32(dst[0:], v[0])
	putFloat32(dst[4:], v[1])
	putFloat32(dst[8:], v[2])
	putFloat32(dst[12:], v[3])
}

// copyToDevice stages every live record and copies the occupied span
// to the device buffer for frame (spec.md §4.5's per-frame submit
// sequence, after BeginDynamic/AddDynamicGeometry have run).
func (t *instanceTable) copyToDevice(cmd driver.CmdBuffer, frame int, matSlot func(MaterialHandle) uint32) {
	if len(t.recs) == 0 {
		return
	}
	dst := t.buf.Map(frame)
	for i, rec := range t.recs {
		putInstanceRecord(dst[i*instanceRecordSize:], rec, matSlot)
	}
	t.buf.CopyFromStaging(cmd, frame, []BufferRegion{{Offset: 0, Size: int64(len(t.recs)) * instanceRecordSize}})
}

func (t *instanceTable) device() driver.Buffer { return t.buf.Device() }

func (t *instanceTable) destroy() { t.buf.Destroy() }
