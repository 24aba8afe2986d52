// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/mireva/rtcore/driver"
)

// rasterGeometry holds the per-frame vertex/index data for
// upload_rasterized_geometry: debug/UI draws composited over the
// path-traced image through a conventional rasterization pipeline the
// host owns (shader content and the draw call itself are the host's
// responsibility, the same delegation materials follow). This engine
// only stages the data and exposes the buffers the host's pipeline
// binds.
type rasterGeometry struct {
	vtx    *AutoBuffer // tightly packed position(vec3)+color(vec4)
	idx    *AutoBuffer
	vtxCap int
	idxCap int
	count  int // index (or vertex, if unindexed) count staged this frame
}

const rasterVertexStride = 4 * (3 + 4) // position + color, float32

func newRasterGeometry(nFrame, vertexCap int) (*rasterGeometry, error) {
	r := &rasterGeometry{vtxCap: vertexCap, idxCap: vertexCap * 3}
	var err error
	if r.vtx, err = NewAutoBuffer(nFrame, int64(vertexCap)*rasterVertexStride, driver.UShaderRead); err != nil {
		return nil, err
	}
	if r.idx, err = NewAutoBuffer(nFrame, int64(r.idxCap)*4, driver.UShaderRead); err != nil {
		r.vtx.Destroy()
		return nil, err
	}
	return r, nil
}

// upload packs positions/colors/indices into this frame's staging
// region and schedules the copy to the device buffer.
func (r *rasterGeometry) upload(cmd driver.CmdBuffer, frame int, positions []mgl32.Vec3, colors []mgl32.Vec4, indices []uint32) error {
	if r == nil {
		return newErr(GenericError, "rasterized geometry not initialized")
	}
	if len(positions) != len(colors) {
		return newErr(WrongArgument, "positions/colors length mismatch")
	}
	if len(positions) > r.vtxCap {
		return newErr(WrongArgument, "rasterized vertex count exceeds rasterized_vertex_cap")
	}
	if len(indices) > r.idxCap {
		return newErr(WrongArgument, "rasterized index count exceeds rasterized_index_cap")
	}

	vbuf := r.vtx.Map(frame)
	for i, p := range positions {
		off := i * rasterVertexStride
		putVec3(vbuf[off:], p)
		putVec4(vbuf[off+12:], colors[i])
	}
	ibuf := r.idx.Map(frame)
	for i, v := range indices {
		putUint32(ibuf[i*4:], v)
	}

	vtxBytes := int64(len(positions)) * rasterVertexStride
	idxBytes := int64(len(indices)) * 4
	var regions []BufferRegion
	if vtxBytes > 0 {
		regions = append(regions, BufferRegion{Offset: 0, Size: vtxBytes})
	}
	r.vtx.CopyFromStaging(cmd, frame, regions)

	regions = regions[:0]
	if idxBytes > 0 {
		regions = append(regions, BufferRegion{Offset: 0, Size: idxBytes})
	}
	r.idx.CopyFromStaging(cmd, frame, regions)

	if len(indices) > 0 {
		r.count = len(indices)
	} else {
		r.count = len(positions)
	}
	return nil
}

func putVec4(dst []byte, v mgl32.Vec4) {
	putFloat32(dst[0:], v[0])
	putFloat32(dst[4:], v[1])
	putFloat32(dst[8:], v[2])
	putFloat32(dst[12:], v[3])
}

// VertexBuffer, IndexBuffer and Count expose this frame's staged
// overlay geometry to the host's rasterization pipeline.
func (r *rasterGeometry) VertexBuffer() driver.Buffer { return r.vtx.Device() }
func (r *rasterGeometry) IndexBuffer() driver.Buffer  { return r.idx.Device() }
func (r *rasterGeometry) Count() int                  { return r.count }

func (r *rasterGeometry) destroy() {
	if r == nil {
		return
	}
	r.vtx.Destroy()
	r.idx.Destroy()
	*r = rasterGeometry{}
}
