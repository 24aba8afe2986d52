// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/internal/ctxt"
)

// accelBuilder resolves the GPU's optional driver.AccelBuilder,
// since not every backend supports hardware ray tracing.
func accelBuilder() (driver.AccelBuilder, error) {
	ab, ok := ctxt.GPU().(driver.AccelBuilder)
	if !ok {
		return nil, newErr(GenericError, "GPU does not implement driver.AccelBuilder")
	}
	return ab, nil
}

// accelCmd resolves cmd's optional driver.AccelCmdBuffer.
func accelCmd(cmd driver.CmdBuffer) (driver.AccelCmdBuffer, error) {
	ac, ok := cmd.(driver.AccelCmdBuffer)
	if !ok {
		return nil, newErr(GenericError, "command buffer does not implement driver.AccelCmdBuffer")
	}
	return ac, nil
}

type blasQueueEntry struct {
	dst       driver.BottomAS
	geoms     []driver.GeomDesc
	ranges    []driver.BuildRange
	sizes     driver.ASSizes
	fastTrace bool
	update    bool
}

type tlasQueueEntry struct {
	dst       driver.TopAS
	instBuf   driver.Buffer
	instOff   int64
	instCount int
	sizes     driver.ASSizes
	fastTrace bool
	update    bool
}

// ASBuilder queues pending bottom/top-level AS builds against a
// single scratch buffer shared by every build in a frame, packing
// scratch offsets greedily on flush (spec.md §4.3).
type ASBuilder struct {
	gpu     driver.AccelBuilder
	scratch *TypedBuffer

	bottoms []blasQueueEntry
	tops    []tlasQueueEntry
}

// NewASBuilder creates a builder with a scratch buffer of the given
// capacity, shared by every build queued between flushes.
func NewASBuilder(scratchCap int64) (*ASBuilder, error) {
	gpu, err := accelBuilder()
	if err != nil {
		return nil, err
	}
	scratch, err := NewTypedBuffer(scratchCap, false, driver.UASScratch)
	if err != nil {
		return nil, err
	}
	return &ASBuilder{gpu: gpu, scratch: scratch}, nil
}

// BottomBuildSizes computes the sizes required to build (and, if
// !fastTrace, later update in place) a bottom-level AS.
func (b *ASBuilder) BottomBuildSizes(geoms []driver.GeomDesc, prims []int, fastTrace bool) (driver.ASSizes, error) {
	return b.gpu.BottomASSizes(geoms, prims, fastTrace)
}

// TopBuildSizes computes the sizes required to build (and, if
// !fastTrace, later update in place) a top-level AS holding
// instanceCount instances.
func (b *ASBuilder) TopBuildSizes(instanceCount int, fastTrace bool) (driver.ASSizes, error) {
	return b.gpu.TopASSizes(instanceCount, fastTrace)
}

// AddBLAS queues a bottom-level build. If update is true, dst is
// rebuilt in place (reusing its existing storage) instead of being
// replaced; isMovable only affects how the caller later interprets
// the queued entry's completion (it carries no separate builder
// state) and is accepted for symmetry with spec.md's signature.
func (b *ASBuilder) AddBLAS(dst driver.BottomAS, geoms []driver.GeomDesc, ranges []driver.BuildRange, sizes driver.ASSizes, fastTrace, update, isMovable bool) {
	_ = isMovable
	b.bottoms = append(b.bottoms, blasQueueEntry{dst: dst, geoms: geoms, ranges: ranges, sizes: sizes, fastTrace: fastTrace, update: update})
}

// AddTLAS queues a top-level build.
func (b *ASBuilder) AddTLAS(dst driver.TopAS, instBuf driver.Buffer, instOff int64, instCount int, sizes driver.ASSizes, fastTrace, update bool) {
	b.tops = append(b.tops, tlasQueueEntry{dst: dst, instBuf: instBuf, instOff: instOff, instCount: instCount, sizes: sizes, fastTrace: fastTrace, update: update})
}

// BuildBottomLevel flushes the bottom-level queue, packing scratch
// offsets greedily from offset zero in queue order (no alignment
// padding between entries), and empties the queue.
func (b *ASBuilder) BuildBottomLevel(cmd driver.AccelCmdBuffer) {
	var off int64
	for _, e := range b.bottoms {
		sz := e.sizes.BuildScratch
		if e.update {
			sz = e.sizes.UpdateScratch
		}
		var src driver.BottomAS
		if e.update {
			src = e.dst
		}
		cmd.BuildBottomAS(e.dst, src, e.geoms, e.ranges, b.scratch.Buffer(), off)
		off += sz
	}
	b.bottoms = b.bottoms[:0]
}

// BuildTopLevel flushes the top-level queue, packing scratch
// offsets greedily from offset zero (the same scratch space the
// bottom-level flushes use), and empties the queue. Callers must issue an AS build-memory
// barrier between this call and any ray trace reading the result
// (spec.md §4.3, §5).
func (b *ASBuilder) BuildTopLevel(cmd driver.AccelCmdBuffer) {
	var off int64
	for _, e := range b.tops {
		sz := e.sizes.BuildScratch
		if e.update {
			sz = e.sizes.UpdateScratch
		}
		var src driver.TopAS
		if e.update {
			src = e.dst
		}
		cmd.BuildTopAS(e.dst, src, e.instBuf, e.instOff, e.instCount, b.scratch.Buffer(), off)
		off += sz
	}
	b.tops = b.tops[:0]
}

// Destroy releases the scratch buffer.
func (b *ASBuilder) Destroy() {
	if b == nil {
		return
	}
	b.scratch.Destroy()
	*b = ASBuilder{}
}

// BLAS owns a bottom-level acceleration structure for a single
// filter's accumulated geometry (spec.md §4.4).
type BLAS struct {
	Filter        Filter
	as            driver.BottomAS
	backing       *TypedBuffer
	size          int64
	geometryCount int
}

// IsEmpty reports whether the BLAS currently has no geometry, the
// way a TLAS instance deriver skips it (spec.md §4.4, §4.5.1).
func (l *BLAS) IsEmpty() bool { return l.geometryCount == 0 }

// DeviceAddress returns the handle used to reference this BLAS from
// a TLAS instance. It is zero-value safe if the BLAS was never
// built.
func (l *BLAS) DeviceAddress() uint64 {
	if l.as == nil {
		return 0
	}
	return l.as.DeviceAddress()
}

// RecreateIfNotValid grows the BLAS's backing buffer, recreating its
// handle, on first use and on size regressions; the handle remains
// stable while sizes continue to fit the existing backing buffer
// (spec.md §4.4).
func (l *BLAS) RecreateIfNotValid(gpu driver.AccelBuilder, sizes driver.ASSizes, geometryCount int) error {
	l.geometryCount = geometryCount
	if l.backing != nil && l.size >= sizes.ASSize {
		return nil
	}
	if l.backing != nil {
		l.backing.Destroy()
	}
	backing, err := NewTypedBuffer(sizes.ASSize, false, driver.UASStorage)
	if err != nil {
		return err
	}
	as, err := gpu.NewBottomAS(sizes.ASSize)
	if err != nil {
		backing.Destroy()
		return err
	}
	l.backing = backing
	l.as = as
	l.size = sizes.ASSize
	return nil
}

// Destroy releases the BLAS's handle and backing buffer.
func (l *BLAS) Destroy() {
	if l == nil {
		return
	}
	if l.as != nil {
		l.as.Destroy()
	}
	l.backing.Destroy()
	*l = BLAS{}
}

// TLAS owns the single top-level acceleration structure built every
// frame from the scene's selectable BLAS instances (spec.md §4.4).
type TLAS struct {
	as      driver.TopAS
	backing *TypedBuffer
	size    int64
}

// Valid reports whether Build/RecreateIfNotValid has produced a
// usable handle this frame. Consumers must skip ray tracing when
// false (spec.md §4.4, §4.7 step 4).
func (t *TLAS) Valid() bool { return t.as != nil }

// RecreateIfNotValid grows the TLAS's backing buffer and handle as
// BLAS.RecreateIfNotValid does.
func (t *TLAS) RecreateIfNotValid(gpu driver.AccelBuilder, sizes driver.ASSizes) error {
	if t.backing != nil && t.size >= sizes.ASSize {
		return nil
	}
	if t.backing != nil {
		t.backing.Destroy()
	}
	backing, err := NewTypedBuffer(sizes.ASSize, false, driver.UASStorage)
	if err != nil {
		return err
	}
	as, err := gpu.NewTopAS(sizes.ASSize)
	if err != nil {
		backing.Destroy()
		return err
	}
	t.backing = backing
	t.as = as
	t.size = sizes.ASSize
	return nil
}

// Invalidate marks the TLAS as not built this frame (zero instances).
func (t *TLAS) Invalidate() { t.as = nil }

// Destroy releases the TLAS's handle and backing buffer.
func (t *TLAS) Destroy() {
	if t == nil {
		return
	}
	if t.as != nil {
		t.as.Destroy()
	}
	t.backing.Destroy()
	*t = TLAS{}
}
