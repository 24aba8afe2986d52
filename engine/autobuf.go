// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/mireva/rtcore/driver"
)

// BufferRegion identifies a byte range within a buffer.
type BufferRegion struct {
	Offset int64
	Size   int64
}

// AutoBuffer bridges host writes and device reads with minimal
// synchronization (spec.md §2.2, §4.1): N host-visible, persistently
// mapped staging buffers — one per frame in flight — plus a single
// device-local buffer of identical size. The host writes into the
// staging buffer for the frame it is recording; CopyFromStaging
// records the transfer to the device buffer for that frame.
type AutoBuffer struct {
	staging []*TypedBuffer
	device  *TypedBuffer
	size    int64
}

// NewAutoBuffer creates an AutoBuffer with nFrame staging buffers
// and one device buffer, each of the given size. The device buffer
// is created non-visible with usage plus UASBuildInput; the staging
// buffers are always created visible with UGeneric usage.
func NewAutoBuffer(nFrame int, size int64, usage driver.Usage) (*AutoBuffer, error) {
	if nFrame <= 0 {
		panic("engine: NewAutoBuffer called with nFrame <= 0")
	}
	device, err := NewTypedBuffer(size, false, usage|driver.UASBuildInput)
	if err != nil {
		return nil, err
	}
	staging := make([]*TypedBuffer, nFrame)
	for i := range staging {
		s, err := NewTypedBuffer(size, true, driver.UGeneric)
		if err != nil {
			device.Destroy()
			for _, x := range staging[:i] {
				x.Destroy()
			}
			return nil, err
		}
		staging[i] = s
	}
	return &AutoBuffer{staging: staging, device: device, size: size}, nil
}

// Map returns the mapped staging buffer for frame. The mapping is
// persistent for the AutoBuffer's lifetime; callers must not retain
// the returned slice past the next call that resizes the buffer.
func (a *AutoBuffer) Map(frame int) []byte { return a.staging[frame%len(a.staging)].Bytes() }

// Device returns the device-local driver.Buffer that CopyFromStaging
// writes into, for use in descriptor bindings and AS build inputs.
func (a *AutoBuffer) Device() driver.Buffer { return a.device.Buffer() }

// Size returns the size, in bytes, shared by every staging buffer
// and the device buffer.
func (a *AutoBuffer) Size() int64 { return a.size }

// CopyFromStaging records, for the given frame, one cmdCopyBuffer
// per region from that frame's staging buffer to the device buffer,
// followed by a single buffer memory barrier transitioning
// TRANSFER_WRITE to ALL_COMMANDS::MEMORY_READ (spec.md §4.1).
// Regions must be non-overlapping; this is the caller's
// responsibility, not validated here.
func (a *AutoBuffer) CopyFromStaging(cmd driver.CmdBuffer, frame int, regions []BufferRegion) {
	if len(regions) == 0 {
		return
	}
	src := a.staging[frame%len(a.staging)].Buffer()
	dst := a.device.Buffer()
	cmd.BeginBlit(false)
	for _, r := range regions {
		cmd.CopyBuffer(&driver.BufferCopy{
			From:    src,
			FromOff: r.Offset,
			To:      dst,
			ToOff:   r.Offset,
			Size:    r.Size,
		})
	}
	cmd.EndBlit()
	cmd.Barrier([]driver.Barrier{{
		SyncBefore:   driver.SCopy,
		SyncAfter:    driver.SAll,
		AccessBefore: driver.ACopyWrite,
		AccessAfter:  driver.AAnyRead,
	}})
}

// Destroy releases every staging buffer and the device buffer.
func (a *AutoBuffer) Destroy() {
	if a == nil {
		return
	}
	for _, s := range a.staging {
		s.Destroy()
	}
	a.device.Destroy()
	*a = AutoBuffer{}
}
