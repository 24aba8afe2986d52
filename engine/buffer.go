// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/internal/ctxt"
)

// TypedBuffer owns a single driver.Buffer and remembers the usage
// it was created with, so callers never have to thread a Usage
// value alongside every reference to the buffer (spec.md §2.1).
//
// It does not track sub-allocations; that is the job of the
// allocator that owns a TypedBuffer (e.g. internal/bitm-driven span
// maps in engine/vertex and engine/asmanager).
type TypedBuffer struct {
	buf   driver.Buffer
	usage driver.Usage
	size  int64
}

// NewTypedBuffer creates a device buffer of the given size and
// usage. visible controls whether the buffer is host-mapped; a
// non-visible buffer's Bytes method always returns nil.
func NewTypedBuffer(size int64, visible bool, usage driver.Usage) (*TypedBuffer, error) {
	buf, err := ctxt.GPU().NewBuffer(size, visible, usage)
	if err != nil {
		return nil, err
	}
	return &TypedBuffer{buf: buf, usage: usage, size: size}, nil
}

// Buffer returns the underlying driver.Buffer for use in copy
// commands, descriptor bindings and AS build inputs.
func (b *TypedBuffer) Buffer() driver.Buffer { return b.buf }

// Bytes returns the host-visible mapping of the buffer, or nil if
// it is not host visible.
func (b *TypedBuffer) Bytes() []byte {
	if b == nil || b.buf == nil {
		return nil
	}
	return b.buf.Bytes()
}

// Size returns the buffer's requested size in bytes (which may
// differ from driver.Buffer.Cap if the driver rounds up).
func (b *TypedBuffer) Size() int64 { return b.size }

// Usage returns the buffer's usage flags.
func (b *TypedBuffer) Usage() driver.Usage { return b.usage }

// Destroy releases the underlying driver.Buffer. It is a no-op on
// a nil or already-invalidated TypedBuffer.
func (b *TypedBuffer) Destroy() {
	if b == nil || b.buf == nil {
		return
	}
	b.buf.Destroy()
	*b = TypedBuffer{}
}
