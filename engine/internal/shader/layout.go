// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Data as presented to shader programs.
//
// The data layouts defined here represent exactly what will be fed
// to shaders as constant/push-constant buffers. One should use the
// Set* methods of a given *Layout type to update constant data.
//
// Constants updated using vectors and matrices (i.e., mgl32.VecN/
// MatN types) are defined in the shaders as equivalent types. These
// data are aligned to 16 bytes for portability.

package shader

import (
	"time"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mireva/rtcore/driver"
)

func copyM4(dst []float32, m *mgl32.Mat4) {
	copy(dst, unsafe.Slice((*float32)(unsafe.Pointer(m)), 16))
}

// FrameLayout is the per-frame uniform buffer read by every raygen
// stage (spec.md §4.5 step 6 "uniforms_out", §4.7 step 4). It is
// defined as follows:
//
//	[0:16]  | view-projection matrix
//	[16:32] | view matrix
//	[32:48] | projection matrix
//	[48]    | elapsed time in seconds
//	[49]    | normalized random value
//	[50]    | viewport's x
//	[51]    | viewport's y
//	[52]    | viewport's width
//	[53]    | viewport's height
//	[54]    | viewport's near plane
//	[55]    | viewport's far plane
//	[56]    | ray-cull mask
//	[57]    | live light count
//	[58]    | directional-light present flag
//	[59:64] | (unused)
type FrameLayout [64]float32

// SetVP sets the view-projection matrix.
func (l *FrameLayout) SetVP(m *mgl32.Mat4) { copyM4(l[:16], m) }

// VP returns the view-projection matrix.
func (l *FrameLayout) VP() (m mgl32.Mat4) {
	copy(unsafe.Slice((*float32)(unsafe.Pointer(&m)), 16), l[:16])
	return
}

// SetV sets the view matrix.
func (l *FrameLayout) SetV(m *mgl32.Mat4) { copyM4(l[16:32], m) }

// V returns the view matrix.
func (l *FrameLayout) V() (m mgl32.Mat4) {
	copy(unsafe.Slice((*float32)(unsafe.Pointer(&m)), 16), l[16:32])
	return
}

// SetP sets the projection matrix.
func (l *FrameLayout) SetP(m *mgl32.Mat4) { copyM4(l[32:48], m) }

// P returns the projection matrix.
func (l *FrameLayout) P() (m mgl32.Mat4) {
	copy(unsafe.Slice((*float32)(unsafe.Pointer(&m)), 16), l[32:48])
	return
}

// SetTime sets the elapsed time.
func (l *FrameLayout) SetTime(d time.Duration) { l[48] = float32(d.Seconds()) }

// Time returns the elapsed time set by SetTime.
func (l *FrameLayout) Time() time.Duration { return time.Duration(l[48] * float32(time.Second)) }

// SetRand sets the normalized random value.
func (l *FrameLayout) SetRand(rnd float32) { l[49] = rnd }

// Rand returns the normalized random value.
func (l *FrameLayout) Rand() float32 { return l[49] }

// SetBounds sets the viewport bounds.
func (l *FrameLayout) SetBounds(b *driver.Viewport) {
	l[50] = b.X
	l[51] = b.Y
	l[52] = b.Width
	l[53] = b.Height
	l[54] = b.Znear
	l[55] = b.Zfar
}

// Bounds returns the viewport bounds set by SetBounds.
func (l *FrameLayout) Bounds() driver.Viewport {
	return driver.Viewport{X: l[50], Y: l[51], Width: l[52], Height: l[53], Znear: l[54], Zfar: l[55]}
}

// SetCullMask sets the frame's ray-cull mask (spec.md §4.5.1).
func (l *FrameLayout) SetCullMask(mask uint32) { l[56] = *(*float32)(unsafe.Pointer(&mask)) }

// CullMask returns the ray-cull mask set by SetCullMask.
func (l *FrameLayout) CullMask() uint32 { return *(*uint32)(unsafe.Pointer(&l[56])) }

// SetLightCount sets the number of lights live this frame.
func (l *FrameLayout) SetLightCount(n uint32) { l[57] = *(*float32)(unsafe.Pointer(&n)) }

// LightCount returns the light count set by SetLightCount.
func (l *FrameLayout) LightCount() uint32 { return *(*uint32)(unsafe.Pointer(&l[57])) }

// SetHasDirectional sets whether this frame has a directional light.
func (l *FrameLayout) SetHasDirectional(has bool) {
	var v uint32
	if has {
		v = 1
	}
	l[58] = *(*float32)(unsafe.Pointer(&v))
}

// HasDirectional reports whether a directional light is live this
// frame.
func (l *FrameLayout) HasDirectional() bool {
	return *(*uint32)(unsafe.Pointer(&l[58])) != 0
}
