// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/texture"
)

// Framebuffer is the named set of G-buffer, history and ping-pong
// images the ray-tracing raygen stages write to and the denoise/
// compose/tone-map passes read from, sized to the render resolution
// (spec.md §2.12). Every image is a storage target the raygen
// stages write directly (UShaderWrite), then sample in later passes
// (UShaderSample), unlike the teacher's rasterized color/depth
// targets which only ever receive a render-pass write.
type Framebuffer struct {
	width, height int

	// Primary-visibility G-buffer, written by the PRIMARY raygen
	// stage and read by every subsequent stage.
	Albedo   *texture.Texture
	Normal   *texture.Texture
	Motion   *texture.Texture
	Depth    *texture.Texture
	Material *texture.Texture

	// Accumulation targets carrying previous-frame history for
	// temporal reuse (spec.md §5's "previous-frame flavor" resources).
	HistoryColor      *texture.Texture
	HistoryColorPrev   *texture.Texture
	Accum             *texture.Texture
	AccumPrev         *texture.Texture

	// Final composed/denoised/tone-mapped color, blitted to the
	// swapchain by the scheduler.
	Color *texture.Texture
}

func newFBTarget(pf driver.PixelFmt, width, height int) (*texture.Texture, error) {
	return texture.NewTarget(&texture.TexParam{
		PixelFmt: pf,
		Dim3D:    driver.Dim3D{Width: width, Height: height},
		Layers:   1,
		Levels:   1,
		Samples:  1,
	})
}

// NewFramebuffer allocates every image in the set at the given
// render resolution.
func NewFramebuffer(width, height int) (fb *Framebuffer, err error) {
	fb = &Framebuffer{width: width, height: height}
	defer func() {
		if err != nil {
			fb.Destroy()
			fb = nil
		}
	}()
	if fb.Albedo, err = newFBTarget(driver.RGBA8un, width, height); err != nil {
		return
	}
	if fb.Normal, err = newFBTarget(driver.RGBA16f, width, height); err != nil {
		return
	}
	if fb.Motion, err = newFBTarget(driver.RG16f, width, height); err != nil {
		return
	}
	if fb.Depth, err = newFBTarget(driver.R32f, width, height); err != nil {
		return
	}
	if fb.Material, err = newFBTarget(driver.RGBA8un, width, height); err != nil {
		return
	}
	if fb.HistoryColor, err = newFBTarget(driver.RGBA16f, width, height); err != nil {
		return
	}
	if fb.HistoryColorPrev, err = newFBTarget(driver.RGBA16f, width, height); err != nil {
		return
	}
	if fb.Accum, err = newFBTarget(driver.RGBA32f, width, height); err != nil {
		return
	}
	if fb.AccumPrev, err = newFBTarget(driver.RGBA32f, width, height); err != nil {
		return
	}
	if fb.Color, err = newFBTarget(driver.RGBA16f, width, height); err != nil {
		return
	}
	return
}

// SwapHistory exchanges the history-color and accumulation targets
// with their previous-frame counterparts, the image analogue of
// LightGrid.Swap.
func (fb *Framebuffer) SwapHistory() {
	fb.HistoryColor, fb.HistoryColorPrev = fb.HistoryColorPrev, fb.HistoryColor
	fb.Accum, fb.AccumPrev = fb.AccumPrev, fb.Accum
}

// Resize reallocates every image for a new render resolution,
// called from start_frame when the surface dimensions change.
func (fb *Framebuffer) Resize(width, height int) error {
	if width == fb.width && height == fb.height {
		return nil
	}
	next, err := NewFramebuffer(width, height)
	if err != nil {
		return err
	}
	fb.Destroy()
	*fb = *next
	return nil
}

// Destroy frees every image in the set.
func (fb *Framebuffer) Destroy() {
	if fb == nil {
		return
	}
	for _, t := range []*texture.Texture{
		fb.Albedo, fb.Normal, fb.Motion, fb.Depth, fb.Material,
		fb.HistoryColor, fb.HistoryColorPrev, fb.Accum, fb.AccumPrev,
		fb.Color,
	} {
		if t != nil {
			t.Free()
		}
	}
	*fb = Framebuffer{}
}
