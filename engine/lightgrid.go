// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/internal/ctxt"
)

// Light-grid extents and per-cell reservoir count (spec.md §3.6).
// The grid is a cube of LightGridSize cells per axis, camera
// centered, each holding LightGridCellSize reservoirs.
const (
	LightGridSize     = 16
	LightGridCellSize = 8
)

// reservoirSize is the packed GPU size of one Reservoir: a chosen
// light index, target pdf, running weight sum and sample count
// (spec.md GLOSSARY).
const reservoirSize = 4 + 4 + 4 + 4

// Reservoir is the weighted-reservoir-sample state the light-grid
// compute pass maintains per cell slot.
type Reservoir struct {
	ChosenIndex int32
	TargetPDF   float32
	WeightSum   float32
	M           float32
}

func putReservoir(dst []byte, r Reservoir) {
	putInt32(dst[0:], r.ChosenIndex)
	putFloat32(dst[4:], r.TargetPDF)
	putFloat32(dst[8:], r.WeightSum)
	putFloat32(dst[12:], r.M)
}

// GridOrigin computes the world-space corner of cell (0,0,0) such
// that the camera lies inside the center cell (N/2, N/2, N/2): each
// camera coordinate is floored to a cell boundary, then offset back
// by half the grid's extent (spec.md §3.6, §9.1 "camera-snapped
// origin").
func GridOrigin(camera mgl32.Vec3, cellWorldSize float32) mgl32.Vec3 {
	snap := func(x float32) float32 {
		return float32(math.Floor(float64(x/cellWorldSize))) * cellWorldSize
	}
	half := float32(LightGridSize/2) * cellWorldSize
	return mgl32.Vec3{
		snap(camera[0]) - half,
		snap(camera[1]) - half,
		snap(camera[2]) - half,
	}
}

// CellIndex returns the grid cell containing worldPos, or ok=false
// if it falls outside the grid's extent.
func CellIndex(worldPos, origin mgl32.Vec3, cellWorldSize float32) (x, y, z int, ok bool) {
	rel := worldPos.Sub(origin)
	ix := int(math.Floor(float64(rel[0] / cellWorldSize)))
	iy := int(math.Floor(float64(rel[1] / cellWorldSize)))
	iz := int(math.Floor(float64(rel[2] / cellWorldSize)))
	if ix < 0 || iy < 0 || iz < 0 || ix >= LightGridSize || iy >= LightGridSize || iz >= LightGridSize {
		return 0, 0, 0, false
	}
	return ix, iy, iz, true
}

// CellCenter returns the world-space center of cell (x, y, z).
func CellCenter(x, y, z int, origin mgl32.Vec3, cellWorldSize float32) mgl32.Vec3 {
	return mgl32.Vec3{
		origin[0] + (float32(x)+0.5)*cellWorldSize,
		origin[1] + (float32(y)+0.5)*cellWorldSize,
		origin[2] + (float32(z)+0.5)*cellWorldSize,
	}
}

// LightGrid owns the ping-ponged reservoir buffers the light-grid
// compute pass reads and writes: "current" is rebuilt every frame
// from the live light array, while "previous" retains last frame's
// reservoirs for temporal reuse (spec.md §3.6). It also owns the
// screen-space ReSTIR ping-pong reservoir images (spec.md §2.15):
// a second, per-pixel reservoir population fed by the grid's result
// and consumed by the final shading passes, kept here rather than in
// a module of its own since both are ping-pong reservoir stores
// serving the same raygen stages (see DESIGN.md).
type LightGrid struct {
	cellWorldSize float32

	current, previous *AutoBuffer
	pipeline           driver.Pipeline

	restirCur, restirPrev       driver.Image
	restirCurView, restirPrevView driver.ImageView
	restirWidth, restirHeight   int

	nFrame int
}

func gridCellCount() int64 {
	return int64(LightGridSize) * int64(LightGridSize) * int64(LightGridSize) * int64(LightGridCellSize)
}

// NewLightGrid creates the ping-pong reservoir storage for a grid
// with the given cell edge length.
func NewLightGrid(nFrame int, cellWorldSize float32) (*LightGrid, error) {
	size := gridCellCount() * reservoirSize
	current, err := NewAutoBuffer(nFrame, size, driver.UShaderRead|driver.UShaderWrite)
	if err != nil {
		return nil, err
	}
	previous, err := NewAutoBuffer(nFrame, size, driver.UShaderRead|driver.UShaderWrite)
	if err != nil {
		current.Destroy()
		return nil, err
	}
	return &LightGrid{cellWorldSize: cellWorldSize, current: current, previous: previous, nFrame: nFrame}, nil
}

// CellWorldSize returns the grid's configured cell edge length.
func (g *LightGrid) CellWorldSize() float32 { return g.cellWorldSize }

// SetPipeline installs the compute pipeline used by Dispatch,
// built by the ray-tracing pipeline layer from the light-grid
// shader's SPIR-V/DXIL blob and descriptor table.
func (g *LightGrid) SetPipeline(pl driver.Pipeline) {
	if g.pipeline != nil {
		g.pipeline.Destroy()
	}
	g.pipeline = pl
}

// Swap exchanges current and previous, so next frame's build reads
// this frame's result as history (spec.md §3.6).
func (g *LightGrid) Swap() { g.current, g.previous = g.previous, g.current }

// Current returns this frame's reservoir device buffer.
func (g *LightGrid) Current() driver.Buffer { return g.current.Device() }

// Previous returns last frame's reservoir device buffer.
func (g *LightGrid) Previous() driver.Buffer { return g.previous.Device() }

// Dispatch records the light-grid compute pass: one thread group
// per cell, LightGridCellSize threads wide (spec.md §4.6.2). The
// pipeline's descriptor table is expected to already be bound by
// the caller (the frame scheduler), mirroring how the AS builder
// leaves barrier placement to its caller.
func (g *LightGrid) Dispatch(cmd driver.CmdBuffer) error {
	if g.pipeline == nil {
		return newErr(GenericError, "light grid dispatched before a compute pipeline was installed")
	}
	cmd.BeginWork(false)
	cmd.SetPipeline(g.pipeline)
	cmd.Dispatch(LightGridSize, LightGridSize, LightGridSize)
	cmd.EndWork()
	return nil
}

// ResizeReSTIR (re)allocates the screen-space ReSTIR ping-pong
// reservoir images for a render target of the given size, called
// from start_frame when the surface dimensions change (spec.md
// §6.1's start_frame(surface_w, surface_h, ...)). Packed as
// RGBA32f: chosen light index (bit-reinterpreted), target pdf,
// running weight sum, sample count — the same Reservoir layout
// putReservoir packs into the grid's buffers.
func (g *LightGrid) ResizeReSTIR(width, height int) error {
	if width == g.restirWidth && height == g.restirHeight && g.restirCur != nil {
		return nil
	}
	g.destroyReSTIR()
	cur, curView, err := newReSTIRImage(width, height)
	if err != nil {
		return err
	}
	prev, prevView, err := newReSTIRImage(width, height)
	if err != nil {
		cur.Destroy()
		return err
	}
	g.restirCur, g.restirCurView = cur, curView
	g.restirPrev, g.restirPrevView = prev, prevView
	g.restirWidth, g.restirHeight = width, height
	return nil
}

func newReSTIRImage(width, height int) (driver.Image, driver.ImageView, error) {
	img, err := ctxt.GPU().NewImage(driver.RGBA32f, driver.Dim3D{Width: width, Height: height}, 1, 1, 1, driver.UShaderRead|driver.UShaderWrite)
	if err != nil {
		return nil, nil, err
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		img.Destroy()
		return nil, nil, err
	}
	return img, view, nil
}

// SwapReSTIR exchanges the current and previous screen-space
// reservoir images, mirroring Swap for the per-cell grid.
func (g *LightGrid) SwapReSTIR() {
	g.restirCur, g.restirPrev = g.restirPrev, g.restirCur
	g.restirCurView, g.restirPrevView = g.restirPrevView, g.restirCurView
}

// CurrentReSTIR returns this frame's screen-space reservoir image
// view, or nil if ResizeReSTIR has not been called yet.
func (g *LightGrid) CurrentReSTIR() driver.ImageView { return g.restirCurView }

// PreviousReSTIR returns last frame's screen-space reservoir image
// view.
func (g *LightGrid) PreviousReSTIR() driver.ImageView { return g.restirPrevView }

func (g *LightGrid) destroyReSTIR() {
	if g.restirCur != nil {
		g.restirCur.Destroy()
	}
	if g.restirPrev != nil {
		g.restirPrev.Destroy()
	}
	g.restirCur, g.restirPrev = nil, nil
	g.restirCurView, g.restirPrevView = nil, nil
}

// Destroy releases the ping-pong buffers, the screen-space ReSTIR
// images and the compute pipeline.
func (g *LightGrid) Destroy() {
	if g == nil {
		return
	}
	g.current.Destroy()
	g.previous.Destroy()
	g.destroyReSTIR()
	if g.pipeline != nil {
		g.pipeline.Destroy()
	}
	*g = LightGrid{}
}
