// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Descriptor management.
//
// For portability, the following restrictions apply:
//
//	DescHeap per DescTable           | 4 (max)
//	DTexture/DSampler descriptors    | 16 (max)
//	DConstant descriptors            | 12 (max)
//	DImage/DBuffer/DAccel descriptors | 4 (max)
//	DConstant/DBuffer data alignment | 256 bytes (min)
//	DConstant/DBuffer data size      | 16 KiB (max)
//
// (the above names refer to the driver package).
//
// Ray-tracing shader stages (raygen, miss, hit groups) are bound as
// driver.SCompute for descriptor visibility purposes: Stage predates
// hardware ray tracing and carries no dedicated bit for it, unlike
// driver.RTStage, which only describes shader binding table groups.

package shader

import (
	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/internal/ctxt"
)

const rtStages = driver.SCompute

func constantDesc(nr int) driver.Descriptor {
	return driver.Descriptor{
		Type:   driver.DConstant,
		Stages: rtStages,
		Nr:     nr,
		Len:    1,
	}
}

func bufferDesc(nr int) driver.Descriptor {
	return driver.Descriptor{
		Type:   driver.DBuffer,
		Stages: rtStages,
		Nr:     nr,
		Len:    1,
	}
}

func accelDesc(nr int) driver.Descriptor {
	return driver.Descriptor{
		Type:   driver.DAccel,
		Stages: rtStages,
		Nr:     nr,
		Len:    1,
	}
}

func imageDesc(nr int) driver.Descriptor {
	return driver.Descriptor{
		Type:   driver.DImage,
		Stages: rtStages,
		Nr:     nr,
		Len:    1,
	}
}

// newDescHeapScene creates the descriptor heap every raygen/hit/miss
// shader binds first: the top-level acceleration structure and the
// per-frame uniform (FrameLayout).
func newDescHeapScene() (driver.DescHeap, error) {
	return ctxt.GPU().NewDescHeap([]driver.Descriptor{
		// TLAS.
		accelDesc(0),
		// Frame.
		constantDesc(1),
	})
}

// newDescHeapGeometry creates the descriptor heap exposing the
// geometry-instance table and the non-interleaved vertex/index
// buffers a closest-hit shader indexes into to reconstruct a hit's
// surface attributes (spec.md §3.3, §4.5).
func newDescHeapGeometry() (driver.DescHeap, error) {
	return ctxt.GPU().NewDescHeap([]driver.Descriptor{
		// Geometry-instance table.
		bufferDesc(0),
		// Vertex attributes (positions, normals, texcoords...),
		// packed non-interleaved, one binding per semantic array.
		bufferDesc(1),
		// Index buffer.
		bufferDesc(2),
	})
}

// newDescHeapLights creates the descriptor heap exposing the
// current- and previous-frame light records, the match_prev table
// and the packed sector light lists (spec.md §4.6, §4.6.1).
func newDescHeapLights() (driver.DescHeap, error) {
	return ctxt.GPU().NewDescHeap([]driver.Descriptor{
		// Current-frame light records.
		bufferDesc(0),
		// Previous-frame light records.
		bufferDesc(1),
		// match_prev.
		bufferDesc(2),
		// plain_light_list + sector_to_region, bound as a single
		// heap copy pair indexed by the sector a shading point
		// falls in.
		bufferDesc(3),
	})
}

// newDescHeapLightGrid creates the descriptor heap exposing the
// light grid's ping-pong reservoir buffers (spec.md §3.6, §4.6.2)
// and the screen-space ReSTIR ping-pong reservoir images consumed by
// the final shading passes (spec.md §2.15).
func newDescHeapLightGrid() (driver.DescHeap, error) {
	return ctxt.GPU().NewDescHeap([]driver.Descriptor{
		// Light-grid current reservoirs.
		bufferDesc(0),
		// Light-grid previous reservoirs.
		bufferDesc(1),
		// Screen-space ReSTIR current reservoirs.
		imageDesc(2),
		// Screen-space ReSTIR previous reservoirs.
		imageDesc(3),
	})
}

// newDescTable creates a new driver.DescTable binding the scene,
// geometry, light and light-grid heaps to a ray-tracing pipeline.
func newDescTable() (driver.DescTable, error) {
	dhScene, err := newDescHeapScene()
	if err != nil {
		return nil, err
	}
	dhGeom, err := newDescHeapGeometry()
	if err != nil {
		dhScene.Destroy()
		return nil, err
	}
	dhLights, err := newDescHeapLights()
	if err != nil {
		dhScene.Destroy()
		dhGeom.Destroy()
		return nil, err
	}
	dhGrid, err := newDescHeapLightGrid()
	if err != nil {
		dhScene.Destroy()
		dhGeom.Destroy()
		dhLights.Destroy()
		return nil, err
	}
	return ctxt.GPU().NewDescTable([]driver.DescHeap{
		dhScene,
		dhGeom,
		dhLights,
		dhGrid,
	})
}
