// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Command rtcoredemo is a minimal host harness exercising
// create_instance, start_new_scene, upload_geometry and
// upload_directional_light with a single static triangle and one
// directional light; it never calls start_frame or draw_frame. It
// takes no native window: the surface
// creation callback is left nil, so the instance never builds a
// scheduler/swapchain and the harness only drives the scene/light/
// material operations that do not require presentation.
//
// rtcoredemo never implements a GPU backend itself (driver/ ships
// none — a native driver is an external collaborator, spec.md §1).
// Running it for real requires blank-importing a package that calls
// driver.Register for some backend before main runs; pass its
// registered name (or "" to match any registered driver) as the first
// argument.
package main

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mireva/rtcore/config"
	"github.com/mireva/rtcore/engine"
)

func main() {
	var driverName string
	if len(os.Args) > 1 {
		driverName = os.Args[1]
	}
	if err := run(driverName); err != nil {
		fmt.Fprintln(os.Stderr, "rtcoredemo:", err)
		os.Exit(1)
	}
}

func run(driverName string) error {
	cfg := config.Default()
	h, err := engine.Create(driverName, &cfg)
	if err != nil {
		return fmt.Errorf("create_instance: %w", err)
	}
	defer engine.Destroy(h)

	if err := engine.StartNewScene(h); err != nil {
		return fmt.Errorf("start_new_scene: %w", err)
	}

	filter := engine.MakeFilter(engine.CFStaticNonMovable, engine.PTOpaque, engine.PVWorld0)
	tri := &engine.GeometryUpload{
		ID:          1,
		Filter:      filter,
		VertexCount: 3,
		Positions: []mgl32.Vec3{
			{-1, -1, 0},
			{1, -1, 0},
			{0, 1, 0},
		},
		Normals: []mgl32.Vec3{
			{0, 0, 1},
			{0, 0, 1},
			{0, 0, 1},
		},
		DefaultRoughness: 1,
		Transform:        mgl32.Ident4(),
	}
	if _, err := engine.UploadGeometry(h, tri); err != nil {
		return fmt.Errorf("upload_geometry: %w", err)
	}

	// submit_static_geometries needs a command buffer the host
	// records and commits; a real host drives this through its own
	// driver.GPU, which rtcoredemo has none of, so the call is left
	// out of this headless smoke test (see package doc).

	if _, _, err := engine.UploadDirectionalLight(h, 1, 0, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 1, 1}, 0.01); err != nil {
		return fmt.Errorf("upload_directional_light: %w", err)
	}

	fmt.Println("rtcoredemo: instance", h, "created, one triangle and one light staged")
	return nil
}
