// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package surface defines the contract between the engine and a
// host-provided window/surface. Creating the native window, pumping
// its event loop, and binding it to the platform's windowing system
// are the host's responsibility (§1); this package only fixes what
// the frame scheduler (engine.Scheduler) needs from it.
package surface

// Surface is a drawable surface that a GPU can present into.
// The host creates the native window and hands the engine a Surface
// through the config.SurfaceCreationCallback; the engine never
// constructs one itself.
type Surface interface {
	// Width returns the surface's current width, in pixels.
	Width() int

	// Height returns the surface's current height, in pixels.
	Height() int
}

// CreationCallback is invoked by the engine during create_instance
// with a driver-specific native instance handle (e.g., a VkInstance
// equivalent) and must return a Surface bound to that instance.
//
// This models the "callback-style surface creation" design note
// (spec.md §9): it is a one-shot construction step, not an ongoing
// registration, so the engine never calls back into the host again.
type CreationCallback func(nativeInstance any) (Surface, error)
