// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/internal/ctxt"
	"github.com/mireva/rtcore/surface"
)

// Scheduler drives the ring of MaxFramesInFlight command buffers that
// record and submit every frame (spec.md §2.13, §4.7). Each slot owns
// its own driver.CmdBuffer plus a completion channel the previous
// Commit reports into; BeginFrame blocks on that channel before
// reusing the slot's command buffer, the same role the teacher's
// Renderer.ch free-list plays for its own frame ring, adapted to this
// driver's plain Commit(cb, ch chan<- error) signature instead of the
// teacher's pooled *driver.WorkItem channel.
type Scheduler struct {
	cb   [MaxFramesInFlight]driver.CmdBuffer
	done [MaxFramesInFlight]chan error

	sc   driver.Swapchain
	surf surface.Surface

	frame int

	reloadLatch bool
}

// NewScheduler creates the command buffer ring and the swapchain
// bound to surf. The driver's GPU must implement driver.Presenter
// (spec.md §6.1's start_frame requires an onscreen target).
func NewScheduler(surf surface.Surface) (s *Scheduler, err error) {
	pres, ok := ctxt.GPU().(driver.Presenter)
	if !ok {
		return nil, newErr(GenericError, "driver does not implement Presenter")
	}
	s = &Scheduler{surf: surf}
	defer func() {
		if err != nil {
			s.Destroy()
			s = nil
		}
	}()
	s.sc, err = pres.NewSwapchain(surf, MaxFramesInFlight+1)
	if err != nil {
		return
	}
	for i := range s.cb {
		s.cb[i], err = ctxt.GPU().NewCmdBuffer()
		if err != nil {
			return
		}
		// Slots start already signaled so the first pass through
		// each one does not block.
		s.done[i] = make(chan error, 1)
		s.done[i] <- nil
	}
	return
}

// RequestShaderReload sets the reload latch spec.md §4.7 step 2
// checks at the start of the next frame: the scheduler waits for
// every in-flight frame to retire, then lets the caller rebuild the
// ray-tracing pipeline before recording resumes.
func (s *Scheduler) RequestShaderReload() { s.reloadLatch = true }

// Resize recreates the swapchain after a surface size change,
// spec.md §6.1's start_frame(surface_w, surface_h, ...) argument.
func (s *Scheduler) Resize() error { return s.sc.Recreate() }

// Views returns the swapchain's image views, for building a
// Framebuffer-to-swapchain blit target.
func (s *Scheduler) Views() []driver.ImageView { return s.sc.Views() }

// Frame is the state handed to the caller by BeginFrame and returned
// to EndFrame: the command buffer to record into, the frame-in-flight
// index (for AutoBuffer.Map/Scene.BeginFrame) and the acquired
// swapchain image index.
type Frame struct {
	Cmd   driver.CmdBuffer
	Index int // frame-in-flight slot, 0..MaxFramesInFlight-1
	Image int // swapchain image index from Swapchain.Next
}

// reloadFunc rebuilds whatever pipelines depend on shader code; it is
// supplied by the caller since the scheduler itself has no knowledge
// of which RTPipeline/compute pipelines exist.
type reloadFunc = func() error

// BeginFrame waits for the next ring slot's previous submission to
// retire, handles a pending shader-reload request, acquires a
// swapchain image (calling Recreate and retrying each time Next
// reports ErrSwapchain) and
// begins command recording (spec.md §4.7 steps 1-3).
func (s *Scheduler) BeginFrame(reload reloadFunc) (Frame, error) {
	frame := s.frame
	if err := <-s.done[frame]; err != nil {
		return Frame{}, err
	}
	cmd := s.cb[frame]

	if s.reloadLatch {
		for i := range s.done {
			if i == frame {
				continue
			}
			if err := <-s.done[i]; err != nil {
				return Frame{}, err
			}
			s.done[i] <- nil
		}
		if reload != nil {
			if err := reload(); err != nil {
				return Frame{}, err
			}
		}
		s.reloadLatch = false
	}

	var img int
	for {
		var err error
		img, err = s.sc.Next(cmd)
		if err == nil {
			break
		}
		if err != driver.ErrSwapchain {
			return Frame{}, err
		}
		if err := s.sc.Recreate(); err != nil {
			return Frame{}, err
		}
	}

	if err := cmd.Begin(); err != nil {
		return Frame{}, err
	}
	return Frame{Cmd: cmd, Index: frame, Image: img}, nil
}

// EndFrame ends recording, commits the frame's command buffer and
// presents the acquired swapchain image, then advances the ring
// (spec.md §4.7's final "Present" step).
func (s *Scheduler) EndFrame(f Frame) error {
	if err := f.Cmd.End(); err != nil {
		return err
	}
	ch := make(chan error, 1)
	s.done[f.Index] = ch
	ctxt.GPU().Commit([]driver.CmdBuffer{f.Cmd}, ch)
	if err := s.sc.Present(f.Image, f.Cmd); err != nil {
		return err
	}
	s.frame = (s.frame + 1) % MaxFramesInFlight
	return nil
}

// Destroy waits for every in-flight frame to retire and releases the
// swapchain and command buffers.
func (s *Scheduler) Destroy() {
	if s == nil {
		return
	}
	for i, done := range s.done {
		if done != nil {
			<-done
		}
		if s.cb[i] != nil {
			s.cb[i].Destroy()
		}
	}
	if s.sc != nil {
		s.sc.Destroy()
	}
	*s = Scheduler{}
}
