// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/internal/ctxt"
)

func newTestCmdBuffer() (driver.CmdBuffer, error) { return ctxt.GPU().NewCmdBuffer() }

func testSceneParams() *SceneParams {
	return &SceneParams{
		NFrame:       MaxFramesInFlight,
		VertexCap:    1024,
		IndexCap:     2048,
		MaxMovable:   16,
		MaxInstances: 64,
		GridCellSize: 4,
		ResolveSlot:  func(MaterialHandle) uint32 { return 0 },
	}
}

func TestNewScene(t *testing.T) {
	s, err := NewScene(testSceneParams())
	if err != nil {
		t.Fatalf("NewScene failed:\n%#v", err)
	}
	defer s.Destroy()
	if s.Accel() == nil || s.Lights() == nil || s.Grid() == nil {
		t.Fatal("NewScene left a subsystem nil")
	}
}

func TestSceneBeginFrameEmpty(t *testing.T) {
	s, err := NewScene(testSceneParams())
	if err != nil {
		t.Fatalf("NewScene failed:\n%#v", err)
	}
	defer s.Destroy()

	cb, err := newTestCmdBuffer()
	if err != nil {
		t.Fatalf("newTestCmdBuffer failed:\n%#v", err)
	}
	defer cb.Destroy()

	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin failed:\n%#v", err)
	}
	if err := s.BeginFrame(cb, 0); err != nil {
		t.Fatalf("Scene.BeginFrame failed:\n%#v", err)
	}
	result, err := s.SubmitFrame(cb, 0)
	if err != nil {
		t.Fatalf("Scene.SubmitFrame failed:\n%#v", err)
	}
	if result.InstanceCount != 0 {
		t.Fatalf("SubmitFrame with no geometry: InstanceCount = %d, want 0", result.InstanceCount)
	}
}
