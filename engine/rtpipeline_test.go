// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import "testing"

func TestRaygenOrder(t *testing.T) {
	want := [numRaygenStages]RaygenStage{
		StagePrimary, StageReflRefr, StageDirect, StageIndirectInit,
		StageGradients, StageInitialReservoirs, StageIndirectFinal, StageVolumetric,
	}
	if RaygenOrder != want {
		t.Fatalf("RaygenOrder:\nhave %v\nwant %v", RaygenOrder, want)
	}
	for i, s := range RaygenOrder {
		if int(s) != i {
			t.Fatalf("RaygenOrder[%d] = %v, want stage index %d", i, s, i)
		}
	}
}

func TestRaygenStageString(t *testing.T) {
	cases := map[RaygenStage]string{
		StagePrimary:           "PRIMARY",
		StageReflRefr:          "REFL_REFR",
		StageDirect:            "DIRECT",
		StageIndirectInit:      "INDIRECT_INIT",
		StageGradients:         "GRADIENTS",
		StageInitialReservoirs: "INITIAL_RESERVOIRS",
		StageIndirectFinal:     "INDIRECT_FINAL",
		StageVolumetric:        "VOLUMETRIC",
		RaygenStage(99):        "UNKNOWN",
	}
	for stage, want := range cases {
		if have := stage.String(); have != want {
			t.Fatalf("RaygenStage(%d).String():\nhave %s\nwant %s", stage, have, want)
		}
	}
}

func TestDispatchRejectsNonRTCmdBuffer(t *testing.T) {
	p := &RTPipeline{raygenStride: 64}
	if err := p.Dispatch(nil, StagePrimary, 1, 1); err == nil {
		t.Fatal("Dispatch with a command buffer that is not a driver.RTCmdBuffer: want error, have nil")
	}
}
