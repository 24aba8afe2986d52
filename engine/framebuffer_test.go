// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import "testing"

func TestNewFramebuffer(t *testing.T) {
	fb, err := NewFramebuffer(64, 48)
	if err != nil {
		t.Fatalf("NewFramebuffer failed:\n%#v", err)
	}
	defer fb.Destroy()
	if fb.Albedo == nil || fb.Normal == nil || fb.Motion == nil || fb.Depth == nil ||
		fb.Material == nil || fb.HistoryColor == nil || fb.HistoryColorPrev == nil ||
		fb.Accum == nil || fb.AccumPrev == nil || fb.Color == nil {
		t.Fatal("NewFramebuffer left one or more images nil")
	}
	if fb.Albedo.Width() != 64 || fb.Albedo.Height() != 48 {
		t.Fatalf("Albedo size:\nhave %dx%d\nwant 64x48", fb.Albedo.Width(), fb.Albedo.Height())
	}
}

func TestFramebufferSwapHistory(t *testing.T) {
	fb, err := NewFramebuffer(16, 16)
	if err != nil {
		t.Fatalf("NewFramebuffer failed:\n%#v", err)
	}
	defer fb.Destroy()
	cur, prev := fb.HistoryColor, fb.HistoryColorPrev
	accum, accumPrev := fb.Accum, fb.AccumPrev
	fb.SwapHistory()
	if fb.HistoryColor != prev || fb.HistoryColorPrev != cur {
		t.Fatal("SwapHistory did not exchange HistoryColor/HistoryColorPrev")
	}
	if fb.Accum != accumPrev || fb.AccumPrev != accum {
		t.Fatal("SwapHistory did not exchange Accum/AccumPrev")
	}
}

func TestFramebufferResizeNoop(t *testing.T) {
	fb, err := NewFramebuffer(32, 32)
	if err != nil {
		t.Fatalf("NewFramebuffer failed:\n%#v", err)
	}
	defer fb.Destroy()
	albedo := fb.Albedo
	if err := fb.Resize(32, 32); err != nil {
		t.Fatalf("Resize to identical size failed:\n%#v", err)
	}
	if fb.Albedo != albedo {
		t.Fatal("Resize to identical size reallocated the framebuffer")
	}
}
