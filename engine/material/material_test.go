// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package material

import (
	"testing"

	"github.com/mireva/rtcore/driver"
	"github.com/mireva/rtcore/engine/texture"
)

func newTestTexSet(t *testing.T) TexSet {
	param := &texture.TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 64, Height: 64},
		Layers:   1,
		Levels:   1,
		Samples:  1,
	}
	albedo, err := texture.New2D(param)
	if err != nil {
		t.Fatalf("texture.New2D failed:\n%#v", err)
	}
	splr, err := texture.NewSampler(&texture.SplrParam{
		Min:      driver.FLinear,
		Mag:      driver.FLinear,
		Mipmap:   driver.FNearest,
		AddrU:    driver.AWrap,
		AddrV:    driver.AWrap,
		AddrW:    driver.AWrap,
		MaxAniso: 1,
		Cmp:      driver.CNever,
	})
	if err != nil {
		t.Fatalf("texture.NewSampler failed:\n%#v", err)
	}
	return TexSet{Albedo: albedo, Sampler: splr}
}

func kindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return GenericError
}

func TestCreateStaticMaterial(t *testing.T) {
	m, err := NewManager(4)
	if err != nil {
		t.Fatalf("NewManager failed:\n%#v", err)
	}
	defer m.Destroy()

	tex := newTestTexSet(t)
	h, err := m.CreateStaticMaterial(tex)
	if err != nil {
		t.Fatalf("CreateStaticMaterial failed:\n%#v", err)
	}
	if h == (Handle{}) {
		t.Fatal("CreateStaticMaterial: returned the zero Handle")
	}
	if slot := m.ResolveSlot(h); slot == 0xffffffff {
		t.Fatal("ResolveSlot: returned the unbound sentinel for a live handle")
	}
	if err := m.DestroyMaterial(h); err != nil {
		t.Fatalf("DestroyMaterial failed:\n%#v", err)
	}
	if slot := m.ResolveSlot(h); slot != 0xffffffff {
		t.Fatalf("ResolveSlot: have %d, want 0xffffffff after DestroyMaterial", slot)
	}
}

func TestCreateAnimatedMaterial(t *testing.T) {
	m, err := NewManager(4)
	if err != nil {
		t.Fatalf("NewManager failed:\n%#v", err)
	}
	defer m.Destroy()

	frames := []TexSet{newTestTexSet(t), newTestTexSet(t), newTestTexSet(t)}
	h, err := m.CreateAnimatedMaterial(frames)
	if err != nil {
		t.Fatalf("CreateAnimatedMaterial failed:\n%#v", err)
	}
	if err := m.ChangeAnimatedMaterialFrame(h, 2); err != nil {
		t.Fatalf("ChangeAnimatedMaterialFrame failed:\n%#v", err)
	}
	if err := m.ChangeAnimatedMaterialFrame(h, 3); err == nil {
		t.Fatal("ChangeAnimatedMaterialFrame: succeeded with an out-of-range frame")
	}

	static, err := m.CreateStaticMaterial(newTestTexSet(t))
	if err != nil {
		t.Fatalf("CreateStaticMaterial failed:\n%#v", err)
	}
	if err := m.ChangeAnimatedMaterialFrame(static, 0); kindOf(err) != CannotUpdateAnimatedMaterial {
		t.Fatalf("ChangeAnimatedMaterialFrame on a static material:\nhave %#v\nwant kind %v", err, CannotUpdateAnimatedMaterial)
	}
}

func TestDynamicMaterial(t *testing.T) {
	m, err := NewManager(4)
	if err != nil {
		t.Fatalf("NewManager failed:\n%#v", err)
	}
	defer m.Destroy()

	h, err := m.CreateDynamicMaterial(newTestTexSet(t))
	if err != nil {
		t.Fatalf("CreateDynamicMaterial failed:\n%#v", err)
	}
	if err := m.UpdateDynamicMaterial(h, newTestTexSet(t)); err != nil {
		t.Fatalf("UpdateDynamicMaterial failed:\n%#v", err)
	}

	static, err := m.CreateStaticMaterial(newTestTexSet(t))
	if err != nil {
		t.Fatalf("CreateStaticMaterial failed:\n%#v", err)
	}
	if err := m.UpdateDynamicMaterial(static, newTestTexSet(t)); kindOf(err) != CannotUpdateDynamicMaterial {
		t.Fatalf("UpdateDynamicMaterial on a static material:\nhave %#v\nwant kind %v", err, CannotUpdateDynamicMaterial)
	}
}

func TestSlotEviction(t *testing.T) {
	m, err := NewManager(2)
	if err != nil {
		t.Fatalf("NewManager failed:\n%#v", err)
	}
	defer m.Destroy()

	h1, _ := m.CreateStaticMaterial(newTestTexSet(t))
	h2, _ := m.CreateStaticMaterial(newTestTexSet(t))
	slot1, slot2 := m.ResolveSlot(h1), m.ResolveSlot(h2)
	if slot1 == slot2 {
		t.Fatalf("ResolveSlot: h1 and h2 share slot %d", slot1)
	}

	// h1 is now the least-recently-bound material: a third material
	// must evict it and reuse its slot rather than failing.
	h3, err := m.CreateStaticMaterial(newTestTexSet(t))
	if err != nil {
		t.Fatalf("CreateStaticMaterial failed to evict an LRU victim:\n%#v", err)
	}
	if slot := m.ResolveSlot(h1); slot != 0xffffffff {
		t.Fatalf("ResolveSlot: h1 should have been evicted, got slot %d", slot)
	}
	if slot := m.ResolveSlot(h3); slot != slot1 {
		t.Fatalf("ResolveSlot: h3\nhave %d\nwant reused slot %d", slot, slot1)
	}
}

func TestCubemap(t *testing.T) {
	m, err := NewManager(4)
	if err != nil {
		t.Fatalf("NewManager failed:\n%#v", err)
	}
	defer m.Destroy()

	h, tex, err := m.CreateCubemap(&texture.TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 512, Height: 512},
		Layers:   6,
		Levels:   1,
		Samples:  1,
	})
	if err != nil || tex == nil {
		t.Fatalf("CreateCubemap failed:\n%#v", err)
	}
	if err := m.DestroyCubemap(h); err != nil {
		t.Fatalf("DestroyCubemap failed:\n%#v", err)
	}
	if err := m.DestroyCubemap(h); err == nil {
		t.Fatal("DestroyCubemap: succeeded twice on the same handle")
	}
}
