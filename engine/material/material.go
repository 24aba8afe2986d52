// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package material implements the material/texture delegation
// contract: the engine core tracks handles, descriptor-heap texture
// slots and per-frame animation state, but the PBR shading math and
// pixel decoding stay the host's responsibility (spec.md §6.1).
package material

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mireva/rtcore/engine/texture"
)

const prefix = "material: "

// ErrorKind classifies a material package error. It mirrors the
// subset of engine.ErrorKind this package can produce; engine.go
// translates between the two at the package boundary so that
// material never imports engine.
type ErrorKind int

const (
	GenericError ErrorKind = iota
	WrongArgument
	WrongInstance
	CannotUpdateDynamicMaterial
	CannotUpdateAnimatedMaterial
)

// Error is the error type returned by every Manager method.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string { return prefix + e.Reason }

func newErr(kind ErrorKind, reason string) *Error { return &Error{kind, reason} }

// Handle identifies a material created through CreateStaticMaterial,
// CreateAnimatedMaterial or CreateDynamicMaterial.
type Handle uuid.UUID

func newHandle() Handle { return Handle(uuid.New()) }

func (h Handle) String() string { return uuid.UUID(h).String() }

// CubemapHandle identifies a cubemap created through CreateCubemap.
type CubemapHandle uuid.UUID

func newCubemapHandle() CubemapHandle { return CubemapHandle(uuid.New()) }

func (h CubemapHandle) String() string { return uuid.UUID(h).String() }

// Kind classifies how a material's TexSet may change after creation.
type Kind int

const (
	// KindStatic materials never change after creation.
	KindStatic Kind = iota
	// KindAnimated materials hold a fixed sequence of frames, one of
	// which is selected by ChangeAnimatedMaterialFrame.
	KindAnimated
	// KindDynamic materials are replaced wholesale by
	// UpdateDynamicMaterial, e.g. for video or procedural textures.
	KindDynamic
)

// TexSet is one material frame's texture references: the four maps
// RayTracedGL1 calls "original textures" (spec.md's
// textures_override_folder/*_postfix config fields resolve these by
// convention on the host side; this package only tracks the
// resulting handles).
type TexSet struct {
	Albedo            *texture.Texture
	Normal            *texture.Texture
	RoughnessMetallic *texture.Texture
	Emission          *texture.Texture
	Sampler           *texture.Sampler
}

type record struct {
	kind   Kind
	frames []TexSet
	cur    int
	slot   uint32
}

// Manager creates and tracks materials, assigning each one a
// descriptor-heap texture slot out of a fixed-size table. When the
// table is full, the least-recently-bound material is evicted and
// its slot reassigned rather than failing the call outright
// (SPEC_FULL.md §2 domain stack).
type Manager struct {
	mu        sync.Mutex
	cache     *lru.Cache[Handle, *record]
	cubemaps  map[CubemapHandle]*texture.Texture
	freeSlots []uint32
	nextSlot  uint32
	maxSlots  uint32
}

// NewManager creates a Manager with room for maxSlots bound
// materials.
func NewManager(maxSlots uint32) (*Manager, error) {
	if maxSlots == 0 {
		return nil, newErr(WrongArgument, "maxSlots must be greater than zero")
	}
	m := &Manager{cubemaps: make(map[CubemapHandle]*texture.Texture), maxSlots: maxSlots}
	evict := func(_ Handle, rec *record) { m.freeSlots = append(m.freeSlots, rec.slot) }
	cache, err := lru.NewWithEvict(int(maxSlots), evict)
	if err != nil {
		return nil, newErr(GenericError, err.Error())
	}
	m.cache = cache
	return m, nil
}

// allocSlot returns a free slot index, evicting the least-recently-
// bound material if the table is full. Must be called with mu held.
func (m *Manager) allocSlot() uint32 {
	if n := len(m.freeSlots); n > 0 {
		slot := m.freeSlots[n-1]
		m.freeSlots = m.freeSlots[:n-1]
		return slot
	}
	if m.nextSlot < m.maxSlots {
		slot := m.nextSlot
		m.nextSlot++
		return slot
	}
	// Table full and nothing free: evict the cache's own LRU victim,
	// whose evict callback pushes its slot onto freeSlots.
	m.cache.RemoveOldest()
	n := len(m.freeSlots)
	slot := m.freeSlots[n-1]
	m.freeSlots = m.freeSlots[:n-1]
	return slot
}

func validTexSet(tex *TexSet) error {
	switch {
	case tex == nil:
		return newErr(WrongArgument, "nil TexSet")
	case tex.Sampler == nil:
		return newErr(WrongArgument, "nil TexSet.Sampler")
	}
	return nil
}

// CreateStaticMaterial registers a material whose texture set never
// changes.
func (m *Manager) CreateStaticMaterial(tex TexSet) (Handle, error) {
	if err := validTexSet(&tex); err != nil {
		return Handle{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := newHandle()
	rec := &record{kind: KindStatic, frames: []TexSet{tex}, slot: m.allocSlot()}
	m.cache.Add(h, rec)
	return h, nil
}

// CreateAnimatedMaterial registers a material backed by a fixed
// sequence of texture-set frames, initially showing frame 0.
func (m *Manager) CreateAnimatedMaterial(frames []TexSet) (Handle, error) {
	if len(frames) == 0 {
		return Handle{}, newErr(WrongArgument, "no frames")
	}
	for i := range frames {
		if err := validTexSet(&frames[i]); err != nil {
			return Handle{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := newHandle()
	cp := make([]TexSet, len(frames))
	copy(cp, frames)
	rec := &record{kind: KindAnimated, frames: cp, slot: m.allocSlot()}
	m.cache.Add(h, rec)
	return h, nil
}

// ChangeAnimatedMaterialFrame selects which frame of an animated
// material is currently bound. h must identify a material created by
// CreateAnimatedMaterial.
func (m *Manager) ChangeAnimatedMaterialFrame(h Handle, frame int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.cache.Get(h)
	if !ok {
		return newErr(WrongInstance, "unknown material handle")
	}
	if rec.kind != KindAnimated {
		return newErr(CannotUpdateAnimatedMaterial, "material is not animated")
	}
	if frame < 0 || frame >= len(rec.frames) {
		return newErr(WrongArgument, "frame index out of range")
	}
	rec.cur = frame
	return nil
}

// CreateDynamicMaterial registers a material whose texture set is
// expected to be replaced via UpdateDynamicMaterial, typically once
// per frame.
func (m *Manager) CreateDynamicMaterial(tex TexSet) (Handle, error) {
	if err := validTexSet(&tex); err != nil {
		return Handle{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := newHandle()
	rec := &record{kind: KindDynamic, frames: []TexSet{tex}, slot: m.allocSlot()}
	m.cache.Add(h, rec)
	return h, nil
}

// UpdateDynamicMaterial replaces the texture set of a dynamic
// material in place, keeping its handle and descriptor slot stable.
func (m *Manager) UpdateDynamicMaterial(h Handle, tex TexSet) error {
	if err := validTexSet(&tex); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.cache.Get(h)
	if !ok {
		return newErr(WrongInstance, "unknown material handle")
	}
	if rec.kind != KindDynamic {
		return newErr(CannotUpdateDynamicMaterial, "material is not dynamic")
	}
	rec.frames[0] = tex
	return nil
}

// DestroyMaterial releases h and returns its descriptor slot to the
// free list.
func (m *Manager) DestroyMaterial(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cache.Contains(h) {
		return newErr(WrongInstance, "unknown material handle")
	}
	// Remove runs the evict callback, which returns the slot to
	// freeSlots.
	m.cache.Remove(h)
	return nil
}

// ResolveSlot returns the descriptor-heap texture slot currently
// bound to h, or 0xffffffff if h is not a known handle. It matches
// the matSlot callback contract the geometry-instance table packer
// expects (engine.GeometryInstance's MaterialIDs).
func (m *Manager) ResolveSlot(h Handle) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.cache.Get(h)
	if !ok {
		return 0xffffffff
	}
	return rec.slot
}

// CreateCubemap creates a cube texture for use as a skybox
// (spec.md's PV_SKY filter class, §4.5.1). Cubemaps are not bound by
// the material slot table: a scene holds at most a handful of them.
func (m *Manager) CreateCubemap(param *texture.TexParam) (CubemapHandle, *texture.Texture, error) {
	tex, err := texture.NewCube(param)
	if err != nil {
		return CubemapHandle{}, nil, newErr(WrongArgument, err.Error())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := newCubemapHandle()
	m.cubemaps[h] = tex
	return h, tex, nil
}

// DestroyCubemap frees the cube texture identified by h.
func (m *Manager) DestroyCubemap(h CubemapHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tex, ok := m.cubemaps[h]
	if !ok {
		return newErr(WrongInstance, "unknown cubemap handle")
	}
	tex.Free()
	delete(m.cubemaps, h)
	return nil
}

// Destroy frees every cubemap still registered. Materials hold no
// driver resources of their own (textures are host-owned), so there
// is nothing else to release.
func (m *Manager) Destroy() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, tex := range m.cubemaps {
		tex.Free()
		delete(m.cubemaps, h)
	}
	m.cache.Purge()
}
