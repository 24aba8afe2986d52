// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filterBLAS(f Filter) *BLAS { return &BLAS{Filter: f, geometryCount: 1} }

func TestSetupTLASInstanceEmptyBLASSkipped(t *testing.T) {
	l := &BLAS{Filter: MakeFilter(CFStaticNonMovable, PTOpaque, PVWorld0)}
	_, ok := setupTLASInstanceFromBLAS(l, false, CullMask(MaskWorld0), false)
	assert.False(t, ok, "an empty BLAS must never produce a TLAS instance")
}

func TestSetupTLASInstanceWorldCullMaskDrop(t *testing.T) {
	l := filterBLAS(MakeFilter(CFStaticNonMovable, PTOpaque, PVWorld1))

	_, ok := setupTLASInstanceFromBLAS(l, false, CullMask(MaskWorld0|MaskWorld2), false)
	assert.False(t, ok, "a world BLAS whose bit is absent from the cull mask must be dropped")

	inst, ok := setupTLASInstanceFromBLAS(l, false, CullMask(MaskWorld0|MaskWorld1), false)
	require.True(t, ok)
	assert.Equal(t, uint8(MaskWorld1), inst.Mask)
}

func TestSetupTLASInstanceReflectRefractMaskOverride(t *testing.T) {
	l := filterBLAS(MakeFilter(CFStaticNonMovable, PTReflectRefract, PVWorld0))
	inst, ok := setupTLASInstanceFromBLAS(l, false, CullMask(MaskWorld0), false)
	require.True(t, ok)
	assert.Equal(t, uint8(MaskReflectRefract), inst.Mask, "PT_REFLECT_REFRACT must override the PV-derived mask")
	assert.NotZero(t, inst.CustomIndex&CustomIndexReflect)
}

func TestSetupTLASInstanceSkyboxDisabled(t *testing.T) {
	l := filterBLAS(MakeFilter(CFStaticNonMovable, PTOpaque, PVSkybox))
	_, ok := setupTLASInstanceFromBLAS(l, false, CullMask(MaskWorld0), true)
	assert.False(t, ok, "disableSkybox must drop PV_SKYBOX instances entirely")
}

func TestSetupTLASInstanceSkyboxEnabled(t *testing.T) {
	l := filterBLAS(MakeFilter(CFStaticNonMovable, PTOpaque, PVSkybox))
	inst, ok := setupTLASInstanceFromBLAS(l, false, CullMask(MaskWorld0), false)
	require.True(t, ok, "skybox participates in the TLAS as its own instance unless disabled")
	assert.Equal(t, uint8(MaskSkybox), inst.Mask)
	assert.NotZero(t, inst.CustomIndex&CustomIndexSkybox)
}

func TestSetupTLASInstanceDynamicCustomIndex(t *testing.T) {
	l := filterBLAS(MakeFilter(CFDynamic, PTOpaque, PVWorld0))
	inst, ok := setupTLASInstanceFromBLAS(l, true, CullMask(MaskWorld0), false)
	require.True(t, ok)
	assert.NotZero(t, inst.CustomIndex&CustomIndexDynamic)
}

func testASManager(t *testing.T) *ASManager {
	t.Helper()
	m, err := NewASManager(MaxFramesInFlight, 1024, 2048, 16, 64, false)
	require.NoError(t, err)
	t.Cleanup(m.Destroy)
	return m
}

// TestMovableBLASStableUpdate exercises spec.md §8.4 scenario 2: a
// STATIC_MOVABLE geometry's transform slot (and therefore its BLAS
// build-input reference) must stay the same across
// UpdateGeometryTransform calls instead of being reallocated.
func TestMovableBLASStableUpdate(t *testing.T) {
	m := testASManager(t)
	require.NoError(t, m.StartNewScene())

	g := &GeometryUpload{
		ID:          GeometryID(1),
		Filter:      MakeFilter(CFStaticMovable, PTOpaque, PVWorld0),
		VertexCount: 3,
		Positions:   []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Indices:     []uint32{0, 1, 2},
		Transform:   mgl32.Ident4(),
	}
	_, err := m.AddStaticGeometry(g)
	require.NoError(t, err)

	before, ok := m.movableOff[g.ID]
	require.True(t, ok)

	require.NoError(t, m.UpdateGeometryTransform(g.ID, mgl32.Translate3D(1, 2, 3)))

	after, ok := m.movableOff[g.ID]
	require.True(t, ok)
	assert.Equal(t, before, after, "a movable geometry's transform slot must stay stable across updates")
	assert.True(t, m.movableMoved[g.ID])
}

func TestAddStaticGeometryRejectsDynamicFilter(t *testing.T) {
	m := testASManager(t)
	require.NoError(t, m.StartNewScene())
	g := &GeometryUpload{
		ID:     GeometryID(1),
		Filter: MakeFilter(CFDynamic, PTOpaque, PVWorld0),
	}
	_, err := m.AddStaticGeometry(g)
	assert.Equal(t, WrongArgument, Kind(err))
}

func TestAddStaticGeometryOutsideRecordingRejected(t *testing.T) {
	m := testASManager(t)
	g := &GeometryUpload{
		ID:     GeometryID(1),
		Filter: MakeFilter(CFStaticNonMovable, PTOpaque, PVWorld0),
	}
	_, err := m.AddStaticGeometry(g)
	assert.Equal(t, WrongArgument, Kind(err), "AddStaticGeometry before StartNewScene must be rejected")
}
