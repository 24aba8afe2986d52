// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import "github.com/google/uuid"

// Handle identifies a created engine instance (spec.md §6.1's
// create_instance/destroy_instance pair). Unlike the teacher's bare
// int-based Drawable/Node identifiers, handles returned across the
// public API are UUID-backed so hosts cannot mistake them for raw
// slot indices into internal storage.
type Handle uuid.UUID

// Nil is the zero Handle, never returned by Create.
var Nil Handle

func newHandle() Handle { return Handle(uuid.New()) }

func (h Handle) String() string { return uuid.UUID(h).String() }

// MaterialHandle identifies a material created through
// create_static_material, create_animated_material or
// create_dynamic_material.
type MaterialHandle uuid.UUID

// NilMaterial is the zero MaterialHandle; geometry layers left at
// this value have no material and fall back to the geometry's
// default roughness/metallic/emission values.
var NilMaterial MaterialHandle

func newMaterialHandle() MaterialHandle { return MaterialHandle(uuid.New()) }

func (h MaterialHandle) String() string { return uuid.UUID(h).String() }

// CubemapHandle identifies a cubemap created through create_cubemap.
type CubemapHandle uuid.UUID

func newCubemapHandle() CubemapHandle { return CubemapHandle(uuid.New()) }

func (h CubemapHandle) String() string { return uuid.UUID(h).String() }
