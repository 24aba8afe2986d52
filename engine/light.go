// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const pi32 = float32(math.Pi)

// LightID is the host-supplied identifier of an uploaded light,
// unique among currently-live lights the same way GeometryID is
// (spec.md §3.4, §3.5).
type LightID uint64

// SectorID names a host-defined space partition (spec.md §3.7). The
// zero value is the implicit sector assumed when the host never
// calls DeclareSectorVisibility.
type SectorID uint32

// LightKind selects which of LightEncoded's data fields are
// meaningful (spec.md §3.4).
type LightKind uint32

// Light kinds.
const (
	LightDirectional LightKind = iota
	LightSphere
	LightTriangle
	LightSpot
)

func (k LightKind) String() string {
	switch k {
	case LightDirectional:
		return "directional"
	case LightSphere:
		return "sphere"
	case LightTriangle:
		return "triangle"
	case LightSpot:
		return "spot"
	default:
		return "light?"
	}
}

// Encoding thresholds (spec.md §3.4). MinSphereRadius keeps a point
// light's solid-angle term finite; MinColorSum is the silent-drop
// threshold for lights too dim to matter to the integrator.
const (
	MinSphereRadius = 1e-4
	MinColorSum     = 1e-6
)

// LightEncoded is the GPU-resident light record produced by the
// encoder, consumed directly by the light-grid build and the direct
// lighting raygen stage (spec.md §3.4).
type LightEncoded struct {
	Color mgl32.Vec3
	Kind  LightKind
	Data0 mgl32.Vec4
	Data1 mgl32.Vec4
	Data2 mgl32.Vec4
}

// lightEncodedSize is LightEncoded's packed GPU size: a vec3 color,
// a uint32 kind and three vec4 data slots.
const lightEncodedSize = 12 + 4 + 16*3

func colorSum(c mgl32.Vec3) float32 { return c[0] + c[1] + c[2] }

// encodeDirectional builds a DIR light record. direction need not be
// pre-normalized. Directional lights are singular per frame; callers
// enforce that invariant (spec.md §3.4, §4.6).
func encodeDirectional(direction mgl32.Vec3, angularRadius float32, color mgl32.Vec3) (LightEncoded, error) {
	if angularRadius <= 0 {
		return LightEncoded{}, newErr(WrongArgument, "directional light angular radius must be positive")
	}
	d := direction.Normalize()
	return LightEncoded{
		Color: color,
		Kind:  LightDirectional,
		Data0: mgl32.Vec4{d[0], d[1], d[2], angularRadius},
	}, nil
}

// encodeSphere builds a SPHERE light record; radius is clamped below
// by MinSphereRadius and color is divided by the sphere's disk area
// so shaders receive radiant exitance (spec.md §3.4).
func encodeSphere(center mgl32.Vec3, radius float32, color mgl32.Vec3) (LightEncoded, error) {
	if radius < 0 {
		return LightEncoded{}, newErr(WrongArgument, "sphere light radius must be non-negative")
	}
	if radius < MinSphereRadius {
		radius = MinSphereRadius
	}
	area := pi32 * radius * radius
	c := mgl32.Vec3{color[0] / area, color[1] / area, color[2] / area}
	return LightEncoded{
		Color: c,
		Kind:  LightSphere,
		Data0: mgl32.Vec4{center[0], center[1], center[2], radius},
	}, nil
}

// encodeTriangle builds a TRIANGLE light record. The unnormalized
// cross-product normal (its length is twice the triangle's area) is
// stashed in the w components of the data slots: x in Data0.w, y in
// Data1.w, z in Data2.w; color is divided by area (spec.md §3.4).
func encodeTriangle(p0, p1, p2 mgl32.Vec3, color mgl32.Vec3) (LightEncoded, error) {
	e1 := p1.Sub(p0)
	e2 := p2.Sub(p0)
	n := e1.Cross(e2)
	twiceArea := n.Len()
	if twiceArea <= 0 {
		return LightEncoded{}, newErr(WrongArgument, "triangle light is degenerate")
	}
	area := twiceArea / 2
	c := mgl32.Vec3{color[0] / area, color[1] / area, color[2] / area}
	return LightEncoded{
		Color: c,
		Kind:  LightTriangle,
		Data0: mgl32.Vec4{p0[0], p0[1], p0[2], n[0]},
		Data1: mgl32.Vec4{p1[0], p1[1], p1[2], n[1]},
		Data2: mgl32.Vec4{p2[0], p2[1], p2[2], n[2]},
	}, nil
}

// encodeSpot builds a SPOT light record; color is divided by disk
// area as with SPHERE (spec.md §3.4).
func encodeSpot(center mgl32.Vec3, radius float32, direction mgl32.Vec3, cosInner, cosOuter float32, color mgl32.Vec3) (LightEncoded, error) {
	if radius < 0 {
		return LightEncoded{}, newErr(WrongArgument, "spot light radius must be non-negative")
	}
	if cosOuter >= cosInner {
		return LightEncoded{}, newErr(WrongArgument, "spot light cos_outer must be less than cos_inner")
	}
	if radius < MinSphereRadius {
		radius = MinSphereRadius
	}
	area := pi32 * radius * radius
	c := mgl32.Vec3{color[0] / area, color[1] / area, color[2] / area}
	d := direction.Normalize()
	return LightEncoded{
		Color: c,
		Kind:  LightSpot,
		Data0: mgl32.Vec4{center[0], center[1], center[2], radius},
		Data1: mgl32.Vec4{d[0], d[1], d[2], 0},
		Data2: mgl32.Vec4{cosInner, cosOuter, 0, 0},
	}, nil
}

func putLightEncoded(dst []byte, le LightEncoded) {
	putVec3(dst[0:], le.Color)
	putUint32(dst[12:], uint32(le.Kind))
	putVec4(dst[16:], le.Data0)
	putVec4(dst[32:], le.Data1)
	putVec4(dst[48:], le.Data2)
}

func putVec4(dst []byte, v mgl32.Vec4) {
	putFloat32(dst[0:], v[0])
	putFloat32(dst[4:], v[1])
	putFloat32(dst[8:], v[2])
	putFloat32(dst[12:], v[3])
}
