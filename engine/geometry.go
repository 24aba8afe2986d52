// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import "github.com/go-gl/mathgl/mgl32"

// GeometryID is the host-supplied identifier of an uploaded
// triangle mesh. It must be unique among currently-live geometries;
// re-registering a live id is an IDNotUnique error (spec.md §3.2).
type GeometryID uint64

// BlendMode selects how a geometry layer's color factor combines
// with its texture, mirroring the per-layer blend field of the
// geometry record (spec.md §3.2).
type BlendMode int

// Blend modes.
const (
	BlendOpaque BlendMode = iota
	BlendAlpha
	BlendAdd
	BlendShade
)

// TexCoordLayer is the maximum number of texture-coordinate/material
// layers a geometry carries.
const TexCoordLayer = 3

// GeometryUpload describes a triangle mesh as supplied by the host
// to UploadGeometry (spec.md §3.2).
type GeometryUpload struct {
	ID     GeometryID
	Filter Filter

	VertexCount int
	Positions   []mgl32.Vec3
	Normals     []mgl32.Vec3
	TexCoords   [TexCoordLayer][]mgl32.Vec2
	Colors      []mgl32.Vec4

	// Indices is optional; when empty the mesh is unindexed and
	// VertexCount must be a multiple of 3.
	Indices []uint32

	LayerMaterials [TexCoordLayer]MaterialHandle
	LayerColors    [TexCoordLayer]mgl32.Vec4
	LayerBlend     [TexCoordLayer]BlendMode

	DefaultRoughness float32
	DefaultMetallic  float32
	DefaultEmission  float32

	Transform mgl32.Mat4
}

// PrimitiveCount returns the number of triangles described by the
// upload.
func (g *GeometryUpload) PrimitiveCount() int {
	if len(g.Indices) > 0 {
		return len(g.Indices) / 3
	}
	return g.VertexCount / 3
}

func (g *GeometryUpload) validate() error {
	if g.VertexCount <= 0 {
		return newErr(WrongArgument, "geometry has no vertices")
	}
	if len(g.Positions) != g.VertexCount {
		return newErr(WrongArgument, "Positions length does not match VertexCount")
	}
	if len(g.Normals) != 0 && len(g.Normals) != g.VertexCount {
		return newErr(WrongArgument, "Normals length does not match VertexCount")
	}
	for i := range g.TexCoords {
		if n := len(g.TexCoords[i]); n != 0 && n != g.VertexCount {
			return newErr(WrongArgument, "TexCoords layer length does not match VertexCount")
		}
	}
	if len(g.Indices) != 0 && len(g.Indices)%3 != 0 {
		return newErr(WrongArgument, "Indices length is not a multiple of 3")
	}
	if len(g.Indices) == 0 && g.VertexCount%3 != 0 {
		return newErr(WrongArgument, "unindexed VertexCount is not a multiple of 3")
	}
	return nil
}
