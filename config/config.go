// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package config defines the engine's configuration (spec.md §6.2)
// and an optional TOML loader, mirroring how the teacher's
// engine.Config/DefaultConfig pair works but extended with every
// option the spec's create_instance contract recognizes.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/mireva/rtcore/log"
	"github.com/mireva/rtcore/surface"
)

// Config configures a created engine instance.
type Config struct {
	// DeviceIndex selects among the driver's reported physical
	// devices. -1 lets the driver choose.
	DeviceIndex int

	// WindowSurfaceExtensions lists the native extension names
	// required to present into a host-provided surface.
	WindowSurfaceExtensions []string

	// SurfaceCreationCallback is invoked once during Create with
	// a native instance handle; see surface.CreationCallback.
	SurfaceCreationCallback surface.CreationCallback

	ValidationOn bool

	// DebugPrintCallback receives every log message at or above
	// DebugMinSeverity.
	DebugPrintCallback  log.Callback
	DebugMinSeverity    log.Severity

	RasterizedVertexCap int
	RasterizedIndexCap  int

	TexturesOverrideFolder string
	AlbedoPostfix          string
	NormalPostfix          string
	EmissionPostfix        string

	DefaultRoughness float32
	DefaultMetallic  float32

	VertexPositionStride  int
	VertexNormalStride    int
	VertexTexCoordStride  int
	VertexColorStride     int
	VertexArrayOfStructs   bool

	DisableGeometrySkybox bool
}

// Default option values.
const (
	DefaultNormalPostfix   = "_n"
	DefaultEmissionPostfix = "_e"

	dflRasterizedVertexCap = 1 << 16
	dflRasterizedIndexCap  = 1 << 18
)

// Default returns the configuration used when a field is left at
// its zero value by the host, matching spec.md §6.2's documented
// defaults.
func Default() Config {
	return Config{
		DeviceIndex:         -1,
		NormalPostfix:       DefaultNormalPostfix,
		EmissionPostfix:     DefaultEmissionPostfix,
		DefaultRoughness:    1,
		DefaultMetallic:     0,
		RasterizedVertexCap: dflRasterizedVertexCap,
		RasterizedIndexCap:  dflRasterizedIndexCap,
		DebugMinSeverity:    log.Info,
	}
}

// fileConfig is the subset of Config that can be expressed in a
// TOML file: callbacks and extension lists are host-code concerns
// and are never read from disk.
type fileConfig struct {
	DeviceIndex             int      `toml:"device_index"`
	ValidationOn            bool     `toml:"validation_on"`
	RasterizedVertexCap     int      `toml:"rasterized_vertex_cap"`
	RasterizedIndexCap      int      `toml:"rasterized_index_cap"`
	TexturesOverrideFolder  string   `toml:"textures_override_folder"`
	AlbedoPostfix           string   `toml:"albedo_postfix"`
	NormalPostfix           string   `toml:"normal_postfix"`
	EmissionPostfix         string   `toml:"emission_postfix"`
	DefaultRoughness        float32  `toml:"default_roughness"`
	DefaultMetallic         float32  `toml:"default_metallic"`
	VertexPositionStride    int      `toml:"vertex_position_stride"`
	VertexNormalStride      int      `toml:"vertex_normal_stride"`
	VertexTexCoordStride    int      `toml:"vertex_texcoord_stride"`
	VertexColorStride       int      `toml:"vertex_color_stride"`
	VertexArrayOfStructs    bool     `toml:"vertex_array_of_structs_flag"`
	DisableGeometrySkybox   bool     `toml:"disable_geometry_skybox"`
}

// Load reads a TOML file at path and overlays it onto Default(),
// leaving the callback and extension-list fields for the caller to
// set afterward (they have no on-disk representation).
func Load(path string) (Config, error) {
	cfg := Default()
	fc := fileConfig{DeviceIndex: cfg.DeviceIndex}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return cfg, err
	}
	cfg.DeviceIndex = fc.DeviceIndex
	cfg.ValidationOn = fc.ValidationOn
	if fc.RasterizedVertexCap != 0 {
		cfg.RasterizedVertexCap = fc.RasterizedVertexCap
	}
	if fc.RasterizedIndexCap != 0 {
		cfg.RasterizedIndexCap = fc.RasterizedIndexCap
	}
	cfg.TexturesOverrideFolder = fc.TexturesOverrideFolder
	cfg.AlbedoPostfix = fc.AlbedoPostfix
	if fc.NormalPostfix != "" {
		cfg.NormalPostfix = fc.NormalPostfix
	}
	if fc.EmissionPostfix != "" {
		cfg.EmissionPostfix = fc.EmissionPostfix
	}
	if fc.DefaultRoughness != 0 {
		cfg.DefaultRoughness = fc.DefaultRoughness
	}
	cfg.DefaultMetallic = fc.DefaultMetallic
	cfg.VertexPositionStride = fc.VertexPositionStride
	cfg.VertexNormalStride = fc.VertexNormalStride
	cfg.VertexTexCoordStride = fc.VertexTexCoordStride
	cfg.VertexColorStride = fc.VertexColorStride
	cfg.VertexArrayOfStructs = fc.VertexArrayOfStructs
	cfg.DisableGeometrySkybox = fc.DisableGeometrySkybox
	return cfg, nil
}
