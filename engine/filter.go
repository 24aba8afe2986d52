// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import "fmt"

// CF is the lifetime-class group of a filter flag (spec.md §3.1).
// Exactly one CF bit is set in any valid Filter.
type CF uint32

// Lifetime classes.
const (
	CFStaticNonMovable CF = 1 << iota
	CFStaticMovable
	CFDynamic
)

func (c CF) String() string {
	switch c {
	case CFStaticNonMovable:
		return "static_non_movable"
	case CFStaticMovable:
		return "static_movable"
	case CFDynamic:
		return "dynamic"
	default:
		return "cf?"
	}
}

// cfMask is the union of every CF bit.
const cfMask = CFStaticNonMovable | CFStaticMovable | CFDynamic

// PT is the pass-through (blending) group of a filter flag.
// Exactly one PT bit is set in any valid Filter.
type PT uint32

// Pass-through classes.
const (
	PTOpaque PT = 1 << iota
	PTAlphaTested
	PTReflectRefract
)

func (p PT) String() string {
	switch p {
	case PTOpaque:
		return "opaque"
	case PTAlphaTested:
		return "alpha_tested"
	case PTReflectRefract:
		return "reflect_refract"
	default:
		return "pt?"
	}
}

const ptMask = PTOpaque | PTAlphaTested | PTReflectRefract

// PV is the primary-visibility group of a filter flag.
// Exactly one PV bit is set in any valid Filter.
type PV uint32

// Primary-visibility classes.
const (
	PVWorld0 PV = 1 << iota
	PVWorld1
	PVWorld2
	PVFirstPerson
	PVFirstPersonViewer
	PVSkybox
)

func (p PV) String() string {
	switch p {
	case PVWorld0:
		return "world_0"
	case PVWorld1:
		return "world_1"
	case PVWorld2:
		return "world_2"
	case PVFirstPerson:
		return "first_person"
	case PVFirstPersonViewer:
		return "first_person_viewer"
	case PVSkybox:
		return "skybox"
	default:
		return "pv?"
	}
}

const pvMask = PVWorld0 | PVWorld1 | PVWorld2 | PVFirstPerson | PVFirstPersonViewer | PVSkybox

// World PV classes that participate in the frame's ray-cull mask
// (spec.md §4.5.1).
var worldPV = [3]PV{PVWorld0, PVWorld1, PVWorld2}

// CullMask is a mask of PVWorld0..2 bits; bit k set means the
// frame's TLAS may contain PVWorld_k instances.
type CullMask uint32

// Filter is the union of exactly one CF, one PT and one PV bit
// (spec.md §3.1). It identifies a geometry class: the number of
// bottom-level structures, the layout of the shared vertex arrays,
// and the per-triangle custom-index bits all derive from it.
type Filter uint32

// MakeFilter builds a Filter from one bit of each group. It panics if
// any argument is not a single valid bit of its group — callers
// are expected to pass named constants, never raw integers.
func MakeFilter(cf CF, pt PT, pv PV) Filter {
	if cf&cfMask == 0 || cf&^cfMask != 0 || (cf&(cf-1)) != 0 {
		panic("engine: invalid CF value in MakeFilter")
	}
	if pt&ptMask == 0 || pt&^ptMask != 0 || (pt&(pt-1)) != 0 {
		panic("engine: invalid PT value in MakeFilter")
	}
	if pv&pvMask == 0 || pv&^pvMask != 0 || (pv&(pv-1)) != 0 {
		panic("engine: invalid PV value in MakeFilter")
	}
	return Filter(cf) | Filter(pt)<<8 | Filter(pv)<<16
}

// CF returns the filter's lifetime class.
func (f Filter) CF() CF { return CF(f & 0xFF) }

// PT returns the filter's pass-through class.
func (f Filter) PT() PT { return PT((f >> 8) & 0xFF) }

// PV returns the filter's primary-visibility class.
func (f Filter) PV() PV { return PV((f >> 16) & 0xFF) }

func (f Filter) String() string {
	return fmt.Sprintf("%s|%s|%s", f.CF(), f.PT(), f.PV())
}

// allCF, allPT, allPV list every bit of their group, used once to
// precompute the legal Filter cross-product.
var (
	allCF = [...]CF{CFStaticNonMovable, CFStaticMovable, CFDynamic}
	allPT = [...]PT{PTOpaque, PTAlphaTested, PTReflectRefract}
	allPV = [...]PV{PVWorld0, PVWorld1, PVWorld2, PVFirstPerson, PVFirstPersonViewer, PVSkybox}
)

// Filters is the precomputed, total enumeration of legal filters
// (every CF x PT x PV combination). Code that must operate over
// every filter class iterates this slice; it never reconstructs
// the cross-product or does bit arithmetic over raw CF/PT/PV values
// (spec.md §3.1 invariant).
var Filters = func() []Filter {
	fs := make([]Filter, 0, len(allCF)*len(allPT)*len(allPV))
	for _, cf := range allCF {
		for _, pt := range allPT {
			for _, pv := range allPV {
				fs = append(fs, MakeFilter(cf, pt, pv))
			}
		}
	}
	return fs
}()

// filterIndex maps a Filter to its position in Filters, computed
// once so that code needing a dense per-filter array index (e.g.,
// a BLAS-per-filter table) need not linearly search Filters.
var filterIndex = func() map[Filter]int {
	m := make(map[Filter]int, len(Filters))
	for i, f := range Filters {
		m[f] = i
	}
	return m
}()

// Index returns f's position within Filters, the dense index used
// to key per-filter resource tables.
func (f Filter) Index() int {
	i, ok := filterIndex[f]
	if !ok {
		panic("engine: Filter value is not a member of Filters")
	}
	return i
}

// NFilter is the total number of legal filters.
var NFilter = len(Filters)
