// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

// matchSentinel marks a previous-frame slot that was not re-added
// this frame (spec.md §3.5).
const matchSentinel = 0xFFFFFFFF

// identityMap implements the stable unique_id → current-frame-index
// table shared by the geometry-instance table and the light manager
// (spec.md §3.5). On PrepareForFrame the current map becomes the
// previous map and a new, empty current map takes its place; Add
// records a match into the previous frame's slot whenever the id
// survived from last frame.
//
// Parameterized the way internal/bitm.Bitm is parameterized over its
// storage granularity, rather than duplicated per id type.
type identityMap[K comparable] struct {
	prev      map[K]int
	cur       map[K]int
	matchPrev []uint32
}

func newIdentityMap[K comparable]() *identityMap[K] {
	return &identityMap[K]{prev: make(map[K]int), cur: make(map[K]int)}
}

// PrepareForFrame retains the current map as the previous map,
// starts a fresh current map, and sizes matchPrev to prevCount
// sentinels.
func (m *identityMap[K]) PrepareForFrame(prevCount int) {
	m.prev, m.cur = m.cur, make(map[K]int, len(m.cur))
	m.matchPrev = make([]uint32, prevCount)
	for i := range m.matchPrev {
		m.matchPrev[i] = matchSentinel
	}
}

// Add registers id at the given current-frame index. It reports
// whether id was already present this frame, in which case the
// caller must treat it as a duplicate and not mutate any state on
// the strength of this call.
func (m *identityMap[K]) Add(id K, index int) (duplicate bool) {
	if _, ok := m.cur[id]; ok {
		return true
	}
	m.cur[id] = index
	if p, ok := m.prev[id]; ok && p < len(m.matchPrev) {
		m.matchPrev[p] = uint32(index)
	}
	return false
}

// MatchPrev returns matchPrev[p] = the current-frame index of the
// record that occupied previous-frame index p, or matchSentinel.
func (m *identityMap[K]) MatchPrev() []uint32 { return m.matchPrev }

// Reset discards both maps and the match table, as on a full scene
// reset.
func (m *identityMap[K]) Reset() {
	m.prev = make(map[K]int)
	m.cur = make(map[K]int)
	m.matchPrev = nil
}
