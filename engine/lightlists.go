// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"

	"github.com/mireva/rtcore/driver"
)

// Capacities for the per-sector light accumulator (spec.md §4.6.1).
// MaxSectorCount bounds the number of distinct sectors seen in a
// frame; MaxLightListSize bounds the number of lights any single
// sector's list may hold.
const (
	MaxSectorCount   = 64
	MaxLightListSize = 256
)

// visibility is the symmetric potentially-visible relation declared
// by the host (spec.md §3.7). A nil entry (sector never declared)
// means the sector is visible only to itself.
type visibility map[SectorID][]SectorID

// lightLists accumulates, per sector, the indices of lights visible
// from that sector, and on build_and_copy packs them into the two
// flat device arrays the GPU light-grid pass indexes into (spec.md
// §4.6.1).
type lightLists struct {
	vis visibility

	order []SectorID          // sectors seen this frame, first-seen order
	by    map[SectorID][]int32 // sector -> light indices (own + visible sources)

	plain    []int32
	regions  []sectorRegion
	indexOf  map[SectorID]int // sector -> position in order/regions

	buf      *AutoBuffer // plain_light_list, int32 per entry
	regBuf   *AutoBuffer // sector_to_region, two uint32 per sector
}

// sectorRegion is a (begin, end) slice into the plain light list,
// mirrored into regBuf as sector_to_region (spec.md §4.6.1).
type sectorRegion struct {
	Begin, End uint32
}

func newLightLists(nFrame int) (*lightLists, error) {
	buf, err := NewAutoBuffer(nFrame, int64(MaxSectorCount)*int64(MaxLightListSize)*4, driver.UGeneric)
	if err != nil {
		return nil, err
	}
	regBuf, err := NewAutoBuffer(nFrame, int64(MaxSectorCount)*8, driver.UGeneric)
	if err != nil {
		buf.Destroy()
		return nil, err
	}
	return &lightLists{
		vis:    make(visibility),
		by:     make(map[SectorID][]int32),
		indexOf: make(map[SectorID]int),
		buf:    buf,
		regBuf: regBuf,
	}, nil
}

// declareVisibility records that sector a and sector b can see each
// other, the symmetric relation of spec.md §3.7.
func (l *lightLists) declareVisibility(a, b SectorID) {
	l.vis[a] = appendUnique(l.vis[a], b)
	l.vis[b] = appendUnique(l.vis[b], a)
}

func appendUnique(ss []SectorID, s SectorID) []SectorID {
	for _, x := range ss {
		if x == s {
			return ss
		}
	}
	return append(ss, s)
}

// reset clears the declared visibility relation, tied to a full
// static scene reset (spec.md §3.7, §9.1).
func (l *lightLists) reset() {
	l.vis = make(visibility)
}

// prepareForFrame clears every per-sector accumulator (spec.md
// §4.6's prepare_for_frame step).
func (l *lightLists) prepareForFrame() {
	l.order = l.order[:0]
	l.by = make(map[SectorID][]int32)
	l.plain = l.plain[:0]
	l.regions = l.regions[:0]
	l.indexOf = make(map[SectorID]int)
}

func (l *lightLists) touch(s SectorID) {
	if _, ok := l.by[s]; ok {
		return
	}
	l.by[s] = nil
	l.indexOf[s] = len(l.order)
	l.order = append(l.order, s)
}

// insert appends lightIdx to sector's own list and to the list of
// every sector visible from it. Overflow of a single sector's list
// is reported for that sector alone; sibling sectors still accept
// the light (spec.md §4.6.1, §9.1 "per-sector, not global").
func (l *lightLists) insert(lightIdx int, sector SectorID) error {
	targets := append([]SectorID{sector}, l.vis[sector]...)
	var firstErr error
	if len(l.order) >= MaxSectorCount {
		if _, known := l.by[sector]; !known {
			return newErr(TooManySectors, fmt.Sprintf("sector %d exceeds the %d live sector limit", sector, MaxSectorCount))
		}
	}
	for _, s := range targets {
		if _, known := l.by[s]; !known && len(l.order) >= MaxSectorCount {
			if firstErr == nil {
				firstErr = newErr(TooManySectors, fmt.Sprintf("sector %d exceeds the %d live sector limit", s, MaxSectorCount))
			}
			continue
		}
		l.touch(s)
		if len(l.by[s]) >= MaxLightListSize {
			if firstErr == nil {
				firstErr = newErr(TooManySectors, fmt.Sprintf("sector %d light list exceeds capacity %d", s, MaxLightListSize))
			}
			continue
		}
		l.by[s] = append(l.by[s], int32(lightIdx))
	}
	return firstErr
}

// buildAndCopy packs every sector's accumulated list into
// plain_light_list, in sector-first-seen order, derives
// sector_to_region, and stages both for upload (spec.md §4.6.1).
func (l *lightLists) buildAndCopy(cmd driver.CmdBuffer, frame int) {
	l.plain = l.plain[:0]
	l.regions = make([]sectorRegion, len(l.order))
	for i, s := range l.order {
		begin := uint32(len(l.plain))
		l.plain = append(l.plain, l.by[s]...)
		l.regions[i] = sectorRegion{Begin: begin, End: uint32(len(l.plain))}
	}
	plainBytes := l.buf.Map(frame)
	for i, v := range l.plain {
		putInt32(plainBytes[i*4:], v)
	}
	regBytes := l.regBuf.Map(frame)
	for i, r := range l.regions {
		putUint32(regBytes[i*8:], r.Begin)
		putUint32(regBytes[i*8+4:], r.End)
	}
	if len(l.plain) > 0 {
		l.buf.CopyFromStaging(cmd, frame, []BufferRegion{{Offset: 0, Size: int64(len(l.plain)) * 4}})
	}
	if len(l.regions) > 0 {
		l.regBuf.CopyFromStaging(cmd, frame, []BufferRegion{{Offset: 0, Size: int64(len(l.regions)) * 8}})
	}
}

// regionFor returns the sector's (begin, end) slice into the packed
// plain light list produced by the most recent buildAndCopy, for
// tests and host-side introspection.
func (l *lightLists) regionFor(s SectorID) (sectorRegion, bool) {
	i, ok := l.indexOf[s]
	if !ok {
		return sectorRegion{}, false
	}
	return l.regions[i], true
}

func (l *lightLists) destroy() {
	l.buf.Destroy()
	l.regBuf.Destroy()
}

func putInt32(dst []byte, v int32)  { putUint32(dst, uint32(v)) }
func putUint32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}
