// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/mireva/rtcore/driver"
)

// MaxLights bounds the number of lights live in any single frame;
// it sizes the light manager's device buffers.
const MaxLights = 4096

// LightManager is the per-frame light pipeline: stable identity and
// previous-frame match (spec.md §3.5, §4.6), the sector light-list
// accumulator, and the device buffers consumed by the direct
// lighting and light-grid passes.
type LightManager struct {
	encoded  []LightEncoded
	ids      *identityMap[LightID]
	dirCount int

	lists *lightLists

	buf      *AutoBuffer // light records
	matchBuf *AutoBuffer // match_prev, uint32 per previous-frame slot
	prevBuf  *TypedBuffer

	nFrame int
}

// NewLightManager creates a light manager sized for nFrame frames
// in flight.
func NewLightManager(nFrame int) (*LightManager, error) {
	lists, err := newLightLists(nFrame)
	if err != nil {
		return nil, err
	}
	buf, err := NewAutoBuffer(nFrame, int64(MaxLights)*lightEncodedSize, driver.UGeneric)
	if err != nil {
		lists.destroy()
		return nil, err
	}
	matchBuf, err := NewAutoBuffer(nFrame, int64(MaxLights)*4, driver.UGeneric)
	if err != nil {
		buf.Destroy()
		lists.destroy()
		return nil, err
	}
	prevBuf, err := NewTypedBuffer(int64(MaxLights)*lightEncodedSize, false, driver.UGeneric)
	if err != nil {
		matchBuf.Destroy()
		buf.Destroy()
		lists.destroy()
		return nil, err
	}
	return &LightManager{
		ids:      newIdentityMap[LightID](),
		lists:    lists,
		buf:      buf,
		matchBuf: matchBuf,
		prevBuf:  prevBuf,
		nFrame:   nFrame,
	}, nil
}

// DeclareSectorVisibility records a symmetric potentially-visible
// pair between two sectors (spec.md §3.7).
func (m *LightManager) DeclareSectorVisibility(a, b SectorID) { m.lists.declareVisibility(a, b) }

// ResetSectors clears the declared visibility relation; called
// together with a static scene reset (spec.md §3.7, §9.1).
func (m *LightManager) ResetSectors() { m.lists.reset() }

// PrepareForFrame retires the current-frame light array into the
// previous-frame device buffer, clears per-frame counters and the
// identity map, and prepares the light-list accumulator (spec.md
// §4.6's prepare_for_frame).
func (m *LightManager) PrepareForFrame(cmd driver.CmdBuffer, frame int) {
	prevCount := len(m.encoded)
	if prevCount > 0 {
		cmd.BeginBlit(false)
		cmd.CopyBuffer(&driver.BufferCopy{
			From: m.buf.Device(), FromOff: 0,
			To: m.prevBuf.Buffer(), ToOff: 0,
			Size: int64(prevCount) * lightEncodedSize,
		})
		cmd.EndBlit()
		cmd.Barrier([]driver.Barrier{{
			SyncBefore:   driver.SCopy,
			SyncAfter:    driver.SAll,
			AccessBefore: driver.ACopyWrite,
			AccessAfter:  driver.AAnyRead,
		}})
	}
	m.ids.PrepareForFrame(prevCount)
	m.encoded = m.encoded[:0]
	m.dirCount = 0
	m.lists.prepareForFrame()
}

// accept commits an encoded light under id into sector, unless its
// summed color falls below MinColorSum (silently dropped per
// spec.md §3.4). A non-nil error is a light-list capacity error;
// the light itself is still committed to the main array, since only
// its list membership overflowed (spec.md §7, §9.1).
func (m *LightManager) accept(id LightID, sector SectorID, enc LightEncoded) (index int, dropped bool, err error) {
	if colorSum(enc.Color) < MinColorSum {
		return 0, true, nil
	}
	index = len(m.encoded)
	if m.ids.Add(id, index) {
		return 0, false, newErr(IDNotUnique, "light id already registered this frame")
	}
	m.encoded = append(m.encoded, enc)
	if lerr := m.lists.insert(index, sector); lerr != nil {
		return index, false, lerr
	}
	return index, false, nil
}

// UploadDirectional adds the frame's directional light. At most one
// may be added per frame (spec.md §3.4, §4.6).
func (m *LightManager) UploadDirectional(id LightID, sector SectorID, direction, color mgl32.Vec3, angularRadius float32) (int, bool, error) {
	if m.dirCount > 0 {
		return 0, false, newErr(WrongArgument, "at most one directional light is allowed per frame")
	}
	enc, err := encodeDirectional(direction, angularRadius, color)
	if err != nil {
		return 0, false, err
	}
	idx, dropped, err := m.accept(id, sector, enc)
	if err == nil && !dropped {
		m.dirCount++
	}
	return idx, dropped, err
}

// UploadSpherical adds a spherical light.
func (m *LightManager) UploadSpherical(id LightID, sector SectorID, center mgl32.Vec3, radius float32, color mgl32.Vec3) (int, bool, error) {
	enc, err := encodeSphere(center, radius, color)
	if err != nil {
		return 0, false, err
	}
	return m.accept(id, sector, enc)
}

// UploadPolygonal adds a (triangular) polygonal light.
func (m *LightManager) UploadPolygonal(id LightID, sector SectorID, p0, p1, p2 mgl32.Vec3, color mgl32.Vec3) (int, bool, error) {
	enc, err := encodeTriangle(p0, p1, p2, color)
	if err != nil {
		return 0, false, err
	}
	return m.accept(id, sector, enc)
}

// UploadSpot adds a spot light.
func (m *LightManager) UploadSpot(id LightID, sector SectorID, center mgl32.Vec3, radius float32, direction mgl32.Vec3, cosInner, cosOuter float32, color mgl32.Vec3) (int, bool, error) {
	enc, err := encodeSpot(center, radius, direction, cosInner, cosOuter, color)
	if err != nil {
		return 0, false, err
	}
	return m.accept(id, sector, enc)
}

// CopyFromStaging stages this frame's light records and match_prev
// table, copies both to device, and builds+copies the light lists
// (spec.md §4.6's copy_from_staging).
func (m *LightManager) CopyFromStaging(cmd driver.CmdBuffer, frame int) {
	dst := m.buf.Map(frame)
	for i, le := range m.encoded {
		putLightEncoded(dst[i*lightEncodedSize:], le)
	}
	if len(m.encoded) > 0 {
		m.buf.CopyFromStaging(cmd, frame, []BufferRegion{{Offset: 0, Size: int64(len(m.encoded)) * lightEncodedSize}})
	}
	match := m.ids.MatchPrev()
	if len(match) > 0 {
		mdst := m.matchBuf.Map(frame)
		for i, v := range match {
			putUint32(mdst[i*4:], v)
		}
		m.matchBuf.CopyFromStaging(cmd, frame, []BufferRegion{{Offset: 0, Size: int64(len(match)) * 4}})
	}
	m.lists.buildAndCopy(cmd, frame)
}

// Count returns the number of lights live this frame.
func (m *LightManager) Count() int { return len(m.encoded) }

// CurrentBuffer returns this frame's light record device buffer.
func (m *LightManager) CurrentBuffer() driver.Buffer { return m.buf.Device() }

// PreviousBuffer returns the previous-frame light record device
// buffer, valid for use once CopyFromStaging/PrepareForFrame have
// run at least once.
func (m *LightManager) PreviousBuffer() driver.Buffer { return m.prevBuf.Buffer() }

// MatchPrevBuffer returns the device buffer holding this frame's
// match_prev table.
func (m *LightManager) MatchPrevBuffer() driver.Buffer { return m.matchBuf.Device() }

// PlainLightList returns the device buffer of concatenated
// per-sector light-index lists.
func (m *LightManager) PlainLightList() driver.Buffer { return m.lists.buf.Device() }

// SectorToRegion returns the device buffer of per-sector (begin,
// end) slices into PlainLightList.
func (m *LightManager) SectorToRegion() driver.Buffer { return m.lists.regBuf.Device() }

// Reset clears both frames' identity maps, counters and the sector
// visibility backing (spec.md §4.6's reset).
func (m *LightManager) Reset() {
	m.encoded = m.encoded[:0]
	m.dirCount = 0
	m.ids.Reset()
	m.lists.reset()
	m.lists.prepareForFrame()
}

// Destroy releases every device buffer owned by the light manager.
func (m *LightManager) Destroy() {
	if m == nil {
		return
	}
	m.buf.Destroy()
	m.matchBuf.Destroy()
	m.prevBuf.Destroy()
	m.lists.destroy()
	*m = LightManager{}
}
