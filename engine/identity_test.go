// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityMapAddRejectsDuplicate(t *testing.T) {
	m := newIdentityMap[GeometryID]()
	require.False(t, m.Add(GeometryID(1), 0))
	dup := m.Add(GeometryID(1), 1)
	assert.True(t, dup, "re-adding the same id in the same frame must be reported as a duplicate")
}

func TestIdentityMapMatchPrevFrame(t *testing.T) {
	m := newIdentityMap[GeometryID]()

	require.False(t, m.Add(GeometryID(10), 0))
	require.False(t, m.Add(GeometryID(20), 1))

	m.PrepareForFrame(2)
	match := m.MatchPrev()
	require.Len(t, match, 2)
	assert.Equal(t, uint32(matchSentinel), match[0])
	assert.Equal(t, uint32(matchSentinel), match[1])

	// Same ids return this frame at different indices: prev slot 0
	// (id 10) should record its new current index, prev slot 1
	// (id 20) stays unmatched.
	require.False(t, m.Add(GeometryID(10), 3))
	match = m.MatchPrev()
	assert.Equal(t, uint32(3), match[0])
	assert.Equal(t, uint32(matchSentinel), match[1])
}

func TestIdentityMapPrepareForFrameRotatesMaps(t *testing.T) {
	m := newIdentityMap[GeometryID]()
	require.False(t, m.Add(GeometryID(1), 0))

	m.PrepareForFrame(1)
	// id 1 no longer exists in cur until re-added this frame.
	assert.False(t, len(m.cur) > 0, "PrepareForFrame must start with an empty current map")
	require.False(t, m.Add(GeometryID(1), 0))
	// Re-adding a different id this frame must not collide.
	assert.False(t, m.Add(GeometryID(2), 1))
}

func TestIdentityMapReset(t *testing.T) {
	m := newIdentityMap[GeometryID]()
	require.False(t, m.Add(GeometryID(1), 0))
	m.PrepareForFrame(1)
	m.Reset()
	assert.Empty(t, m.prev)
	assert.Empty(t, m.cur)
	assert.Nil(t, m.MatchPrev())
	// A clean reset means ids from before the reset are not
	// duplicates anymore.
	assert.False(t, m.Add(GeometryID(1), 0))
}
