package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 6, 2, hour, min, 0, 0, time.UTC)
}

func TestOverlapsIsSymmetricAndHalfOpen(t *testing.T) {
	a := Interval{Start: at(10, 0), End: at(10, 30)}
	b := Interval{Start: at(10, 15), End: at(11, 0)}
	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(a))

	// Touching endpoints never overlap.
	c := Interval{Start: at(10, 30), End: at(11, 0)}
	assert.False(t, a.Overlaps(c))
	assert.False(t, c.Overlaps(a))
}

func TestSetFirstOverlapBinarySearch(t *testing.T) {
	var s Set
	// Insert out of order; the set sorts lazily.
	s.Add(Interval{Start: at(14, 0), End: at(15, 0)})
	s.Add(Interval{Start: at(9, 0), End: at(9, 45)})
	s.Add(Interval{Start: at(11, 0), End: at(12, 0)})

	got, ok := s.FirstOverlap(at(9, 30), at(11, 30))
	require.True(t, ok)
	assert.Equal(t, at(9, 0), got.Start)

	got, ok = s.FirstOverlap(at(10, 0), at(10, 45))
	assert.False(t, ok)

	// Query that touches but does not cross an interval boundary.
	_, ok = s.FirstOverlap(at(9, 45), at(11, 0))
	assert.False(t, ok)

	got, ok = s.FirstOverlap(at(14, 59), at(16, 0))
	require.True(t, ok)
	assert.Equal(t, at(14, 0), got.Start)
}

func TestNilSetIsFree(t *testing.T) {
	var s *Set
	_, ok := s.FirstOverlap(at(0, 0), at(23, 59))
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestIndexPerResource(t *testing.T) {
	ix := NewIndex[int64]()
	ix.Add(4, at(10, 0), at(10, 30))
	ix.Add(9, at(12, 0), at(13, 0))

	assert.True(t, ix.Busy(4, at(10, 15), at(10, 45)))
	assert.False(t, ix.Busy(4, at(10, 30), at(11, 0)))
	assert.False(t, ix.Busy(9, at(10, 15), at(10, 45)))
	// Unknown resource is always free.
	assert.False(t, ix.Busy(55, at(0, 0), at(23, 0)))
}
