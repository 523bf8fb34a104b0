// Package interval provides an in-memory index of busy time ranges with
// logarithmic overlap lookup. It is shared by the conflict checker and the
// availability search engine.
package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End). Two intervals overlap iff
// a.Start < b.End && a.End > b.Start; touching endpoints do not overlap.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether iv and other share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// Set is a sorted list of intervals for a single resource. The zero value is
// an empty, queryable set.
type Set struct {
	intervals []Interval
	sorted    bool
}

// Add appends an interval. Sorting is deferred until the first query.
func (s *Set) Add(iv Interval) {
	s.intervals = append(s.intervals, iv)
	s.sorted = false
}

// Len returns the number of intervals in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.intervals)
}

// FirstOverlap returns the first interval overlapping [start, end) and true,
// or the zero Interval and false when the span is free. Querying a nil set is
// allowed and reports no overlap.
func (s *Set) FirstOverlap(start, end time.Time) (Interval, bool) {
	if s == nil || len(s.intervals) == 0 {
		return Interval{}, false
	}
	if !s.sorted {
		sort.Slice(s.intervals, func(i, j int) bool {
			return s.intervals[i].Start.Before(s.intervals[j].Start)
		})
		s.sorted = true
	}
	// First interval whose end strictly exceeds start; it overlaps iff its
	// own start precedes end.
	idx := sort.Search(len(s.intervals), func(i int) bool {
		return s.intervals[i].End.After(start)
	})
	if idx < len(s.intervals) && s.intervals[idx].Start.Before(end) {
		return s.intervals[idx], true
	}
	return Interval{}, false
}

// Index maps resource ids to their busy sets.
type Index[K comparable] struct {
	sets map[K]*Set
}

// NewIndex creates an empty index.
func NewIndex[K comparable]() *Index[K] {
	return &Index[K]{sets: make(map[K]*Set)}
}

// Add records a busy interval for the given resource.
func (ix *Index[K]) Add(key K, start, end time.Time) {
	set, ok := ix.sets[key]
	if !ok {
		set = &Set{}
		ix.sets[key] = set
	}
	set.Add(Interval{Start: start, End: end})
}

// FirstOverlap probes the resource's set. Unknown resources are free.
func (ix *Index[K]) FirstOverlap(key K, start, end time.Time) (Interval, bool) {
	if ix == nil {
		return Interval{}, false
	}
	return ix.sets[key].FirstOverlap(start, end)
}

// Busy reports whether [start, end) collides with any interval of the resource.
func (ix *Index[K]) Busy(key K, start, end time.Time) bool {
	_, ok := ix.FirstOverlap(key, start, end)
	return ok
}
