// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"fmt"
	"sync"
)

// LevelCount is the number of thrust levels in a calibration sequence.
// Level 0 is the zero-thrust reference.
const LevelCount = 7

// Series holds the corrected samples captured at one thrust level.
type Series []Vec3

type seriesState int

const (
	seriesPending seriesState = iota
	seriesOpen
	seriesClosed
)

// SeriesStore accumulates corrected samples into the thrust-indexed series.
// A single mutex serializes the sample producer against begin/close so that
// a late sample can never land in a newly opened series.
type SeriesStore struct {
	mu     sync.Mutex
	series [LevelCount]Series
	state  [LevelCount]seriesState
	open   int // -1 when no series is open
}

// NewSeriesStore returns an empty store with no open series.
func NewSeriesStore() *SeriesStore {
	return &SeriesStore{open: -1}
}

// BeginSeries opens series index for appending. An already open series is
// frozen first; re-beginning the open index is a no-op.
func (s *SeriesStore) BeginSeries(index int) error {
	if index < 0 || index >= LevelCount {
		return fmt.Errorf("%w: %d not in [0,%d]", ErrOutOfRange, index, LevelCount-1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state[index] {
	case seriesClosed:
		return fmt.Errorf("%w: series %d", ErrAlreadyClosed, index)
	case seriesOpen:
		return nil
	}

	s.closeLocked()
	s.state[index] = seriesOpen
	s.open = index
	return nil
}

// Append adds a sample to the open series and reports which level took it.
// With no open series the sample is dropped.
func (s *SeriesStore) Append(v Vec3) (level int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open < 0 {
		return -1, false
	}
	s.series[s.open] = append(s.series[s.open], v)
	return s.open, true
}

// CloseSeries freezes the open series, if any.
func (s *SeriesStore) CloseSeries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *SeriesStore) closeLocked() {
	if s.open < 0 {
		return
	}
	s.state[s.open] = seriesClosed
	s.open = -1
}

// Open returns the index of the open series.
func (s *SeriesStore) Open() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open, s.open >= 0
}

// Finalized returns how many series are closed.
func (s *SeriesStore) Finalized() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, st := range s.state {
		if st == seriesClosed {
			n++
		}
	}
	return n
}

// AllSeries returns copies of every series in level order. It fails with
// ErrIncomplete unless all of them have been closed.
func (s *SeriesStore) AllSeries() ([]Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Series, LevelCount)
	closed := 0
	for i := range s.series {
		if s.state[i] == seriesClosed {
			closed++
		}
		out[i] = append(Series(nil), s.series[i]...)
	}
	if closed < LevelCount {
		return nil, fmt.Errorf("%w: %d of %d series finalized", ErrIncomplete, closed, LevelCount)
	}
	return out, nil
}

// Snapshot copies every series, including the open one, for display.
func (s *SeriesStore) Snapshot() []Series {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Series, LevelCount)
	for i := range s.series {
		out[i] = append(Series(nil), s.series[i]...)
	}
	return out
}

// Counts returns the number of samples per level.
func (s *SeriesStore) Counts() [LevelCount]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n [LevelCount]int
	for i := range s.series {
		n[i] = len(s.series[i])
	}
	return n
}
