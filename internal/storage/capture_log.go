// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"sync"

	"github.com/relabs-tech/thrust_magcal/internal/imu"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

// DefaultBatchSize is the number of samples buffered before a write.
const DefaultBatchSize = 256

// CaptureLog buffers the samples of one run and writes them in batches.
type CaptureLog struct {
	store *Store
	runID int64
	batch int

	mu  sync.Mutex
	buf []SampleRecord
}

// NewCaptureLog returns a log writing to the given run.
func NewCaptureLog(store *Store, runID int64, batch int) *CaptureLog {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &CaptureLog{store: store, runID: runID, batch: batch}
}

// RunID returns the run this log writes to.
func (l *CaptureLog) RunID() int64 {
	return l.runID
}

// Record buffers one sample, writing the buffer once it is full.
func (l *CaptureLog) Record(level int, raw imu.MagRaw, corrected magcal.Vec3) error {
	l.mu.Lock()
	l.buf = append(l.buf, SampleRecord{Level: level, Raw: raw, Corrected: corrected})
	full := len(l.buf) >= l.batch
	l.mu.Unlock()

	if full {
		return l.Flush()
	}
	return nil
}

// Flush writes all buffered samples.
func (l *CaptureLog) Flush() error {
	l.mu.Lock()
	buf := l.buf
	l.buf = nil
	l.mu.Unlock()

	return l.store.InsertSamples(l.runID, buf)
}

// Series regroups stored samples into per-level series. When correction is
// non-nil the raw values are corrected again instead of using the stored ones.
func Series(samples []SampleRecord, correction *magcal.StaticCorrection) []magcal.Series {
	out := make([]magcal.Series, magcal.LevelCount)
	for _, r := range samples {
		if r.Level < 0 || r.Level >= magcal.LevelCount {
			continue
		}
		v := r.Corrected
		if correction != nil {
			v = correction.Apply(r.Raw.Vec())
		}
		out[r.Level] = append(out[r.Level], v)
	}
	return out
}
