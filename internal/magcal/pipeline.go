// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

// Result is the output of a complete calibration run.
type Result struct {
	Centers []Vec3          `json:"centers" yaml:"centers"`
	Offsets []Vec3          `json:"offsets" yaml:"offsets"`
	Samples []int           `json:"samples" yaml:"samples"`
	Drift   DriftPolynomial `json:"drift" yaml:"drift"`
}

// Process turns the finalized series into centers, offsets and the drift fit.
func Process(series []Series) (Result, error) {
	centers, err := Centers(series)
	if err != nil {
		return Result{}, err
	}
	drift, err := FitDrift(centers)
	if err != nil {
		return Result{}, err
	}

	counts := make([]int, len(series))
	for i, s := range series {
		counts[i] = len(s)
	}
	return Result{
		Centers: centers,
		Offsets: Offsets(centers),
		Samples: counts,
		Drift:   drift,
	}, nil
}

// Calibrator corrects incoming raw samples and files them into the store.
type Calibrator struct {
	correction StaticCorrection
	store      *SeriesStore
}

// NewCalibrator returns a calibrator with an empty store.
func NewCalibrator(correction StaticCorrection) *Calibrator {
	return &Calibrator{correction: correction, store: NewSeriesStore()}
}

// Store exposes the series store for begin/close control.
func (c *Calibrator) Store() *SeriesStore {
	return c.store
}

// Correction returns the static correction in use.
func (c *Calibrator) Correction() StaticCorrection {
	return c.correction
}

// Ingest corrects raw and appends it to the open series. It reports the
// corrected value and the level that took it, if any.
func (c *Calibrator) Ingest(raw Vec3) (corrected Vec3, level int, ok bool) {
	corrected = c.correction.Apply(raw)
	level, ok = c.store.Append(corrected)
	return corrected, level, ok
}

// Finish fits the drift curves over all series. It fails with ErrIncomplete
// when the run was aborted before every level was captured.
func (c *Calibrator) Finish() (Result, error) {
	series, err := c.store.AllSeries()
	if err != nil {
		return Result{}, err
	}
	return Process(series)
}
