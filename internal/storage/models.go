// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"time"

	"github.com/relabs-tech/thrust_magcal/internal/imu"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

// Run statuses.
const (
	StatusCapturing = "capturing"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusFailed    = "failed"
)

// Run is one calibration attempt.
type Run struct {
	ID           int64
	StartedAt    time.Time
	ThrustLevels []uint16
	Correction   magcal.StaticCorrection
	Status       string
	Samples      int
}

// SampleRecord is one captured sample and the level it was filed under.
type SampleRecord struct {
	Level     int
	Raw       imu.MagRaw
	Corrected magcal.Vec3
}
