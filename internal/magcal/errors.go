// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import "errors"

// Error kinds returned by the calibration math. Callers match them with
// errors.Is; the returned errors carry extra context (level index, counts).
var (
	ErrInvalidConfiguration = errors.New("invalid static correction")
	ErrOutOfRange           = errors.New("series index out of range")
	ErrAlreadyClosed        = errors.New("series already closed")
	ErrIncomplete           = errors.New("calibration incomplete")
	ErrSingularFit          = errors.New("singular ellipse fit")
	ErrEmptySeries          = errors.New("empty series")
	ErrInsufficientData     = errors.New("insufficient data for drift fit")
)
