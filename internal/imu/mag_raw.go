// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

// MagRaw is a single raw magnetometer sample as published on the mag topic.
type MagRaw struct {
	Source string `json:"source,omitempty"` // producer name, e.g. "vehicle" or "sim"

	Mx int16 `json:"mx"`
	My int16 `json:"my"`
	Mz int16 `json:"mz"`

	Time string `json:"time,omitempty"` // RFC3339
}

// MagSource is anything that can provide raw magnetometer samples.
type MagSource interface {
	NextMag() (MagRaw, error)
}

// Vec returns the sample as a float vector.
func (m MagRaw) Vec() magcal.Vec3 {
	return magcal.Vec3{X: float64(m.Mx), Y: float64(m.My), Z: float64(m.Mz)}
}

// MagRawFromVec rounds v to sensor counts, saturating at the int16 range.
func MagRawFromVec(v magcal.Vec3) MagRaw {
	return MagRaw{Mx: toCount(v.X), My: toCount(v.Y), Mz: toCount(v.Z)}
}

func toCount(f float64) int16 {
	r := math.Round(f)
	switch {
	case r > math.MaxInt16:
		return math.MaxInt16
	case r < math.MinInt16:
		return math.MinInt16
	}
	return int16(r)
}

// FormatLine renders the sample as "x y z", the raw logger format.
func FormatLine(m MagRaw) string {
	return fmt.Sprintf("%d %d %d", m.Mx, m.My, m.Mz)
}

// ParseLine parses a "x y z" line. Fields may be separated by any whitespace
// or commas.
func ParseLine(line string) (MagRaw, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r' || r == '\n'
	})
	if len(fields) != 3 {
		return MagRaw{}, fmt.Errorf("expected 3 fields, got %d in %q", len(fields), line)
	}
	var v [3]int16
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 16)
		if err != nil {
			return MagRaw{}, fmt.Errorf("field %d %q: %w", i, f, err)
		}
		v[i] = int16(n)
	}
	return MagRaw{Mx: v[0], My: v[1], Mz: v[2]}, nil
}
