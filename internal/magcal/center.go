// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"fmt"
	"sort"
)

// CenterOf returns the distortion center of one series: the ellipse center of
// its X/Y samples and the median of its Z samples. The vehicle is rotated by
// hand around Z, so Z is noise dominated and the median ignores spikes.
func CenterOf(series Series) (Vec3, error) {
	if len(series) == 0 {
		return Vec3{}, ErrEmptySeries
	}

	xs := make([]float64, len(series))
	ys := make([]float64, len(series))
	zs := make([]float64, len(series))
	for i, s := range series {
		xs[i], ys[i], zs[i] = s.X, s.Y, s.Z
	}

	c, err := FitEllipseCenter(xs, ys)
	if err != nil {
		return Vec3{}, err
	}
	return Vec3{X: c.X, Y: c.Y, Z: Median(zs)}, nil
}

// Median returns the middle value, or the mean of the two middle values for
// an even count. It does not modify values. Median of nothing is 0.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Centers computes one center per series, in order.
func Centers(series []Series) ([]Vec3, error) {
	out := make([]Vec3, 0, len(series))
	for i, s := range series {
		c, err := CenterOf(s)
		if err != nil {
			return nil, fmt.Errorf("series %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}
