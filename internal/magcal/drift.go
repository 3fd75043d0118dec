// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DriftDegree is the degree of the per-axis drift polynomials.
const DriftDegree = 3

// Polynomial coefficients, highest degree first.
type Polynomial []float64

// Eval evaluates the polynomial at t (Horner).
func (p Polynomial) Eval(t float64) float64 {
	var y float64
	for _, c := range p {
		y = y*t + c
	}
	return y
}

// DriftPolynomial describes how far the distortion center has to be moved
// back, per axis, as a function of the thrust step index.
type DriftPolynomial struct {
	QX Polynomial `json:"qx" yaml:"qx"`
	QY Polynomial `json:"qy" yaml:"qy"`
	QZ Polynomial `json:"qz" yaml:"qz"`
}

// At evaluates the three curves at a (possibly fractional) thrust step.
func (d DriftPolynomial) At(step float64) Vec3 {
	return Vec3{X: d.QX.Eval(step), Y: d.QY.Eval(step), Z: d.QZ.Eval(step)}
}

// Offsets returns centers[0] - centers[i] for every center. The sign is the
// correction to apply, not the observed displacement.
func Offsets(centers []Vec3) []Vec3 {
	if len(centers) == 0 {
		return nil
	}
	ref := centers[0]
	out := make([]Vec3, len(centers))
	for i, c := range centers {
		out[i] = ref.Sub(c)
	}
	return out
}

// FitDrift fits a cubic per axis to the offsets of the LevelCount centers
// against their step index.
func FitDrift(centers []Vec3) (DriftPolynomial, error) {
	switch {
	case len(centers) < LevelCount:
		return DriftPolynomial{}, fmt.Errorf("%w: %d centers, need %d", ErrInsufficientData, len(centers), LevelCount)
	case len(centers) > LevelCount:
		return DriftPolynomial{}, fmt.Errorf("%w: %d centers, expected %d", ErrOutOfRange, len(centers), LevelCount)
	}

	offsets := Offsets(centers)
	steps := make([]float64, len(offsets))
	xs := make([]float64, len(offsets))
	ys := make([]float64, len(offsets))
	zs := make([]float64, len(offsets))
	for i, o := range offsets {
		steps[i] = float64(i)
		xs[i], ys[i], zs[i] = o.X, o.Y, o.Z
	}

	var d DriftPolynomial
	var err error
	if d.QX, err = PolyFit(steps, xs, DriftDegree); err != nil {
		return DriftPolynomial{}, fmt.Errorf("could not fit x drift: %w", err)
	}
	if d.QY, err = PolyFit(steps, ys, DriftDegree); err != nil {
		return DriftPolynomial{}, fmt.Errorf("could not fit y drift: %w", err)
	}
	if d.QZ, err = PolyFit(steps, zs, DriftDegree); err != nil {
		return DriftPolynomial{}, fmt.Errorf("could not fit z drift: %w", err)
	}
	return d, nil
}

// PolyFit returns the least-squares polynomial of the given degree through
// (ts, ys), highest degree first.
func PolyFit(ts, ys []float64, degree int) (Polynomial, error) {
	if len(ts) != len(ys) {
		return nil, fmt.Errorf("%w: %d abscissas but %d values", ErrInsufficientData, len(ts), len(ys))
	}
	if degree < 0 || len(ts) <= degree {
		return nil, fmt.Errorf("%w: %d points for degree %d", ErrInsufficientData, len(ts), degree)
	}

	cols := degree + 1
	vander := mat.NewDense(len(ts), cols, nil)
	for i, t := range ts {
		p := 1.0
		for j := cols - 1; j >= 0; j-- {
			vander.Set(i, j, p)
			p *= t
		}
	}

	var coef mat.VecDense
	if err := coef.SolveVec(vander, mat.NewVecDense(len(ys), append([]float64(nil), ys...))); err != nil {
		return nil, fmt.Errorf("least squares: %w", err)
	}
	out := make(Polynomial, cols)
	for j := range out {
		out[j] = coef.AtVec(j)
	}
	return out, nil
}
