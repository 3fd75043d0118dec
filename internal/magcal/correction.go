// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// maxTransformCond bounds the condition number accepted for a soft-iron transform.
const maxTransformCond = 1e12

// StaticCorrection is the hard/soft iron correction measured by a separate
// ellipsoid fit: corrected = Transform · (raw - Center).
type StaticCorrection struct {
	Center    Vec3 `json:"center" yaml:"center"`
	Transform Mat3 `json:"transform" yaml:"transform"`
}

// DefaultStaticCorrection is the ellipsoid fit of the reference airframe.
var DefaultStaticCorrection = StaticCorrection{
	Center: Vec3{X: 1287.10, Y: -501.436, Z: 44.8821},
	Transform: Mat3{
		{0.919091, 0.0191566, 0.0206570},
		{0.0191566, 0.934831, -0.00394435},
		{0.0206570, -0.00394435, 0.994711},
	},
}

// NewStaticCorrection validates and returns a correction.
func NewStaticCorrection(center Vec3, transform Mat3) (StaticCorrection, error) {
	c := StaticCorrection{Center: center, Transform: transform}
	if err := c.Validate(); err != nil {
		return StaticCorrection{}, err
	}
	return c, nil
}

// Validate rejects transforms that cannot come from an ellipsoid fit: every
// entry finite, invertible, and with a positive-definite symmetric part.
func (c StaticCorrection) Validate() error {
	for _, v := range append(c.Transform.Flat(), c.Center.X, c.Center.Y, c.Center.Z) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidConfiguration)
		}
	}

	var lu mat.LU
	lu.Factorize(c.Transform.Dense())
	if det := lu.Det(); det == 0 || lu.Cond() > maxTransformCond {
		return fmt.Errorf("%w: transform is not invertible (det=%g)", ErrInvalidConfiguration, det)
	}

	sym := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			sym.SetSym(i, j, (c.Transform[i][j]+c.Transform[j][i])/2)
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return fmt.Errorf("%w: transform is not positive definite", ErrInvalidConfiguration)
	}
	return nil
}

// Apply corrects one raw sample.
func (c StaticCorrection) Apply(raw Vec3) Vec3 {
	return Correct(raw, c.Center, c.Transform)
}

// Invert maps a corrected sample back to the raw sensor frame.
func (c StaticCorrection) Invert(corrected Vec3) (Vec3, error) {
	var x mat.VecDense
	b := mat.NewVecDense(3, []float64{corrected.X, corrected.Y, corrected.Z})
	if err := x.SolveVec(c.Transform.Dense(), b); err != nil {
		return Vec3{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return Vec3{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}.Add(c.Center), nil
}

// Correct computes transform · (raw - bias).
func Correct(raw, bias Vec3, transform Mat3) Vec3 {
	return transform.MulVec(raw.Sub(bias))
}
