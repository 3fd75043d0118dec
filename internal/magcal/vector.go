// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import "gonum.org/v1/gonum/mat"

// Vec3 is a 3-axis magnetometer reading or a derived 3D point (raw counts).
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns k*v.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: k * v.X, Y: k * v.Y, Z: k * v.Z}
}

// Array returns the components as [x, y, z].
func (v Vec3) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

// Identity3 is the 3x3 identity.
var Identity3 = Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Dense copies m into a gonum matrix.
func (m Mat3) Dense() *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.Set(i, j, m[i][j])
		}
	}
	return d
}

// Flat returns the nine entries in row-major order.
func (m Mat3) Flat() []float64 {
	out := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		out = append(out, m[i][:]...)
	}
	return out
}

// Mat3FromFlat builds a matrix from nine row-major entries.
func Mat3FromFlat(v []float64) (Mat3, bool) {
	var m Mat3
	if len(v) != 9 {
		return m, false
	}
	for i := 0; i < 9; i++ {
		m[i/3][i%3] = v[i]
	}
	return m, true
}
