// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

const (
	// MinEllipsePoints is the number of points needed to pin the six conic
	// coefficients down to scale.
	MinEllipsePoints = 6

	rankTol       = 1e-10 // relative singular value cutoff for the design matrix
	maxScatterCnd = 1e12  // condition bound for the linear scatter block
	imagTol       = 1e-9  // relative imaginary part tolerated on the chosen eigenpair
	degenerateTol = 1e-6  // relative bound on b²-AC, about the precision the eigen solve reaches
	maxCenterDist = 1e3   // normalized distance beyond which a center is not trusted
)

// EllipseCenter is the center of a fitted conic in the X/Y plane.
type EllipseCenter struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Conic holds A x² + B xy + C y² + D x + E y + F = 0.
type Conic struct {
	A, B, C, D, E, F float64
}

// Center solves the gradient of the conic for its center point.
func (q Conic) Center() (EllipseCenter, error) {
	b, d, e := q.B/2, q.D/2, q.E/2
	num := b*b - q.A*q.C
	scale := q.A*q.A + b*b + q.C*q.C
	if scale == 0 || math.Abs(num) <= degenerateTol*scale {
		return EllipseCenter{}, fmt.Errorf("%w: degenerate conic has no unique center", ErrSingularFit)
	}
	c := EllipseCenter{
		X: (q.C*d - b*e) / num,
		Y: (q.A*e - b*d) / num,
	}
	if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
		return EllipseCenter{}, fmt.Errorf("%w: non-finite center", ErrSingularFit)
	}
	return c, nil
}

// FitConic fits a general conic to the points by algebraic least squares
// under the ellipse constraint 4AC - B² = 1.
//
// The generalized eigenproblem S·a = λ·C·a is reduced to its 3x3 quadratic
// block, so the scatter matrix S itself is never inverted: it is exactly
// singular when the points lie on a conic without noise. The eigenpair kept is
// the one with the largest |1/λ|, i.e. the largest eigenvalue of S⁻¹C.
//
// Points are centered and scaled before fitting; the returned conic is in the
// normalized frame described by the returned offset and scale.
func FitConic(xs, ys []float64) (q Conic, mx, my, scale float64, err error) {
	n := len(xs)
	if n != len(ys) {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: %d x values but %d y values", ErrSingularFit, n, len(ys))
	}
	if n < MinEllipsePoints {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: need at least %d points, got %d", ErrSingularFit, MinEllipsePoints, n)
	}

	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		scale += dx*dx + dy*dy
	}
	scale = math.Sqrt(scale / float64(n))
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: points have no spread", ErrSingularFit)
	}

	// design matrix rows [x², xy, y², x, y, 1]
	design := mat.NewDense(n, 6, nil)
	for i := range xs {
		u, v := (xs[i]-mx)/scale, (ys[i]-my)/scale
		design.SetRow(i, []float64{u * u, u * v, v * v, u, v, 1})
	}

	var svd mat.SVD
	if ok := svd.Factorize(design, mat.SVDNone); !ok {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: design matrix factorization failed", ErrSingularFit)
	}
	sv := svd.Values(nil)
	rank := 0
	for _, s := range sv {
		if s > rankTol*sv[0] {
			rank++
		}
	}
	if rank < 5 {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: only %d independent conic constraints", ErrSingularFit, rank)
	}

	quad := design.Slice(0, n, 0, 3)
	lin := design.Slice(0, n, 3, 6)

	var s1, s2, s3 mat.Dense
	s1.Mul(quad.T(), quad)
	s2.Mul(quad.T(), lin)
	s3.Mul(lin.T(), lin)

	var lu mat.LU
	lu.Factorize(&s3)
	if lu.Cond() > maxScatterCnd {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: points are collinear", ErrSingularFit)
	}
	// t maps the quadratic coefficients to the linear ones: a2 = t·a1
	var t mat.Dense
	if err := lu.SolveTo(&t, false, s2.T()); err != nil {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: %v", ErrSingularFit, err)
	}
	t.Scale(-1, &t)

	var reduced mat.Dense
	reduced.Mul(&s2, &t)
	reduced.Add(&s1, &reduced)

	// premultiply by the inverse of the constraint block [[0 0 2] [0 -1 0] [2 0 0]]
	m := mat.NewDense(3, 3, nil)
	for j := 0; j < 3; j++ {
		m.Set(0, j, reduced.At(2, j)/2)
		m.Set(1, j, -reduced.At(1, j))
		m.Set(2, j, reduced.At(0, j)/2)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(m, mat.EigenRight); !ok {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: eigen decomposition failed", ErrSingularFit)
	}
	vals := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	best, bestMag := -1, -1.0
	for i, l := range vals {
		mag := math.Inf(1)
		if a := cmplx.Abs(l); a != 0 {
			mag = 1 / a
		}
		if mag > bestMag {
			best, bestMag = i, mag
		}
	}
	if best < 0 {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: no eigenpair", ErrSingularFit)
	}
	if l := vals[best]; math.Abs(imag(l)) > imagTol*math.Max(1, cmplx.Abs(l)) {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: complex eigenvalue %v", ErrSingularFit, l)
	}

	a1 := mat.NewVecDense(3, nil)
	var norm float64
	for i := 0; i < 3; i++ {
		c := vecs.At(i, best)
		a1.SetVec(i, real(c))
		norm += cmplx.Abs(c) * cmplx.Abs(c)
	}
	if norm == 0 || mat.Norm(a1, 2) < math.Sqrt(norm)*(1-imagTol) {
		return Conic{}, 0, 0, 0, fmt.Errorf("%w: complex eigenvector", ErrSingularFit)
	}

	var a2 mat.VecDense
	a2.MulVec(&t, a1)

	q = Conic{
		A: a1.AtVec(0), B: a1.AtVec(1), C: a1.AtVec(2),
		D: a2.AtVec(0), E: a2.AtVec(1), F: a2.AtVec(2),
	}
	return q, mx, my, scale, nil
}

// FitEllipseCenter fits a conic to the points and returns its center.
func FitEllipseCenter(xs, ys []float64) (EllipseCenter, error) {
	q, mx, my, scale, err := FitConic(xs, ys)
	if err != nil {
		return EllipseCenter{}, err
	}
	c, err := q.Center()
	if err != nil {
		return EllipseCenter{}, err
	}
	// the points have unit RMS spread here
	if math.Hypot(c.X, c.Y) > maxCenterDist {
		return EllipseCenter{}, fmt.Errorf("%w: center lies far outside the points", ErrSingularFit)
	}
	return EllipseCenter{X: mx + scale*c.X, Y: my + scale*c.Y}, nil
}
