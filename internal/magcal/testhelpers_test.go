package magcal

import "math"

// ellipsePoints returns n points evenly spaced in parameter on an ellipse
// with the given center, semi-axes and rotation.
func ellipsePoints(cx, cy, a, b, theta float64, n int) (xs, ys []float64) {
	st, ct := math.Sin(theta), math.Cos(theta)
	for k := 0; k < n; k++ {
		phi := 2 * math.Pi * float64(k) / float64(n)
		u, v := a*math.Cos(phi), b*math.Sin(phi)
		xs = append(xs, cx+u*ct-v*st)
		ys = append(ys, cy+u*st+v*ct)
	}
	return xs, ys
}

// ellipseSeries builds a corrected series on an ellipse whose Z alternates
// symmetrically around z so its median is exactly z.
func ellipseSeries(center Vec3, n int) Series {
	xs, ys := ellipsePoints(center.X, center.Y, 40, 25, 0.3, n)
	s := make(Series, n)
	for i := range xs {
		dz := 0.5
		if i%2 == 1 {
			dz = -0.5
		}
		s[i] = Vec3{X: xs[i], Y: ys[i], Z: center.Z + dz}
	}
	return s
}
