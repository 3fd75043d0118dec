package magcal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "odd", values: []float64{5, 1, 9, 3, 7}, want: 5},
		{name: "even averages middle pair", values: []float64{4, 1, 10, 2}, want: 3},
		{name: "single", values: []float64{-2}, want: -2},
		{name: "spike does not move median", values: []float64{1, 1, 2, 2, 900}, want: 2},
		{name: "empty", values: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]float64(nil), tt.values...)
			assert.Equal(t, tt.want, Median(in))
			assert.Equal(t, tt.values, []float64(in), "input must not be reordered")
		})
	}
}

func TestCenterOf(t *testing.T) {
	want := Vec3{X: 120, Y: -35, Z: 14}
	c, err := CenterOf(ellipseSeries(want, 50))
	require.NoError(t, err)
	assert.InDelta(t, want.X, c.X, 1e-6)
	assert.InDelta(t, want.Y, c.Y, 1e-6)
	assert.InDelta(t, want.Z, c.Z, 1e-12)
}

func TestCenterOfOddLengthMedianZ(t *testing.T) {
	s := ellipseSeries(Vec3{X: 1, Y: 2, Z: 0}, 9)
	zs := []float64{3, -1, 8, 0, 4, 4, 2, 7, -6}
	for i := range s {
		s[i].Z = zs[i]
	}
	c, err := CenterOf(s)
	require.NoError(t, err)
	assert.Equal(t, 3.0, c.Z)
}

func TestCenterOfErrors(t *testing.T) {
	_, err := CenterOf(nil)
	assert.ErrorIs(t, err, ErrEmptySeries)

	_, err = CenterOf(ellipseSeries(Vec3{}, 5))
	assert.ErrorIs(t, err, ErrSingularFit)
}

func TestCentersReportsLevel(t *testing.T) {
	series := []Series{ellipseSeries(Vec3{}, 20), nil}
	_, err := Centers(series)
	assert.ErrorIs(t, err, ErrEmptySeries)
	assert.Contains(t, err.Error(), "series 1")
}
