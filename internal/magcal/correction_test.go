package magcal

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrect(t *testing.T) {
	got := Correct(Vec3{X: 3, Y: 5, Z: 7}, Vec3{X: 1, Y: 1, Z: 1}, Mat3{{2, 0, 0}, {0, 1, 1}, {0, 0, 3}})
	assert.Equal(t, Vec3{X: 4, Y: 10, Z: 18}, got)
}

func TestStaticCorrectionRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		bias := Vec3{X: rng.Float64()*2000 - 1000, Y: rng.Float64()*2000 - 1000, Z: rng.Float64()*2000 - 1000}
		// diagonally dominant symmetric matrices are invertible and positive definite
		var tr Mat3
		for r := 0; r < 3; r++ {
			for c := r; c < 3; c++ {
				v := rng.Float64()*0.2 - 0.1
				tr[r][c], tr[c][r] = v, v
			}
			tr[r][r] = 0.5 + rng.Float64()
		}
		corr, err := NewStaticCorrection(bias, tr)
		require.NoError(t, err)

		s := Vec3{X: rng.NormFloat64() * 300, Y: rng.NormFloat64() * 300, Z: rng.NormFloat64() * 300}
		raw, err := corr.Invert(s)
		require.NoError(t, err)
		back := corr.Apply(raw)
		assert.InDelta(t, s.X, back.X, 1e-8)
		assert.InDelta(t, s.Y, back.Y, 1e-8)
		assert.InDelta(t, s.Z, back.Z, 1e-8)
	}
}

func TestStaticCorrectionValidate(t *testing.T) {
	tests := []struct {
		name      string
		transform Mat3
		wantErr   bool
	}{
		{name: "default airframe", transform: DefaultStaticCorrection.Transform},
		{name: "identity", transform: Identity3},
		{name: "singular", transform: Mat3{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}, wantErr: true},
		{name: "zero", transform: Mat3{}, wantErr: true},
		{name: "negative definite", transform: Mat3{{-1, 0, 0}, {0, -1, 0}, {0, 0, -1}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStaticCorrection(Vec3{X: 1, Y: 2, Z: 3}, tt.transform)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMat3FromFlat(t *testing.T) {
	m, ok := Mat3FromFlat(DefaultStaticCorrection.Transform.Flat())
	require.True(t, ok)
	assert.Equal(t, DefaultStaticCorrection.Transform, m)

	_, ok = Mat3FromFlat([]float64{1, 2, 3})
	assert.False(t, ok)
}
