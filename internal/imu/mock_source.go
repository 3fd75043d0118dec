// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

// ThrustStep is the thrust increment the drift rate is expressed in.
const ThrustStep = 10000

// ThrustModel describes a vehicle whose corrected magnetometer center moves
// linearly with motor thrust.
type ThrustModel struct {
	Correction  magcal.StaticCorrection
	Base        magcal.Vec3 // corrected center at zero thrust
	Drift       magcal.Vec3 // corrected center shift per ThrustStep
	Radius      float64     // corrected field magnitude in the X/Y plane
	Noise       float64     // gaussian noise stddev in corrected counts
	StepsPerRev int         // samples per full hand rotation
}

// DefaultThrustModel mirrors the reference airframe.
func DefaultThrustModel() ThrustModel {
	return ThrustModel{
		Correction:  magcal.DefaultStaticCorrection,
		Base:        magcal.Vec3{X: 12, Y: -8, Z: 140},
		Drift:       magcal.Vec3{X: -9, Y: 4.5, Z: -2},
		Radius:      420,
		Noise:       1.5,
		StepsPerRev: 64,
	}
}

// CenterAt returns the corrected center at the given thrust setpoint.
func (m ThrustModel) CenterAt(thrust uint16) magcal.Vec3 {
	return m.Base.Add(m.Drift.Scale(float64(thrust) / ThrustStep))
}

// MockMagSource generates samples of a vehicle being turned by hand at
// whatever thrust was last set.
type MockMagSource struct {
	model ThrustModel

	mu     sync.Mutex
	rng    *rand.Rand
	thrust uint16
	step   int
}

// NewMockMagSource creates a mock source. The seed makes runs repeatable.
func NewMockMagSource(model ThrustModel, seed int64) *MockMagSource {
	if model.StepsPerRev <= 0 {
		model.StepsPerRev = 64
	}
	return &MockMagSource{model: model, rng: rand.New(rand.NewSource(seed))}
}

// SetThrust changes the simulated motor setpoint.
func (m *MockMagSource) SetThrust(thrust uint16) {
	m.mu.Lock()
	m.thrust = thrust
	m.mu.Unlock()
}

func (m *MockMagSource) NextMag() (MagRaw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	phi := 2 * math.Pi * float64(m.step) / float64(m.model.StepsPerRev)
	m.step++

	c := m.model.CenterAt(m.thrust)
	r := m.model.Radius
	p := magcal.Vec3{
		X: c.X + r*math.Cos(phi) + m.model.Noise*m.rng.NormFloat64(),
		Y: c.Y + r*math.Sin(phi) + m.model.Noise*m.rng.NormFloat64(),
		Z: c.Z + 0.02*r*math.Sin(3*phi) + m.model.Noise*m.rng.NormFloat64(),
	}

	raw, err := m.model.Correction.Invert(p)
	if err != nil {
		return MagRaw{}, err
	}
	s := MagRawFromVec(raw)
	s.Source = "sim"
	s.Time = time.Now().UTC().Format(time.RFC3339)
	return s, nil
}
