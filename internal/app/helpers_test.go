// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/thrust_magcal/internal/imu"
	"github.com/relabs-tech/thrust_magcal/internal/link"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

var testLevels = []uint16{0, 10001, 20001, 30001, 40001, 50001, 60000}

// identity maps raw counts straight onto corrected values.
var identity = magcal.StaticCorrection{Transform: magcal.Identity3}

func testOptions() SessionOptions {
	return SessionOptions{
		ThrustLevels:      testLevels,
		KeepAliveInterval: time.Millisecond,
		SettleDelay:       time.Millisecond,
		ShutdownDelay:     2 * time.Millisecond,
	}
}

// levelCenter is the corrected center the fake vehicle shows at level i.
func levelCenter(i int) magcal.Vec3 {
	return magcal.Vec3{X: 100 + 10*float64(i), Y: 50 - 5*float64(i), Z: 30 + 2*float64(i)}
}

// ellipseSamples returns n raw samples on an axis-aligned ellipse around c.
// Z alternates between c.Z-1 and c.Z+1 so that its median is c.Z.
func ellipseSamples(c magcal.Vec3, n int) []imu.MagRaw {
	out := make([]imu.MagRaw, n)
	for k := range out {
		phi := 2 * math.Pi * float64(k) / float64(n)
		z := c.Z - 1
		if k%2 == 1 {
			z = c.Z + 1
		}
		out[k] = imu.MagRawFromVec(magcal.Vec3{
			X: c.X + 1500*math.Cos(phi),
			Y: c.Y + 1100*math.Sin(phi),
			Z: z,
		})
	}
	return out
}

// fakeFeed hands its handler to the test instead of reading from a broker.
type fakeFeed struct {
	err error

	mu sync.Mutex
	h  link.Handler
}

func (f *fakeFeed) Run(ctx context.Context, h link.Handler) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	f.h = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeFeed) running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h != nil
}

func (f *fakeFeed) push(samples ...imu.MagRaw) {
	f.mu.Lock()
	h := f.h
	f.mu.Unlock()
	for _, s := range samples {
		h(s)
	}
}

type recordingCommander struct {
	mu   sync.Mutex
	sent []link.Setpoint
	err  error
}

func (c *recordingCommander) SendSetpoint(sp link.Setpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sp)
	return c.err
}

func (c *recordingCommander) thrusts() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint16, len(c.sent))
	for i, sp := range c.sent {
		out[i] = sp.Thrust
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	records map[int]int
	flushes int
}

func (r *fakeRecorder) Record(level int, _ imu.MagRaw, _ magcal.Vec3) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.records == nil {
		r.records = make(map[int]int)
	}
	r.records[level]++
	return nil
}

func (r *fakeRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

var errFeedDown = errors.New("feed down")

// waitCapturing blocks until level is open and the feed is running.
func waitCapturing(t *testing.T, status func() Status, feed *fakeFeed, level int) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := status()
		return st.Capturing && st.Level == level && feed.running()
	}, 2*time.Second, time.Millisecond)
}
