// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/thrust_magcal/internal/config"
	"github.com/relabs-tech/thrust_magcal/internal/imu"
	"github.com/relabs-tech/thrust_magcal/internal/link"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

// Command is an operator action.
type Command int

const (
	CommandNext Command = iota
	CommandAbort
)

func (c Command) String() string {
	switch c {
	case CommandNext:
		return "next"
	case CommandAbort:
		return "abort"
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Phase of a session.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSettling  Phase = "settling"
	PhaseCapturing Phase = "capturing"
	PhaseStopping  Phase = "stopping"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// Recorder receives every sample that was filed under a level.
type Recorder interface {
	Record(level int, raw imu.MagRaw, corrected magcal.Vec3) error
	Flush() error
}

// SessionOptions holds the thrust schedule and timing of a session.
type SessionOptions struct {
	ThrustLevels      []uint16
	KeepAliveInterval time.Duration
	SettleDelay       time.Duration
	ShutdownDelay     time.Duration
}

// SessionOptionsFromConfig builds the options from the loaded configuration.
func SessionOptionsFromConfig(cfg *config.Config) SessionOptions {
	return SessionOptions{
		ThrustLevels:      cfg.ThrustLevels,
		KeepAliveInterval: config.Millis(cfg.KeepAliveInterval),
		SettleDelay:       config.Millis(cfg.SettleDelay),
		ShutdownDelay:     config.Millis(cfg.ShutdownDelay),
	}
}

// Status is a snapshot of a session for operators and the web UI.
type Status struct {
	Phase     Phase                  `json:"phase"`
	Level     int                    `json:"level"`
	Thrust    uint16                 `json:"thrust"`
	Capturing bool                   `json:"capturing"`
	Counts    [magcal.LevelCount]int `json:"counts"`
	Finalized int                    `json:"finalized"`
	Error     string                 `json:"error,omitempty"`
}

// Session drives one powered calibration: it steps the vehicle through the
// thrust schedule, files incoming samples under the active level and fits
// the drift polynomials once the run is over.
type Session struct {
	opts SessionOptions
	cmd  link.Commander
	cal  *magcal.Calibrator
	rec  Recorder

	stopped chan struct{} // closed once commands are no longer read

	mu     sync.Mutex
	phase  Phase
	level  int
	thrust uint16
	result *magcal.Result
	err    error
}

// NewSession returns an idle session. rec may be nil.
func NewSession(opts SessionOptions, cmd link.Commander, correction magcal.StaticCorrection, rec Recorder) (*Session, error) {
	if len(opts.ThrustLevels) != magcal.LevelCount {
		return nil, fmt.Errorf("%w: %d thrust levels, want %d",
			magcal.ErrInvalidConfiguration, len(opts.ThrustLevels), magcal.LevelCount)
	}
	if opts.KeepAliveInterval <= 0 {
		return nil, fmt.Errorf("%w: keep-alive interval must be positive", magcal.ErrInvalidConfiguration)
	}
	return &Session{
		opts:    opts,
		cmd:     cmd,
		cal:     magcal.NewCalibrator(correction),
		rec:     rec,
		stopped: make(chan struct{}),
		phase:   PhaseIdle,
		level:   -1,
	}, nil
}

// Setpoint returns the setpoint the keep-alive task is currently sending.
func (s *Session) Setpoint() link.Setpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return link.Setpoint{Thrust: s.thrust}
}

// HandleSample corrects a raw sample and files it under the open level.
// Samples arriving while no level is open are dropped.
func (s *Session) HandleSample(raw imu.MagRaw) {
	corrected, level, ok := s.cal.Ingest(raw.Vec())
	if !ok || s.rec == nil {
		return
	}
	if err := s.rec.Record(level, raw, corrected); err != nil {
		log.Printf("session: record sample: %v", err)
	}
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	store := s.cal.Store()
	_, capturing := store.Open()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Phase:     s.phase,
		Level:     s.level,
		Thrust:    s.thrust,
		Capturing: capturing,
		Counts:    store.Counts(),
		Finalized: store.Finalized(),
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}

// Series returns a copy of the corrected samples captured so far.
func (s *Session) Series() []magcal.Series {
	return s.cal.Store().Snapshot()
}

// Result returns the fitted result once the session has finished successfully.
func (s *Session) Result() (magcal.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return magcal.Result{}, false
	}
	return *s.result, true
}

// Stopped is closed when the session stops reading commands.
func (s *Session) Stopped() <-chan struct{} {
	return s.stopped
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Run pulses the current setpoint, feeds samples into the session and
// executes commands until the schedule is complete, an abort arrives, the
// commands channel is closed or ctx is done. It then brings the thrust back
// to zero and fits the captured series. An incomplete run returns
// magcal.ErrIncomplete. Run must be called only once.
func (s *Session) Run(ctx context.Context, feed link.Feed, commands <-chan Command) (magcal.Result, error) {
	// the pulser must outlive ctx so that the zero setpoint is still sent
	// while the motors spin down
	pulseCtx, stopPulse := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPulse()

	g, gctx := errgroup.WithContext(pulseCtx)

	g.Go(func() error {
		return link.KeepAlive(gctx, s.cmd, s.opts.KeepAliveInterval, s.Setpoint)
	})
	g.Go(func() error {
		if err := feed.Run(gctx, s.HandleSample); err != nil {
			return fmt.Errorf("sample feed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		// a failing feed cancels gctx and must end the control loop too
		stop := context.AfterFunc(gctx, cancel)
		defer stop()

		s.control(runCtx, commands)
		close(s.stopped)
		s.shutdown(stopPulse)
		return nil
	})

	err := g.Wait()
	// the pulser is gone, make sure the last word the vehicle heard is zero
	if sErr := s.cmd.SendSetpoint(link.Setpoint{}); sErr != nil {
		log.Printf("session: final zero setpoint: %v", sErr)
	}
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.phase = PhaseFailed
		s.mu.Unlock()
		return magcal.Result{}, err
	}
	return s.finish()
}

func (s *Session) control(ctx context.Context, commands <-chan Command) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("session: interrupted: %v", context.Cause(ctx))
			return
		case c, ok := <-commands:
			if !ok {
				log.Println("session: command channel closed")
				return
			}
			switch c {
			case CommandAbort:
				log.Println("session: abort requested")
				return
			case CommandNext:
				done, err := s.advance(ctx)
				if err != nil {
					log.Printf("session: advance interrupted: %v", err)
					return
				}
				if done {
					log.Println("session: finished calibration")
					return
				}
			default:
				log.Printf("session: ignoring %v", c)
			}
		}
	}
}

// advance freezes the open level, steps to the next thrust and opens the
// next level once the motors had time to settle. It reports done when the
// last level was already captured.
func (s *Session) advance(ctx context.Context) (done bool, err error) {
	s.mu.Lock()
	if s.level >= magcal.LevelCount-1 {
		s.mu.Unlock()
		return true, nil
	}
	s.phase = PhaseSettling
	s.mu.Unlock()

	s.closeLevel()
	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.level++
	level := s.level
	s.thrust = s.opts.ThrustLevels[level]
	thrust := s.thrust
	s.mu.Unlock()
	log.Printf("session: running level %d at thrust %s, rotate the vehicle and advance when finished",
		level, humanize.Comma(int64(thrust)))

	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return false, err
	}
	if err := s.cal.Store().BeginSeries(level); err != nil {
		return false, err
	}
	s.setPhase(PhaseCapturing)
	return false, nil
}

func (s *Session) closeLevel() {
	store := s.cal.Store()
	level, open := store.Open()
	store.CloseSeries()
	if !open {
		return
	}
	log.Printf("session: level %d closed with %s samples", level, humanize.Comma(int64(store.Counts()[level])))
	if s.rec != nil {
		if err := s.rec.Flush(); err != nil {
			log.Printf("session: flush samples: %v", err)
		}
	}
}

// shutdown commands zero thrust, keeps pulsing it for the shutdown delay
// and then stops the pulser.
func (s *Session) shutdown(stopPulse func()) {
	s.mu.Lock()
	s.phase = PhaseStopping
	s.thrust = 0
	s.mu.Unlock()

	time.Sleep(s.opts.ShutdownDelay)
	stopPulse()
	s.closeLevel()
}

func (s *Session) finish() (magcal.Result, error) {
	res, err := s.cal.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.err = err
		s.phase = PhaseFailed
		return magcal.Result{}, err
	}
	s.result = &res
	s.phase = PhaseDone
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsIncomplete reports whether err means the run was aborted before every
// level was captured.
func IsIncomplete(err error) bool {
	return errors.Is(err, magcal.ErrIncomplete)
}
