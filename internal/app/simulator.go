// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/thrust_magcal/internal/config"
	"github.com/relabs-tech/thrust_magcal/internal/imu"
	"github.com/relabs-tech/thrust_magcal/internal/link"
)

// Simulator is a mock vehicle: it obeys setpoints and produces samples whose
// distortion center follows the commanded thrust. Like the real firmware it
// cuts the motors when setpoints stop arriving.
type Simulator struct {
	src      *imu.MockMagSource
	watchdog time.Duration

	mu           sync.Mutex
	thrust       uint16
	lastSetpoint time.Time
}

// NewSimulator wraps src. A setpoint older than watchdog zeroes the thrust.
func NewSimulator(src *imu.MockMagSource, watchdog time.Duration) *Simulator {
	return &Simulator{src: src, watchdog: watchdog}
}

// HandleSetpoint applies a JSON setpoint received at now.
func (s *Simulator) HandleSetpoint(payload []byte, now time.Time) error {
	var sp link.Setpoint
	if err := json.Unmarshal(payload, &sp); err != nil {
		return fmt.Errorf("setpoint unmarshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sp.Thrust != s.thrust {
		log.Printf("simulator: thrust %d -> %d", s.thrust, sp.Thrust)
	}
	s.thrust = sp.Thrust
	s.lastSetpoint = now
	return nil
}

// Thrust returns the thrust in effect at now.
func (s *Simulator) Thrust(now time.Time) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thrust != 0 && now.Sub(s.lastSetpoint) > s.watchdog {
		log.Printf("simulator: no setpoint for %v, cutting motors", now.Sub(s.lastSetpoint).Round(time.Millisecond))
		s.thrust = 0
	}
	return s.thrust
}

// Sample produces the next sample at now.
func (s *Simulator) Sample(now time.Time) (imu.MagRaw, error) {
	s.src.SetThrust(s.Thrust(now))
	m, err := s.src.NextMag()
	if err != nil {
		return imu.MagRaw{}, err
	}
	m.Time = now.UTC().Format(time.RFC3339)
	return m, nil
}

// SimulatorModel builds the thrust model from the configuration.
func SimulatorModel(cfg *config.Config) (imu.ThrustModel, error) {
	corr, err := cfg.StaticCorrection()
	if err != nil {
		return imu.ThrustModel{}, err
	}
	model := imu.DefaultThrustModel()
	model.Correction = corr
	model.Radius = cfg.SimRadius
	model.Noise = cfg.SimNoise
	return model, nil
}

// RunSimulator publishes simulated samples until ctx is done.
func RunSimulator(ctx context.Context) error {
	log.Println("starting magnetometer simulator")

	cfg := config.Get()
	model, err := SimulatorModel(cfg)
	if err != nil {
		return err
	}

	// --- connect to MQTT ---
	client, err := link.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDSimulator)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	// the firmware kill-switch trips after five missed keep-alives
	watchdog := 5 * config.Millis(cfg.KeepAliveInterval)
	sim := NewSimulator(imu.NewMockMagSource(model, time.Now().UnixNano()), watchdog)

	token := client.Subscribe(cfg.TopicSetpoint, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := sim.HandleSetpoint(msg.Payload(), time.Now()); err != nil {
			log.Printf("simulator: %v", err)
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.TopicSetpoint, token.Error())
	}
	log.Printf("simulator: listening for setpoints on %s, publishing on %s", cfg.TopicSetpoint, cfg.TopicMag)

	ticker := time.NewTicker(config.Millis(cfg.SimSampleInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			m, err := sim.Sample(t)
			if err != nil {
				log.Printf("simulator: sample error: %v", err)
				continue
			}
			payload, err := json.Marshal(m)
			if err != nil {
				log.Printf("json marshal error (mag): %v", err)
				continue
			}
			if token := client.Publish(cfg.TopicMag, 0, false, payload); token.Wait() && token.Error() != nil {
				log.Printf("MQTT publish error (mag): %v", token.Error())
			}
		}
	}
}
