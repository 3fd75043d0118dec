// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Setpoint is the attitude/thrust command sent to the vehicle.
type Setpoint struct {
	Roll    float64 `json:"roll"`
	Pitch   float64 `json:"pitch"`
	YawRate float64 `json:"yawrate"`
	Thrust  uint16  `json:"thrust"`
}

// Commander sends setpoints to the vehicle.
type Commander interface {
	SendSetpoint(Setpoint) error
}

// MQTTCommander publishes setpoints as JSON to a topic bridged to the vehicle.
type MQTTCommander struct {
	client mqtt.Client
	topic  string
}

// NewMQTTCommander returns a commander publishing on topic.
func NewMQTTCommander(client mqtt.Client, topic string) *MQTTCommander {
	return &MQTTCommander{client: client, topic: topic}
}

func (c *MQTTCommander) SendSetpoint(sp Setpoint) error {
	payload, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("marshal setpoint: %w", err)
	}
	if token := c.client.Publish(c.topic, 0, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish setpoint: %w", token.Error())
	}
	return nil
}

// KeepAlive sends current() every interval until ctx is done, so that the
// vehicle's command watchdog never cuts the motors mid-capture. Send errors
// are logged and the loop keeps going.
func KeepAlive(ctx context.Context, cmd Commander, interval time.Duration, current func() Setpoint) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		if err := cmd.SendSetpoint(current()); err != nil {
			failures++
			if failures == 1 || failures%50 == 0 {
				log.Printf("keepalive: send failed (%d so far): %v", failures, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
