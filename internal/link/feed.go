// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/thrust_magcal/internal/imu"
)

// Handler receives every raw sample of a feed. Each call is one atomic append.
type Handler func(imu.MagRaw)

// Feed delivers raw magnetometer samples until ctx is done.
type Feed interface {
	Run(ctx context.Context, h Handler) error
}

// MQTTFeed subscribes to the JSON magnetometer topic.
type MQTTFeed struct {
	client mqtt.Client
	topic  string
}

// NewMQTTFeed returns a feed reading from topic.
func NewMQTTFeed(client mqtt.Client, topic string) *MQTTFeed {
	return &MQTTFeed{client: client, topic: topic}
}

func (f *MQTTFeed) Run(ctx context.Context, h Handler) error {
	token := f.client.Subscribe(f.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s imu.MagRaw
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("mqtt feed: mag unmarshal error: %v", err)
			return
		}
		h(s)
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", f.topic, token.Error())
	}
	log.Printf("mqtt feed: subscribed to %s", f.topic)

	<-ctx.Done()

	if t := f.client.Unsubscribe(f.topic); t.Wait() && t.Error() != nil {
		log.Printf("mqtt feed: unsubscribe %s: %v", f.topic, t.Error())
	}
	return nil
}
