// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/thrust_magcal/internal/config"
	"github.com/relabs-tech/thrust_magcal/internal/link"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
	"github.com/relabs-tech/thrust_magcal/internal/storage"
)

// vehicle bundles the connections a calibration run needs.
type vehicle struct {
	client mqtt.Client
	feed   link.Feed
	cmd    link.Commander
	store  *storage.Store // nil when STORAGE_PATH is empty
}

func openVehicle(cfg *config.Config, clientID string) (*vehicle, error) {
	client, err := link.ConnectMQTT(cfg.MQTTBroker, clientID)
	if err != nil {
		return nil, err
	}
	v := &vehicle{
		client: client,
		feed:   newFeed(cfg, client),
		cmd:    link.NewMQTTCommander(client, cfg.TopicSetpoint),
	}

	if cfg.StoragePath != "" {
		store, err := storage.Open(cfg.StoragePath)
		if err != nil {
			client.Disconnect(250)
			return nil, err
		}
		v.store = store
		log.Printf("storage: capture log at %s", cfg.StoragePath)
	}
	return v, nil
}

func newFeed(cfg *config.Config, client mqtt.Client) link.Feed {
	if cfg.SampleFeed == config.FeedSerial {
		return link.NewSerialFeed(cfg.FeedSerialPort, cfg.FeedBaudRate)
	}
	return link.NewMQTTFeed(client, cfg.TopicMag)
}

func (v *vehicle) Close() {
	if v.store != nil {
		if err := v.store.Close(); err != nil {
			log.Printf("storage: close: %v", err)
		}
	}
	v.client.Disconnect(250)
}

// calibrationRun is a session plus its optional capture log.
type calibrationRun struct {
	session    *Session
	capture    *storage.CaptureLog
	correction magcal.StaticCorrection
}

func (v *vehicle) newRun(cfg *config.Config) (*calibrationRun, error) {
	corr, err := cfg.StaticCorrection()
	if err != nil {
		return nil, err
	}

	run := &calibrationRun{correction: corr}
	var rec Recorder
	if v.store != nil {
		id, err := v.store.CreateRun(cfg.ThrustLevels, corr)
		if err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
		run.capture = storage.NewCaptureLog(v.store, id, storage.DefaultBatchSize)
		rec = run.capture
		log.Printf("storage: recording run %d", id)
	}

	session, err := NewSession(SessionOptionsFromConfig(cfg), v.cmd, corr, rec)
	if err != nil {
		return nil, err
	}
	run.session = session
	return run, nil
}

// finishRun reports, writes, publishes and persists the outcome of a run.
func (v *vehicle) finishRun(cfg *config.Config, run *calibrationRun, res magcal.Result, runErr error) {
	var runID int64
	if run.capture != nil {
		runID = run.capture.RunID()
		if err := run.capture.Flush(); err != nil {
			log.Printf("storage: flush run %d: %v", runID, err)
		}
	}

	if runErr != nil {
		log.Printf("session: calibration failed: %v", runErr)
		if run.capture != nil {
			status := storage.StatusFailed
			if IsIncomplete(runErr) {
				status = storage.StatusAborted
			}
			if err := v.store.SetStatus(runID, status); err != nil {
				log.Printf("storage: %v", err)
			}
		}
		return
	}

	log.Println("result")
	for _, line := range DriftLines(res.Drift) {
		log.Println(line)
	}

	file := NewResultFile(res, cfg.ThrustLevels, run.correction, runID, time.Now())
	if path, err := WriteResultFile(cfg.ResultDir, cfg.ResultFormat, file); err != nil {
		log.Printf("result: %v", err)
	} else {
		log.Printf("result: saved to %s", path)
	}

	if err := PublishResult(v.client, cfg.TopicResult, file); err != nil {
		log.Printf("result: %v", err)
	}

	if run.capture != nil {
		if err := v.store.SaveResult(runID, res); err != nil {
			log.Printf("storage: %v", err)
		}
	}
}
