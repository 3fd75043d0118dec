// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/relabs-tech/thrust_magcal/internal/config"
	"github.com/relabs-tech/thrust_magcal/internal/link"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

// NewWebHandler exposes the controller over HTTP and websocket.
func NewWebHandler(c *Controller, staticDir string) http.Handler {
	mux := http.NewServeMux()

	// JSON API endpoint: session status
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, c.Status())
	})

	// JSON API endpoint: corrected series for plotting
	mux.HandleFunc("GET /api/series", func(w http.ResponseWriter, r *http.Request) {
		series := c.Series()
		if series == nil {
			series = []magcal.Series{}
		}
		writeJSON(w, series)
	})

	// JSON API endpoint: last result
	mux.HandleFunc("GET /api/result", func(w http.ResponseWriter, r *http.Request) {
		res, ok := c.Result()
		if !ok {
			http.Error(w, "no result yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, res)
	})

	mux.HandleFunc("/ws/calibration", c.HandleCalibrationWS)

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// RunWeb serves the calibration UI until ctx is done.
func RunWeb(ctx context.Context) error {
	cfg := config.Get()

	v, err := openVehicle(cfg, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer v.Close()

	ctrl := NewController(ctx, func() (*Session, link.Feed, func(magcal.Result, error), error) {
		run, err := v.newRun(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		onDone := func(res magcal.Result, err error) {
			v.finishRun(cfg, run, res, err)
		}
		return run.session, v.feed, onDone, nil
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           NewWebHandler(ctrl, "web"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// let a running session bring the motors down before exiting
		if done := ctrl.Done(); done != nil {
			<-done
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("web: shutdown: %v", err)
		}
	}()

	log.Printf("web server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
