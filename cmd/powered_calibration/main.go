// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Powered magnetometer calibration.
//
// Steps the vehicle through seven thrust levels while the operator rotates it
// by hand, fits an ellipse per level and prints the drift polynomials qx, qy
// and qz that describe how the corrected magnetometer center moves with
// thrust.
//
// Run:
//
//	go run ./cmd/powered_calibration -config thrust_magcal_config.txt
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/thrust_magcal/internal/app"
	"github.com/relabs-tech/thrust_magcal/internal/config"
)

func main() {
	configPath := flag.String("config", "thrust_magcal_config.txt", "configuration file")
	flag.Parse()

	log.Println("starting thrust magnetometer calibration")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunPoweredCalibration(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
