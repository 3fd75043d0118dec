// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Raw magnetometer logger.
//
// Prints one "x y z" line per sample while keeping the motors at zero thrust.
// Redirect stdout to a file and feed it to the hard/soft iron ellipsoid fit.
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

	// samples go to stdout, logs to stderr
	log.SetOutput(os.Stderr)

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunMagLogger(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
