// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

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

	log.Println("starting thrust magnetometer simulator (mock vehicle)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunSimulator(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
