// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Lists stored calibration runs, or refits one of them offline.
//
//	go run ./cmd/replay -list
//	go run ./cmd/replay -run 3 [-config-correction]
package main

import (
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/thrust_magcal/internal/app"
	"github.com/relabs-tech/thrust_magcal/internal/config"
)

func main() {
	configPath := flag.String("config", "thrust_magcal_config.txt", "configuration file")
	list := flag.Bool("list", false, "list stored runs")
	run := flag.Int64("run", 0, "run to refit")
	useConfig := flag.Bool("config-correction", false, "refit with the configured static correction instead of the stored one")
	flag.Parse()

	if !*list && *run <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	id := *run
	if *list {
		id = 0
	}
	if err := app.RunReplay(os.Stdout, id, *useConfig); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
