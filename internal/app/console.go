// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/relabs-tech/thrust_magcal/internal/config"
)

const consolePrompt = "Press Enter for next iteration (e or q will quit):"

// ParseCommand maps an operator input line to a command. An empty line
// advances, e/q/exit/quit abort.
func ParseCommand(line string) (Command, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return CommandNext, true
	case "e", "q", "exit", "quit":
		return CommandAbort, true
	}
	return 0, false
}

// ReadCommands prompts on out and forwards parsed lines from in until an
// abort is read, in is exhausted or ctx is done. The channel is closed on
// return, which the session treats as an abort.
func ReadCommands(ctx context.Context, in io.Reader, out io.Writer, commands chan<- Command) {
	defer close(commands)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, consolePrompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				log.Printf("console: read error: %v", err)
			}
			return
		}

		c, ok := ParseCommand(scanner.Text())
		if !ok {
			fmt.Fprintf(out, "unknown command %q\n", scanner.Text())
			continue
		}

		select {
		case commands <- c:
		case <-ctx.Done():
			return
		}
		if c == CommandAbort {
			return
		}
	}
}

// RunPoweredCalibration runs one calibration driven from the terminal.
func RunPoweredCalibration(ctx context.Context) error {
	cfg := config.Get()
	log.Println("starting powered magnetometer calibration")

	v, err := openVehicle(cfg, cfg.MQTTClientIDCalibration)
	if err != nil {
		return err
	}
	defer v.Close()

	run, err := v.newRun(cfg)
	if err != nil {
		return err
	}

	commands := make(chan Command)
	go ReadCommands(ctx, os.Stdin, os.Stdout, commands)

	fmt.Println("Beginning input loop:")
	res, err := run.session.Run(ctx, v.feed, commands)
	v.finishRun(cfg, run, res, err)
	if IsIncomplete(err) {
		log.Println("calibration aborted before every level was captured, nothing written")
		return nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
