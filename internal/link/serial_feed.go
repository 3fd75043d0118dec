// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/thrust_magcal/internal/imu"
)

// SerialFeed reads "x y z" sample lines from a serial port, the format the
// raw logger prints and many bench firmwares emit.
type SerialFeed struct {
	opts serial.OpenOptions
}

// NewSerialFeed returns a feed for the given port and baud rate (8N1).
func NewSerialFeed(port string, baud uint) *SerialFeed {
	return &SerialFeed{opts: serial.OpenOptions{
		PortName:              port,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}}
}

func (f *SerialFeed) Run(ctx context.Context, h Handler) error {
	port, err := serial.Open(f.opts)
	if err != nil {
		return fmt.Errorf("open serial %s: %w", f.opts.PortName, err)
	}
	log.Printf("serial feed: opened %s at %d baud", f.opts.PortName, f.opts.BaudRate)

	// closing the port unblocks the reader
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()

	return readPort(ctx, f.opts.PortName, port, h)
}

// readPort scans r until it ends. Only a cancelled ctx ends the feed cleanly:
// a port that reaches EOF on its own has been unplugged.
func readPort(ctx context.Context, name string, r io.Reader, h Handler) error {
	err := ScanLines(r, h)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("serial feed: %s closed unexpectedly", name)
	return fmt.Errorf("serial %s: %w", name, io.ErrUnexpectedEOF)
}

// ScanLines parses sample lines from r until EOF. Lines that do not parse are
// logged and skipped.
func ScanLines(r io.Reader, h Handler) error {
	scanner := bufio.NewScanner(r)
	bad := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s, err := imu.ParseLine(line)
		if err != nil {
			bad++
			if bad == 1 || bad%100 == 0 {
				log.Printf("serial feed: skipping line (%d bad so far): %v", bad, err)
			}
			continue
		}
		h(s)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read samples: %w", err)
	}
	return nil
}
