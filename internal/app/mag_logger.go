// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/thrust_magcal/internal/config"
	"github.com/relabs-tech/thrust_magcal/internal/imu"
	"github.com/relabs-tech/thrust_magcal/internal/link"
)

// LineWriter prints every sample as an "x y z" line. Its output is the input
// of the separate hard/soft iron ellipsoid fit and of the serial feed.
type LineWriter struct {
	mu sync.Mutex
	w  io.Writer
	n  int64
}

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// Handle writes one sample.
func (l *LineWriter) Handle(m imu.MagRaw) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintln(l.w, imu.FormatLine(m)); err != nil {
		log.Printf("mag logger: write error: %v", err)
		return
	}
	l.n++
}

// Count returns the number of samples written.
func (l *LineWriter) Count() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// LogSamples streams the feed into lw while pulsing a zero setpoint, until
// ctx is done.
func LogSamples(ctx context.Context, feed link.Feed, cmd link.Commander, interval time.Duration, lw *LineWriter) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return link.KeepAlive(gctx, cmd, interval, func() link.Setpoint { return link.Setpoint{} })
	})
	g.Go(func() error {
		return feed.Run(gctx, lw.Handle)
	})
	return g.Wait()
}

// RunMagLogger prints raw samples to stdout until Enter is pressed.
func RunMagLogger(ctx context.Context) error {
	cfg := config.Get()

	client, err := link.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDLogger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// Enter stops the logger
		bufio.NewReader(os.Stdin).ReadString('\n')
		cancel()
	}()

	log.Println("mag logger: rotate the vehicle in all directions, press Enter to stop")
	lw := NewLineWriter(os.Stdout)
	err = LogSamples(ctx, newFeed(cfg, client), link.NewMQTTCommander(client, cfg.TopicSetpoint),
		config.Millis(cfg.KeepAliveInterval), lw)
	log.Printf("mag logger: wrote %s samples", humanize.Comma(lw.Count()))
	return err
}
