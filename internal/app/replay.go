// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/relabs-tech/thrust_magcal/internal/config"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
	"github.com/relabs-tech/thrust_magcal/internal/storage"
)

// ListRuns prints the stored runs, newest first.
func ListRuns(store *storage.Store, w io.Writer, now time.Time) error {
	runs, err := store.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs stored")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tSAMPLES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			r.ID, humanize.RelTime(r.StartedAt, now, "ago", "from now"), r.Status, humanize.Comma(int64(r.Samples)))
	}
	return tw.Flush()
}

// RefitRun fits a stored run again from its raw samples. A nil correction
// uses the correction the run was captured with.
func RefitRun(store *storage.Store, id int64, correction *magcal.StaticCorrection) (magcal.Result, error) {
	run, err := store.Run(id)
	if err != nil {
		return magcal.Result{}, err
	}
	if correction == nil {
		correction = &run.Correction
	}

	samples, err := store.RunSamples(id)
	if err != nil {
		return magcal.Result{}, err
	}
	return magcal.Process(storage.Series(samples, correction))
}

// RunReplay lists the stored runs, or refits run id when it is positive.
func RunReplay(w io.Writer, id int64, useConfigCorrection bool) error {
	cfg := config.Get()
	if cfg.StoragePath == "" {
		return fmt.Errorf("STORAGE_PATH is not set")
	}

	store, err := storage.Open(cfg.StoragePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if id <= 0 {
		return ListRuns(store, w, time.Now())
	}

	var corr *magcal.StaticCorrection
	if useConfigCorrection {
		c, err := cfg.StaticCorrection()
		if err != nil {
			return err
		}
		corr = &c
	}

	res, err := RefitRun(store, id, corr)
	if err != nil {
		return fmt.Errorf("refit run %d: %w", id, err)
	}

	samples := make([]string, len(res.Samples))
	for i, n := range res.Samples {
		samples[i] = humanize.Comma(int64(n))
	}
	fmt.Fprintf(w, "run %d, samples per level: %s\n", id, strings.Join(samples, " "))
	for i, c := range res.Centers {
		fmt.Fprintf(w, "level %d center (%.3f, %.3f, %.3f) offset (%.3f, %.3f, %.3f)\n",
			i, c.X, c.Y, c.Z, res.Offsets[i].X, res.Offsets[i].Y, res.Offsets[i].Z)
	}
	fmt.Fprintln(w, "result")
	for _, line := range DriftLines(res.Drift) {
		fmt.Fprintln(w, line)
	}
	return nil
}
