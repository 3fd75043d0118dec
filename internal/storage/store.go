// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned for unknown run ids.
var ErrNotFound = errors.New("not found")

// Store is the sqlite capture log.
type Store struct {
	db *sql.DB

	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// a single writer keeps sqlite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

const insertRunSQL = `
INSERT INTO runs (thrust_levels, correction)
VALUES (?, ?)`

// CreateRun records the start of a calibration attempt and returns its id.
func (s *Store) CreateRun(levels []uint16, correction magcal.StaticCorrection) (int64, error) {
	lv, err := json.Marshal(levels)
	if err != nil {
		return 0, fmt.Errorf("marshaling thrust levels: %w", err)
	}
	corr, err := json.Marshal(correction)
	if err != nil {
		return 0, fmt.Errorf("marshaling correction: %w", err)
	}

	result, err := s.db.Exec(insertRunSQL, string(lv), string(corr))
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return result.LastInsertId()
}

// SetStatus updates the status of a run.
func (s *Store) SetStatus(runID int64, status string) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ? WHERE id = ?`, status, runID)
	if err != nil {
		return fmt.Errorf("updating run %d: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	return nil
}

const insertSampleSQL = `
INSERT INTO samples (run_id, level, raw_x, raw_y, raw_z, x, y, z)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// InsertSamples stores a batch of samples in a single transaction.
func (s *Store) InsertSamples(runID int64, samples []SampleRecord) (err error) {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range samples {
		if _, err = stmt.Exec(runID, r.Level, r.Raw.Mx, r.Raw.My, r.Raw.Mz,
			r.Corrected.X, r.Corrected.Y, r.Corrected.Z); err != nil {
			return fmt.Errorf("inserting sample: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing samples: %w", err)
	}
	return nil
}

// SaveResult stores the result of a run and marks it completed.
func (s *Store) SaveResult(runID int64, res magcal.Result) error {
	p, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO results (run_id, result) VALUES (?, ?)`, runID, string(p)); err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}
	return s.SetStatus(runID, StatusCompleted)
}

// Result returns the stored result of a run.
func (s *Store) Result(runID int64) (magcal.Result, error) {
	var p string
	err := s.db.QueryRow(`SELECT result FROM results WHERE run_id = ?`, runID).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return magcal.Result{}, fmt.Errorf("result of run %d: %w", runID, ErrNotFound)
	}
	if err != nil {
		return magcal.Result{}, fmt.Errorf("scanning result: %w", err)
	}

	var res magcal.Result
	if err := json.Unmarshal([]byte(p), &res); err != nil {
		return magcal.Result{}, fmt.Errorf("decoding result: %w", err)
	}
	return res, nil
}

const selectRunsSQL = `
SELECT r.id,
       r.started_at,
       r.thrust_levels,
       r.correction,
       r.status,
       (SELECT COUNT(*) FROM samples s WHERE s.run_id = r.id)
FROM runs r`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		lv, corr string
	)
	if err := row.Scan(&run.ID, &run.StartedAt, &lv, &corr, &run.Status, &run.Samples); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(lv), &run.ThrustLevels); err != nil {
		return Run{}, fmt.Errorf("decoding thrust levels: %w", err)
	}
	if err := json.Unmarshal([]byte(corr), &run.Correction); err != nil {
		return Run{}, fmt.Errorf("decoding correction: %w", err)
	}
	return run, nil
}

// Run returns a run by id.
func (s *Store) Run(id int64) (Run, error) {
	run, err := scanRun(s.db.QueryRow(selectRunsSQL+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	return run, nil
}

// Runs lists all runs, newest first.
func (s *Store) Runs() (runs []Run, err error) {
	rows, err := s.db.Query(selectRunsSQL + ` ORDER BY r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() {
		if cErr := rows.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cErr)
		}
	}()

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const selectSamplesSQL = `
SELECT level, raw_x, raw_y, raw_z, x, y, z
FROM samples
WHERE run_id = ?
ORDER BY level, id`

// RunSamples returns every sample of a run in capture order per level.
func (s *Store) RunSamples(runID int64) (samples []SampleRecord, err error) {
	rows, err := s.db.Query(selectSamplesSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer func() {
		if cErr := rows.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cErr)
		}
	}()

	for rows.Next() {
		var r SampleRecord
		if err := rows.Scan(&r.Level, &r.Raw.Mx, &r.Raw.My, &r.Raw.Mz,
			&r.Corrected.X, &r.Corrected.Y, &r.Corrected.Z); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		samples = append(samples, r)
	}
	return samples, rows.Err()
}
