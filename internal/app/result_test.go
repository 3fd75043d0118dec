// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/thrust_magcal/internal/config"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

func sampleResult() magcal.Result {
	return magcal.Result{
		Centers: []magcal.Vec3{{X: 100, Y: 50, Z: 30}, {X: 110, Y: 45, Z: 32}},
		Offsets: []magcal.Vec3{{}, {X: -10, Y: 5, Z: -2}},
		Samples: []int{50, 50},
		Drift: magcal.DriftPolynomial{
			QX: magcal.Polynomial{0, 0, -10, 0},
			QY: magcal.Polynomial{0, 0, 5, 0},
			QZ: magcal.Polynomial{0, 0, -2, 0.25},
		},
	}
}

func TestDriftLines(t *testing.T) {
	lines := DriftLines(sampleResult().Drift)
	assert.Equal(t, []string{
		"qx = [0, 0, -10, 0]",
		"qy = [0, 0, 5, 0]",
		"qz = [0, 0, -2, 0.25]",
	}, lines)
}

func TestResultFileEncodings(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewResultFile(sampleResult(), testLevels, magcal.DefaultStaticCorrection, 7, ts)

	t.Run("json", func(t *testing.T) {
		data, err := f.Encode(config.FormatJSON)
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.EqualValues(t, ResultFileVersion, doc["version"])
		assert.EqualValues(t, 7, doc["run_id"])
		drift := doc["drift"].(map[string]any)
		assert.Equal(t, []any{0.0, 0.0, -10.0, 0.0}, drift["qx"])

		var back ResultFile
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, f, back)
	})

	t.Run("yaml", func(t *testing.T) {
		data, err := f.Encode(config.FormatYAML)
		require.NoError(t, err)
		assert.Contains(t, string(data), "qz:")

		var back ResultFile
		require.NoError(t, yaml.Unmarshal(data, &back))
		assert.Equal(t, f.Drift, back.Drift)
		assert.Equal(t, f.ThrustLevels, back.ThrustLevels)
		assert.Equal(t, f.Correction, back.Correction)
		assert.True(t, f.Timestamp.Equal(back.Timestamp))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := f.Encode("toml")
		assert.Error(t, err)
	})
}

func TestWriteResultFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	ts := time.Unix(1767225600, 0)
	f := NewResultFile(sampleResult(), testLevels, identity, 0, ts)

	path, err := WriteResultFile(dir, config.FormatYAML, f)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "thrust_magcal_1767225600.yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "run_id")
}
