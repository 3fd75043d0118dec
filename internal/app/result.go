// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/thrust_magcal/internal/config"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

// ResultFileVersion is bumped whenever the layout of ResultFile changes.
const ResultFileVersion = 1

// ResultFile is the artifact written at the end of a successful run.
type ResultFile struct {
	Version      int                     `json:"version" yaml:"version"`
	Timestamp    time.Time               `json:"timestamp" yaml:"timestamp"`
	RunID        int64                   `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ThrustLevels []uint16                `json:"thrust_levels" yaml:"thrust_levels"`
	Correction   magcal.StaticCorrection `json:"correction" yaml:"correction"`

	magcal.Result `yaml:",inline"`
}

// NewResultFile wraps res with the settings it was captured with.
func NewResultFile(res magcal.Result, levels []uint16, corr magcal.StaticCorrection, runID int64, now time.Time) ResultFile {
	return ResultFile{
		Version:      ResultFileVersion,
		Timestamp:    now.UTC(),
		RunID:        runID,
		ThrustLevels: levels,
		Correction:   corr,
		Result:       res,
	}
}

// Encode serializes the file as JSON or YAML.
func (f ResultFile) Encode(format string) ([]byte, error) {
	switch format {
	case config.FormatJSON:
		return json.MarshalIndent(f, "", "  ")
	case config.FormatYAML:
		return yaml.Marshal(f)
	}
	return nil, fmt.Errorf("unknown result format %q", format)
}

// WriteResultFile writes f into dir and returns the path.
func WriteResultFile(dir, format string, f ResultFile) (string, error) {
	data, err := f.Encode(format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create result dir: %w", err)
	}

	name := fmt.Sprintf("thrust_magcal_%d.%s", f.Timestamp.Unix(), format)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write result file: %w", err)
	}
	return path, nil
}

// PublishResult publishes f as retained JSON on topic.
func PublishResult(client mqtt.Client, topic string, f ResultFile) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if token := client.Publish(topic, 1, true, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish result: %w", token.Error())
	}
	return nil
}

// DriftLines renders the polynomials as "qx = [...]" lines, ready to be
// pasted into firmware tables.
func DriftLines(d magcal.DriftPolynomial) []string {
	return []string{
		"qx = " + formatCoefficients(d.QX),
		"qy = " + formatCoefficients(d.QY),
		"qz = " + formatCoefficients(d.QZ),
	}
}

func formatCoefficients(p magcal.Polynomial) string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = strconv.FormatFloat(c, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
