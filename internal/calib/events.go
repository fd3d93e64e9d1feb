// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calib

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// FormatError reports an events file that could not fully populate the
// active topology's stage params. Stages it names keep their previous (or
// default) values; training proceeds in doctor-calibration mode.
type FormatError struct {
	Path    string
	Missing []string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("calibration events file %s: missing or incomplete stages: %s",
		e.Path, strings.Join(e.Missing, ", "))
}

// eventRecord is one parsed row of an events file.
type eventRecord struct {
	stage     StageName
	kind      string // "baseline" or "target"
	sensors   []float64
	weights   []float64
	tolerance float64
}

// LoadEventsFile populates the stage params of the active topology from a
// training-events CSV. Each stage needs a baseline row and a target row; the
// per-channel vectors reduce to scalar baseline/target through the same
// normalized weighted sum the stage engine uses.
//
// Row layout: time(s), event_name, event_code, stage, sensor1..N,
// weight1..N, error_range. Lines starting with '#' are comments.
func (m *Model) LoadEventsFile(path string, sensorCount int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()
	return m.loadEvents(f, path, sensorCount)
}

func (m *Model) loadEvents(r io.Reader, path string, sensorCount int) error {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("events file %s: no header: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"event_name", "stage"} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("events file %s: missing %q column", path, required)
		}
	}

	type accum struct {
		baseline *eventRecord
		target   *eventRecord
	}
	byStage := make(map[StageName]*accum)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("events file %s: %w", path, err)
		}

		rec, kindOK := parseEventRow(row, col, sensorCount)
		if !kindOK {
			continue // row is not a baseline/target record
		}

		a := byStage[rec.stage]
		if a == nil {
			a = &accum{}
			byStage[rec.stage] = a
		}
		// Last occurrence wins, matching re-recorded calibrations.
		if rec.kind == "baseline" {
			a.baseline = &rec
		} else {
			a.target = &rec
		}
	}

	cur := m.Active()
	loaded := make(map[StageName]StageParam)
	var missing []string

	for _, name := range cur.Topology.Stages() {
		a := byStage[name]
		if a == nil || a.baseline == nil || a.target == nil {
			missing = append(missing, string(name))
			continue
		}

		weights := make(map[int]float64, len(a.baseline.weights))
		for ch, w := range a.baseline.weights {
			if w != 0 {
				weights[ch] = w
			}
		}
		p := StageParam{
			Name:      name,
			Weights:   weights,
			Tolerance: a.baseline.tolerance,
		}
		baseline, okB := p.Combine(a.baseline.sensors)
		target, okT := p.Combine(a.target.sensors)
		if !okB || !okT {
			missing = append(missing, string(name))
			continue
		}
		p.Baseline = baseline
		p.Target = target
		loaded[name] = p
	}

	complete := len(missing) == 0
	m.apply(loaded, complete)

	if !complete {
		return &FormatError{Path: path, Missing: missing}
	}
	return nil
}

// parseEventRow extracts one record; kindOK is false for rows that are not
// baseline/target calibration events.
func parseEventRow(row []string, col map[string]int, sensorCount int) (eventRecord, bool) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec eventRecord
	switch get("event_name") {
	case "baseline_recorded", "baseline", "original":
		rec.kind = "baseline"
	case "target_recorded", "target", "completed":
		rec.kind = "target"
	default:
		return rec, false
	}

	rec.stage = StageName(get("stage"))
	if rec.stage == "" {
		return rec, false
	}

	rec.sensors = make([]float64, sensorCount)
	rec.weights = make([]float64, sensorCount)
	for i := 0; i < sensorCount; i++ {
		if v, err := strconv.ParseFloat(get(fmt.Sprintf("sensor%d", i+1)), 64); err == nil {
			rec.sensors[i] = v
		}
		if v, err := strconv.ParseFloat(get(fmt.Sprintf("weight%d", i+1)), 64); err == nil {
			rec.weights[i] = v
		}
	}

	rec.tolerance = DefaultTolerance
	if v, err := strconv.ParseFloat(get("error_range"), 64); err == nil && v > 0 {
		rec.tolerance = v
	}
	return rec, true
}
