// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package export writes session artifacts to disk: the raw and processed
// CSV dumps at session end, and the live training-events log.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/spine_trainer/internal/frame"
	"github.com/relabs-tech/spine_trainer/internal/stage"
)

// Session owns one session's output directory. The directory name combines
// the wall-clock start and a short random id so parallel or replayed
// sessions never collide.
type Session struct {
	id  string
	dir string
}

// NewSession creates the output directory under baseDir.
func NewSession(baseDir string) (*Session, error) {
	id := uuid.NewString()[:8]
	dir := filepath.Join(baseDir, fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Session{id: id, dir: dir}, nil
}

// ID returns the short session id.
func (s *Session) ID() string { return s.id }

// Dir returns the session output directory.
func (s *Session) Dir() string { return s.dir }

// WriteRaw dumps the raw frame log to raw.csv: time(s), sensor1..N.
func (s *Session) WriteRaw(frames []frame.Frame, sensorCount int) (string, error) {
	path := filepath.Join(s.dir, "raw.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create raw export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := make([]string, 0, sensorCount+1)
	header = append(header, "time(s)")
	for i := 1; i <= sensorCount; i++ {
		header = append(header, fmt.Sprintf("sensor%d", i))
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	row := make([]string, sensorCount+1)
	for _, fr := range frames {
		row[0] = formatFloat(fr.Timestamp)
		for i := 0; i < sensorCount; i++ {
			if i < len(fr.Channels) {
				row[i+1] = formatFloat(fr.Channels[i])
			} else {
				row[i+1] = ""
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write raw export: %w", err)
	}
	return path, nil
}

// WriteProcessed dumps the processed log to processed.csv in long form, one
// row per stage per sample. Long form survives mid-session topology
// switches, where the stage set itself changes.
func (s *Session) WriteProcessed(samples []stage.ProcessedSample) (string, error) {
	path := filepath.Join(s.dir, "processed.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create processed export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"time(s)", "spine_type", "stage", "value", "error_range", "in_tolerance", "spine_curve"}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, sm := range samples {
		for _, sv := range sm.Stages {
			row := []string{
				formatFloat(sm.Timestamp),
				string(sm.Topology.Kind),
				string(sv.Name),
				formatFloat(sv.Value),
				formatFloat(sv.ErrorRange),
				strconv.FormatBool(sv.InTolerance),
				formatFloat(sm.SpineCurve),
			}
			if err := w.Write(row); err != nil {
				return "", err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write processed export: %w", err)
	}
	return path, nil
}

// EventsWriter appends training events to events.csv as they happen. The
// column layout matches what the calibration loader reads back, so a
// session's own recording can seed the next session.
type EventsWriter struct {
	mu          sync.Mutex
	f           *os.File
	w           *csv.Writer
	sensorCount int
}

// NewEventsWriter creates the events file and writes its header.
func NewEventsWriter(path string, sensorCount int) (*EventsWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create events log: %w", err)
	}
	w := csv.NewWriter(f)

	header := make([]string, 0, 2*sensorCount+5)
	header = append(header, "time(s)", "event_name", "event_code", "stage")
	for i := 1; i <= sensorCount; i++ {
		header = append(header, fmt.Sprintf("sensor%d", i))
	}
	for i := 1; i <= sensorCount; i++ {
		header = append(header, fmt.Sprintf("weight%d", i))
	}
	header = append(header, "error_range")
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &EventsWriter{f: f, w: w, sensorCount: sensorCount}, nil
}

// Write appends one event row and flushes it, so a crash loses at most the
// row being written.
func (e *EventsWriter) Write(ev stage.TrainingEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	row := make([]string, 0, 2*e.sensorCount+5)
	row = append(row,
		formatFloat(ev.Time),
		string(ev.Kind),
		strconv.Itoa(ev.Code),
		string(ev.Stage),
	)
	for i := 0; i < e.sensorCount; i++ {
		row = append(row, vectorAt(ev.Sensors, i))
	}
	for i := 0; i < e.sensorCount; i++ {
		row = append(row, vectorAt(ev.Weights, i))
	}
	row = append(row, formatFloat(ev.ErrorRange))

	if err := e.w.Write(row); err != nil {
		return err
	}
	e.w.Flush()
	return e.w.Error()
}

// Close flushes and closes the file.
func (e *EventsWriter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.w.Flush()
	if err := e.w.Error(); err != nil {
		e.f.Close()
		return err
	}
	return e.f.Close()
}

func vectorAt(v []float64, i int) string {
	if i >= len(v) {
		return ""
	}
	return formatFloat(v[i])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
