// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stage

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/spine_trainer/internal/calib"
)

// State is the lifecycle position of the tracker's active stage.
type State string

const (
	StateIdle      State = "idle"
	StateArmed     State = "armed"
	StateWithin    State = "within_tolerance"
	StateOutOf     State = "out_of_tolerance"
	StateCompleted State = "completed"
)

// Alert is a tolerance-exit notification destined for the operator UI. It is
// edge-triggered: one alert per within-to-out transition, and transitions
// that follow a previous alert closer than the debounce window are swallowed.
type Alert struct {
	Time       float64         `json:"time"`
	Stage      calib.StageName `json:"stage"`
	Value      float64         `json:"value"`
	ErrorRange float64         `json:"error_range"`
}

// Tracker drives the training lifecycle of one stage at a time:
// idle -> armed -> within/out of tolerance -> completed. It consumes
// processed samples for the armed stage, logs tolerance transitions and
// raises debounced alerts on exits.
//
// All methods are safe for concurrent use; the hot path calls Observe while
// operator commands arrive from another goroutine.
type Tracker struct {
	mu        sync.Mutex
	state     State
	active    calib.StageName
	debounce  float64 // seconds
	inTol     bool
	lastAlert float64
}

// NewTracker creates an idle tracker with the given alert debounce window.
func NewTracker(debounce time.Duration) *Tracker {
	return &Tracker{
		state:     StateIdle,
		debounce:  debounce.Seconds(),
		lastAlert: math.Inf(-1),
	}
}

// State returns the current lifecycle state and the active stage name (empty
// while idle).
func (t *Tracker) State() (State, calib.StageName) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.active
}

// Start marks the beginning of a session.
func (t *Tracker) Start(ts float64) TrainingEvent {
	return newEvent(ts, SessionStarted, "")
}

// Arm selects the stage to train next. Arming is allowed from any state; the
// previous stage's progress is abandoned.
func (t *Tracker) Arm(ts float64, stage calib.StageName) TrainingEvent {
	t.mu.Lock()
	t.state = StateArmed
	t.active = stage
	t.inTol = false
	t.mu.Unlock()
	return newEvent(ts, StageArmed, stage)
}

// Complete finishes the active stage.
func (t *Tracker) Complete(ts float64) (TrainingEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateIdle || t.state == StateCompleted {
		return TrainingEvent{}, fmt.Errorf("no stage in progress")
	}
	t.state = StateCompleted
	return newEvent(ts, StageCompleted, t.active), nil
}

// Observe feeds one processed sample through the lifecycle. It returns the
// tolerance-transition events to log (nil most of the time) and a non-nil
// alert when a within-to-out transition survives the debounce window.
//
// The first sample after arming establishes the tolerance side without
// emitting anything; only genuine transitions afterwards do.
func (t *Tracker) Observe(s ProcessedSample) ([]TrainingEvent, *Alert) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateIdle || t.state == StateCompleted {
		return nil, nil
	}
	sv, ok := s.Stage(t.active)
	if !ok {
		// Topology changed underneath the armed stage; nothing to track
		// until the operator re-arms.
		return nil, nil
	}

	if t.state == StateArmed {
		t.inTol = sv.InTolerance
		t.state = toleranceState(sv.InTolerance)
		return nil, nil
	}

	if sv.InTolerance == t.inTol {
		return nil, nil
	}
	t.inTol = sv.InTolerance
	t.state = toleranceState(sv.InTolerance)

	if sv.InTolerance {
		return []TrainingEvent{newEvent(s.Timestamp, ToleranceEntry, t.active)}, nil
	}

	events := []TrainingEvent{newEvent(s.Timestamp, ToleranceExit, t.active)}
	if s.Timestamp-t.lastAlert < t.debounce {
		return events, nil
	}
	t.lastAlert = s.Timestamp
	return events, &Alert{
		Time:       s.Timestamp,
		Stage:      t.active,
		Value:      sv.Value,
		ErrorRange: sv.ErrorRange,
	}
}

func toleranceState(in bool) State {
	if in {
		return StateWithin
	}
	return StateOutOf
}

// RecordBaseline captures the current posture as the active stage's baseline.
// The returned param carries the new baseline; the event carries the raw
// channel vector and dense weights so the session events file can rebuild the
// calibration later.
func (t *Tracker) RecordBaseline(ts float64, channels []float64, p calib.StageParam) (calib.StageParam, TrainingEvent, error) {
	return t.record(ts, BaselineRecorded, channels, p)
}

// RecordTarget captures the current posture as the active stage's target.
func (t *Tracker) RecordTarget(ts float64, channels []float64, p calib.StageParam) (calib.StageParam, TrainingEvent, error) {
	return t.record(ts, TargetRecorded, channels, p)
}

func (t *Tracker) record(ts float64, kind EventKind, channels []float64, p calib.StageParam) (calib.StageParam, TrainingEvent, error) {
	t.mu.Lock()
	active, state := t.active, t.state
	t.mu.Unlock()

	if state == StateIdle {
		return p, TrainingEvent{}, fmt.Errorf("no stage armed")
	}
	if p.Name != active {
		return p, TrainingEvent{}, fmt.Errorf("stage %q is not the armed stage %q", p.Name, active)
	}

	combined, ok := p.Combine(channels)
	if !ok {
		return p, TrainingEvent{}, fmt.Errorf("stage %q has no usable channel weights", p.Name)
	}
	if kind == BaselineRecorded {
		p.Baseline = combined
	} else {
		p.Target = combined
	}

	ev := newEvent(ts, kind, p.Name)
	ev.Sensors = append([]float64(nil), channels...)
	ev.Weights = make([]float64, len(channels))
	for ch, w := range p.Weights {
		if ch >= 0 && ch < len(channels) {
			ev.Weights[ch] = w
		}
	}
	ev.ErrorRange = p.Tolerance
	return p, ev, nil
}
