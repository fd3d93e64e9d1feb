// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stage turns filtered sensor frames into normalized per-stage
// progress values and tracks the training lifecycle of each stage.
package stage

import (
	"math"

	"github.com/relabs-tech/spine_trainer/internal/calib"
	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// StageValue is the evaluation of one stage against one frame. Value is the
// normalized progress: 0 at baseline posture, 1 at target posture.
type StageValue struct {
	Name        calib.StageName `json:"name"`
	Value       float64         `json:"value"`
	ErrorRange  float64         `json:"error_range"`
	InTolerance bool            `json:"in_tolerance"`
	Degenerate  bool            `json:"degenerate,omitempty"`
}

// ProcessedSample is the per-frame output of the stage engine: every active
// stage evaluated against the same calibration snapshot, plus the combined
// spine curve metric. Stages are in the topology's canonical order, so the
// value count flips between 4 and 5 exactly when the topology does.
type ProcessedSample struct {
	Timestamp    float64        `json:"timestamp"`
	Channels     []float64      `json:"channels"`
	Topology     calib.Topology `json:"topology"`
	Stages       []StageValue   `json:"stages"`
	SpineCurve   float64        `json:"spine_curve"`
	EventsLoaded bool           `json:"events_loaded"`
}

// Stage looks up one stage's evaluation by name.
func (s *ProcessedSample) Stage(name calib.StageName) (StageValue, bool) {
	for _, v := range s.Stages {
		if v.Name == name {
			return v, true
		}
	}
	return StageValue{}, false
}

// Evaluate computes one processed sample. It is a pure function of the frame
// and the snapshot; concurrent callers may share both.
//
// For each stage the weighted channel value v reduces to
// (v - baseline) / (target - baseline). A degenerate stage (target equals
// baseline, or no usable weights) evaluates to 0 and is out of tolerance
// until reconfigured. Otherwise the stage is in tolerance when the value is
// within ErrorRange of 1.
func Evaluate(f frame.Frame, snap *calib.Snapshot) ProcessedSample {
	out := ProcessedSample{
		Timestamp:    f.Timestamp,
		Channels:     append([]float64(nil), f.Channels...),
		Topology:     snap.Topology,
		Stages:       make([]StageValue, 0, len(snap.Params)),
		EventsLoaded: snap.EventsLoaded,
	}
	for _, p := range snap.Params {
		sv := StageValue{Name: p.Name, ErrorRange: p.Tolerance}
		combined, ok := p.Combine(f.Channels)
		if !ok || p.Degenerate() {
			sv.Degenerate = true
		} else {
			sv.Value = (combined - p.Baseline) / (p.Target - p.Baseline)
			sv.InTolerance = math.Abs(sv.Value-1) <= p.Tolerance
		}
		out.Stages = append(out.Stages, sv)
	}
	out.SpineCurve = spineCurve(&out)
	return out
}

// spineCurve is the single scalar shown as the overall curve correction: the
// curvature stage for a C-type spine, the worse of the two curvature stages
// for an S-type.
func spineCurve(s *ProcessedSample) float64 {
	switch s.Topology.Kind {
	case calib.KindS:
		up, _ := s.Stage(calib.CurvatureUp)
		down, _ := s.Stage(calib.CurvatureDown)
		return math.Max(up.Value, down.Value)
	default:
		c, _ := s.Stage(calib.Curvature)
		return c.Value
	}
}
