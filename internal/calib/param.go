// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calib

// StageParam is the calibration of one training stage: which channels
// contribute, how much, and the baseline/target/tolerance of the combined
// value. Weights need not sum to 1; they are normalized before combination.
type StageParam struct {
	Name      StageName       `json:"name" yaml:"name"`
	Weights   map[int]float64 `json:"weights" yaml:"weights"`
	Baseline  float64         `json:"baseline" yaml:"baseline"`
	Target    float64         `json:"target" yaml:"target"`
	Tolerance float64         `json:"tolerance" yaml:"tolerance"`
}

// DefaultTolerance is used when a stage has no loaded error range.
const DefaultTolerance = 0.1

// NormalizedWeights returns the effective combination weights: absolute
// values scaled to sum exactly 1. A zero-total weight set returns nil; the
// stage is then degenerate and evaluates to 0.
func (p StageParam) NormalizedWeights() map[int]float64 {
	total := 0.0
	for _, w := range p.Weights {
		if w < 0 {
			w = -w
		}
		total += w
	}
	if total == 0 {
		return nil
	}
	out := make(map[int]float64, len(p.Weights))
	for ch, w := range p.Weights {
		if w < 0 {
			w = -w
		}
		if w == 0 {
			continue
		}
		out[ch] = w / total
	}
	return out
}

// Combine reduces a channel vector to the stage's weighted value using the
// normalized weights. ok is false when the weight set is degenerate or any
// referenced channel is out of range.
func (p StageParam) Combine(channels []float64) (value float64, ok bool) {
	weights := p.NormalizedWeights()
	if weights == nil {
		return 0, false
	}
	for ch, w := range weights {
		if ch < 0 || ch >= len(channels) {
			return 0, false
		}
		value += w * channels[ch]
	}
	return value, true
}

// Degenerate reports whether baseline and target coincide, which makes the
// normalized progress undefined. Evaluation then yields 0 and the stage is
// flagged permanently out of tolerance until reconfigured.
func (p StageParam) Degenerate() bool {
	return p.Target == p.Baseline
}

func defaultParam(name StageName) StageParam {
	return StageParam{Name: name, Tolerance: DefaultTolerance}
}
