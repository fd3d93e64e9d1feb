// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package filter implements the stateful per-channel digital filters that sit
// between acquisition and stage evaluation. Filters are causal: Apply must be
// called exactly once per incoming frame, in arrival order.
package filter

import (
	"fmt"

	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// Filter is a stateful per-channel transform over sensor frames.
//
// Reset clears all per-channel state; it is called exactly once when
// acquisition starts. Apply consumes one raw frame and produces the filtered
// frame with the same timestamp and channel count.
type Filter interface {
	Reset()
	Apply(f frame.Frame) (frame.Frame, error)
	Stats() []ChannelStats
}

// Warmer is implemented by filters that pass input through unfiltered until
// enough history has accumulated (e.g. the local polynomial smoother).
type Warmer interface {
	Warm() bool
}

// ConfigError reports an unsupported filter configuration. Acquisition must
// not start until the configuration is corrected.
type ConfigError struct {
	Kind   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s filter config: %s", e.Kind, e.Reason)
}

// ChannelStats are read-only per-channel diagnostics for the display layer.
// They never affect filtering.
type ChannelStats struct {
	Count    int     `json:"count"`
	LastIn   float64 `json:"last_in"`
	LastOut  float64 `json:"last_out"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// statsTracker maintains running mean/variance of filter output per channel
// (Welford's method).
type statsTracker struct {
	stats []ChannelStats
	m2    []float64
}

func (t *statsTracker) reset() {
	t.stats = nil
	t.m2 = nil
}

func (t *statsTracker) observe(channel int, in, out float64) {
	for len(t.stats) <= channel {
		t.stats = append(t.stats, ChannelStats{})
		t.m2 = append(t.m2, 0)
	}
	s := &t.stats[channel]
	s.Count++
	s.LastIn = in
	s.LastOut = out
	delta := out - s.Mean
	s.Mean += delta / float64(s.Count)
	t.m2[channel] += delta * (out - s.Mean)
	if s.Count > 1 {
		s.Variance = t.m2[channel] / float64(s.Count-1)
	}
}

func (t *statsTracker) snapshot() []ChannelStats {
	out := make([]ChannelStats, len(t.stats))
	copy(out, t.stats)
	return out
}

// checkChannels enforces the fixed-channel-count invariant. The first frame
// fixes the count; any later mismatch is rejected.
func checkChannels(have *int, f frame.Frame) error {
	if *have == 0 {
		*have = len(f.Channels)
		return nil
	}
	return f.Validate(*have)
}
