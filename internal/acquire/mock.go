// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package acquire

import (
	"context"
	"math"
	"time"

	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// MockSource synthesizes smooth per-channel readings for development without
// a garment: a resting level around 2500 with slow sinusoidal posture sway,
// each channel phase-shifted so they are distinguishable on a plot.
type MockSource struct {
	sensorCount int
	rate        float64
	state       stateVar
}

// NewMockSource emits sensorCount channels at rate frames per second.
func NewMockSource(sensorCount int, rate float64) *MockSource {
	if rate <= 0 {
		rate = 100
	}
	m := &MockSource{sensorCount: sensorCount, rate: rate}
	m.state.set(StateDisconnected)
	return m
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) State() State { return m.state.get() }

// Run streams synthetic frames until ctx ends. It never fails.
func (m *MockSource) Run(ctx context.Context, out chan<- frame.Frame) error {
	m.state.set(StateStreaming)
	defer m.state.set(StateDisconnected)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / m.rate))
	defer ticker.Stop()
	start := time.Now()

	channels := make([]float64, m.sensorCount)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			elapsed := time.Since(start).Seconds()
			for i := range channels {
				phase := float64(i) * 0.8
				channels[i] = 2500 +
					120*math.Sin(0.4*elapsed+phase) +
					15*math.Sin(7*elapsed+phase)
			}
			if !deliver(ctx, out, frame.New(elapsed, channels)) {
				return nil
			}
		}
	}
}
