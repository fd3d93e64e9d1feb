// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package filter

import (
	"fmt"
	"math"

	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// kalmanState is a 2-state (value, rate) estimator for one channel with
// constant-velocity dynamics:
//
//	F = [1 1; 0 1], H = [1 0]
//
// The 2x2 covariance is kept as scalars; no matrix library is warranted for a
// fixed-size system this small.
type kalmanState struct {
	x0, x1             float64 // state estimate: value, rate
	p00, p01, p10, p11 float64 // covariance
	initialized        bool
}

func (k *kalmanState) init(measurement float64) {
	k.x0 = measurement
	k.x1 = 0
	k.p00, k.p01, k.p10, k.p11 = 1, 0, 0, 1
	k.initialized = true
}

func (k *kalmanState) predict(q float64) {
	// x = F x
	k.x0 += k.x1

	// P = F P Fᵀ + Q
	p00 := k.p00 + k.p10 + k.p01 + k.p11 + q
	p01 := k.p01 + k.p11
	p10 := k.p10 + k.p11
	p11 := k.p11 + q
	k.p00, k.p01, k.p10, k.p11 = p00, p01, p10, p11
}

func (k *kalmanState) update(z, r float64) {
	// Innovation variance S = H P Hᵀ + R and gain K = P Hᵀ / S.
	s := k.p00 + r
	k0 := k.p00 / s
	k1 := k.p10 / s

	resid := z - k.x0
	k.x0 += k0 * resid
	k.x1 += k1 * resid

	// P = (I - K H) P
	p00 := (1 - k0) * k.p00
	p01 := (1 - k0) * k.p01
	p10 := k.p10 - k1*k.p00
	p11 := k.p11 - k1*k.p01
	k.p00, k.p01, k.p10, k.p11 = p00, p01, p10, p11
}

// Kalman runs an independent recursive estimator per channel. A NaN reading
// means the channel value was absent for that tick: the estimator advances
// with a predict-only step and emits its prediction.
type Kalman struct {
	processVar float64
	measureVar float64
	states     []kalmanState
	channels   int
	tracker    statsTracker
}

// NewKalman validates the noise configuration.
func NewKalman(processVar, measureVar float64) (*Kalman, error) {
	if processVar <= 0 {
		return nil, &ConfigError{Kind: "kalman", Reason: fmt.Sprintf("process noise must be positive, got %g", processVar)}
	}
	if measureVar <= 0 {
		return nil, &ConfigError{Kind: "kalman", Reason: fmt.Sprintf("measurement noise must be positive, got %g", measureVar)}
	}
	return &Kalman{processVar: processVar, measureVar: measureVar}, nil
}

// Reset clears all per-channel estimates and statistics.
func (k *Kalman) Reset() {
	k.states = nil
	k.channels = 0
	k.tracker.reset()
}

// Apply runs one predict/update cycle per channel.
func (k *Kalman) Apply(f frame.Frame) (frame.Frame, error) {
	if err := checkChannels(&k.channels, f); err != nil {
		return frame.Frame{}, err
	}
	if k.states == nil {
		k.states = make([]kalmanState, k.channels)
	}

	out := make([]float64, k.channels)
	for ch, z := range f.Channels {
		st := &k.states[ch]
		if !st.initialized {
			if math.IsNaN(z) {
				out[ch] = math.NaN()
				continue
			}
			st.init(z)
			out[ch] = z
			k.tracker.observe(ch, z, z)
			continue
		}

		st.predict(k.processVar)
		if !math.IsNaN(z) {
			st.update(z, k.measureVar)
		}
		out[ch] = st.x0
		k.tracker.observe(ch, z, st.x0)
	}
	return frame.Frame{Timestamp: f.Timestamp, Channels: out}, nil
}

// Stats returns per-channel running diagnostics.
func (k *Kalman) Stats() []ChannelStats {
	return k.tracker.snapshot()
}
