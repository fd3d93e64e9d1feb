// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package filter

import (
	"fmt"
	"math"

	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// biquad holds the coefficients of one second-order IIR section. A cascade of
// these implements a higher-order Butterworth lowpass.
type biquad struct {
	a0, a1, a2, b1, b2 float64
}

// biquadState is the per-channel delay line of one section.
type biquadState struct {
	z1, z2 float64
}

func (s *biquadState) process(c biquad, in float64) float64 {
	out := in*c.a0 + s.z1
	s.z1 = in*c.a1 - out*c.b1 + s.z2
	s.z2 = in*c.a2 - out*c.b2
	return out
}

// Butterworth is an N-th order lowpass IIR filter applied independently to
// every sensor channel. Coefficients are derived once at construction from
// cutoff/order/sample rate via the bilinear transform; each channel owns its
// own delay-line state.
type Butterworth struct {
	coeffs   []biquad
	state    [][]biquadState // [channel][section]
	channels int
	tracker  statsTracker
}

// NewButterworth derives the section coefficients for an order-N Butterworth
// lowpass. Order must be even (the filter is realized as order/2 cascaded
// biquads). A cutoff at or above the Nyquist frequency is clamped just below
// it to keep math.Tan away from the pole.
func NewButterworth(cutoffHz, sampleHz float64, order int) (*Butterworth, error) {
	if sampleHz <= 0 {
		return nil, &ConfigError{Kind: "butterworth", Reason: fmt.Sprintf("sample rate must be positive, got %g", sampleHz)}
	}
	if cutoffHz <= 0 {
		return nil, &ConfigError{Kind: "butterworth", Reason: fmt.Sprintf("cutoff must be positive, got %g", cutoffHz)}
	}
	if order < 2 || order%2 != 0 {
		return nil, &ConfigError{Kind: "butterworth", Reason: fmt.Sprintf("order must be even and >= 2, got %d", order)}
	}

	if cutoffHz >= sampleHz*0.499 {
		cutoffHz = sampleHz * 0.499
	}

	sections := make([]biquad, order/2)

	// Pre-warp the cutoff, then map each analog prototype pole pair through
	// the bilinear transform. Sections are ordered low-Q first.
	w := 2.0 * sampleHz * math.Tan(math.Pi*cutoffHz/sampleHz)

	for i := range sections {
		poleIdx := (order/2 - 1) - i
		theta := math.Pi * (2.0*float64(poleIdx) + 1.0) / (2.0 * float64(order))

		pRe := -w * math.Sin(theta)
		pIm := w * math.Cos(theta)

		alpha := 4.0*sampleHz*sampleHz - 4.0*sampleHz*pRe + pRe*pRe + pIm*pIm

		sections[i] = biquad{
			a0: (w * w) / alpha,
			a1: (2.0 * w * w) / alpha,
			a2: (w * w) / alpha,
			b1: (-8.0*sampleHz*sampleHz + 2.0*(pRe*pRe+pIm*pIm)) / alpha,
			b2: (4.0*sampleHz*sampleHz + 4.0*sampleHz*pRe + pRe*pRe + pIm*pIm) / alpha,
		}
	}

	return &Butterworth{coeffs: sections}, nil
}

// Reset clears all per-channel delay lines and statistics.
func (b *Butterworth) Reset() {
	b.state = nil
	b.channels = 0
	b.tracker.reset()
}

// Apply filters one frame. The first frame after Reset fixes the channel
// count and allocates the per-channel delay lines.
func (b *Butterworth) Apply(f frame.Frame) (frame.Frame, error) {
	if err := checkChannels(&b.channels, f); err != nil {
		return frame.Frame{}, err
	}
	if b.state == nil {
		b.state = make([][]biquadState, b.channels)
		for ch := range b.state {
			b.state[ch] = make([]biquadState, len(b.coeffs))
		}
	}

	out := make([]float64, b.channels)
	for ch, in := range f.Channels {
		v := in
		for sec := range b.coeffs {
			v = b.state[ch][sec].process(b.coeffs[sec], v)
		}
		out[ch] = v
		b.tracker.observe(ch, in, v)
	}
	return frame.Frame{Timestamp: f.Timestamp, Channels: out}, nil
}

// Stats returns per-channel running diagnostics.
func (b *Butterworth) Stats() []ChannelStats {
	return b.tracker.snapshot()
}
