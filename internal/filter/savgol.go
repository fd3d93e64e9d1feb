// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package filter

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// SavitzkyGolay smooths each channel by least-squares fitting a polynomial
// over a sliding window and evaluating the fit at the newest point. Until a
// channel's window is full the input passes through unfiltered; Warm reports
// when the filter has left that phase.
type SavitzkyGolay struct {
	window   int
	order    int
	coeffs   []float64   // convolution weights for the newest point
	history  [][]float64 // [channel] ring of the last `window` readings
	filled   []int
	pos      []int
	channels int
	tracker  statsTracker
}

// NewSavitzkyGolay requires an odd window strictly larger than the polynomial
// order. The convolution coefficients come from the pseudoinverse of the
// window's Vandermonde matrix: evaluating the fitted polynomial at the last
// sample is a fixed linear combination of the window contents.
func NewSavitzkyGolay(window, polyOrder int) (*SavitzkyGolay, error) {
	if window < 3 || window%2 == 0 {
		return nil, &ConfigError{Kind: "savgol", Reason: fmt.Sprintf("window must be odd and >= 3, got %d", window)}
	}
	if polyOrder < 1 || polyOrder >= window {
		return nil, &ConfigError{Kind: "savgol", Reason: fmt.Sprintf("polynomial order must be in [1, window), got %d", polyOrder)}
	}

	k := polyOrder + 1
	a := mat.NewDense(window, k, nil)
	for i := 0; i < window; i++ {
		x := 1.0
		for j := 0; j < k; j++ {
			a.Set(i, j, x)
			x *= float64(i)
		}
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var inv mat.Dense
	if err := inv.Inverse(&ata); err != nil {
		return nil, &ConfigError{Kind: "savgol", Reason: fmt.Sprintf("window/order combination is singular: %v", err)}
	}

	// Row of A (AᵀA)⁻¹ Aᵀ corresponding to the newest sample.
	var proj mat.Dense
	proj.Product(a, &inv, a.T())
	coeffs := mat.Row(nil, window-1, &proj)

	return &SavitzkyGolay{window: window, order: polyOrder, coeffs: coeffs}, nil
}

// Reset clears all per-channel windows and statistics.
func (s *SavitzkyGolay) Reset() {
	s.history = nil
	s.filled = nil
	s.pos = nil
	s.channels = 0
	s.tracker.reset()
}

// Warm reports whether every channel window has filled, i.e. output is now
// actually smoothed rather than passed through.
func (s *SavitzkyGolay) Warm() bool {
	if s.filled == nil {
		return false
	}
	for _, n := range s.filled {
		if n < s.window {
			return false
		}
	}
	return true
}

// Apply pushes one frame into the per-channel windows.
func (s *SavitzkyGolay) Apply(f frame.Frame) (frame.Frame, error) {
	if err := checkChannels(&s.channels, f); err != nil {
		return frame.Frame{}, err
	}
	if s.history == nil {
		s.history = make([][]float64, s.channels)
		for ch := range s.history {
			s.history[ch] = make([]float64, s.window)
		}
		s.filled = make([]int, s.channels)
		s.pos = make([]int, s.channels)
	}

	out := make([]float64, s.channels)
	for ch, in := range f.Channels {
		s.history[ch][s.pos[ch]] = in
		s.pos[ch] = (s.pos[ch] + 1) % s.window
		if s.filled[ch] < s.window {
			s.filled[ch]++
		}

		if s.filled[ch] < s.window {
			out[ch] = in // window not yet full: pass through
		} else {
			// Oldest sample sits at pos after the write; walk the ring in
			// chronological order against the coefficient vector.
			v := 0.0
			idx := s.pos[ch]
			for i := 0; i < s.window; i++ {
				v += s.coeffs[i] * s.history[ch][idx]
				idx = (idx + 1) % s.window
			}
			out[ch] = v
		}
		s.tracker.observe(ch, in, out[ch])
	}
	return frame.Frame{Timestamp: f.Timestamp, Channels: out}, nil
}

// Stats returns per-channel running diagnostics.
func (s *SavitzkyGolay) Stats() []ChannelStats {
	return s.tracker.snapshot()
}
