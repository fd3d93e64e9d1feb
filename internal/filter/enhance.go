package filter

import (
	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// DerivedChannel describes one synthesized channel: the signed difference of
// two physical channels. The garment's paired sensors (left/right pelvis,
// left/right shoulder) become tilt signals this way.
type DerivedChannel struct {
	A, B int
}

// Enhancer appends derived channels after filtering. It is a deterministic
// transform with no state beyond its inputs, so it may run on any frame at
// any time without affecting filter history.
type Enhancer struct {
	derived []DerivedChannel
}

// NewEnhancer validates that the derived-channel definitions reference only
// physical channels.
func NewEnhancer(sensorCount int, derived []DerivedChannel) (*Enhancer, error) {
	for _, d := range derived {
		if d.A < 0 || d.A >= sensorCount || d.B < 0 || d.B >= sensorCount {
			return nil, &ConfigError{
				Kind:   "enhance",
				Reason: "derived channel references a channel outside the sensor count",
			}
		}
	}
	return &Enhancer{derived: derived}, nil
}

// DefaultDerived returns the standard garment pairings when the sensor count
// allows them: pelvis tilt (outermost pair) and shoulder tilt (sensors 4/5).
func DefaultDerived(sensorCount int) []DerivedChannel {
	var out []DerivedChannel
	if sensorCount >= 7 {
		out = append(out,
			DerivedChannel{A: 0, B: 6},
			DerivedChannel{A: 4, B: 5},
		)
	}
	return out
}

// Apply returns a frame with the derived channels appended. The input frame
// is not modified.
func (e *Enhancer) Apply(f frame.Frame) frame.Frame {
	out := make([]float64, 0, len(f.Channels)+len(e.derived))
	out = append(out, f.Channels...)
	for _, d := range e.derived {
		out = append(out, f.Channels[d.A]-f.Channels[d.B])
	}
	return frame.Frame{Timestamp: f.Timestamp, Channels: out}
}

// OutputChannels is the channel count of enhanced frames given the physical
// sensor count.
func (e *Enhancer) OutputChannels(sensorCount int) int {
	return sensorCount + len(e.derived)
}
