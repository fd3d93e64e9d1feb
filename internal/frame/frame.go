package frame

import "fmt"

// Frame is a single timestamped multi-channel sensor reading from the
// garment. Timestamp is seconds since acquisition start. Channels is indexed
// by channel id; the count is fixed for the lifetime of a session.
//
// A Frame is immutable once produced: constructors copy the channel slice and
// downstream code must never write into Channels.
type Frame struct {
	Timestamp float64   `json:"timestamp"`
	Channels  []float64 `json:"channels"`
}

// New builds a Frame with its own copy of the channel values.
func New(timestamp float64, channels []float64) Frame {
	c := make([]float64, len(channels))
	copy(c, channels)
	return Frame{Timestamp: timestamp, Channels: c}
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	return New(f.Timestamp, f.Channels)
}

// Validate checks the frame against the session channel count.
func (f Frame) Validate(channelCount int) error {
	if len(f.Channels) != channelCount {
		return fmt.Errorf("frame at t=%.3f: %w: got %d channels, want %d",
			f.Timestamp, ErrChannelCount, len(f.Channels), channelCount)
	}
	return nil
}
