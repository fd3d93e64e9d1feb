// Package buffer holds the dual store of session data: a bounded sliding
// window of filtered frames for live display, and unbounded append logs of
// raw frames and processed samples for end-of-session export.
package buffer

import (
	"sync"

	"github.com/relabs-tech/spine_trainer/internal/frame"
	"github.com/relabs-tech/spine_trainer/internal/stage"
)

// SampleBuffer is safe for one producer appending concurrently with readers
// taking snapshots. Visibility granularity is one whole frame: a reader never
// observes a partially written entry.
type SampleBuffer struct {
	mu sync.RWMutex

	window     []frame.Frame // ring, capacity windowSize
	windowSize int
	start      int // index of oldest entry
	count      int

	rawLog       []frame.Frame
	processedLog []stage.ProcessedSample
}

// New creates a buffer whose display window holds at most windowSize frames.
func New(windowSize int) *SampleBuffer {
	if windowSize < 1 {
		windowSize = 1
	}
	return &SampleBuffer{
		window:     make([]frame.Frame, windowSize),
		windowSize: windowSize,
	}
}

// AppendRaw records a raw frame in the append log.
func (b *SampleBuffer) AppendRaw(f frame.Frame) {
	b.mu.Lock()
	b.rawLog = append(b.rawLog, f)
	b.mu.Unlock()
}

// AppendFiltered pushes a filtered frame into the sliding window. When the
// window is full the oldest entry is dropped; the append logs are unaffected.
func (b *SampleBuffer) AppendFiltered(f frame.Frame) {
	b.mu.Lock()
	if b.count < b.windowSize {
		b.window[(b.start+b.count)%b.windowSize] = f
		b.count++
	} else {
		b.window[b.start] = f
		b.start = (b.start + 1) % b.windowSize
	}
	b.mu.Unlock()
}

// AppendProcessed records a processed sample in the append log.
func (b *SampleBuffer) AppendProcessed(s stage.ProcessedSample) {
	b.mu.Lock()
	b.processedLog = append(b.processedLog, s)
	b.mu.Unlock()
}

// WindowView returns a copy of the most recent filtered frames, oldest first.
func (b *SampleBuffer) WindowView() []frame.Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]frame.Frame, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.window[(b.start+i)%b.windowSize]
	}
	return out
}

// ExportRaw returns the full raw stream since session start.
func (b *SampleBuffer) ExportRaw() []frame.Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]frame.Frame, len(b.rawLog))
	copy(out, b.rawLog)
	return out
}

// ExportProcessed returns the full processed stream since session start.
func (b *SampleBuffer) ExportProcessed() []stage.ProcessedSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]stage.ProcessedSample, len(b.processedLog))
	copy(out, b.processedLog)
	return out
}

// Counts reports raw and processed points accepted so far.
func (b *SampleBuffer) Counts() (raw, processed int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rawLog), len(b.processedLog)
}
