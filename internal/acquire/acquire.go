// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package acquire reads sensor frames from the garment, over a wired serial
// link or the radio bridge, and feeds them to the pipeline as a uniform
// stream regardless of transport.
package acquire

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// State is the connection lifecycle of a source.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateError        State = "error"
)

// Source is a frame producer. Run blocks until ctx is cancelled (returning
// nil) or a fatal transport error occurs. After an error the session may call
// Run again to reconnect; sources keep no stream state across runs.
type Source interface {
	Run(ctx context.Context, out chan<- frame.Frame) error
	State() State
	Name() string
}

// stateVar is the lock-free state cell shared by all sources.
type stateVar struct {
	v atomic.Value
}

func (s *stateVar) set(st State) { s.v.Store(st) }

func (s *stateVar) get() State {
	if st, ok := s.v.Load().(State); ok {
		return st
	}
	return StateDisconnected
}

// throttle rate-limits repetitive log lines.
type throttle struct {
	window time.Duration
	last   time.Time
}

func (t *throttle) ok() bool {
	now := time.Now()
	if now.Sub(t.last) < t.window {
		return false
	}
	t.last = now
	return true
}

// deliver sends a frame unless the context ends first.
func deliver(ctx context.Context, out chan<- frame.Frame, f frame.Frame) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
