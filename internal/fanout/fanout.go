// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fanout decouples the processing rate from the consumer rates. The
// producer overwrites a single-slot mailbox on every processed sample;
// display and telemetry each drain it on their own ticker, so a slow
// consumer only ever costs itself staleness, never backpressure.
package fanout

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/spine_trainer/internal/stage"
)

// Mailbox is the overwrite-on-write slot between the pipeline and the
// consumers. Put never blocks; an unread sample is simply replaced.
type Mailbox struct {
	slot atomic.Pointer[stage.ProcessedSample]
}

// Put publishes the latest processed sample.
func (m *Mailbox) Put(s stage.ProcessedSample) {
	m.slot.Store(&s)
}

// Peek returns the latest sample without consuming it, or nil when nothing
// has been published yet.
func (m *Mailbox) Peek() *stage.ProcessedSample {
	return m.slot.Load()
}

// Sink receives samples on a consumer's schedule.
type Sink interface {
	Deliver(s stage.ProcessedSample)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(s stage.ProcessedSample)

func (f SinkFunc) Deliver(s stage.ProcessedSample) { f(s) }

// Consumer couples a sink with its polling interval.
type Consumer struct {
	Name     string
	Interval time.Duration
	Sink     Sink
}

// Scheduler runs one goroutine per consumer against a shared mailbox. Each
// consumer remembers the timestamp of its last delivery and skips ticks where
// the mailbox still holds the same sample, so a consumer faster than the
// pipeline never sees duplicates.
type Scheduler struct {
	box       *Mailbox
	consumers []Consumer
}

// NewScheduler creates a scheduler over the given mailbox.
func NewScheduler(box *Mailbox, consumers ...Consumer) *Scheduler {
	return &Scheduler{box: box, consumers: consumers}
}

// Run blocks until ctx is done, delivering mailbox contents to every
// consumer at its configured rate.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range s.consumers {
		if c.Interval <= 0 || c.Sink == nil {
			log.Printf("fanout: consumer %s disabled", c.Name)
			continue
		}
		wg.Add(1)
		go func(c Consumer) {
			defer wg.Done()
			s.runConsumer(ctx, c)
		}(c)
	}
	wg.Wait()
}

func (s *Scheduler) runConsumer(ctx context.Context, c Consumer) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	var lastTS float64
	seen := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := s.box.Peek()
			if sample == nil {
				continue
			}
			if seen && sample.Timestamp == lastTS {
				continue
			}
			lastTS = sample.Timestamp
			seen = true
			c.Sink.Deliver(*sample)
		}
	}
}
