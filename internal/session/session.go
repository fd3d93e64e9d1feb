// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package session wires the acquisition source, filter engine, sample
// buffer, stage engine and fan-out mailbox into one running training
// session, and owns the operator actions that mutate it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/spine_trainer/internal/acquire"
	"github.com/relabs-tech/spine_trainer/internal/buffer"
	"github.com/relabs-tech/spine_trainer/internal/calib"
	"github.com/relabs-tech/spine_trainer/internal/config"
	"github.com/relabs-tech/spine_trainer/internal/export"
	"github.com/relabs-tech/spine_trainer/internal/fanout"
	"github.com/relabs-tech/spine_trainer/internal/filter"
	"github.com/relabs-tech/spine_trainer/internal/frame"
	"github.com/relabs-tech/spine_trainer/internal/stage"
)

// sourceRetryDelay spaces reconnect attempts after a transport failure.
const sourceRetryDelay = time.Second

// Session is one training run. The per-frame path is single-threaded: frames
// cross one buffered channel from the source goroutine into Run's loop, which
// filters, evaluates and publishes synchronously, so raw and processed counts
// stay equal at shutdown.
type Session struct {
	cfg    *config.Config
	source acquire.Source
	filt   filter.Filter
	enh    *filter.Enhancer
	buf    *buffer.SampleBuffer
	model  *calib.Model
	track  *stage.Tracker
	box    *fanout.Mailbox

	out    *export.Session
	events *export.EventsWriter

	channelCount int // after enhancement, what calibration refers to

	// degenWarned marks stages already warned about, so a degenerate
	// calibration logs once and not per frame. Touched only by the frame
	// loop.
	degenWarned map[calib.StageName]bool

	lastFiltered atomic.Pointer[frame.Frame]
	filterReset  atomic.Bool
	onAlert      atomic.Pointer[func(stage.Alert)]
	onEvent      atomic.Pointer[func(stage.TrainingEvent)]
}

// New builds a session from the configuration: source, filter, calibration
// model (seeded from the events file or presets when configured), buffer,
// tracker and the export directory with its live events log.
func New(cfg *config.Config) (*Session, error) {
	source, err := acquire.New(cfg)
	if err != nil {
		return nil, err
	}
	filt, err := filter.New(cfg)
	if err != nil {
		return nil, err
	}

	var enh *filter.Enhancer
	channelCount := cfg.SensorCount
	if cfg.EnhancementEnabled {
		enh, err = filter.NewEnhancer(cfg.SensorCount, filter.DefaultDerived(cfg.SensorCount))
		if err != nil {
			return nil, err
		}
		channelCount = enh.OutputChannels(cfg.SensorCount)
	}

	kind := calib.Kind(cfg.SpineType)
	direction := calib.Direction(cfg.SpineDirection)
	if direction == "" {
		direction = calib.DefaultDirection(kind)
	}
	model, err := calib.NewModel(calib.Topology{Kind: kind, Direction: direction})
	if err != nil {
		return nil, err
	}
	if cfg.PresetsFile != "" {
		if err := model.LoadPresets(cfg.PresetsFile); err != nil {
			return nil, err
		}
	}
	if cfg.EventsFile != "" {
		if err := model.LoadEventsFile(cfg.EventsFile, channelCount); err != nil {
			var ferr *calib.FormatError
			if !errors.As(err, &ferr) {
				return nil, err
			}
			// Partial calibration is workable; the operator re-records the
			// stages the file was missing.
			log.Printf("session: %v", err)
		}
	}

	out, err := export.NewSession(cfg.ExportDir)
	if err != nil {
		return nil, err
	}
	events, err := export.NewEventsWriter(filepath.Join(out.Dir(), "events.csv"), channelCount)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:          cfg,
		source:       source,
		filt:         filt,
		enh:          enh,
		buf:          buffer.New(cfg.WindowSize),
		model:        model,
		track:        stage.NewTracker(time.Duration(cfg.AlertDebounce) * time.Millisecond),
		box:          &fanout.Mailbox{},
		out:          out,
		events:       events,
		channelCount: channelCount,
		degenWarned:  make(map[calib.StageName]bool),
	}, nil
}

// Accessors for the app layer.
func (s *Session) Model() *calib.Model          { return s.model }
func (s *Session) Buffer() *buffer.SampleBuffer { return s.buf }
func (s *Session) Mailbox() *fanout.Mailbox     { return s.box }
func (s *Session) SourceState() acquire.State   { return s.source.State() }
func (s *Session) Dir() string                  { return s.out.Dir() }

func (s *Session) TrackerState() (stage.State, calib.StageName) { return s.track.State() }

// OnAlert installs the tolerance-alert handler. May be swapped while running.
func (s *Session) OnAlert(fn func(stage.Alert)) {
	s.onAlert.Store(&fn)
}

// OnEvent installs an observer for every training event, called after the
// event lands in the on-disk log. Used to mirror events to MQTT.
func (s *Session) OnEvent(fn func(stage.TrainingEvent)) {
	s.onEvent.Store(&fn)
}

// emit logs one training event and notifies the observer.
func (s *Session) emit(ev stage.TrainingEvent) error {
	if err := s.events.Write(ev); err != nil {
		return err
	}
	if fn := s.onEvent.Load(); fn != nil && *fn != nil {
		(*fn)(ev)
	}
	return nil
}

// Run streams until ctx is cancelled, then drains in-flight frames so the
// processed log matches the raw log exactly. The source is restarted with a
// delay after transport failures; every restart resets the filter, since a
// reconnected stream is a discontinuity the filter must not smooth across.
func (s *Session) Run(ctx context.Context) error {
	log.Printf("session: starting, source %s, %d sensors, output %s",
		s.source.Name(), s.cfg.SensorCount, s.out.Dir())
	if err := s.emit(s.track.Start(0)); err != nil {
		return err
	}

	frames := make(chan frame.Frame, 256)
	go s.produce(ctx, frames)

	dropLog := time.Time{}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case f := <-frames:
					s.process(f, &dropLog)
				default:
					log.Printf("session: stopped")
					return nil
				}
			}
		case f := <-frames:
			s.process(f, &dropLog)
		}
	}
}

func (s *Session) produce(ctx context.Context, frames chan<- frame.Frame) {
	for {
		err := s.source.Run(ctx, frames)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("session: source failed, retrying in %s: %v", sourceRetryDelay, err)
		}
		s.filterReset.Store(true)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sourceRetryDelay):
		}
	}
}

func (s *Session) process(f frame.Frame, dropLog *time.Time) {
	if err := f.Validate(s.cfg.SensorCount); err != nil {
		if now := time.Now(); now.Sub(*dropLog) > 5*time.Second {
			*dropLog = now
			log.Printf("session: dropping frame: %v", err)
		}
		return
	}
	s.buf.AppendRaw(f)

	if s.filterReset.Swap(false) {
		s.filt.Reset()
		log.Printf("session: filter state reset after reconnect")
	}
	filtered, err := s.filt.Apply(f)
	if err != nil {
		log.Printf("session: filter: %v", err)
		return
	}
	if s.enh != nil {
		filtered = s.enh.Apply(filtered)
	}
	s.buf.AppendFiltered(filtered)
	s.lastFiltered.Store(&filtered)

	sample := stage.Evaluate(filtered, s.model.Active())
	for _, sv := range sample.Stages {
		if sv.Degenerate && !s.degenWarned[sv.Name] {
			s.degenWarned[sv.Name] = true
			log.Printf("session: stage %s has a degenerate calibration, value pinned to 0", sv.Name)
		}
	}
	events, alert := s.track.Observe(sample)
	for _, ev := range events {
		if err := s.emit(ev); err != nil {
			log.Printf("session: events log: %v", err)
		}
	}
	if alert != nil {
		log.Printf("session: stage %s out of tolerance (value %.3f)", alert.Stage, alert.Value)
		if fn := s.onAlert.Load(); fn != nil && *fn != nil {
			(*fn)(*alert)
		}
	}

	s.buf.AppendProcessed(sample)
	s.box.Put(sample)
}

// current returns the latest filtered frame, required by the calibration
// actions.
func (s *Session) current() (frame.Frame, error) {
	f := s.lastFiltered.Load()
	if f == nil {
		return frame.Frame{}, fmt.Errorf("no sensor data received yet")
	}
	return *f, nil
}

// ArmStage selects the stage the patient trains next.
func (s *Session) ArmStage(name calib.StageName) error {
	if _, ok := s.model.Active().Param(name); !ok {
		return fmt.Errorf("stage %q is not active for the current topology", name)
	}
	ts := 0.0
	if f, err := s.current(); err == nil {
		ts = f.Timestamp
	}
	return s.emit(s.track.Arm(ts, name))
}

// RecordBaseline captures the current posture as the armed stage's baseline
// and persists both the calibration and the event row.
func (s *Session) RecordBaseline() error {
	return s.recordPosture(true)
}

// RecordTarget captures the current posture as the armed stage's target.
func (s *Session) RecordTarget() error {
	return s.recordPosture(false)
}

func (s *Session) recordPosture(baseline bool) error {
	f, err := s.current()
	if err != nil {
		return err
	}
	_, name := s.track.State()
	p, ok := s.model.Active().Param(name)
	if !ok {
		return fmt.Errorf("no armed stage")
	}

	var ev stage.TrainingEvent
	if baseline {
		p, ev, err = s.track.RecordBaseline(f.Timestamp, f.Channels, p)
	} else {
		p, ev, err = s.track.RecordTarget(f.Timestamp, f.Channels, p)
	}
	if err != nil {
		return err
	}
	if err := s.model.SetStageParam(p); err != nil {
		return err
	}
	return s.emit(ev)
}

// CompleteStage finishes the armed stage.
func (s *Session) CompleteStage() error {
	ts := 0.0
	if f, err := s.current(); err == nil {
		ts = f.Timestamp
	}
	ev, err := s.track.Complete(ts)
	if err != nil {
		return err
	}
	return s.emit(ev)
}

// SetTopology switches spine kind and direction mid-session. The armed stage
// may disappear from the active set; the tracker then idles until re-armed.
func (s *Session) SetTopology(kind calib.Kind, direction calib.Direction) error {
	return s.model.SetTopology(kind, direction)
}

// ExportResult summarizes what a finished session wrote to disk.
type ExportResult struct {
	Dir            string
	RawPath        string
	ProcessedPath  string
	RawCount       int
	ProcessedCount int
}

// Export dumps the buffered logs and closes the events file. Call after Run
// has returned.
func (s *Session) Export() (ExportResult, error) {
	res := ExportResult{Dir: s.out.Dir()}
	var err error
	if res.RawPath, err = s.out.WriteRaw(s.buf.ExportRaw(), s.cfg.SensorCount); err != nil {
		return res, err
	}
	if res.ProcessedPath, err = s.out.WriteProcessed(s.buf.ExportProcessed()); err != nil {
		return res, err
	}
	res.RawCount, res.ProcessedCount = s.buf.Counts()
	if err := s.events.Close(); err != nil {
		return res, err
	}
	log.Printf("session: exported %d raw and %d processed samples to %s",
		res.RawCount, res.ProcessedCount, res.Dir)
	return res, nil
}
