// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package acquire

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/spine_trainer/internal/frame"
)

// SerialSource reads frames from the garment over a wired serial port.
//
// Two line formats are supported. "csv" is the bare firmware output, one
// comma-separated reading per sensor; the timestamp is assigned on receipt
// as seconds since the stream started. "nmea" expects $SPSEN sentences
// carrying a device timestamp and a checksum.
type SerialSource struct {
	port        string
	baud        int
	format      string // "csv" or "nmea"
	sensorCount int

	state stateVar
}

// NewSerialSource validates the format and returns the source.
func NewSerialSource(port string, baud int, format string, sensorCount int) (*SerialSource, error) {
	if format != "csv" && format != "nmea" {
		return nil, fmt.Errorf("serial format must be csv or nmea, got %q", format)
	}
	s := &SerialSource{port: port, baud: baud, format: format, sensorCount: sensorCount}
	s.state.set(StateDisconnected)
	return s, nil
}

func (s *SerialSource) Name() string { return "serial:" + s.port }

func (s *SerialSource) State() State { return s.state.get() }

// Run opens the port and streams until ctx ends or the port fails.
func (s *SerialSource) Run(ctx context.Context, out chan<- frame.Frame) error {
	s.state.set(StateConnecting)

	opts := serial.OpenOptions{
		PortName:              s.port,
		BaudRate:              uint(s.baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		s.state.set(StateError)
		return fmt.Errorf("open serial port %s: %w", s.port, err)
	}
	defer port.Close()
	log.Printf("acquire: serial port %s opened at %d baud (%s format)", s.port, s.baud, s.format)
	s.state.set(StateStreaming)

	// The port read blocks, so cancellation closes the port out from under
	// the scanner and the read error path notices ctx first.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	start := time.Now()
	malformed := throttle{window: 5 * time.Second}
	scanner := bufio.NewScanner(bufio.NewReader(port))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		f, err := s.parseLine(line, start)
		if err != nil {
			if malformed.ok() {
				log.Printf("acquire: dropping malformed line: %v", err)
			}
			continue
		}
		if !deliver(ctx, out, f) {
			break
		}
	}

	if ctx.Err() != nil {
		s.state.set(StateDisconnected)
		return nil
	}
	s.state.set(StateError)
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("serial read %s: %w", s.port, err)
	}
	return fmt.Errorf("serial port %s closed by device", s.port)
}

func (s *SerialSource) parseLine(line string, start time.Time) (frame.Frame, error) {
	if s.format == "nmea" {
		return s.parseSentence(line)
	}
	return s.parseCSV(line, start)
}

// parseCSV accepts N readings, or N+1 fields when the firmware prepends its
// own timestamp.
func (s *SerialSource) parseCSV(line string, start time.Time) (frame.Frame, error) {
	fields := strings.Split(line, ",")
	values := make([]float64, 0, len(fields))
	for _, raw := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return frame.Frame{}, fmt.Errorf("field %q: %w", raw, err)
		}
		values = append(values, v)
	}

	var f frame.Frame
	switch len(values) {
	case s.sensorCount:
		f = frame.New(time.Since(start).Seconds(), values)
	case s.sensorCount + 1:
		f = frame.New(values[0], values[1:])
	default:
		return frame.Frame{}, fmt.Errorf("%w: got %d fields, want %d", frame.ErrChannelCount, len(values), s.sensorCount)
	}
	return f, nil
}

func (s *SerialSource) parseSentence(line string) (frame.Frame, error) {
	if !strings.HasPrefix(line, "$") {
		return frame.Frame{}, fmt.Errorf("not a sentence: %q", line)
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return frame.Frame{}, err
	}
	m, ok := sentence.(SPSEN)
	if !ok {
		return frame.Frame{}, fmt.Errorf("unexpected sentence type %s", sentence.DataType())
	}
	if len(m.Readings) != s.sensorCount {
		return frame.Frame{}, fmt.Errorf("%w: got %d readings, want %d", frame.ErrChannelCount, len(m.Readings), s.sensorCount)
	}
	return frame.New(m.Time, m.Readings), nil
}
