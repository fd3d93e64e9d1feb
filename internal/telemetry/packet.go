// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry streams processed samples to the clinician station as
// JSON datagrams over UDP.
package telemetry

import (
	"github.com/relabs-tech/spine_trainer/internal/stage"
)

// Packet is the wire format of one telemetry datagram. Stage maps carry one
// entry per active stage, so receivers see four keys for a C-type spine and
// five for an S-type. SpineDirection is only populated for doctor-mode
// stations.
type Packet struct {
	Timestamp        float64            `json:"timestamp"`
	SensorData       []float64          `json:"sensor_data"`
	StageValues      map[string]float64 `json:"stage_values"`
	StageErrorRanges map[string]float64 `json:"stage_error_ranges"`
	SpineCurve       float64            `json:"spine_curve"`
	SensorCount      int                `json:"sensor_count"`
	EventsFileLoaded bool               `json:"events_file_loaded"`
	SpineType        string             `json:"spine_type"`
	SpineDirection   string             `json:"spine_direction,omitempty"`
}

// Encode builds the datagram for one processed sample.
func Encode(s stage.ProcessedSample, doctorMode bool) Packet {
	p := Packet{
		Timestamp:        s.Timestamp,
		SensorData:       s.Channels,
		StageValues:      make(map[string]float64, len(s.Stages)),
		StageErrorRanges: make(map[string]float64, len(s.Stages)),
		SpineCurve:       s.SpineCurve,
		SensorCount:      len(s.Channels),
		EventsFileLoaded: s.EventsLoaded,
		SpineType:        string(s.Topology.Kind),
	}
	for _, sv := range s.Stages {
		p.StageValues[string(sv.Name)] = sv.Value
		p.StageErrorRanges[string(sv.Name)] = sv.ErrorRange
	}
	if doctorMode {
		p.SpineDirection = string(s.Topology.Direction)
	}
	return p
}
