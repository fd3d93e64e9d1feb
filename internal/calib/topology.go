// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calib holds the per-stage calibration model: spine topology, stage
// parameters, and the snapshot mechanism that lets the hot path read a
// consistent calibration while an operator mutates it live.
package calib

import "fmt"

// Kind is the spinal curvature pattern. It is a closed enumeration: every
// switch over Kind in this codebase handles both values explicitly so that a
// new topology is a compile-visible change.
type Kind string

const (
	KindC Kind = "C"
	KindS Kind = "S"
)

// Direction is the curve direction within a topology.
type Direction string

const (
	// C-type directions.
	Left  Direction = "left"
	Right Direction = "right"

	// S-type lumbar/thoracic combinations.
	LumbarLeftThoracicRight  Direction = "lumbar_left_thoracic_right"
	LumbarRightThoracicLeft  Direction = "lumbar_right_thoracic_left"
	LumbarLeftThoracicLeft   Direction = "lumbar_left_thoracic_left"
	LumbarRightThoracicRight Direction = "lumbar_right_thoracic_right"
)

// StageName identifies one training stage.
type StageName string

const (
	Rotation      StageName = "rotation"
	Curvature     StageName = "curvature"
	CurvatureUp   StageName = "curvature_up"
	CurvatureDown StageName = "curvature_down"
	TiltPelvis    StageName = "tilt_pelvis"
	TiltShoulder  StageName = "tilt_shoulder"
)

// Topology couples a kind with its direction.
type Topology struct {
	Kind      Kind      `json:"kind" yaml:"kind"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// Stages returns the active stage set for the topology's kind, in canonical
// order: 4 stages for C, 5 for S.
func (t Topology) Stages() []StageName {
	switch t.Kind {
	case KindS:
		return []StageName{Rotation, CurvatureUp, CurvatureDown, TiltPelvis, TiltShoulder}
	case KindC:
		return []StageName{Rotation, Curvature, TiltPelvis, TiltShoulder}
	default:
		// Unreachable for validated topologies; C is the conservative shape.
		return []StageName{Rotation, Curvature, TiltPelvis, TiltShoulder}
	}
}

// Validate checks that the direction belongs to the kind.
func (t Topology) Validate() error {
	switch t.Kind {
	case KindC:
		if t.Direction == Left || t.Direction == Right {
			return nil
		}
	case KindS:
		switch t.Direction {
		case LumbarLeftThoracicRight, LumbarRightThoracicLeft,
			LumbarLeftThoracicLeft, LumbarRightThoracicRight:
			return nil
		}
	default:
		return fmt.Errorf("unknown spine kind %q", t.Kind)
	}
	return fmt.Errorf("direction %q is not valid for %s-type spine", t.Direction, t.Kind)
}

// DefaultDirection returns the kind's conventional default direction.
func DefaultDirection(k Kind) Direction {
	if k == KindS {
		return LumbarLeftThoracicRight
	}
	return Left
}
