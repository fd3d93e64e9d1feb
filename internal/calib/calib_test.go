// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calib

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologyStages(t *testing.T) {
	c := Topology{Kind: KindC, Direction: Left}
	s := Topology{Kind: KindS, Direction: LumbarLeftThoracicRight}

	assert.Equal(t, []StageName{Rotation, Curvature, TiltPelvis, TiltShoulder}, c.Stages())
	assert.Equal(t, []StageName{Rotation, CurvatureUp, CurvatureDown, TiltPelvis, TiltShoulder}, s.Stages())
}

func TestTopologyValidate(t *testing.T) {
	require.NoError(t, Topology{Kind: KindC, Direction: Right}.Validate())
	require.NoError(t, Topology{Kind: KindS, Direction: LumbarRightThoracicLeft}.Validate())

	assert.Error(t, Topology{Kind: KindC, Direction: LumbarLeftThoracicLeft}.Validate())
	assert.Error(t, Topology{Kind: KindS, Direction: Left}.Validate())
	assert.Error(t, Topology{Kind: "X", Direction: Left}.Validate())
}

func TestNormalizedWeights(t *testing.T) {
	p := StageParam{Weights: map[int]float64{0: 2, 1: -1, 2: 1}}
	w := p.NormalizedWeights()
	require.NotNil(t, w)
	assert.InDelta(t, 0.5, w[0], 1e-12)
	assert.InDelta(t, 0.25, w[1], 1e-12)
	assert.InDelta(t, 0.25, w[2], 1e-12)

	assert.Nil(t, StageParam{}.NormalizedWeights())
	assert.Nil(t, StageParam{Weights: map[int]float64{0: 0}}.NormalizedWeights())
}

func TestCombine(t *testing.T) {
	p := StageParam{Weights: map[int]float64{0: 1, 2: 3}}
	v, ok := p.Combine([]float64{100, 999, 200})
	require.True(t, ok)
	assert.InDelta(t, 175, v, 1e-9) // 0.25*100 + 0.75*200

	_, ok = p.Combine([]float64{100, 200}) // channel 2 out of range
	assert.False(t, ok)

	_, ok = StageParam{}.Combine([]float64{1, 2, 3})
	assert.False(t, ok)
}

func TestModelTopologySwitchCarriesSharedStages(t *testing.T) {
	m, err := NewModel(Topology{Kind: KindC, Direction: Left})
	require.NoError(t, err)

	custom := StageParam{
		Name:      Rotation,
		Weights:   map[int]float64{0: 1},
		Baseline:  100,
		Target:    200,
		Tolerance: 0.05,
	}
	require.NoError(t, m.SetStageParam(custom))

	require.NoError(t, m.SetTopology(KindS, LumbarLeftThoracicRight))
	snap := m.Active()
	require.Len(t, snap.Params, 5)

	rot, ok := snap.Param(Rotation)
	require.True(t, ok)
	assert.Equal(t, custom, rot)

	// Curvature was C-only and must be gone; the S-only stages start default.
	_, ok = snap.Param(Curvature)
	assert.False(t, ok)
	up, ok := snap.Param(CurvatureUp)
	require.True(t, ok)
	assert.Equal(t, DefaultTolerance, up.Tolerance)
}

func TestSetStageParamRejectsInactiveStage(t *testing.T) {
	m, err := NewModel(Topology{Kind: KindC, Direction: Left})
	require.NoError(t, err)

	err = m.SetStageParam(StageParam{Name: CurvatureUp})
	assert.ErrorContains(t, err, "not active")
}

func TestModelSnapshotIsolation(t *testing.T) {
	m, err := NewModel(Topology{Kind: KindC, Direction: Left})
	require.NoError(t, err)

	before := m.Active()
	require.NoError(t, m.SetStageParam(StageParam{
		Name: TiltPelvis, Weights: map[int]float64{1: 1}, Target: 50, Tolerance: 0.2,
	}))

	// The snapshot taken before the write is unchanged.
	p, ok := before.Param(TiltPelvis)
	require.True(t, ok)
	assert.Equal(t, defaultParam(TiltPelvis), p)

	p, ok = m.Active().Param(TiltPelvis)
	require.True(t, ok)
	assert.Equal(t, 50.0, p.Target)
}

const eventsHeader = "time(s),event_name,event_code,stage,sensor1,sensor2,sensor3,weight1,weight2,weight3,error_range\n"

func writeEventsFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(path, []byte(eventsHeader+body), 0o644))
	return path
}

func TestLoadEventsFileComplete(t *testing.T) {
	m, err := NewModel(Topology{Kind: KindC, Direction: Left})
	require.NoError(t, err)

	var b strings.Builder
	for _, stage := range []StageName{Rotation, Curvature, TiltPelvis, TiltShoulder} {
		b.WriteString("1.0,baseline_recorded,10," + string(stage) + ",100,200,300,1,1,0,0.15\n")
		b.WriteString("2.0,target_recorded,11," + string(stage) + ",200,400,300,1,1,0,0.15\n")
	}
	path := writeEventsFile(t, b.String())

	require.NoError(t, m.LoadEventsFile(path, 3))

	snap := m.Active()
	assert.True(t, snap.EventsLoaded)
	for _, p := range snap.Params {
		assert.InDelta(t, 150, p.Baseline, 1e-9, "stage %s", p.Name)
		assert.InDelta(t, 300, p.Target, 1e-9, "stage %s", p.Name)
		assert.Equal(t, 0.15, p.Tolerance, "stage %s", p.Name)
	}
}

func TestLoadEventsFileIncompleteStage(t *testing.T) {
	m, err := NewModel(Topology{Kind: KindC, Direction: Left})
	require.NoError(t, err)

	// Rotation is complete, curvature has no target row, tilt stages absent.
	body := "1.0,baseline_recorded,10,rotation,100,0,0,1,0,0,0.1\n" +
		"2.0,target_recorded,11,rotation,180,0,0,1,0,0,0.1\n" +
		"3.0,baseline_recorded,10,curvature,50,0,0,1,0,0,0.1\n"
	path := writeEventsFile(t, body)

	err = m.LoadEventsFile(path, 3)
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.ElementsMatch(t, []string{"curvature", "tilt_pelvis", "tilt_shoulder"}, ferr.Missing)

	// The complete stage was still applied; the flag stays down.
	snap := m.Active()
	assert.False(t, snap.EventsLoaded)
	rot, ok := snap.Param(Rotation)
	require.True(t, ok)
	assert.Equal(t, 100.0, rot.Baseline)
	assert.Equal(t, 180.0, rot.Target)
}

func TestLoadEventsFileLastRecordingWins(t *testing.T) {
	m, err := NewModel(Topology{Kind: KindC, Direction: Left})
	require.NoError(t, err)

	var b strings.Builder
	for _, stage := range []StageName{Rotation, Curvature, TiltPelvis, TiltShoulder} {
		b.WriteString("1.0,baseline_recorded,10," + string(stage) + ",100,0,0,1,0,0,0.1\n")
		b.WriteString("2.0,target_recorded,11," + string(stage) + ",200,0,0,1,0,0,0.1\n")
	}
	// Rotation re-recorded later in the session.
	b.WriteString("9.0,baseline_recorded,10,rotation,111,0,0,1,0,0,0.1\n")
	path := writeEventsFile(t, b.String())

	require.NoError(t, m.LoadEventsFile(path, 3))
	rot, ok := m.Active().Param(Rotation)
	require.True(t, ok)
	assert.Equal(t, 111.0, rot.Baseline)
}

func TestPresetsRoundTrip(t *testing.T) {
	m, err := NewModel(Topology{Kind: KindS, Direction: LumbarRightThoracicRight})
	require.NoError(t, err)
	require.NoError(t, m.SetStageParam(StageParam{
		Name:      CurvatureDown,
		Weights:   map[int]float64{2: 1, 3: 2},
		Baseline:  2500,
		Target:    2650,
		Tolerance: 0.08,
	}))

	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, m.SavePresets(path))

	m2, err := NewModel(Topology{Kind: KindC, Direction: Left})
	require.NoError(t, err)
	require.NoError(t, m2.LoadPresets(path))

	snap := m2.Active()
	assert.Equal(t, KindS, snap.Topology.Kind)
	assert.Equal(t, LumbarRightThoracicRight, snap.Topology.Direction)
	down, ok := snap.Param(CurvatureDown)
	require.True(t, ok)
	assert.Equal(t, 2650.0, down.Target)
	assert.Equal(t, map[int]float64{2: 1, 3: 2}, down.Weights)
}

func TestLoadPresetsRejectsForeignStage(t *testing.T) {
	doc := "topology:\n  kind: C\n  direction: left\nstages:\n  - name: curvature_up\n    weights: {0: 1}\n"
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := NewModel(Topology{Kind: KindC, Direction: Left})
	require.NoError(t, err)
	assert.ErrorContains(t, m.LoadPresets(path), "not valid for C-type spine")
}
