package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/spine_trainer/internal/calib"
	"github.com/relabs-tech/spine_trainer/internal/frame"
	"github.com/relabs-tech/spine_trainer/internal/stage"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSessionDirIsUnique(t *testing.T) {
	base := t.TempDir()
	a, err := NewSession(base)
	require.NoError(t, err)
	b, err := NewSession(base)
	require.NoError(t, err)

	assert.NotEqual(t, a.Dir(), b.Dir())
	assert.DirExists(t, a.Dir())
	assert.DirExists(t, b.Dir())
}

func TestWriteRaw(t *testing.T) {
	s, err := NewSession(t.TempDir())
	require.NoError(t, err)

	path, err := s.WriteRaw([]frame.Frame{
		{Timestamp: 0.5, Channels: []float64{100, 200}},
		{Timestamp: 1.0, Channels: []float64{110, 210}},
	}, 2)
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"time(s)", "sensor1", "sensor2"}, rows[0])
	assert.Equal(t, []string{"0.5", "100", "200"}, rows[1])
	assert.Equal(t, []string{"1", "110", "210"}, rows[2])
}

func TestWriteProcessedLongForm(t *testing.T) {
	s, err := NewSession(t.TempDir())
	require.NoError(t, err)

	samples := []stage.ProcessedSample{{
		Timestamp:  2.0,
		Topology:   calib.Topology{Kind: calib.KindC, Direction: calib.Left},
		SpineCurve: 0.4,
		Stages: []stage.StageValue{
			{Name: calib.Rotation, Value: 0.9, ErrorRange: 0.1, InTolerance: true},
			{Name: calib.Curvature, Value: 0.4, ErrorRange: 0.1},
		},
	}}
	path, err := s.WriteProcessed(samples)
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 3) // header + one row per stage
	assert.Equal(t, []string{"2", "C", "rotation", "0.9", "0.1", "true", "0.4"}, rows[1])
	assert.Equal(t, []string{"2", "C", "curvature", "0.4", "0.1", "false", "0.4"}, rows[2])
}

func TestEventsRoundTripThroughCalibLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")

	w, err := NewEventsWriter(path, 3)
	require.NoError(t, err)

	tr := stage.NewTracker(0)
	for _, name := range []calib.StageName{calib.Rotation, calib.Curvature, calib.TiltPelvis, calib.TiltShoulder} {
		tr.Arm(0, name)
		p := calib.StageParam{Name: name, Weights: map[int]float64{0: 1, 1: 1}, Tolerance: 0.12}

		p, ev, err := tr.RecordBaseline(1.0, []float64{100, 200, 0}, p)
		require.NoError(t, err)
		require.NoError(t, w.Write(ev))

		_, ev, err = tr.RecordTarget(2.0, []float64{200, 400, 0}, p)
		require.NoError(t, err)
		require.NoError(t, w.Write(ev))
	}
	require.NoError(t, w.Close())

	// A file recorded by this session is loadable as next session's calibration.
	m, err := calib.NewModel(calib.Topology{Kind: calib.KindC, Direction: calib.Left})
	require.NoError(t, err)
	require.NoError(t, m.LoadEventsFile(path, 3))

	snap := m.Active()
	assert.True(t, snap.EventsLoaded)
	rot, ok := snap.Param(calib.Rotation)
	require.True(t, ok)
	assert.InDelta(t, 150, rot.Baseline, 1e-9)
	assert.InDelta(t, 300, rot.Target, 1e-9)
	assert.Equal(t, 0.12, rot.Tolerance)
}
