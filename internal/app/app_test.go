package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/spine_trainer/internal/calib"
	"github.com/relabs-tech/spine_trainer/internal/config"
	"github.com/relabs-tech/spine_trainer/internal/session"
)

func TestReadRawCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	data := "time(s),sensor1,sensor2\n0.5,100,200\n1,110,210\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	frames, err := readRawCSV(path)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 0.5, frames[0].Timestamp)
	assert.Equal(t, []float64{100, 200}, frames[0].Channels)
	assert.Equal(t, []float64{110, 210}, frames[1].Channels)
}

func TestReadRawCSVRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	_, err := readRawCSV(path)
	assert.ErrorContains(t, err, "not a raw session export")
}

func testSession(t *testing.T) *session.Session {
	t.Helper()
	cfg := config.Defaults()
	cfg.Source = "mock"
	cfg.SensorCount = 3
	cfg.FilterKind = "kalman"
	cfg.ExportDir = t.TempDir()
	s, err := session.New(cfg)
	require.NoError(t, err)
	return s
}

func TestApplyCommand(t *testing.T) {
	s := testSession(t)

	require.NoError(t, applyCommand(s, Command{Action: "arm", Stage: "rotation"}))
	_, active := s.TrackerState()
	assert.Equal(t, calib.Rotation, active)

	require.NoError(t, applyCommand(s, Command{Action: "topology", Kind: "S"}))
	assert.Equal(t, calib.KindS, s.Model().Active().Topology.Kind)
	assert.Equal(t, calib.DefaultDirection(calib.KindS), s.Model().Active().Topology.Direction)

	assert.Error(t, applyCommand(s, Command{Action: "arm", Stage: "bogus"}))
	assert.ErrorContains(t, applyCommand(s, Command{Action: "selfdestruct"}), "unknown command")
}
