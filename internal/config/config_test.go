package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trainer_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
# comment line
SOURCE=mock
SENSOR_COUNT=5

FILTER_KIND=savgol
SAVGOL_WINDOW=9
SPINE_TYPE=S
SPINE_DIRECTION=lumbar_left_thoracic_right
UDP_PORT=6000
DOCTOR_MODE=true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Source)
	assert.Equal(t, 5, cfg.SensorCount)
	assert.Equal(t, "savgol", cfg.FilterKind)
	assert.Equal(t, 9, cfg.SavgolWindow)
	assert.Equal(t, "S", cfg.SpineType)
	assert.Equal(t, 6000, cfg.UDPPort)
	assert.True(t, cfg.DoctorMode)

	// Untouched keys keep their defaults.
	assert.Equal(t, 100.0, cfg.SampleRateHz)
	assert.Equal(t, "spine/frames", cfg.TopicFrames)
	assert.Equal(t, 2000, cfg.AlertDebounce)
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown key":        "SOURCE=mock\nBOGUS_KEY=1\n",
		"bad enum":           "SOURCE=carrier-pigeon\n",
		"bad int":            "SOURCE=mock\nSENSOR_COUNT=many\n",
		"out of range":       "SOURCE=mock\nUDP_PORT=99999\n",
		"missing separator":  "SOURCE mock\n",
		"serial needs port":  "SOURCE=serial\n",
		"radio needs broker": "SOURCE=radio\n",
		"bad spine type":     "SOURCE=mock\nSPINE_TYPE=X\n",
		"bad serial format":  "SOURCE=mock\nSERIAL_FORMAT=binary\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
