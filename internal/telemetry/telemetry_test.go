package telemetry

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/spine_trainer/internal/calib"
	"github.com/relabs-tech/spine_trainer/internal/stage"
)

func sampleForTest() stage.ProcessedSample {
	return stage.ProcessedSample{
		Timestamp: 12.5,
		Channels:  []float64{2500, 2600, 2700},
		Topology:  calib.Topology{Kind: calib.KindC, Direction: calib.Left},
		Stages: []stage.StageValue{
			{Name: calib.Rotation, Value: 0.9, ErrorRange: 0.1, InTolerance: true},
			{Name: calib.Curvature, Value: 0.4, ErrorRange: 0.1},
			{Name: calib.TiltPelvis, Value: 0.2, ErrorRange: 0.15},
			{Name: calib.TiltShoulder, Value: 0.1, ErrorRange: 0.1},
		},
		SpineCurve:   0.4,
		EventsLoaded: true,
	}
}

func TestEncode(t *testing.T) {
	p := Encode(sampleForTest(), false)

	assert.Equal(t, 12.5, p.Timestamp)
	assert.Equal(t, []float64{2500, 2600, 2700}, p.SensorData)
	assert.Equal(t, 3, p.SensorCount)
	assert.Equal(t, "C", p.SpineType)
	assert.Empty(t, p.SpineDirection)
	assert.True(t, p.EventsFileLoaded)
	assert.Equal(t, 0.4, p.SpineCurve)

	require.Len(t, p.StageValues, 4)
	require.Len(t, p.StageErrorRanges, 4)
	assert.Equal(t, 0.9, p.StageValues["rotation"])
	assert.Equal(t, 0.15, p.StageErrorRanges["tilt_pelvis"])
}

func TestEncodeDoctorMode(t *testing.T) {
	p := Encode(sampleForTest(), true)
	assert.Equal(t, "left", p.SpineDirection)

	// Patient-mode datagrams must not leak the direction field at all.
	raw, err := json.Marshal(Encode(sampleForTest(), false))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "spine_direction")
}

func TestSenderDeliversDatagram(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	s := NewSender("127.0.0.1", port, true)
	defer s.Close()
	s.Deliver(sampleForTest())

	buf := make([]byte, 64*1024)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)

	var p Packet
	require.NoError(t, json.Unmarshal(buf[:n], &p))
	assert.Equal(t, 12.5, p.Timestamp)
	assert.Equal(t, "left", p.SpineDirection)

	sent, dropped := s.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Zero(t, dropped)
}

func TestSenderSurvivesUnreachableDestination(t *testing.T) {
	// No listener anywhere near this port; sends must not panic or block.
	s := NewSender("127.0.0.1", 1, false)
	defer s.Close()
	for i := 0; i < 5; i++ {
		s.Deliver(sampleForTest())
	}
}
