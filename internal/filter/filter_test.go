package filter

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/spine_trainer/internal/frame"
)

func makeFrames(n, channels int, gen func(i, ch int) float64) []frame.Frame {
	frames := make([]frame.Frame, n)
	for i := range frames {
		c := make([]float64, channels)
		for ch := range c {
			c[ch] = gen(i, ch)
		}
		frames[i] = frame.Frame{Timestamp: float64(i) * 0.01, Channels: c}
	}
	return frames
}

func allFilters(t *testing.T) map[string]Filter {
	t.Helper()
	bw, err := NewButterworth(2.0, 100.0, 4)
	require.NoError(t, err)
	kf, err := NewKalman(0.01, 0.1)
	require.NoError(t, err)
	sg, err := NewSavitzkyGolay(11, 3)
	require.NoError(t, err)
	return map[string]Filter{"butterworth": bw, "kalman": kf, "savgol": sg}
}

func TestApplyPreservesShapeAndTimestamp(t *testing.T) {
	frames := makeFrames(50, 3, func(i, ch int) float64 {
		return 2500 + 40*math.Sin(float64(i)*0.2+float64(ch))
	})

	for name, f := range allFilters(t) {
		t.Run(name, func(t *testing.T) {
			f.Reset()
			for _, in := range frames {
				out, err := f.Apply(in)
				require.NoError(t, err)
				assert.Equal(t, in.Timestamp, out.Timestamp)
				assert.Len(t, out.Channels, len(in.Channels))
			}
		})
	}
}

func TestApplyRejectsChannelCountChange(t *testing.T) {
	for name, f := range allFilters(t) {
		t.Run(name, func(t *testing.T) {
			f.Reset()
			_, err := f.Apply(frame.New(0, []float64{1, 2, 3}))
			require.NoError(t, err)
			_, err = f.Apply(frame.New(0.01, []float64{1, 2}))
			require.ErrorIs(t, err, frame.ErrChannelCount)
		})
	}
}

func TestResetReplayIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	frames := makeFrames(200, 4, func(i, ch int) float64 {
		return 2500 + 30*math.Sin(float64(i)*0.1) + rng.NormFloat64()*8
	})

	for name, f := range allFilters(t) {
		t.Run(name, func(t *testing.T) {
			runOnce := func() [][]float64 {
				f.Reset()
				var out [][]float64
				for _, in := range frames {
					got, err := f.Apply(in)
					require.NoError(t, err)
					out = append(out, got.Channels)
				}
				return out
			}
			first := runOnce()
			second := runOnce()
			assert.Equal(t, first, second)
		})
	}
}

func TestButterworthConvergesToConstant(t *testing.T) {
	bw, err := NewButterworth(2.0, 100.0, 4)
	require.NoError(t, err)

	var out frame.Frame
	for i := 0; i < 500; i++ {
		out, err = bw.Apply(frame.New(float64(i)*0.01, []float64{100}))
		require.NoError(t, err)
	}
	// A lowpass has unity DC gain: a constant input must settle to itself.
	assert.InDelta(t, 100.0, out.Channels[0], 0.01)
}

func TestButterworthConfigErrors(t *testing.T) {
	cases := []struct {
		cutoff float64
		rate   float64
		order  int
	}{
		{cutoff: 0, rate: 100, order: 4},
		{cutoff: 2, rate: 0, order: 4},
		{cutoff: 2, rate: 100, order: 3},
		{cutoff: 2, rate: 100, order: 0},
	}
	for _, c := range cases {
		_, err := NewButterworth(c.cutoff, c.rate, c.order)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	}
}

func TestKalmanTracksConstantSignal(t *testing.T) {
	kf, err := NewKalman(0.01, 0.1)
	require.NoError(t, err)

	var out frame.Frame
	for i := 0; i < 200; i++ {
		out, err = kf.Apply(frame.New(float64(i)*0.01, []float64{250}))
		require.NoError(t, err)
	}
	assert.InDelta(t, 250.0, out.Channels[0], 0.5)
}

func TestKalmanPredictsThroughMissingSamples(t *testing.T) {
	kf, err := NewKalman(0.01, 0.1)
	require.NoError(t, err)

	// Establish a steady estimate, then drop the reading for a few ticks.
	for i := 0; i < 100; i++ {
		_, err = kf.Apply(frame.New(float64(i)*0.01, []float64{500}))
		require.NoError(t, err)
	}
	for i := 100; i < 105; i++ {
		out, err := kf.Apply(frame.New(float64(i)*0.01, []float64{math.NaN()}))
		require.NoError(t, err)
		assert.False(t, math.IsNaN(out.Channels[0]), "predict-only step must emit the estimate")
		assert.InDelta(t, 500.0, out.Channels[0], 5.0)
	}
}

func TestSavitzkyGolayPassThroughUntilWarm(t *testing.T) {
	const window = 11
	sg, err := NewSavitzkyGolay(window, 3)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < window-1; i++ {
		in := frame.New(float64(i)*0.01, []float64{rng.Float64() * 100})
		out, err := sg.Apply(in)
		require.NoError(t, err)
		assert.Equal(t, in.Channels[0], out.Channels[0], "sample %d must pass through before the window fills", i)
		assert.False(t, sg.Warm())
	}
	_, err = sg.Apply(frame.New(0.1, []float64{42}))
	require.NoError(t, err)
	assert.True(t, sg.Warm())
}

func TestSavitzkyGolayReproducesPolynomial(t *testing.T) {
	// A degree-2 signal must be reproduced exactly by a degree-3 fit.
	sg, err := NewSavitzkyGolay(11, 3)
	require.NoError(t, err)

	poly := func(i int) float64 {
		x := float64(i)
		return 3 + 0.5*x + 0.02*x*x
	}
	for i := 0; i < 40; i++ {
		out, err := sg.Apply(frame.New(float64(i)*0.01, []float64{poly(i)}))
		require.NoError(t, err)
		if i >= 10 {
			assert.InDelta(t, poly(i), out.Channels[0], 1e-9)
		}
	}
}

func TestSavitzkyGolayConfigErrors(t *testing.T) {
	_, err := NewSavitzkyGolay(10, 3) // even window
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewSavitzkyGolay(5, 5) // order >= window
	require.ErrorAs(t, err, &cfgErr)
}

func TestStatsTrackVariance(t *testing.T) {
	kf, err := NewKalman(0.01, 0.1)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, err = kf.Apply(frame.New(float64(i)*0.01, []float64{float64(i % 2 * 10)}))
		require.NoError(t, err)
	}
	stats := kf.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 50, stats[0].Count)
	assert.Greater(t, stats[0].Variance, 0.0)
}

func TestEnhancerAppendsDifferences(t *testing.T) {
	enh, err := NewEnhancer(7, DefaultDerived(7))
	require.NoError(t, err)

	in := frame.New(1.5, []float64{10, 1, 2, 3, 20, 5, 4})
	out := enh.Apply(in)
	require.Len(t, out.Channels, 9)
	assert.Equal(t, 1.5, out.Timestamp)
	assert.Equal(t, 6.0, out.Channels[7])  // pelvis pair 0-6
	assert.Equal(t, 15.0, out.Channels[8]) // shoulder pair 4-5

	// Input frame untouched.
	assert.Len(t, in.Channels, 7)
}

func TestEnhancerRejectsOutOfRangeChannels(t *testing.T) {
	_, err := NewEnhancer(4, []DerivedChannel{{A: 0, B: 9}})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
