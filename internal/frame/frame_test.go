package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCopiesChannels(t *testing.T) {
	src := []float64{1, 2, 3}
	f := New(0.5, src)
	src[0] = 99

	assert.Equal(t, []float64{1, 2, 3}, f.Channels)
	assert.Equal(t, 0.5, f.Timestamp)
}

func TestCloneIsIndependent(t *testing.T) {
	f := New(1, []float64{1, 2})
	c := f.Clone()
	c.Channels[0] = 42

	assert.Equal(t, 1.0, f.Channels[0])
}

func TestValidate(t *testing.T) {
	f := New(1, []float64{1, 2, 3})
	require.NoError(t, f.Validate(3))

	err := f.Validate(4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelCount)
}
