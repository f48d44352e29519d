package frames

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestCount(t *testing.T) {
	tests := []struct {
		name           string
		n, buffer, hop int
		want           int
	}{
		{"speech 100ms", 1600, 480, 160, 8},
		{"exact fit", 480, 480, 160, 1},
		{"too short", 479, 480, 160, 0},
		{"empty", 0, 480, 160, 0},
		{"no overlap", 1000, 100, 100, 10},
		{"trailing partial dropped", 1099, 100, 100, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Count(tt.n, tt.buffer, tt.hop))
		})
	}
}

func TestSlice(t *testing.T) {
	samples := ramp(1600)
	bufs, err := Slice(samples, 480, 160)
	require.NoError(t, err)
	require.Len(t, bufs, 8)

	for i, b := range bufs {
		require.Len(t, b, 480)
		assert.Equal(t, float64(i*160), b[0])
		assert.Equal(t, float64(i*160+479), b[479])
	}

	// buffers are copies
	bufs[0][0] = -1
	assert.Equal(t, 0.0, samples[0])
}

func TestSliceEmpty(t *testing.T) {
	bufs, err := Slice(ramp(100), 480, 160)
	require.NoError(t, err)
	assert.Empty(t, bufs)
}

func TestNewSlicerRejectsBadLengths(t *testing.T) {
	_, err := NewSlicer(160, 480)
	assert.True(t, common.IsConfigError(err))

	_, err = NewSlicer(0, 1)
	assert.True(t, common.IsConfigError(err))

	_, err = NewSlicer(10, 0)
	assert.True(t, common.IsConfigError(err))
}

func TestAllStopsEarly(t *testing.T) {
	s, err := NewSlicer(4, 2)
	require.NoError(t, err)

	seen := 0
	for i := range s.All(ramp(20)) {
		seen++
		if i == 2 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestFrameIsSilent(t *testing.T) {
	assert.True(t, Frame{}.IsSilent())
	assert.True(t, Frame(nil).IsSilent())
	assert.True(t, Frame{math.Inf(-1), 0}.IsSilent())
	assert.True(t, Silent(4).IsSilent())
	assert.False(t, Frame{0, math.Inf(-1)}.IsSilent())
	assert.False(t, Frame{-100}.IsSilent())
}

func TestFlattenPadsFront(t *testing.T) {
	fs := []Frame{{1, 2}, {3, 4}}
	out := Flatten(fs, 4, 2)
	assert.Equal(t, []float64{0, 0, 0, 0, 1, 2, 3, 4}, out)
}

func TestFlattenFullAndOverfull(t *testing.T) {
	fs := []Frame{{1}, {2}, {3}}
	assert.Equal(t, []float64{1, 2, 3}, Flatten(fs, 3, 1))
	assert.Equal(t, []float64{2, 3}, Flatten(fs, 2, 1))
	assert.Equal(t, []float64{0, 0}, Flatten(nil, 2, 1))
}
