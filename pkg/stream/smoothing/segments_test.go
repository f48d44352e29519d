package smoothing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

func TestSegments(t *testing.T) {
	segs, err := Segments([]int{0, 0, 2, 2, 2, 0}, 1600, 16000, nil)
	require.NoError(t, err)
	require.Len(t, segs, 3)

	assert.Equal(t, Segment{Label: 0, StartStep: 0, EndStep: 2, Start: 0, End: 0.2}, segs[0])
	assert.Equal(t, 2, segs[1].Label)
	assert.InDelta(t, 0.2, segs[1].Start, 1e-12)
	assert.InDelta(t, 0.5, segs[1].End, 1e-12)
	assert.Equal(t, 3, segs[1].Steps())
	assert.Equal(t, 5, segs[2].StartStep)
	assert.InDelta(t, 0.5, segs[2].Start, 1e-12)
}

func TestSegmentsEmpty(t *testing.T) {
	segs, err := Segments(nil, 160, 16000, nil)
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func TestSegmentsSingleRun(t *testing.T) {
	segs, err := Segments([]int{4, 4, 4}, 160, 16000, nil)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 3, segs[0].Steps())
}

func TestSegmentNames(t *testing.T) {
	segs, err := Segments([]int{0, 1, 5}, 160, 16000, []string{"silence", "speech"})
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, "silence", segs[0].Name)
	assert.Equal(t, "speech", segs[1].Name)
	assert.Equal(t, "label_5", segs[2].Name)
}

func TestSegmenterStreaming(t *testing.T) {
	sg, err := NewSegmenter(480, 16000, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.03, sg.StepSeconds(), 1e-12)

	_, closed := sg.Push(1)
	assert.False(t, closed)
	_, closed = sg.Push(1)
	assert.False(t, closed)

	s, closed := sg.Push(2)
	require.True(t, closed)
	assert.Equal(t, 1, s.Label)
	assert.Equal(t, 2, s.EndStep)

	s, ok := sg.Flush()
	require.True(t, ok)
	assert.Equal(t, 2, s.Label)
	assert.Equal(t, 2, s.StartStep)

	_, ok = sg.Flush()
	assert.False(t, ok)
}

func TestNewSegmenterValidates(t *testing.T) {
	_, err := NewSegmenter(0, 16000, nil)
	assert.True(t, common.IsConfigError(err))
	_, err = NewSegmenter(160, 0, nil)
	assert.True(t, common.IsConfigError(err))
}
