package memory

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

func TestHandlerChunks(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	samples := make([]float64, 250)
	for i := range samples {
		samples[i] = float64(i)
	}
	uri := store.Put("ramp", samples, 16000)
	assert.Equal(t, "mem://ramp", uri)

	h := NewHandler(common.SourceOptions{SampleRate: 16000, ChunkSize: 100, QueueDepth: 1}, store)
	assert.True(t, h.CanHandle(ctx, uri))
	require.NoError(t, h.Connect(ctx, uri))
	assert.Equal(t, common.SourceTypeMemory, h.Metadata().Type)

	var offsets []int64
	var total int
	for {
		data, err := h.ReadAudio(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		offsets = append(offsets, data.Offset)
		total += len(data.PCM)
		assert.Equal(t, float64(data.Offset), data.PCM[0])
	}
	assert.Equal(t, []int64{0, 100, 200}, offsets)
	assert.Equal(t, 250, total)

	require.NoError(t, h.Close())
	_, err := h.ReadAudio(ctx)
	assert.ErrorIs(t, err, common.ErrSourceClosed)
}

func TestConnectErrors(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Put("slow", []float64{1}, 8000)
	h := NewHandler(common.DefaultSourceOptions(), store)

	var se *common.StreamError
	err := h.Connect(ctx, "mem://missing")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, common.ErrCodeConnection, se.Code)

	err = h.Connect(ctx, "mem://slow")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, common.ErrCodeInvalidFormat, se.Code)

	err = h.Connect(ctx, "file.wav")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, common.ErrCodeUnsupported, se.Code)
}

func TestFromSamples(t *testing.T) {
	h := FromSamples([]float64{1, 2, 3}, 16000, 2)
	data, err := h.ReadAudio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, data.PCM)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.ReadAudio(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
