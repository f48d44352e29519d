package mic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

func TestDetectFromURI(t *testing.T) {
	assert.Equal(t, common.SourceTypeMic, DetectFromURI("mic://"))
	assert.Equal(t, common.SourceTypeMic, DetectFromURI("mic://default"))
	assert.Equal(t, common.SourceTypeUnsupported, DetectFromURI("speech.wav"))

	h := NewHandler(common.DefaultSourceOptions())
	assert.True(t, h.CanHandle(context.Background(), "mic://"))
	assert.Equal(t, common.SourceTypeMic, h.Type())
}

func TestReadBeforeConnect(t *testing.T) {
	h := NewHandler(common.DefaultSourceOptions())
	_, err := h.ReadAudio(context.Background())

	var se *common.StreamError
	assert.ErrorAs(t, err, &se)
	assert.Nil(t, h.Metadata())
	assert.NoError(t, h.Close())
}

func TestConnectRejectsInvalidOptions(t *testing.T) {
	h := NewHandler(common.SourceOptions{SampleRate: 0, ChunkSize: 10, QueueDepth: 1})
	err := h.Connect(context.Background(), "mic://")
	assert.True(t, common.IsConfigError(err))
}
