package mic

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// Scheme prefixes capture device URIs, e.g. mic:// or mic://default
const Scheme = "mic://"

// Handler captures mono float32 audio from the default input device. The
// device callback cuts samples into ChunkSize chunks and hands them to
// ReadAudio through a bounded queue; chunks are dropped when the queue is
// full.
type Handler struct {
	opts   common.SourceOptions
	logger logging.Logger

	mu       sync.Mutex
	mctx     *malgo.AllocatedContext
	device   *malgo.Device
	chunks   chan []float64
	done     chan struct{}
	metadata *common.SourceMetadata
	offset   int64
	dropped  atomic.Int64
}

// NewHandler creates an unconnected capture handler
func NewHandler(opts common.SourceOptions) *Handler {
	return &Handler{
		opts: opts,
		logger: logging.WithFields(logging.Fields{
			"component": "mic_source",
		}),
	}
}

func (h *Handler) Type() common.SourceType { return common.SourceTypeMic }

func (h *Handler) CanHandle(_ context.Context, uri string) bool {
	return DetectFromURI(uri) == common.SourceTypeMic
}

// DetectFromURI reports SourceTypeMic for mic:// URIs
func DetectFromURI(uri string) common.SourceType {
	if strings.HasPrefix(uri, Scheme) {
		return common.SourceTypeMic
	}
	return common.SourceTypeUnsupported
}

// Connect opens and starts the capture device
func (h *Handler) Connect(_ context.Context, uri string) error {
	if err := h.opts.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.device != nil {
		return common.NewStreamError(common.SourceTypeMic, uri, common.ErrCodeLifecycle, "already connected", nil)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return common.NewStreamError(common.SourceTypeMic, uri, common.ErrCodeConnection,
			"failed to initialize audio context", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(h.opts.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	chunks := make(chan []float64, h.opts.QueueDepth)
	done := make(chan struct{})
	chunkSize := h.opts.ChunkSize

	var buf []float64
	onRecvFrames := func(_, pSample []byte, framecount uint32) {
		if framecount == 0 {
			return
		}
		for i := 0; i < int(framecount); i++ {
			bits := binary.LittleEndian.Uint32(pSample[i*4:])
			buf = append(buf, float64(math.Float32frombits(bits)))
		}
		for len(buf) >= chunkSize {
			chunk := make([]float64, chunkSize)
			copy(chunk, buf[:chunkSize])
			buf = append(buf[:0], buf[chunkSize:]...)
			select {
			case chunks <- chunk:
			case <-done:
				return
			default:
				h.dropped.Add(1)
			}
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return common.NewStreamError(common.SourceTypeMic, uri, common.ErrCodeConnection,
			"failed to initialize capture device", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return common.NewStreamError(common.SourceTypeMic, uri, common.ErrCodeConnection,
			"failed to start capture device", err)
	}

	h.mctx = mctx
	h.device = device
	h.chunks = chunks
	h.done = done
	h.offset = 0
	h.metadata = &common.SourceMetadata{
		URI:              uri,
		Type:             common.SourceTypeMic,
		SampleRate:       h.opts.SampleRate,
		Channels:         1,
		NativeSampleRate: h.opts.SampleRate,
	}

	h.logger.Info("Capture device started", logging.Fields{
		"sample_rate": h.opts.SampleRate,
		"chunk_size":  chunkSize,
	})
	return nil
}

func (h *Handler) Metadata() *common.SourceMetadata {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metadata
}

// Dropped returns how many chunks were discarded because the queue was full
func (h *Handler) Dropped() int64 {
	return h.dropped.Load()
}

// ReadAudio blocks until the next chunk is captured, ctx is done, or the
// handler is closed
func (h *Handler) ReadAudio(ctx context.Context) (*common.AudioData, error) {
	h.mu.Lock()
	chunks, done := h.chunks, h.done
	h.mu.Unlock()

	if chunks == nil {
		return nil, common.NewStreamError(common.SourceTypeMic, "", common.ErrCodeConnection, "not connected", nil)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		return nil, common.ErrSourceClosed
	case pcm := <-chunks:
		h.mu.Lock()
		offset := h.offset
		h.offset += int64(len(pcm))
		h.mu.Unlock()

		return &common.AudioData{
			PCM:        pcm,
			SampleRate: h.opts.SampleRate,
			Offset:     offset,
			Duration:   common.ChunkDuration(len(pcm), h.opts.SampleRate),
			Timestamp:  time.Now(),
		}, nil
	}
}

// Close stops the device and releases the audio context. It is safe to call
// more than once.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.device == nil {
		return nil
	}

	close(h.done)
	err := h.device.Stop()
	h.device.Uninit()
	if uerr := h.mctx.Uninit(); err == nil {
		err = uerr
	}
	h.mctx.Free()

	h.logger.Info("Capture device released", logging.Fields{
		"dropped_chunks": h.dropped.Load(),
	})

	h.device = nil
	h.mctx = nil
	h.chunks = nil
	return err
}
