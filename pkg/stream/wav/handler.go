package wav

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"
	gowav "github.com/youpy/go-wav"

	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// FileScheme is accepted and stripped from WAV URIs
const FileScheme = "file://"

// Handler decodes a WAV file into mono chunks at the configured rate.
// Stereo is averaged; other rates are resampled.
type Handler struct {
	opts   common.SourceOptions
	logger logging.Logger

	mu        sync.Mutex
	closer    io.Closer
	reader    *gowav.Reader
	channels  int
	resampler resampling.Resampler
	metadata  *common.SourceMetadata
	pending   []float64
	offset    int64
	eof       bool
	closed    bool
}

// NewHandler creates an unconnected WAV handler
func NewHandler(opts common.SourceOptions) *Handler {
	return &Handler{
		opts: opts,
		logger: logging.WithFields(logging.Fields{
			"component": "wav_source",
		}),
	}
}

func (h *Handler) Type() common.SourceType { return common.SourceTypeWAV }

// CanHandle matches paths and file:// URIs ending in .wav or .wave
func (h *Handler) CanHandle(_ context.Context, uri string) bool {
	return DetectFromURI(uri) == common.SourceTypeWAV
}

// DetectFromURI reports SourceTypeWAV for WAV paths
func DetectFromURI(uri string) common.SourceType {
	ext := strings.ToLower(filepath.Ext(PathFromURI(uri)))
	if ext == ".wav" || ext == ".wave" {
		return common.SourceTypeWAV
	}
	return common.SourceTypeUnsupported
}

// DetectFromHeader sniffs the RIFF/WAVE magic of a local file
func DetectFromHeader(uri string) common.SourceType {
	f, err := os.Open(PathFromURI(uri))
	if err != nil {
		return common.SourceTypeUnsupported
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return common.SourceTypeUnsupported
	}
	if string(header[0:4]) == "RIFF" && string(header[8:12]) == "WAVE" {
		return common.SourceTypeWAV
	}
	return common.SourceTypeUnsupported
}

// PathFromURI strips the file:// scheme
func PathFromURI(uri string) string {
	return strings.TrimPrefix(uri, FileScheme)
}

// Source is random-access WAV content
type Source interface {
	io.Reader
	io.ReaderAt
}

// Connect opens the file and reads its format
func (h *Handler) Connect(_ context.Context, uri string) error {
	f, err := os.Open(PathFromURI(uri))
	if err != nil {
		return common.NewStreamError(common.SourceTypeWAV, uri, common.ErrCodeConnection,
			"failed to open WAV file", err)
	}
	return h.Open(common.SourceTypeWAV, uri, f, f)
}

// Open reads WAV content from src and reports it as a sourceType source.
// closer (may be nil) is released on Close or when the format is rejected.
func (h *Handler) Open(sourceType common.SourceType, uri string, src Source, closer io.Closer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	release := func() {
		if closer != nil {
			closer.Close()
		}
	}

	reader := gowav.NewReader(src)
	format, err := reader.Format()
	if err != nil {
		release()
		return common.NewStreamError(sourceType, uri, common.ErrCodeInvalidFormat,
			"failed to read WAV format", err)
	}

	channels := int(format.NumChannels)
	if channels < 1 || channels > 2 {
		release()
		return common.NewStreamError(sourceType, uri, common.ErrCodeInvalidFormat,
			fmt.Sprintf("only mono or stereo supported, got %d channels", channels), nil)
	}

	nativeRate := int(format.SampleRate)
	var rs resampling.Resampler
	if nativeRate != h.opts.SampleRate {
		rs, err = resampling.New(&resampling.Config{
			InputRate:  float64(nativeRate),
			OutputRate: float64(h.opts.SampleRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			release()
			return common.NewStreamError(sourceType, uri, common.ErrCodeDecoding,
				"failed to create resampler", err)
		}
	}

	h.closer = closer
	h.reader = reader
	h.channels = channels
	h.resampler = rs
	h.pending = nil
	h.offset = 0
	h.eof = false
	h.closed = false
	h.metadata = &common.SourceMetadata{
		URI:              uri,
		Type:             sourceType,
		SampleRate:       h.opts.SampleRate,
		Channels:         channels,
		NativeSampleRate: nativeRate,
	}

	h.logger.Debug("WAV source connected", logging.Fields{
		"uri":         uri,
		"channels":    channels,
		"native_rate": nativeRate,
		"target_rate": h.opts.SampleRate,
		"resampling":  rs != nil,
	})
	return nil
}

func (h *Handler) Metadata() *common.SourceMetadata {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metadata
}

// ReadAudio returns up to ChunkSize mono samples, or io.EOF at the end
func (h *Handler) ReadAudio(ctx context.Context) (*common.AudioData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, common.ErrSourceClosed
	}
	if h.reader == nil {
		return nil, common.NewStreamError(common.SourceTypeWAV, "", common.ErrCodeConnection, "not connected", nil)
	}

	for len(h.pending) < h.opts.ChunkSize && !h.eof {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := h.decode(); err != nil {
			return nil, common.NewStreamError(h.metadata.Type, h.metadata.URI, common.ErrCodeDecoding,
				"failed to decode WAV samples", err)
		}
	}

	if len(h.pending) == 0 {
		return nil, io.EOF
	}

	n := min(h.opts.ChunkSize, len(h.pending))
	pcm := make([]float64, n)
	copy(pcm, h.pending[:n])
	h.pending = h.pending[n:]

	data := &common.AudioData{
		PCM:        pcm,
		SampleRate: h.opts.SampleRate,
		Offset:     h.offset,
		Duration:   common.ChunkDuration(n, h.opts.SampleRate),
		Timestamp:  time.Now(),
	}
	h.offset += int64(n)
	return data, nil
}

// decode reads one block of frames, down-mixes and resamples it into pending
func (h *Handler) decode() error {
	samples, err := h.reader.ReadSamples(uint32(h.opts.ChunkSize))
	if err != nil && err != io.EOF {
		return err
	}
	if err == io.EOF || len(samples) == 0 {
		h.eof = true
	}
	if len(samples) == 0 {
		return nil
	}

	mono := make([]float64, len(samples))
	for i, s := range samples {
		if h.channels == 1 {
			mono[i] = h.reader.FloatValue(s, 0)
		} else {
			mono[i] = (h.reader.FloatValue(s, 0) + h.reader.FloatValue(s, 1)) / 2
		}
	}

	if h.resampler != nil {
		mono, err = h.resampler.Process(mono)
		if err != nil {
			return fmt.Errorf("resample: %w", err)
		}
	}

	h.pending = append(h.pending, mono...)
	return nil
}

// Close releases the file
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.pending = nil
	h.reader = nil
	if h.closer != nil {
		err := h.closer.Close()
		h.closer = nil
		return err
	}
	return nil
}
