package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// Scheme prefixes in-memory source URIs
const Scheme = "mem://"

// Buffer is a named block of mono samples
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// Store holds buffers addressable as mem://<name>
type Store struct {
	mu      sync.RWMutex
	buffers map[string]Buffer
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{buffers: make(map[string]Buffer)}
}

// Put registers samples under name and returns its URI
func (s *Store) Put(name string, samples []float64, sampleRate int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[name] = Buffer{Samples: samples, SampleRate: sampleRate}
	return Scheme + name
}

// Get looks up a buffer by name
func (s *Store) Get(name string) (Buffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buffers[name]
	return b, ok
}

// Delete removes a buffer
func (s *Store) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, name)
}

// Handler serves a Buffer in chunks
type Handler struct {
	opts  common.SourceOptions
	store *Store

	mu       sync.Mutex
	buffer   Buffer
	position int
	metadata *common.SourceMetadata
	closed   bool
}

// NewHandler creates a handler resolving URIs against store
func NewHandler(opts common.SourceOptions, store *Store) *Handler {
	return &Handler{opts: opts, store: store}
}

// FromSamples creates a connected handler over samples
func FromSamples(samples []float64, sampleRate, chunkSize int) *Handler {
	opts := common.SourceOptions{SampleRate: sampleRate, ChunkSize: chunkSize, QueueDepth: 1}
	h := &Handler{opts: opts}
	h.attach("inline", Buffer{Samples: samples, SampleRate: sampleRate})
	return h
}

func (h *Handler) Type() common.SourceType { return common.SourceTypeMemory }

func (h *Handler) CanHandle(_ context.Context, uri string) bool {
	return strings.HasPrefix(uri, Scheme)
}

// Connect resolves uri against the store. The buffer must already be at the
// configured sample rate.
func (h *Handler) Connect(_ context.Context, uri string) error {
	if !h.CanHandle(context.Background(), uri) {
		return common.NewStreamError(common.SourceTypeMemory, uri, common.ErrCodeUnsupported,
			"not a memory URI", nil)
	}
	if h.store == nil {
		return common.NewStreamError(common.SourceTypeMemory, uri, common.ErrCodeConnection,
			"no buffer store configured", nil)
	}

	name := strings.TrimPrefix(uri, Scheme)
	buf, ok := h.store.Get(name)
	if !ok {
		return common.NewStreamError(common.SourceTypeMemory, uri, common.ErrCodeConnection,
			fmt.Sprintf("no buffer named %q", name), nil)
	}
	if buf.SampleRate != h.opts.SampleRate {
		return common.NewStreamError(common.SourceTypeMemory, uri, common.ErrCodeInvalidFormat,
			fmt.Sprintf("buffer rate %d Hz does not match configured %d Hz", buf.SampleRate, h.opts.SampleRate), nil)
	}

	h.attach(uri, buf)
	return nil
}

func (h *Handler) attach(uri string, buf Buffer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buffer = buf
	h.position = 0
	h.closed = false
	h.metadata = &common.SourceMetadata{
		URI:              uri,
		Type:             common.SourceTypeMemory,
		SampleRate:       buf.SampleRate,
		Channels:         1,
		NativeSampleRate: buf.SampleRate,
	}
}

func (h *Handler) Metadata() *common.SourceMetadata {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metadata
}

// ReadAudio returns the next chunk, or io.EOF after the last one
func (h *Handler) ReadAudio(ctx context.Context) (*common.AudioData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, common.ErrSourceClosed
	}
	if h.metadata == nil {
		return nil, common.NewStreamError(common.SourceTypeMemory, "", common.ErrCodeConnection, "not connected", nil)
	}
	if h.position >= len(h.buffer.Samples) {
		return nil, io.EOF
	}

	end := min(h.position+h.opts.ChunkSize, len(h.buffer.Samples))
	pcm := make([]float64, end-h.position)
	copy(pcm, h.buffer.Samples[h.position:end])

	data := &common.AudioData{
		PCM:        pcm,
		SampleRate: h.buffer.SampleRate,
		Offset:     int64(h.position),
		Duration:   common.ChunkDuration(len(pcm), h.buffer.SampleRate),
		Timestamp:  time.Now(),
	}
	h.position = end
	return data, nil
}

func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.buffer = Buffer{}
	return nil
}
