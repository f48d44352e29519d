package common

import (
	"context"
	"time"
)

// SourceType identifies where raw samples come from
type SourceType string

const (
	SourceTypeWAV         SourceType = "wav"
	SourceTypeMic         SourceType = "mic"
	SourceTypeMemory      SourceType = "memory"
	SourceTypeHTTP        SourceType = "http"
	SourceTypeUnsupported SourceType = "unsupported"
)

// SourceMetadata describes an opened sample source
type SourceMetadata struct {
	URI        string     `json:"uri"`
	Type       SourceType `json:"type"`
	SampleRate int        `json:"sample_rate"`
	Channels   int        `json:"channels"`
	// NativeSampleRate is the rate before resampling (0 when unknown)
	NativeSampleRate int `json:"native_sample_rate,omitempty"`
}

// AudioData is one chunk of mono samples delivered by a source
type AudioData struct {
	PCM        []float64     `json:"-"`
	SampleRate int           `json:"sample_rate"`
	Offset     int64         `json:"offset"` // index of PCM[0] in the source
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// SourceHandler supplies raw mono samples at a declared sample rate.
// ReadAudio returns io.EOF once a finite source is exhausted.
type SourceHandler interface {
	Type() SourceType
	CanHandle(ctx context.Context, uri string) bool
	Connect(ctx context.Context, uri string) error
	Metadata() *SourceMetadata
	ReadAudio(ctx context.Context) (*AudioData, error)
	Close() error
}

// SourceDetector resolves a URI to a source type
type SourceDetector interface {
	DetectType(ctx context.Context, uri string) (SourceType, error)
}

// SourceOptions are shared by all source handlers
type SourceOptions struct {
	// SampleRate is the rate delivered to callers. File sources resample to
	// it; capture devices open at it.
	SampleRate int `json:"sample_rate" mapstructure:"sample_rate"`
	// ChunkSize is the maximum number of samples per ReadAudio call
	ChunkSize int `json:"chunk_size" mapstructure:"chunk_size"`
	// QueueDepth bounds the chunks buffered between a capture callback and
	// ReadAudio. Chunks beyond it are dropped.
	QueueDepth int `json:"queue_depth" mapstructure:"queue_depth"`
}

// DefaultSourceOptions returns options for 16 kHz mono speech
func DefaultSourceOptions() SourceOptions {
	return SourceOptions{
		SampleRate: 16000,
		ChunkSize:  1600,
		QueueDepth: 64,
	}
}

// Validate checks the options
func (o SourceOptions) Validate() error {
	if o.SampleRate <= 0 {
		return NewConfigError("sample_rate", o.SampleRate, "must be positive")
	}
	if o.ChunkSize <= 0 {
		return NewConfigError("chunk_size", o.ChunkSize, "must be positive")
	}
	if o.QueueDepth <= 0 {
		return NewConfigError("queue_depth", o.QueueDepth, "must be positive")
	}
	return nil
}

// ChunkDuration returns the playback duration of n samples at rate
func ChunkDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(rate) * float64(time.Second))
}
