package analyzers

import (
	"fmt"

	"github.com/RyanBlaney/spectro-stream/pkg/audio/config"
	"github.com/RyanBlaney/spectro-stream/pkg/audio/frames"
	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// SpectralTransform turns bufferLength-sample buffers into feature frames.
// All tables are built in NewSpectralTransform; Transform is safe for
// concurrent use.
type SpectralTransform struct {
	cfg        config.FeatureConfig
	analyzer   *SpectralAnalyzer
	filterbank *MelFilterbank
	dct        *DCT // nil unless Kind is mfcc
	slicer     *frames.Slicer
	logger     logging.Logger
}

// NewSpectralTransform validates cfg and precomputes the window, filterbank
// and DCT basis
func NewSpectralTransform(cfg config.FeatureConfig) (*SpectralTransform, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	analyzer, err := NewSpectralAnalyzer(cfg.SampleRate, cfg.BufferLength, cfg.Window, nil)
	if err != nil {
		return nil, common.NewConfigError("window", cfg.Window, err.Error())
	}

	filterbank, err := NewMelFilterbank(cfg.FFTSize(), cfg.MelCount, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq)
	if err != nil {
		return nil, common.NewConfigError("mel_count", cfg.MelCount, err.Error())
	}

	slicer, err := frames.NewSlicer(cfg.BufferLength, cfg.HopLength)
	if err != nil {
		return nil, err
	}

	t := &SpectralTransform{
		cfg:        cfg,
		analyzer:   analyzer,
		filterbank: filterbank,
		slicer:     slicer,
		logger: logging.WithFields(logging.Fields{
			"component": "spectral_transform",
			"kind":      string(cfg.Kind),
		}),
	}
	if cfg.Kind == config.FeatureMFCC {
		t.dct = NewDCT(cfg.MelCount, cfg.CepstralCount)
	}

	t.logger.Debug("Spectral transform ready", logging.Fields{
		"buffer_length": cfg.BufferLength,
		"hop_length":    cfg.HopLength,
		"fft_size":      cfg.FFTSize(),
		"mel_count":     cfg.MelCount,
		"frame_length":  t.FrameLength(),
	})

	return t, nil
}

// Config returns a copy of the validated configuration
func (t *SpectralTransform) Config() config.FeatureConfig { return t.cfg }

// FrameLength is the number of values per output frame
func (t *SpectralTransform) FrameLength() int { return t.cfg.FrameLength() }

// Analyzer exposes the underlying power-spectrum analyzer
func (t *SpectralTransform) Analyzer() *SpectralAnalyzer { return t.analyzer }

// Filterbank exposes the shared mel filterbank
func (t *SpectralTransform) Filterbank() *MelFilterbank { return t.filterbank }

// Slicer exposes the buffer slicer for the configured buffer and hop
func (t *SpectralTransform) Slicer() *frames.Slicer { return t.slicer }

// Transform computes one feature frame from exactly BufferLength samples
func (t *SpectralTransform) Transform(buf []float64) (frames.Frame, error) {
	if len(buf) != t.cfg.BufferLength {
		return nil, fmt.Errorf("%w: expected %d samples, got %d", common.ErrBufferLength, t.cfg.BufferLength, len(buf))
	}

	power, err := t.analyzer.PowerSpectrum(buf)
	if err != nil {
		return nil, err
	}
	return t.fromPower(power)
}

// Analyze computes the feature frame and the spectral descriptors of buf
// from one FFT
func (t *SpectralTransform) Analyze(buf []float64) (frames.Frame, SpectralDescriptors, error) {
	if len(buf) != t.cfg.BufferLength {
		return nil, SpectralDescriptors{}, fmt.Errorf("%w: expected %d samples, got %d", common.ErrBufferLength, t.cfg.BufferLength, len(buf))
	}

	power, err := t.analyzer.PowerSpectrum(buf)
	if err != nil {
		return nil, SpectralDescriptors{}, err
	}
	frame, err := t.fromPower(power)
	if err != nil {
		return nil, SpectralDescriptors{}, err
	}
	return frame, t.analyzer.Describe(power), nil
}

func (t *SpectralTransform) fromPower(power []float64) (frames.Frame, error) {
	mel, err := t.filterbank.Project(power)
	if err != nil {
		return nil, err
	}

	switch t.cfg.Kind {
	case config.FeatureLogMel:
		return LogCompress(mel), nil
	case config.FeatureMFCC:
		return t.dct.Transform(LogCompress(mel)), nil
	default:
		return mel, nil
	}
}

// TransformAll slices samples with the configured hop and transforms every
// complete buffer. Fewer than BufferLength samples yield no frames.
func (t *SpectralTransform) TransformAll(samples []float64) ([]frames.Frame, error) {
	out := make([]frames.Frame, 0, t.slicer.Count(len(samples)))
	for i, buf := range t.slicer.All(samples) {
		f, err := t.Transform(buf)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}
