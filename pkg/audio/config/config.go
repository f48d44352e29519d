package config

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// FeatureKind selects what a feature frame holds. It is resolved once when
// the transform is built.
type FeatureKind string

const (
	FeatureMel    FeatureKind = "mel"     // linear mel energies
	FeatureLogMel FeatureKind = "log_mel" // log10 mel energies
	FeatureMFCC   FeatureKind = "mfcc"    // cepstral coefficients
)

// WindowFunction is the analysis window applied before the FFT
type WindowFunction string

const (
	WindowHann        WindowFunction = "hann"
	WindowHamming     WindowFunction = "hamming"
	WindowBlackman    WindowFunction = "blackman"
	WindowRectangular WindowFunction = "rectangular"
)

// FeatureConfig holds the spectral front-end parameters. Every field must be
// set; there are no silent defaults.
type FeatureConfig struct {
	SampleRate   int `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`
	BufferLength int `json:"buffer_length" yaml:"buffer_length" mapstructure:"buffer_length"`
	HopLength    int `json:"hop_length" yaml:"hop_length" mapstructure:"hop_length"`

	MelCount      int `json:"mel_count" yaml:"mel_count" mapstructure:"mel_count"`
	CepstralCount int `json:"cepstral_count" yaml:"cepstral_count" mapstructure:"cepstral_count"` // mfcc only

	Kind   FeatureKind    `json:"kind" yaml:"kind" mapstructure:"kind"`
	Window WindowFunction `json:"window" yaml:"window" mapstructure:"window"`

	// Filterbank edges in Hz
	LowFreq  float64 `json:"low_freq" yaml:"low_freq" mapstructure:"low_freq"`
	HighFreq float64 `json:"high_freq" yaml:"high_freq" mapstructure:"high_freq"`
}

// FFTSize is the smallest power of two that holds BufferLength samples
func (c *FeatureConfig) FFTSize() int {
	return NextPowerOfTwo(c.BufferLength)
}

// NumFFTBins is the number of non-negative frequency bins, FFTSize/2 + 1
func (c *FeatureConfig) NumFFTBins() int {
	return c.FFTSize()/2 + 1
}

// FrameLength is the number of values in one feature frame
func (c *FeatureConfig) FrameLength() int {
	if c.Kind == FeatureMFCC {
		return c.CepstralCount
	}
	return c.MelCount
}

// Validate checks the configuration and returns a *common.ConfigError
func (c *FeatureConfig) Validate() error {
	if c.SampleRate <= 0 {
		return common.NewConfigError("sample_rate", c.SampleRate, "must be positive")
	}
	if c.BufferLength <= 0 {
		return common.NewConfigError("buffer_length", c.BufferLength, "must be positive")
	}
	if c.HopLength <= 0 {
		return common.NewConfigError("hop_length", c.HopLength, "must be positive")
	}
	if c.HopLength > c.BufferLength {
		return common.NewConfigError("hop_length", c.HopLength,
			fmt.Sprintf("must not exceed buffer_length (%d)", c.BufferLength))
	}
	if c.MelCount <= 0 {
		return common.NewConfigError("mel_count", c.MelCount, "must be positive")
	}

	switch c.Kind {
	case FeatureMel, FeatureLogMel:
	case FeatureMFCC:
		if c.CepstralCount < 1 || c.CepstralCount > c.MelCount {
			return common.NewConfigError("cepstral_count", c.CepstralCount,
				fmt.Sprintf("must be in [1, mel_count=%d] for mfcc", c.MelCount))
		}
	default:
		return common.NewConfigError("kind", c.Kind, "must be one of mel, log_mel, mfcc")
	}

	switch c.Window {
	case WindowHann, WindowHamming, WindowBlackman, WindowRectangular:
	default:
		return common.NewConfigError("window", c.Window,
			"must be one of hann, hamming, blackman, rectangular")
	}

	nyquist := float64(c.SampleRate) / 2
	if c.LowFreq < 0 || c.LowFreq >= c.HighFreq {
		return common.NewConfigError("low_freq", c.LowFreq,
			fmt.Sprintf("must satisfy 0 <= low_freq < high_freq (%g)", c.HighFreq))
	}
	if c.HighFreq > nyquist {
		return common.NewConfigError("high_freq", c.HighFreq,
			fmt.Sprintf("must not exceed the Nyquist frequency (%g)", nyquist))
	}

	return nil
}

// ParseFeatureKind normalizes a kind name
func ParseFeatureKind(s string) (FeatureKind, error) {
	switch k := FeatureKind(strings.ToLower(strings.TrimSpace(s))); k {
	case FeatureMel, FeatureLogMel, FeatureMFCC:
		return k, nil
	case "logmel":
		return FeatureLogMel, nil
	default:
		return "", common.NewConfigError("kind", s, "must be one of mel, log_mel, mfcc")
	}
}

// NextPowerOfTwo returns the smallest power of two >= n (1 for n <= 1)
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
