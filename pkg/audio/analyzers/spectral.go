package analyzers

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/RyanBlaney/sonido-sonar/algorithms/spectral"
	"github.com/mjibson/go-dsp/fft"

	"github.com/RyanBlaney/spectro-stream/pkg/audio/config"
	"github.com/RyanBlaney/spectro-stream/pkg/logging"
)

// SpectralAnalyzer computes windowed, zero-padded power spectra for
// fixed-length sample buffers
type SpectralAnalyzer struct {
	sampleRate   int
	bufferLength int
	fftSize      int
	window       []float64
	centroid     *spectral.SpectralCentroid
	rolloff      *spectral.SpectralRolloff
	flatness     *spectral.SpectralFlatness
	logger       logging.Logger
}

const (
	rolloffThreshold = 0.85
	flatnessFloor    = 1e-10
)

// SpectralDescriptors summarizes one power spectrum
type SpectralDescriptors struct {
	SpectralCentroid float64 `json:"spectral_centroid" yaml:"spectral_centroid"`
	SpectralRolloff  float64 `json:"spectral_rolloff" yaml:"spectral_rolloff"`
	SpectralFlatness float64 `json:"spectral_flatness" yaml:"spectral_flatness"`
	Energy           float64 `json:"energy" yaml:"energy"`
}

// NewSpectralAnalyzer creates an analyzer for bufferLength-sample inputs.
// Inputs are zero-padded to the next power of two.
func NewSpectralAnalyzer(sampleRate, bufferLength int, fn config.WindowFunction, wg *WindowGenerator) (*SpectralAnalyzer, error) {
	if wg == nil {
		wg = NewWindowGenerator()
	}
	coeffs, err := wg.Generate(fn, bufferLength)
	if err != nil {
		return nil, err
	}

	fftSize := config.NextPowerOfTwo(bufferLength)
	return &SpectralAnalyzer{
		sampleRate:   sampleRate,
		bufferLength: bufferLength,
		fftSize:      fftSize,
		window:       coeffs,
		centroid:     spectral.NewSpectralCentroid(sampleRate),
		rolloff:      spectral.NewSpectralRolloff(sampleRate),
		flatness:     spectral.NewSpectralFlatnessWithThreshold(flatnessFloor),
		logger: logging.WithFields(logging.Fields{
			"component":   "spectral_analyzer",
			"sample_rate": sampleRate,
			"fft_size":    fftSize,
		}),
	}, nil
}

// FFTSize returns the padded transform length
func (sa *SpectralAnalyzer) FFTSize() int { return sa.fftSize }

// NumBins returns FFTSize/2 + 1
func (sa *SpectralAnalyzer) NumBins() int { return sa.fftSize/2 + 1 }

// FFT windows and zero-pads buf, then computes the full complex spectrum
// using mjibson/go-dsp
func (sa *SpectralAnalyzer) FFT(buf []float64) ([]complex128, error) {
	if len(buf) != sa.bufferLength {
		return nil, fmt.Errorf("expected %d samples, got %d", sa.bufferLength, len(buf))
	}

	padded := make([]float64, sa.fftSize)
	for i, s := range buf {
		padded[i] = s * sa.window[i]
	}

	return fft.FFTReal(padded), nil
}

// PowerSpectrum returns |X[k]|^2 for k in [0, FFTSize/2]
func (sa *SpectralAnalyzer) PowerSpectrum(buf []float64) ([]float64, error) {
	spectrum, err := sa.FFT(buf)
	if err != nil {
		return nil, err
	}

	power := make([]float64, sa.NumBins())
	for k := range power {
		mag := cmplx.Abs(spectrum[k])
		power[k] = mag * mag
	}
	return power, nil
}

// FrequencyBins returns the center frequency in Hz of each power bin
func (sa *SpectralAnalyzer) FrequencyBins() []float64 {
	freqs := make([]float64, sa.NumBins())
	for i := range freqs {
		freqs[i] = float64(i) * float64(sa.sampleRate) / float64(sa.fftSize)
	}
	return freqs
}

// Describe computes summary descriptors of a power spectrum. Centroid,
// rolloff and flatness come from sonido-sonar's spectral package; rolloff is
// fed magnitudes so that its cumulative sum runs over power.
func (sa *SpectralAnalyzer) Describe(power []float64) SpectralDescriptors {
	if len(power) == 0 || len(power) != sa.NumBins() {
		return SpectralDescriptors{}
	}

	magnitude := make([]float64, len(power))
	for i, p := range power {
		magnitude[i] = math.Sqrt(p)
	}

	return SpectralDescriptors{
		SpectralCentroid: sa.centroid.Compute(power),
		SpectralRolloff:  sa.rolloff.Compute(magnitude, rolloffThreshold),
		SpectralFlatness: spectralFlatness(sa.flatness, power),
		Energy:           energy(power),
	}
}

// spectralFlatness is the geometric over the arithmetic mean (Wiener entropy)
// of the bins above flatnessFloor. Both means run over the same bins.
func spectralFlatness(sf *spectral.SpectralFlatness, power []float64) float64 {
	active := make([]float64, 0, len(power))
	for _, p := range power {
		if p > flatnessFloor {
			active = append(active, p)
		}
	}
	return sf.Compute(active)
}

func energy(power []float64) float64 {
	sum := 0.0
	for _, p := range power {
		sum += p
	}
	return sum
}
