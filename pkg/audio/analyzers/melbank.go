package analyzers

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-sonar/algorithms/spectral"
	"gonum.org/v1/gonum/mat"
)

var melScale = spectral.NewMelScale()

// HzToMel converts Hz to the HTK mel scale
func HzToMel(hz float64) float64 {
	return melScale.HzToMel(hz)
}

// MelToHz is the inverse of HzToMel
func MelToHz(mel float64) float64 {
	return melScale.MelToHz(mel)
}

// MelFilterbank maps a power spectrum of FFTSize/2+1 bins to melCount
// triangular band energies. It is immutable after construction.
type MelFilterbank struct {
	weights    *mat.Dense // (numBins, melCount)
	fftSize    int
	melCount   int
	sampleRate int
}

// NewMelFilterbank builds the (fftSize/2+1, melCount) weight matrix. Band m
// rises from mel edge m to m+1 and falls to m+2; edges are evenly spaced on
// the mel scale between lowHz and highHz and mapped to FFT bins with
// floor((fftSize+1)*hz/sampleRate).
func NewMelFilterbank(fftSize, melCount, sampleRate int, lowHz, highHz float64) (*MelFilterbank, error) {
	if fftSize < 2 || melCount < 1 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid filterbank geometry: fft=%d mels=%d rate=%d", fftSize, melCount, sampleRate)
	}
	if lowHz < 0 || highHz <= lowHz {
		return nil, fmt.Errorf("invalid filterbank range: %g-%g Hz", lowHz, highHz)
	}

	numBins := fftSize/2 + 1
	bins := melEdgeBins(fftSize, melCount, sampleRate, lowHz, highHz)

	weights := mat.NewDense(numBins, melCount, nil)
	for m := 0; m < melCount; m++ {
		left, center, right := bins[m], bins[m+1], bins[m+2]

		if center > left {
			for k := left; k < center; k++ {
				weights.Set(k, m, float64(k-left)/float64(center-left))
			}
		}
		if right > center {
			for k := center; k <= right; k++ {
				weights.Set(k, m, float64(right-k)/float64(right-center))
			}
		} else {
			// collapsed band: keep a unit spike so the column is not empty
			weights.Set(center, m, 1)
		}
	}

	return &MelFilterbank{
		weights:    weights,
		fftSize:    fftSize,
		melCount:   melCount,
		sampleRate: sampleRate,
	}, nil
}

func melEdgeBins(fftSize, melCount, sampleRate int, lowHz, highHz float64) []int {
	lowMel := HzToMel(lowHz)
	highMel := HzToMel(highHz)
	maxBin := fftSize / 2

	bins := make([]int, melCount+2)
	step := (highMel - lowMel) / float64(melCount+1)
	for i := range bins {
		hz := MelToHz(lowMel + float64(i)*step)
		b := int(math.Floor(float64(fftSize+1) * hz / float64(sampleRate)))
		bins[i] = max(0, min(b, maxBin))
	}
	return bins
}

// Dims returns (numBins, melCount)
func (fb *MelFilterbank) Dims() (int, int) {
	return fb.weights.Dims()
}

func (fb *MelFilterbank) MelCount() int { return fb.melCount }

// Weights exposes the weight matrix read-only
func (fb *MelFilterbank) Weights() mat.Matrix {
	return fb.weights
}

// Project returns the mel energies of power, i.e. weightsᵀ·power
func (fb *MelFilterbank) Project(power []float64) ([]float64, error) {
	numBins, _ := fb.weights.Dims()
	if len(power) != numBins {
		return nil, fmt.Errorf("power spectrum has %d bins, filterbank expects %d", len(power), numBins)
	}

	var out mat.VecDense
	out.MulVec(fb.weights.T(), mat.NewVecDense(numBins, power))

	energies := make([]float64, fb.melCount)
	copy(energies, out.RawVector().Data)
	return energies, nil
}
