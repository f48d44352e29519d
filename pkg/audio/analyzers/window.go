package analyzers

import (
	"fmt"
	"sync"

	"github.com/mjibson/go-dsp/window"

	"github.com/RyanBlaney/spectro-stream/pkg/audio/config"
)

// WindowGenerator builds and caches analysis window coefficients
type WindowGenerator struct {
	mu    sync.RWMutex
	cache map[windowKey][]float64
}

type windowKey struct {
	fn     config.WindowFunction
	length int
}

// NewWindowGenerator creates an empty generator
func NewWindowGenerator() *WindowGenerator {
	return &WindowGenerator{cache: make(map[windowKey][]float64)}
}

// Generate returns the coefficients for an n-point window. The returned
// slice is shared and must not be modified.
func (wg *WindowGenerator) Generate(fn config.WindowFunction, n int) ([]float64, error) {
	key := windowKey{fn: fn, length: n}

	wg.mu.RLock()
	coeffs, ok := wg.cache[key]
	wg.mu.RUnlock()
	if ok {
		return coeffs, nil
	}

	build, err := windowFunc(fn)
	if err != nil {
		return nil, err
	}
	if n <= 1 {
		coeffs = []float64{1}
	} else {
		coeffs = build(n)
	}

	wg.mu.Lock()
	wg.cache[key] = coeffs
	wg.mu.Unlock()

	return coeffs, nil
}

// Apply multiplies x in place by the window
func (wg *WindowGenerator) Apply(fn config.WindowFunction, x []float64) error {
	build, err := windowFunc(fn)
	if err != nil {
		return err
	}
	window.Apply(x, build)
	return nil
}

func windowFunc(fn config.WindowFunction) (func(int) []float64, error) {
	switch fn {
	case config.WindowHann:
		return window.Hann, nil
	case config.WindowHamming:
		return window.Hamming, nil
	case config.WindowBlackman:
		return window.Blackman, nil
	case config.WindowRectangular:
		return window.Rectangular, nil
	default:
		return nil, fmt.Errorf("unsupported window function: %q", fn)
	}
}
