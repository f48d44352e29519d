package wav

import (
	"fmt"
	"os"

	gowav "github.com/youpy/go-wav"
)

// WriteFile writes mono samples in [-1, 1] as a 16-bit PCM WAV file.
// Values outside the range are clipped.
func WriteFile(path string, samples []float64, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	out := make([]gowav.Sample, len(samples))
	for i, v := range samples {
		v = max(-1, min(1, v))
		out[i] = gowav.Sample{Values: [2]int{int(v * 32767), 0}}
	}

	writer := gowav.NewWriter(f, uint32(len(out)), 1, uint32(sampleRate), 16)
	if err := writer.WriteSamples(out); err != nil {
		return fmt.Errorf("failed to write samples to %s: %w", path, err)
	}
	return nil
}
