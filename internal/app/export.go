package app

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/smoothing"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/wav"
)

// exportSegments writes the samples of each segment to its own WAV file in
// dir and returns the paths in segment order. Segment bounds past the end of
// samples are clipped; empty clips are skipped.
func exportSegments(dir, uri string, samples []float64, sampleRate int, segments []smoothing.Segment) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	base := clipBase(uri)
	var paths []string
	for i, seg := range segments {
		start := min(len(samples), int(math.Round(seg.Start*float64(sampleRate))))
		end := min(len(samples), int(math.Round(seg.End*float64(sampleRate))))
		if end <= start {
			continue
		}

		name := seg.Name
		if name == "" {
			name = fmt.Sprintf("label_%d", seg.Label)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%03d_%s.wav", base, i, name))
		if err := wav.WriteFile(path, samples[start:end], sampleRate); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// clipBase is the file stem of uri with anything unsafe in a file name
// replaced
func clipBase(uri string) string {
	base := filepath.Base(uri)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "_" {
		return "segment"
	}
	return base
}
