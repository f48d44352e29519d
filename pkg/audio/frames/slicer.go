package frames

import (
	"iter"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// Count returns how many complete buffers of bufferLength samples, spaced
// hopLength apart, fit into n samples. Partial trailing buffers are dropped.
func Count(n, bufferLength, hopLength int) int {
	if bufferLength <= 0 || hopLength <= 0 || n < bufferLength {
		return 0
	}
	return (n-bufferLength)/hopLength + 1
}

// Slicer cuts a sample sequence into overlapping fixed-length buffers
type Slicer struct {
	bufferLength int
	hopLength    int
}

// NewSlicer validates the buffer and hop lengths
func NewSlicer(bufferLength, hopLength int) (*Slicer, error) {
	if bufferLength <= 0 {
		return nil, common.NewConfigError("buffer_length", bufferLength, "must be positive")
	}
	if hopLength <= 0 {
		return nil, common.NewConfigError("hop_length", hopLength, "must be positive")
	}
	if hopLength > bufferLength {
		return nil, common.NewConfigError("hop_length", hopLength, "hop length must be smaller than buffer length")
	}
	return &Slicer{bufferLength: bufferLength, hopLength: hopLength}, nil
}

func (s *Slicer) BufferLength() int { return s.bufferLength }
func (s *Slicer) HopLength() int    { return s.hopLength }

// Count is Count(n, s.BufferLength(), s.HopLength())
func (s *Slicer) Count(n int) int {
	return Count(n, s.bufferLength, s.hopLength)
}

// Slice returns every complete buffer. Each buffer is an independent copy.
func (s *Slicer) Slice(samples []float64) [][]float64 {
	out := make([][]float64, 0, s.Count(len(samples)))
	for _, buf := range s.All(samples) {
		out = append(out, buf)
	}
	return out
}

// All yields (index, buffer) pairs lazily. Buffers are copies.
func (s *Slicer) All(samples []float64) iter.Seq2[int, []float64] {
	return func(yield func(int, []float64) bool) {
		n := s.Count(len(samples))
		for i := 0; i < n; i++ {
			start := i * s.hopLength
			buf := make([]float64, s.bufferLength)
			copy(buf, samples[start:start+s.bufferLength])
			if !yield(i, buf) {
				return
			}
		}
	}
}

// Slice is a convenience for NewSlicer(bufferLength, hopLength).Slice(samples)
func Slice(samples []float64, bufferLength, hopLength int) ([][]float64, error) {
	s, err := NewSlicer(bufferLength, hopLength)
	if err != nil {
		return nil, err
	}
	return s.Slice(samples), nil
}
