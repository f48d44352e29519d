package frames

import "math"

// Frame is one feature vector, melCount or cepstralCount values long
type Frame []float64

// IsSilent reports whether f is the silence sentinel: empty, or starting
// with -Inf. Silent frames carry no information and are never queued.
func (f Frame) IsSilent() bool {
	return len(f) == 0 || math.IsInf(f[0], -1)
}

// Clone returns an independent copy of f
func (f Frame) Clone() Frame {
	if f == nil {
		return nil
	}
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// Silent returns a sentinel frame of length n
func Silent(n int) Frame {
	if n <= 0 {
		return Frame{}
	}
	f := make(Frame, n)
	f[0] = math.Inf(-1)
	return f
}

// Flatten concatenates frames oldest-first into a numFrames*frameLength
// vector. When fewer than numFrames are available the missing frames are
// zeros placed before the available ones, so the newest frame always ends
// the vector.
func Flatten(fs []Frame, numFrames, frameLength int) []float64 {
	out := make([]float64, numFrames*frameLength)
	if len(fs) > numFrames {
		fs = fs[len(fs)-numFrames:]
	}

	offset := (numFrames - len(fs)) * frameLength
	for i, f := range fs {
		copy(out[offset+i*frameLength:offset+(i+1)*frameLength], f)
	}
	return out
}
