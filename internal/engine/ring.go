package engine

import "sync"

// sampleRing keeps the newest samples written by a source reader
type sampleRing struct {
	mu      sync.Mutex
	buf     []float64
	head    int
	written int64
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{buf: make([]float64, capacity)}
}

func (r *sampleRing) Write(samples []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(samples) > len(r.buf) {
		r.written += int64(len(samples) - len(r.buf))
		samples = samples[len(samples)-len(r.buf):]
	}
	for _, s := range samples {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
	}
	r.written += int64(len(samples))
}

// Latest copies the newest n samples in order, or reports false until n
// samples have been written
func (r *sampleRing) Latest(n int) ([]float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > len(r.buf) || r.written < int64(n) {
		return nil, false
	}
	out := make([]float64, n)
	start := (r.head - n + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out, true
}

// Written is the total number of samples written
func (r *sampleRing) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}
