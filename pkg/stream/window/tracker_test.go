package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeriod(t *testing.T) {
	tests := []struct {
		name      string
		numFrames int
		overlap   float64
		want      int
	}{
		{"near-total overlap", 3, 0.999, 1},
		{"no overlap", 43, 0, 43},
		{"half overlap", 10, 0.5, 5},
		{"rounds", 43, 0.25, 32},
		{"clamped", 1, 0.9, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Period(tt.numFrames, tt.overlap))
		})
	}
}

func TestSuppressionFrames(t *testing.T) {
	assert.Equal(t, 22, SuppressionFrames(500, 23.2))
	assert.Equal(t, 22, SuppressionFrames(500, 1024.0/44100*1e3))
	assert.Equal(t, 0, SuppressionFrames(0, 23.2))
	assert.Equal(t, 0, SuppressionFrames(500, 0))
}

func TestTrackerFiresEveryFrame(t *testing.T) {
	tr := NewTracker(1, 0)
	for i := 1; i <= 50; i++ {
		assert.True(t, tr.Tick(), "frame %d", i)
	}
	assert.Equal(t, 50, tr.Counter())
}

func TestTrackerPeriod(t *testing.T) {
	tr := NewTracker(4, 0)
	var fired []int
	for i := 1; i <= 12; i++ {
		if tr.Tick() {
			fired = append(fired, tr.Counter())
		}
	}
	assert.Equal(t, []int{4, 8, 12}, fired)
}

func TestTrackerSuppression(t *testing.T) {
	const window = 22
	tr := NewTracker(1, window)

	for i := 0; i < 10; i++ {
		tr.Tick()
	}
	tr.Suppress()
	onset, ok := tr.Onset()
	assert.True(t, ok)
	assert.Equal(t, 10, onset)
	assert.True(t, tr.Suppressed())

	for c := 11; c <= onset+window; c++ {
		assert.False(t, tr.Tick(), "counter %d fired inside cooldown", c)
	}
	assert.True(t, tr.Tick(), "first frame after cooldown must fire")
	assert.Equal(t, onset+window+1, tr.Counter())
	assert.False(t, tr.Suppressed())
}

func TestTrackerZeroSuppressionWindow(t *testing.T) {
	tr := NewTracker(1, 0)
	tr.Tick()
	tr.Suppress()
	assert.True(t, tr.Tick())
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker(2, 5)
	tr.Tick()
	tr.Tick()
	tr.Suppress()
	tr.Reset()

	assert.Equal(t, 0, tr.Counter())
	_, ok := tr.Onset()
	assert.False(t, ok)
	assert.Equal(t, 2, tr.Period())
	assert.Equal(t, 5, tr.SuppressionWindow())
}
