package window

import "math"

// Tracker decides on which frames a batch is emitted, given a firing period
// and a suppression cooldown, both counted in frames.
type Tracker struct {
	period            int
	suppressionWindow int
	counter           int
	onset             *int
}

// NewTracker creates a tracker. period is clamped to at least 1 and a
// negative suppression window is treated as 0.
func NewTracker(period, suppressionWindow int) *Tracker {
	return &Tracker{
		period:            max(1, period),
		suppressionWindow: max(0, suppressionWindow),
	}
}

// Period returns max(1, round(numFrames * (1 - overlap)))
func Period(numFrames int, overlap float64) int {
	return max(1, int(math.Round(float64(numFrames)*(1-overlap))))
}

// SuppressionFrames converts a cooldown in milliseconds to whole frames
func SuppressionFrames(suppressionMillis, frameDurationMillis float64) int {
	if frameDurationMillis <= 0 || suppressionMillis <= 0 {
		return 0
	}
	return int(math.Round(suppressionMillis / frameDurationMillis))
}

// Tick advances the counter by one frame and reports whether this frame fires
func (t *Tracker) Tick() bool {
	t.counter++
	if t.counter%t.period != 0 {
		return false
	}
	return t.onset == nil || t.counter-*t.onset > t.suppressionWindow
}

// Suppress starts a cooldown at the current counter
func (t *Tracker) Suppress() {
	onset := t.counter
	t.onset = &onset
}

// Suppressed reports whether the tracker is inside a cooldown
func (t *Tracker) Suppressed() bool {
	return t.onset != nil && t.counter-*t.onset <= t.suppressionWindow
}

func (t *Tracker) Counter() int           { return t.counter }
func (t *Tracker) Period() int            { return t.period }
func (t *Tracker) SuppressionWindow() int { return t.suppressionWindow }

// Onset returns the counter of the last suppression, if any
func (t *Tracker) Onset() (int, bool) {
	if t.onset == nil {
		return 0, false
	}
	return *t.onset, true
}

// Reset clears the counter and any cooldown
func (t *Tracker) Reset() {
	t.counter = 0
	t.onset = nil
}
