package smoothing

import (
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// DefaultLabel is emitted for steps that have no smoothed value yet
const DefaultLabel = 0

// Emission is the result of one Push
type Emission struct {
	// Step is the raw step the label belongs to. Once the smoother is ready
	// it trails the pushed step by Lag().
	Step  int  `json:"step"`
	Label int  `json:"label"`
	Ready bool `json:"ready"`
}

// Smoother is a fixed-size circular majority vote over raw labels. A nil
// label is a warm-up placeholder: it occupies a slot but is never counted.
type Smoother struct {
	size     int
	lag      int
	tieBreak TieBreak

	ring   []*int
	head   int
	pushes int
	counts labelCounts
}

// New creates a smoother over the last size labels. size must be at least 3.
func New(size int, tieBreak TieBreak) (*Smoother, error) {
	if size < 3 {
		return nil, common.NewConfigError("window_size", size, "must be at least 3")
	}
	switch tieBreak {
	case "":
		tieBreak = TieBreakSmallest
	case TieBreakSmallest, TieBreakFirstSeen:
	default:
		return nil, common.NewConfigError("tie_break", tieBreak, "must be smallest or first_seen")
	}

	return &Smoother{
		size:     size,
		lag:      size - 3,
		tieBreak: tieBreak,
		ring:     make([]*int, size),
		counts:   newLabelCounts(tieBreak),
	}, nil
}

func (s *Smoother) Size() int          { return s.size }
func (s *Smoother) Lag() int           { return s.lag }
func (s *Smoother) TieBreak() TieBreak { return s.tieBreak }

// Ready reports whether the ring has received at least Size() pushes
func (s *Smoother) Ready() bool { return s.pushes >= s.size }

// Counted is the number of non-empty slots in the ring
func (s *Smoother) Counted() int { return s.counts.total() }

// Push adds a raw label (nil for no output) and returns the emission for it
func (s *Smoother) Push(label *int) Emission {
	step := s.pushes

	if s.pushes >= s.size {
		if evicted := s.ring[s.head]; evicted != nil {
			s.counts.dec(*evicted)
		}
	}

	var slot *int
	if label != nil {
		v := *label
		slot = &v
		s.counts.inc(v)
	}
	s.ring[s.head] = slot
	s.head = (s.head + 1) % s.size
	s.pushes++

	if !s.Ready() {
		return Emission{Step: step, Label: DefaultLabel}
	}

	mode, ok := s.counts.mode()
	if !ok {
		mode = DefaultLabel
	}
	return Emission{Step: step - s.lag, Label: mode, Ready: true}
}

// Flush returns emissions for the last Lag() steps, which no Push will
// cover. They carry the mode of the final window, so the run in progress
// extends to the end of the input. Nothing is returned before the ring is
// ready. Flush does not modify the ring.
func (s *Smoother) Flush() []Emission {
	if !s.Ready() || s.lag == 0 {
		return nil
	}

	mode, ok := s.counts.mode()
	if !ok {
		mode = DefaultLabel
	}
	out := make([]Emission, s.lag)
	for i := range out {
		out[i] = Emission{Step: s.pushes - s.lag + i, Label: mode, Ready: true}
	}
	return out
}

// Mode returns the current majority label, or false when nothing is counted
func (s *Smoother) Mode() (int, bool) {
	return s.counts.mode()
}

// Reset empties the ring
func (s *Smoother) Reset() {
	clear(s.ring)
	s.head = 0
	s.pushes = 0
	s.counts = newLabelCounts(s.tieBreak)
}

// Smooth runs labels through a fresh smoother and returns one label per
// input step. Warm-up steps keep DefaultLabel and the trailing Lag() steps
// take the mode of the final window.
func Smooth(labels []*int, size int, tieBreak TieBreak) ([]int, error) {
	s, err := New(size, tieBreak)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(labels))
	for _, label := range labels {
		e := s.Push(label)
		out[e.Step] = e.Label
	}
	for _, e := range s.Flush() {
		out[e.Step] = e.Label
	}
	return out, nil
}

// Labels converts plain labels to the pointer form Push and Smooth take
func Labels(values ...int) []*int {
	out := make([]*int, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out
}
