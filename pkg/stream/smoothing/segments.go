package smoothing

import (
	"fmt"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// Segment is a run of equal smoothed labels
type Segment struct {
	Label     int     `json:"label" yaml:"label"`
	Name      string  `json:"name,omitempty" yaml:"name,omitempty"`
	StartStep int     `json:"start_step" yaml:"start_step"`
	EndStep   int     `json:"end_step" yaml:"end_step"` // exclusive
	Start     float64 `json:"start" yaml:"start"`       // seconds
	End       float64 `json:"end" yaml:"end"`           // seconds
}

// Steps is the number of steps in the segment
func (s Segment) Steps() int { return s.EndStep - s.StartStep }

// Segmenter converts step indices to time and closes segments on label changes
type Segmenter struct {
	stepSeconds float64
	names       []string

	open     *Segment
	nextStep int
}

// NewSegmenter creates a segmenter where one step is stepSizeSamples at
// sampleRate. names, when given, label segments by index.
func NewSegmenter(stepSizeSamples, sampleRate int, names []string) (*Segmenter, error) {
	if stepSizeSamples <= 0 {
		return nil, common.NewConfigError("step_size_samples", stepSizeSamples, "must be positive")
	}
	if sampleRate <= 0 {
		return nil, common.NewConfigError("sample_rate", sampleRate, "must be positive")
	}
	return &Segmenter{
		stepSeconds: float64(stepSizeSamples) / float64(sampleRate),
		names:       names,
	}, nil
}

// StepSeconds is the duration of one step
func (sg *Segmenter) StepSeconds() float64 { return sg.stepSeconds }

// Name returns the configured name for label. Labels outside the table are
// named label_N; without a table every name is empty.
func (sg *Segmenter) Name(label int) string {
	if label >= 0 && label < len(sg.names) {
		return sg.names[label]
	}
	if len(sg.names) == 0 {
		return ""
	}
	return fmt.Sprintf("label_%d", label)
}

// Push appends the label for the next step and returns the segment it
// closed, if any
func (sg *Segmenter) Push(label int) (Segment, bool) {
	step := sg.nextStep
	sg.nextStep++

	if sg.open != nil && sg.open.Label == label {
		sg.extend(step + 1)
		return Segment{}, false
	}

	var closed Segment
	hadOpen := sg.open != nil
	if hadOpen {
		closed = *sg.open
	}

	sg.open = &Segment{
		Label:     label,
		Name:      sg.Name(label),
		StartStep: step,
		Start:     float64(step) * sg.stepSeconds,
	}
	sg.extend(step + 1)
	return closed, hadOpen
}

// Flush closes and returns the open segment
func (sg *Segmenter) Flush() (Segment, bool) {
	if sg.open == nil {
		return Segment{}, false
	}
	s := *sg.open
	sg.open = nil
	return s, true
}

func (sg *Segmenter) extend(endStep int) {
	sg.open.EndStep = endStep
	sg.open.End = float64(endStep) * sg.stepSeconds
}

// Segments walks smoothed labels once and returns every segment
func (sg *Segmenter) Segments(labels []int) []Segment {
	var out []Segment
	for _, label := range labels {
		if s, ok := sg.Push(label); ok {
			out = append(out, s)
		}
	}
	if s, ok := sg.Flush(); ok {
		out = append(out, s)
	}
	return out
}

// Segments is a one-shot helper over a fresh Segmenter
func Segments(labels []int, stepSizeSamples, sampleRate int, names []string) ([]Segment, error) {
	sg, err := NewSegmenter(stepSizeSamples, sampleRate, names)
	if err != nil {
		return nil, err
	}
	return sg.Segments(labels), nil
}
