package classifier

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/window"
)

// Classifier turns one emitted batch into a prediction
type Classifier interface {
	Classify(ctx context.Context, batch *window.Batch) (Prediction, error)
	// Labels names each output index; it may be empty
	Labels() []string
	Close() error
}

// Prediction is a label index with its probability vector
type Prediction struct {
	Label         int       `json:"label" yaml:"label"`
	Probability   float64   `json:"probability" yaml:"probability"`
	Probabilities []float64 `json:"probabilities,omitempty" yaml:"probabilities,omitempty"`
}

// NewPrediction picks the most probable label from probs
func NewPrediction(probs []float64) Prediction {
	label, p := ArgMax(probs)
	return Prediction{Label: label, Probability: p, Probabilities: probs}
}

// ArgMax returns the index and value of the largest element. Ties resolve
// to the lowest index; an empty slice yields (0, 0).
func ArgMax(values []float64) (int, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best, values[best]
}

// Softmax converts logits to probabilities
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	_, maxLogit := ArgMax(logits)

	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// OneHot returns a probability vector with all mass on label
func OneHot(label, n int) []float64 {
	out := make([]float64, n)
	if label >= 0 && label < n {
		out[label] = 1
	}
	return out
}

// Kind names a classifier implementation
type Kind string

const (
	KindThreshold Kind = "threshold"
	KindONNX      Kind = "onnx"
)

// Config selects and configures a classifier
type Config struct {
	Kind   Kind     `mapstructure:"kind" json:"kind" yaml:"kind"`
	Labels []string `mapstructure:"labels" json:"labels" yaml:"labels"`

	Normalize NormalizeConfig `mapstructure:"normalize" json:"normalize" yaml:"normalize"`
	Threshold ThresholdConfig `mapstructure:"threshold" json:"threshold" yaml:"threshold"`
	ONNX      ONNXConfig      `mapstructure:"onnx" json:"onnx" yaml:"onnx"`
}

// Validate checks the selected classifier's settings without loading a
// model
func (c Config) Validate() error {
	switch c.Kind {
	case KindThreshold, "":
		_, err := NewThreshold(c.Threshold, c.Normalize, c.Labels)
		return err
	case KindONNX:
		if err := c.ONNX.Validate(); err != nil {
			return err
		}
		return c.Normalize.Validate()
	default:
		return fmt.Errorf("unknown classifier kind %q", c.Kind)
	}
}

// New builds the classifier described by cfg for batches of numFrames x
// frameLength values
func New(cfg Config, numFrames, frameLength int) (Classifier, error) {
	switch cfg.Kind {
	case KindThreshold, "":
		c, err := NewThreshold(cfg.Threshold, cfg.Normalize, cfg.Labels)
		if err != nil {
			return nil, err
		}
		return c, nil
	case KindONNX:
		c, err := NewONNX(cfg.ONNX, cfg.Normalize, cfg.Labels, numFrames, frameLength)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", cfg.Kind)
	}
}
