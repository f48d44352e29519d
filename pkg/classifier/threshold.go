package classifier

import (
	"context"
	"fmt"
	"slices"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/window"
)

// ThresholdConfig maps the mean value of the newest frames to a label:
// the label is the number of thresholds the mean reaches
type ThresholdConfig struct {
	Thresholds []float64 `mapstructure:"thresholds" json:"thresholds" yaml:"thresholds"`
	// Frames is how many of the newest frames are averaged (0 = all)
	Frames int `mapstructure:"frames" json:"frames" yaml:"frames"`
}

// Threshold is a model-free classifier over frame energy
type Threshold struct {
	cfg       ThresholdConfig
	normalize NormalizeConfig
	labels    []string
}

// NewThreshold validates cfg. Thresholds must be strictly ascending.
func NewThreshold(cfg ThresholdConfig, normalize NormalizeConfig, labels []string) (*Threshold, error) {
	if len(cfg.Thresholds) == 0 {
		return nil, common.NewConfigError("threshold.thresholds", cfg.Thresholds, "at least one threshold is required")
	}
	for i := 1; i < len(cfg.Thresholds); i++ {
		if cfg.Thresholds[i] <= cfg.Thresholds[i-1] {
			return nil, common.NewConfigError("threshold.thresholds", cfg.Thresholds, "must be strictly ascending")
		}
	}
	if cfg.Frames < 0 {
		return nil, common.NewConfigError("threshold.frames", cfg.Frames, "must not be negative")
	}
	if err := normalize.Validate(); err != nil {
		return nil, err
	}
	if len(labels) > 0 && len(labels) != len(cfg.Thresholds)+1 {
		return nil, common.NewConfigError("labels", labels,
			fmt.Sprintf("need %d names for %d thresholds", len(cfg.Thresholds)+1, len(cfg.Thresholds)))
	}

	return &Threshold{
		cfg:       ThresholdConfig{Thresholds: slices.Clone(cfg.Thresholds), Frames: cfg.Frames},
		normalize: normalize,
		labels:    labels,
	}, nil
}

func (t *Threshold) Labels() []string { return t.labels }

// Classify averages the newest available frames. Zero padding frames are
// not included.
func (t *Threshold) Classify(ctx context.Context, batch *window.Batch) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if batch == nil || batch.Available == 0 {
		return NewPrediction(OneHot(0, len(t.cfg.Thresholds)+1)), nil
	}

	data := t.normalize.Apply(batch.Data)

	n := batch.Available
	if t.cfg.Frames > 0 {
		n = min(n, t.cfg.Frames)
	}
	start := (batch.NumFrames - n) * batch.FrameLength

	sum := 0.0
	for _, v := range data[start:] {
		sum += v
	}
	mean := sum / float64(len(data)-start)

	label := 0
	for _, th := range t.cfg.Thresholds {
		if mean >= th {
			label++
		}
	}
	return NewPrediction(OneHot(label, len(t.cfg.Thresholds)+1)), nil
}

func (t *Threshold) Close() error { return nil }
