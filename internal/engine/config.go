package engine

import (
	"math"
	"time"

	"github.com/RyanBlaney/spectro-stream/pkg/audio/config"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/smoothing"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/window"
)

// SmoothingConfig configures the majority-vote smoother
type SmoothingConfig struct {
	WindowSize int                `mapstructure:"window_size" json:"window_size" yaml:"window_size"`
	TieBreak   smoothing.TieBreak `mapstructure:"tie_break" json:"tie_break" yaml:"tie_break"`
}

// SuppressionConfig decides which predictions start a suppression window
type SuppressionConfig struct {
	// Labels that suppress further batches once recognized
	Labels []int `mapstructure:"labels" json:"labels" yaml:"labels"`
	// MinProbability is the probability a listed label must reach
	MinProbability float64 `mapstructure:"min_probability" json:"min_probability" yaml:"min_probability"`
}

// Matches reports whether label with probability p triggers suppression
func (c SuppressionConfig) Matches(label int, p float64) bool {
	if p < c.MinProbability {
		return false
	}
	for _, l := range c.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Config is the full pipeline configuration. Zero-valued derived fields
// are filled in from the feature configuration.
type Config struct {
	Features    config.FeatureConfig `mapstructure:"features" json:"features" yaml:"features"`
	Window      window.Config        `mapstructure:"window" json:"window" yaml:"window"`
	Smoothing   SmoothingConfig      `mapstructure:"smoothing" json:"smoothing" yaml:"smoothing"`
	Suppression SuppressionConfig    `mapstructure:"suppression" json:"suppression" yaml:"suppression"`

	// StepSizeSamples is the source span of one classifier step. Zero
	// means window period x frame advance.
	StepSizeSamples int `mapstructure:"step_size_samples" json:"step_size_samples" yaml:"step_size_samples"`
	// TickInterval is the live frame rate. Zero means FFTSize/SampleRate.
	TickInterval time.Duration `mapstructure:"tick_interval" json:"tick_interval" yaml:"tick_interval"`
}

// Validate checks the parts that do not depend on derived values
func (c *Config) Validate() error {
	if err := c.Features.Validate(); err != nil {
		return err
	}
	if c.Smoothing.WindowSize < 3 {
		return common.NewConfigError("smoothing.window_size", c.Smoothing.WindowSize, "must be at least 3")
	}
	if p := c.Suppression.MinProbability; p < 0 || p > 1 {
		return common.NewConfigError("suppression.min_probability", p, "must be in [0, 1]")
	}
	if c.StepSizeSamples < 0 {
		return common.NewConfigError("step_size_samples", c.StepSizeSamples, "must not be negative")
	}
	if c.TickInterval < 0 {
		return common.NewConfigError("tick_interval", c.TickInterval, "must not be negative")
	}
	return nil
}

// tickInterval is the live frame interval
func (c *Config) tickInterval() time.Duration {
	if c.TickInterval > 0 {
		return c.TickInterval
	}
	return time.Duration(float64(c.Features.FFTSize()) / float64(c.Features.SampleRate) * float64(time.Second))
}

// frameAdvance is the number of source samples between consecutive frames
func (c *Config) frameAdvance(live bool) int {
	if !live {
		return c.Features.HopLength
	}
	return max(1, int(math.Round(c.tickInterval().Seconds()*float64(c.Features.SampleRate))))
}

// Resolve fills the derived values for a run and validates the window.
// live selects the tick-driven frame advance instead of the hop length.
func (c Config) Resolve(frameLength int, live bool) (Config, error) {
	w := &c.Window
	if w.FrameLength == 0 {
		w.FrameLength = frameLength
	}
	if w.FrameLength != frameLength {
		return c, common.NewConfigError("window.frame_length", w.FrameLength, "does not match the feature frame length")
	}
	if w.FrameDurationMillis == 0 {
		w.FrameDurationMillis = float64(c.frameAdvance(live)) / float64(c.Features.SampleRate) * 1000
	}
	if w.IncludeRawAudio && w.RawFrameLength == 0 {
		w.RawFrameLength = c.Features.BufferLength
	}
	if w.IncludeRawAudio && w.RawFrameLength > c.Features.BufferLength {
		return c, common.NewConfigError("window.raw_frame_length", w.RawFrameLength, "must not exceed the buffer length")
	}
	if w.Mode == "" {
		w.Mode = window.ModeAwait
	}
	if err := w.Validate(); err != nil {
		return c, err
	}
	if c.StepSizeSamples == 0 {
		c.StepSizeSamples = w.Period() * c.frameAdvance(live)
	}
	return c, nil
}
