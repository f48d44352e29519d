package classifier

import (
	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// NormalizeConfig standardizes batch values before classification
type NormalizeConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	// Auto uses each batch's own mean and standard deviation instead of
	// the fixed Mean and Std
	Auto bool    `mapstructure:"auto" json:"auto" yaml:"auto"`
	Mean float64 `mapstructure:"mean" json:"mean" yaml:"mean"`
	Std  float64 `mapstructure:"std" json:"std" yaml:"std"`
}

// DefaultNormalizeConfig matches decibel-scaled spectra: mean -100, std 10
func DefaultNormalizeConfig() NormalizeConfig {
	return NormalizeConfig{Mean: -100, Std: 10}
}

// Validate rejects a non-positive fixed std
func (c NormalizeConfig) Validate() error {
	if c.Enabled && !c.Auto && c.Std <= 0 {
		return common.NewConfigError("normalize.std", c.Std, "must be positive")
	}
	return nil
}

// Apply returns (x - mean) / std for every value. Disabled configs return
// data unchanged.
func (c NormalizeConfig) Apply(data []float64) []float64 {
	if !c.Enabled {
		return data
	}

	mean, std := c.Mean, c.Std
	if c.Auto {
		mean, std = stat.MeanStdDev(data, nil)
	}

	out := make([]float64, len(data))
	if std == 0 {
		for i, x := range data {
			out[i] = x - mean
		}
		return out
	}
	for i, x := range data {
		out[i] = (x - mean) / std
	}
	return out
}
