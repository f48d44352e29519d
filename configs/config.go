package configs

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/spectro-stream/internal/engine"
	"github.com/RyanBlaney/spectro-stream/internal/metrics"
	audioconfig "github.com/RyanBlaney/spectro-stream/pkg/audio/config"
	"github.com/RyanBlaney/spectro-stream/pkg/classifier"
	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/remote"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/window"
)

// Output formats
const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
	FormatCSV   = "csv"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose" json:"verbose" yaml:"verbose"`
	LogLevel     string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	OutputFormat string `mapstructure:"output_format" json:"output_format" yaml:"output_format"`
	ConfigDir    string `mapstructure:"config_dir" json:"config_dir" yaml:"config_dir"`
	DataDir      string `mapstructure:"data_dir" json:"data_dir" yaml:"data_dir"`

	// Sample sources
	Source SourceConfig `mapstructure:"source" json:"source" yaml:"source"`

	// Spectral front end
	Audio audioconfig.FeatureConfig `mapstructure:"audio" json:"audio" yaml:"audio"`

	// Batch emission
	Window window.Config `mapstructure:"window" json:"window" yaml:"window"`

	// Label smoothing and suppression
	Smoothing   engine.SmoothingConfig   `mapstructure:"smoothing" json:"smoothing" yaml:"smoothing"`
	Suppression engine.SuppressionConfig `mapstructure:"suppression" json:"suppression" yaml:"suppression"`

	// Pipeline timing
	Pipeline PipelineConfig `mapstructure:"pipeline" json:"pipeline" yaml:"pipeline"`

	Classifier classifier.Config `mapstructure:"classifier" json:"classifier" yaml:"classifier"`
	Metrics    metrics.Config    `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Output     OutputConfig      `mapstructure:"output" json:"output" yaml:"output"`

	// Named front-end presets
	Profiles map[string]Profile `mapstructure:"profiles" json:"profiles" yaml:"profiles"`
}

// SourceConfig contains sample source settings
type SourceConfig struct {
	ChunkSize     int           `mapstructure:"chunk_size" json:"chunk_size" yaml:"chunk_size"`
	QueueDepth    int           `mapstructure:"queue_depth" json:"queue_depth" yaml:"queue_depth"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	MaxDuration   time.Duration `mapstructure:"max_duration" json:"max_duration" yaml:"max_duration"`
	MaxConcurrent int           `mapstructure:"max_concurrent" json:"max_concurrent" yaml:"max_concurrent"`

	// HTTP settings for http:// and https:// sources
	HTTP remote.Config `mapstructure:"http" json:"http" yaml:"http"`
}

// PipelineConfig contains step and tick settings for the engine
type PipelineConfig struct {
	StepSizeSamples int           `mapstructure:"step_size_samples" json:"step_size_samples" yaml:"step_size_samples"`
	TickInterval    time.Duration `mapstructure:"tick_interval" json:"tick_interval" yaml:"tick_interval"`
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Precision          int  `mapstructure:"precision" json:"precision" yaml:"precision"`
	IncludePredictions bool `mapstructure:"include_predictions" json:"include_predictions" yaml:"include_predictions"`
	IncludeFrames      bool `mapstructure:"include_frames" json:"include_frames" yaml:"include_frames"`
	Timestamps         bool `mapstructure:"timestamps" json:"timestamps" yaml:"timestamps"`
	// ExportDir receives one WAV clip per classified segment when set
	ExportDir string `mapstructure:"export_dir" json:"export_dir,omitempty" yaml:"export_dir,omitempty"`
}

// Profile is a named front-end and window preset
type Profile struct {
	Name        string                    `mapstructure:"name" json:"name" yaml:"name"`
	Description string                    `mapstructure:"description" json:"description" yaml:"description"`
	Audio       audioconfig.FeatureConfig `mapstructure:"audio" json:"audio" yaml:"audio"`
	Window      window.Config             `mapstructure:"window" json:"window" yaml:"window"`
}

// SourceOptions returns the options shared by source handlers
func (c *Config) SourceOptions() common.SourceOptions {
	return common.SourceOptions{
		SampleRate: c.Audio.SampleRate,
		ChunkSize:  c.Source.ChunkSize,
		QueueDepth: c.Source.QueueDepth,
	}
}

// ManagerConfig returns the source manager settings
func (c *Config) ManagerConfig() *stream.ManagerConfig {
	return &stream.ManagerConfig{
		SourceTimeout:        c.Source.Timeout,
		MaxConcurrentSources: c.Source.MaxConcurrent,
		MaxDuration:          c.Source.MaxDuration,
	}
}

// EngineConfig assembles the pipeline configuration
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Features:        c.Audio,
		Window:          c.Window,
		Smoothing:       c.Smoothing,
		Suppression:     c.Suppression,
		StepSizeSamples: c.Pipeline.StepSizeSamples,
		TickInterval:    c.Pipeline.TickInterval,
	}
}

// ApplyProfile replaces the audio and window sections with a named preset
func (c *Config) ApplyProfile(name string) error {
	p, ok := c.Profiles[name]
	if !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	c.Audio = p.Audio
	c.Window = p.Window
	return nil
}

// LoadConfig loads configuration from the global viper instance
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load fills unset keys with defaults and decodes v
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if len(config.Profiles) == 0 {
		config.Profiles = GetDefaultProfiles()
	}

	return config, nil
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	if _, err := logging.ParseLevel(config.LogLevel); err != nil {
		return err
	}

	if !slices.Contains([]string{FormatJSON, FormatYAML, FormatTable, FormatCSV}, config.OutputFormat) {
		return fmt.Errorf("output format must be one of json, yaml, table, csv: got %q", config.OutputFormat)
	}

	if err := config.SourceOptions().Validate(); err != nil {
		return err
	}

	if config.Source.MaxConcurrent <= 0 {
		return common.NewConfigError("source.max_concurrent", config.Source.MaxConcurrent, "must be positive")
	}

	if config.Source.Timeout <= 0 {
		return common.NewConfigError("source.timeout", config.Source.Timeout, "must be positive")
	}

	if err := config.Source.HTTP.Validate(); err != nil {
		return err
	}

	ecfg := config.EngineConfig()
	if err := ecfg.Validate(); err != nil {
		return err
	}

	if _, err := ecfg.Resolve(config.Audio.FrameLength(), false); err != nil {
		return err
	}

	if err := config.Classifier.Validate(); err != nil {
		return err
	}

	if config.Output.Precision < 0 {
		return common.NewConfigError("output.precision", config.Output.Precision, "must not be negative")
	}

	return nil
}
