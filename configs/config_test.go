package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audioconfig "github.com/RyanBlaney/spectro-stream/pkg/audio/config"
	"github.com/RyanBlaney/spectro-stream/pkg/classifier"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/remote"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/window"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, GetDefaultAudioConfig(), cfg.Audio)
	assert.Equal(t, GetDefaultWindowConfig(), cfg.Window)
	assert.Equal(t, GetDefaultSmoothingConfig(), cfg.Smoothing)
	assert.Equal(t, FormatTable, cfg.OutputFormat)
	assert.Equal(t, 60*time.Second, cfg.Source.Timeout)
	assert.Equal(t, remote.DefaultConfig().MaxAttempts, cfg.Source.HTTP.MaxAttempts)
	assert.Equal(t, classifier.KindThreshold, cfg.Classifier.Kind)
	assert.Equal(t, []float64{-3}, cfg.Classifier.Threshold.Thresholds)
	assert.Contains(t, cfg.Profiles, "speech")

	require.NoError(t, ValidateConfig(cfg))
}

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, ValidateConfig(GetDefaultConfig()))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectro.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
output_format: json
audio:
  kind: mfcc
  mel_count: 26
  cepstral_count: 12
window:
  num_frames: 5
  suppression_ms: 250
  mode: async
source:
  timeout: 5s
  http:
    max_attempts: 5
    read_timeout: 2m
`), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, FormatJSON, cfg.OutputFormat)
	assert.Equal(t, audioconfig.FeatureMFCC, cfg.Audio.Kind)
	assert.Equal(t, 26, cfg.Audio.MelCount)
	assert.Equal(t, 12, cfg.Audio.CepstralCount)
	// untouched keys keep their defaults
	assert.Equal(t, 480, cfg.Audio.BufferLength)
	assert.Equal(t, 5, cfg.Window.NumFrames)
	assert.Equal(t, 250.0, cfg.Window.SuppressionMillis)
	assert.Equal(t, window.ModeAsync, cfg.Window.Mode)
	assert.Equal(t, 5*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 5, cfg.Source.HTTP.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Source.HTTP.ReadTimeout)
	assert.Equal(t, remote.DefaultConfig().UserAgent, cfg.Source.HTTP.UserAgent)

	require.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"hop longer than buffer", func(c *Config) { c.Audio.HopLength = 1000 }, "hop_length"},
		{"overlap out of range", func(c *Config) { c.Window.OverlapFactor = 1 }, "overlap_factor"},
		{"smoothing too small", func(c *Config) { c.Smoothing.WindowSize = 2 }, "smoothing.window_size"},
		{"frame length mismatch", func(c *Config) { c.Window.FrameLength = 7 }, "window.frame_length"},
		{"no concurrency", func(c *Config) { c.Source.MaxConcurrent = 0 }, "source.max_concurrent"},
		{"bad chunk size", func(c *Config) { c.Source.ChunkSize = 0 }, "chunk_size"},
		{"no http attempts", func(c *Config) { c.Source.HTTP.MaxAttempts = 0 }, "http.max_attempts"},
		{"descending thresholds", func(c *Config) { c.Classifier.Threshold.Thresholds = []float64{1, 0} }, "threshold.thresholds"},
		{"onnx without model", func(c *Config) { c.Classifier.Kind = classifier.KindONNX }, "onnx.model_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			require.Error(t, err)
			var cerr *common.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestValidateConfigRejectsFormatAndLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.OutputFormat = "xml"
	assert.Error(t, ValidateConfig(cfg))

	cfg = GetDefaultConfig()
	cfg.LogLevel = "loud"
	assert.Error(t, ValidateConfig(cfg))
}

func TestApplyProfile(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, cfg.ApplyProfile("mfcc"))
	assert.Equal(t, audioconfig.FeatureMFCC, cfg.Audio.Kind)
	require.NoError(t, ValidateConfig(cfg))

	require.NoError(t, cfg.ApplyProfile("browser"))
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	require.NoError(t, ValidateConfig(cfg))

	assert.Error(t, cfg.ApplyProfile("missing"))
}

func TestDerivedConfigs(t *testing.T) {
	cfg := GetDefaultConfig()

	opts := cfg.SourceOptions()
	assert.Equal(t, 16000, opts.SampleRate)
	assert.Equal(t, 1600, opts.ChunkSize)

	mc := cfg.ManagerConfig()
	assert.Equal(t, 4, mc.MaxConcurrentSources)

	ec := cfg.EngineConfig()
	assert.Equal(t, cfg.Audio, ec.Features)
	assert.Equal(t, 5, ec.Smoothing.WindowSize)
}
