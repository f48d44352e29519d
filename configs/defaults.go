package configs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/spectro-stream/internal/engine"
	"github.com/RyanBlaney/spectro-stream/internal/metrics"
	audioconfig "github.com/RyanBlaney/spectro-stream/pkg/audio/config"
	"github.com/RyanBlaney/spectro-stream/pkg/classifier"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/remote"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/smoothing"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/window"
)

// AppName names the binary and its config directories
const AppName = "spectro"

// setDefaults sets default configuration values for all components
func setDefaults(v *viper.Viper) {
	// Application defaults
	if !v.IsSet("verbose") {
		v.Set("verbose", false)
	}
	if !v.IsSet("log_level") {
		v.Set("log_level", "info")
	}
	if !v.IsSet("output_format") {
		v.Set("output_format", FormatTable)
	}
	home, _ := os.UserHomeDir()
	if !v.IsSet("config_dir") {
		v.Set("config_dir", filepath.Join(home, ".config", AppName))
	}
	if !v.IsSet("data_dir") {
		v.Set("data_dir", filepath.Join(home, ".local", "share", AppName))
	}

	setSourceDefaults(v)
	setAudioDefaults(v)
	setWindowDefaults(v)
	setSmoothingDefaults(v)
	setClassifierDefaults(v)

	// Metrics defaults
	if !v.IsSet("metrics.enabled") {
		v.Set("metrics.enabled", false)
	}
	if !v.IsSet("metrics.address") {
		v.Set("metrics.address", "127.0.0.1:8125")
	}
	if !v.IsSet("metrics.namespace") {
		v.Set("metrics.namespace", AppName)
	}
	if !v.IsSet("metrics.tags") {
		v.Set("metrics.tags", []string{})
	}

	// Output defaults
	if !v.IsSet("output.precision") {
		v.Set("output.precision", 3)
	}
	if !v.IsSet("output.include_predictions") {
		v.Set("output.include_predictions", false)
	}
	if !v.IsSet("output.include_frames") {
		v.Set("output.include_frames", false)
	}
	if !v.IsSet("output.timestamps") {
		v.Set("output.timestamps", true)
	}
	if !v.IsSet("output.export_dir") {
		v.Set("output.export_dir", "")
	}
}

// setSourceDefaults sets sample source defaults
func setSourceDefaults(v *viper.Viper) {
	if !v.IsSet("source.chunk_size") {
		v.Set("source.chunk_size", 1600)
	}
	if !v.IsSet("source.queue_depth") {
		v.Set("source.queue_depth", 64)
	}
	if !v.IsSet("source.timeout") {
		v.Set("source.timeout", 60*time.Second)
	}
	if !v.IsSet("source.max_duration") {
		v.Set("source.max_duration", time.Duration(0))
	}
	if !v.IsSet("source.max_concurrent") {
		v.Set("source.max_concurrent", 4)
	}

	httpCfg := remote.DefaultConfig()
	httpDefaults := map[string]any{
		"source.http.user_agent":         httpCfg.UserAgent,
		"source.http.accept_header":      httpCfg.AcceptHeader,
		"source.http.connection_timeout": httpCfg.ConnectionTimeout,
		"source.http.read_timeout":       httpCfg.ReadTimeout,
		"source.http.max_redirects":      httpCfg.MaxRedirects,
		"source.http.max_attempts":       httpCfg.MaxAttempts,
		"source.http.retry_delay":        httpCfg.RetryDelay,
		"source.http.max_bytes":          httpCfg.MaxBytes,
	}
	for key, value := range httpDefaults {
		if !v.IsSet(key) {
			v.Set(key, value)
		}
	}
}

// setAudioDefaults sets the spectral front-end defaults: 30ms buffers with
// a 10ms hop at 16kHz
func setAudioDefaults(v *viper.Viper) {
	if !v.IsSet("audio.sample_rate") {
		v.Set("audio.sample_rate", 16000)
	}
	if !v.IsSet("audio.buffer_length") {
		v.Set("audio.buffer_length", 480)
	}
	if !v.IsSet("audio.hop_length") {
		v.Set("audio.hop_length", 160)
	}
	if !v.IsSet("audio.mel_count") {
		v.Set("audio.mel_count", 40)
	}
	if !v.IsSet("audio.cepstral_count") {
		v.Set("audio.cepstral_count", 13)
	}
	if !v.IsSet("audio.kind") {
		v.Set("audio.kind", string(audioconfig.FeatureLogMel))
	}
	if !v.IsSet("audio.window") {
		v.Set("audio.window", string(audioconfig.WindowHann))
	}
	if !v.IsSet("audio.low_freq") {
		v.Set("audio.low_freq", 0.0)
	}
	if !v.IsSet("audio.high_freq") {
		v.Set("audio.high_freq", 8000.0)
	}
}

// setWindowDefaults sets sliding window defaults. Frame length and
// duration are derived from the audio section when left at zero.
func setWindowDefaults(v *viper.Viper) {
	if !v.IsSet("window.num_frames") {
		v.Set("window.num_frames", 3)
	}
	if !v.IsSet("window.frame_length") {
		v.Set("window.frame_length", 0)
	}
	if !v.IsSet("window.overlap_factor") {
		v.Set("window.overlap_factor", 0.67)
	}
	if !v.IsSet("window.suppression_ms") {
		v.Set("window.suppression_ms", 0.0)
	}
	if !v.IsSet("window.frame_duration_ms") {
		v.Set("window.frame_duration_ms", 0.0)
	}
	if !v.IsSet("window.include_raw_audio") {
		v.Set("window.include_raw_audio", false)
	}
	if !v.IsSet("window.raw_frame_length") {
		v.Set("window.raw_frame_length", 0)
	}
	if !v.IsSet("window.mode") {
		v.Set("window.mode", string(window.ModeAwait))
	}

	if !v.IsSet("pipeline.step_size_samples") {
		v.Set("pipeline.step_size_samples", 0)
	}
	if !v.IsSet("pipeline.tick_interval") {
		v.Set("pipeline.tick_interval", time.Duration(0))
	}
}

// setSmoothingDefaults sets smoother and suppression defaults
func setSmoothingDefaults(v *viper.Viper) {
	if !v.IsSet("smoothing.window_size") {
		v.Set("smoothing.window_size", 5)
	}
	if !v.IsSet("smoothing.tie_break") {
		v.Set("smoothing.tie_break", string(smoothing.TieBreakSmallest))
	}
	if !v.IsSet("suppression.labels") {
		v.Set("suppression.labels", []int{})
	}
	if !v.IsSet("suppression.min_probability") {
		v.Set("suppression.min_probability", 0.5)
	}
}

// setClassifierDefaults selects the model-free threshold classifier over
// log-mel energy
func setClassifierDefaults(v *viper.Viper) {
	if !v.IsSet("classifier.kind") {
		v.Set("classifier.kind", string(classifier.KindThreshold))
	}
	if !v.IsSet("classifier.labels") {
		v.Set("classifier.labels", []string{"silence", "sound"})
	}

	// Normalization
	if !v.IsSet("classifier.normalize.enabled") {
		v.Set("classifier.normalize.enabled", false)
	}
	if !v.IsSet("classifier.normalize.auto") {
		v.Set("classifier.normalize.auto", false)
	}
	if !v.IsSet("classifier.normalize.mean") {
		v.Set("classifier.normalize.mean", -100.0)
	}
	if !v.IsSet("classifier.normalize.std") {
		v.Set("classifier.normalize.std", 10.0)
	}

	// Threshold classifier
	if !v.IsSet("classifier.threshold.thresholds") {
		v.Set("classifier.threshold.thresholds", []float64{-3})
	}
	if !v.IsSet("classifier.threshold.frames") {
		v.Set("classifier.threshold.frames", 0)
	}

	// ONNX classifier
	if !v.IsSet("classifier.onnx.model_path") {
		v.Set("classifier.onnx.model_path", "")
	}
	if !v.IsSet("classifier.onnx.shared_library_path") {
		v.Set("classifier.onnx.shared_library_path", "")
	}
	if !v.IsSet("classifier.onnx.input_name") {
		v.Set("classifier.onnx.input_name", "input")
	}
	if !v.IsSet("classifier.onnx.output_name") {
		v.Set("classifier.onnx.output_name", "output")
	}
	if !v.IsSet("classifier.onnx.num_labels") {
		v.Set("classifier.onnx.num_labels", 3)
	}
	if !v.IsSet("classifier.onnx.softmax") {
		v.Set("classifier.onnx.softmax", false)
	}
}

// GetDefaultConfig returns a Config struct with all default values set
func GetDefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		// Application settings defaults
		Verbose:      false,
		LogLevel:     "info",
		OutputFormat: FormatTable,
		ConfigDir:    filepath.Join(home, ".config", AppName),
		DataDir:      filepath.Join(home, ".local", "share", AppName),

		Source:      GetDefaultSourceConfig(),
		Audio:       GetDefaultAudioConfig(),
		Window:      GetDefaultWindowConfig(),
		Smoothing:   GetDefaultSmoothingConfig(),
		Suppression: engine.SuppressionConfig{Labels: []int{}, MinProbability: 0.5},
		Classifier:  GetDefaultClassifierConfig(),
		Metrics: metrics.Config{
			Address:   "127.0.0.1:8125",
			Namespace: AppName,
			Tags:      []string{},
		},
		Output:   GetDefaultOutputConfig(),
		Profiles: GetDefaultProfiles(),
	}
}

// GetDefaultSourceConfig returns default source settings
func GetDefaultSourceConfig() SourceConfig {
	return SourceConfig{
		ChunkSize:     1600,
		QueueDepth:    64,
		Timeout:       60 * time.Second,
		MaxConcurrent: 4,
		HTTP:          remote.DefaultConfig(),
	}
}

// GetDefaultAudioConfig returns the default 16kHz log-mel front end
func GetDefaultAudioConfig() audioconfig.FeatureConfig {
	return audioconfig.FeatureConfig{
		SampleRate:    16000,
		BufferLength:  480,
		HopLength:     160,
		MelCount:      40,
		CepstralCount: 13,
		Kind:          audioconfig.FeatureLogMel,
		Window:        audioconfig.WindowHann,
		LowFreq:       0,
		HighFreq:      8000,
	}
}

// GetDefaultWindowConfig returns the default three-frame window
func GetDefaultWindowConfig() window.Config {
	return window.Config{
		NumFrames:     3,
		OverlapFactor: 0.67,
		Mode:          window.ModeAwait,
	}
}

// GetDefaultSmoothingConfig returns a five-step majority vote
func GetDefaultSmoothingConfig() engine.SmoothingConfig {
	return engine.SmoothingConfig{WindowSize: 5, TieBreak: smoothing.TieBreakSmallest}
}

// GetDefaultClassifierConfig returns the threshold classifier settings
func GetDefaultClassifierConfig() classifier.Config {
	return classifier.Config{
		Kind:      classifier.KindThreshold,
		Labels:    []string{"silence", "sound"},
		Normalize: classifier.DefaultNormalizeConfig(),
		Threshold: classifier.ThresholdConfig{Thresholds: []float64{-3}},
		ONNX: classifier.ONNXConfig{
			InputName:  "input",
			OutputName: "output",
			NumLabels:  3,
		},
	}
}

// GetDefaultOutputConfig returns default output settings
func GetDefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Precision:  3,
		Timestamps: true,
	}
}

// GetDefaultProfiles returns the built-in front-end presets
func GetDefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"speech": {
			Name:        "speech",
			Description: "16kHz log-mel, 30ms buffers, 10ms hop",
			Audio:       GetDefaultAudioConfig(),
			Window:      GetDefaultWindowConfig(),
		},
		"browser": {
			Name:        "browser",
			Description: "44.1kHz log-mel at 1024-sample frames, one batch per frame",
			Audio: audioconfig.FeatureConfig{
				SampleRate:   44100,
				BufferLength: 1024,
				HopLength:    1024,
				MelCount:     40,
				Kind:         audioconfig.FeatureLogMel,
				Window:       audioconfig.WindowHann,
				HighFreq:     22050,
			},
			Window: window.Config{
				NumFrames:     3,
				OverlapFactor: 0.999,
				Mode:          window.ModeAsync,
			},
		},
		"mfcc": {
			Name:        "mfcc",
			Description: "16kHz MFCC, 13 coefficients over 40 mel bands",
			Audio: audioconfig.FeatureConfig{
				SampleRate:    16000,
				BufferLength:  400,
				HopLength:     160,
				MelCount:      40,
				CepstralCount: 13,
				Kind:          audioconfig.FeatureMFCC,
				Window:        audioconfig.WindowHamming,
				HighFreq:      8000,
			},
			Window: GetDefaultWindowConfig(),
		},
	}
}
