package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/spectro-stream/configs"
	"github.com/RyanBlaney/spectro-stream/internal/app"
)

// configCmd groups the configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Load the configuration (defaults, config file, environment and flags),
apply the selected profile and display every value.

Examples:
  # Show the defaults as a readable listing
  spectro config show

  # Show the browser profile as YAML
  spectro --profile browser config show -o yaml`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

// loadEffectiveConfig loads the config and applies the profile flag
func loadEffectiveConfig() (*configs.Config, error) {
	config, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if profile != "" {
		if err := config.ApplyProfile(profile); err != nil {
			return nil, err
		}
	}
	return config, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	config, err := loadEffectiveConfig()
	if err != nil {
		return err
	}

	format := config.OutputFormat
	if cmd.Flags().Changed("output") {
		format = outputFormat
	}
	if format != configs.FormatTable {
		out, err := app.NewFormatter(format, config.Output.Precision).Format(config, true)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	printConfig(config)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	config, err := loadEffectiveConfig()
	if err != nil {
		return err
	}
	if err := configs.ValidateConfig(config); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(os.Stderr, "Config file: %s\n", used)
	}
	fmt.Println("Configuration is valid")
	return nil
}

func printConfig(config *configs.Config) {
	fmt.Println("SPECTRO CONFIGURATION")
	fmt.Println(strings.Repeat("=", 80))

	printSection("APPLICATION SETTINGS")
	printKeyValue("Verbose", fmt.Sprintf("%t", config.Verbose))
	printKeyValue("Log Level", config.LogLevel)
	printKeyValue("Output Format", config.OutputFormat)
	printKeyValue("Config Directory", config.ConfigDir)
	printKeyValue("Data Directory", config.DataDir)
	printKeyValue("Config File", viper.ConfigFileUsed())

	printSection("SOURCE CONFIGURATION")
	printKeyValue("Chunk Size", fmt.Sprintf("%d samples", config.Source.ChunkSize))
	printKeyValue("Queue Depth", fmt.Sprintf("%d", config.Source.QueueDepth))
	printKeyValue("Timeout", config.Source.Timeout.String())
	printKeyValue("Max Duration", config.Source.MaxDuration.String())
	printKeyValue("Max Concurrent", fmt.Sprintf("%d", config.Source.MaxConcurrent))

	httpCfg := config.Source.HTTP
	printSubsection("HTTP")
	printKeyValue("  User Agent", httpCfg.UserAgent)
	printKeyValue("  Connection Timeout", httpCfg.ConnectionTimeout.String())
	printKeyValue("  Read Timeout", httpCfg.ReadTimeout.String())
	printKeyValue("  Max Redirects", fmt.Sprintf("%d", httpCfg.MaxRedirects))
	printKeyValue("  Max Attempts", fmt.Sprintf("%d", httpCfg.MaxAttempts))
	printKeyValue("  Retry Delay", httpCfg.RetryDelay.String())
	printKeyValue("  Max Bytes", fmt.Sprintf("%d", httpCfg.MaxBytes))
	if len(httpCfg.CustomHeaders) > 0 {
		printSubsection(fmt.Sprintf("Headers (%d)", len(httpCfg.CustomHeaders)))
		for key, value := range httpCfg.CustomHeaders {
			printKeyValue("  "+key, value)
		}
	}

	audio := config.Audio
	printSection("AUDIO CONFIGURATION")
	printKeyValue("Sample Rate", fmt.Sprintf("%d Hz", audio.SampleRate))
	printKeyValue("Buffer Length", fmt.Sprintf("%d samples", audio.BufferLength))
	printKeyValue("Hop Length", fmt.Sprintf("%d samples", audio.HopLength))
	printKeyValue("FFT Size", fmt.Sprintf("%d", audio.FFTSize()))
	printKeyValue("Feature Kind", string(audio.Kind))
	printKeyValue("Window Function", string(audio.Window))
	printKeyValue("Mel Count", fmt.Sprintf("%d", audio.MelCount))
	printKeyValue("Cepstral Count", fmt.Sprintf("%d", audio.CepstralCount))
	printKeyValue("Frequency Range", fmt.Sprintf("%.0f - %.0f Hz", audio.LowFreq, audio.HighFreq))

	w := config.Window
	printSection("WINDOW CONFIGURATION")
	printKeyValue("Frames Per Batch", fmt.Sprintf("%d", w.NumFrames))
	printKeyValue("Overlap Factor", fmt.Sprintf("%.3f", w.OverlapFactor))
	printKeyValue("Suppression", fmt.Sprintf("%.0f ms", w.SuppressionMillis))
	printKeyValue("Frame Duration", fmt.Sprintf("%.2f ms", w.FrameDurationMillis))
	printKeyValue("Include Raw Audio", fmt.Sprintf("%t", w.IncludeRawAudio))
	printKeyValue("Mode", string(w.Mode))
	printKeyValue("Step Size", fmt.Sprintf("%d samples", config.Pipeline.StepSizeSamples))
	printKeyValue("Tick Interval", config.Pipeline.TickInterval.String())

	printSection("SMOOTHING CONFIGURATION")
	printKeyValue("Window Size", fmt.Sprintf("%d", config.Smoothing.WindowSize))
	printKeyValue("Tie Break", string(config.Smoothing.TieBreak))
	printKeyValue("Suppressed Labels", fmt.Sprintf("%v", config.Suppression.Labels))
	printKeyValue("Min Probability", fmt.Sprintf("%.2f", config.Suppression.MinProbability))

	c := config.Classifier
	printSection("CLASSIFIER CONFIGURATION")
	printKeyValue("Kind", string(c.Kind))
	printKeyValue("Labels", strings.Join(c.Labels, ", "))
	printKeyValue("Normalize", fmt.Sprintf("%t (auto %t, mean %.2f, std %.2f)",
		c.Normalize.Enabled, c.Normalize.Auto, c.Normalize.Mean, c.Normalize.Std))
	printKeyValue("Thresholds", fmt.Sprintf("%v", c.Threshold.Thresholds))
	printKeyValue("Threshold Frames", fmt.Sprintf("%d", c.Threshold.Frames))
	printKeyValue("ONNX Model", c.ONNX.ModelPath)
	printKeyValue("ONNX Runtime", c.ONNX.SharedLibraryPath)

	printSection("METRICS CONFIGURATION")
	printKeyValue("Enabled", fmt.Sprintf("%t", config.Metrics.Enabled))
	printKeyValue("Address", config.Metrics.Address)
	printKeyValue("Namespace", config.Metrics.Namespace)
	if len(config.Metrics.Tags) > 0 {
		printKeyValue("Tags", strings.Join(config.Metrics.Tags, ", "))
	}

	printSection("OUTPUT CONFIGURATION")
	printKeyValue("Precision", fmt.Sprintf("%d", config.Output.Precision))
	printKeyValue("Include Predictions", fmt.Sprintf("%t", config.Output.IncludePredictions))
	printKeyValue("Include Frames", fmt.Sprintf("%t", config.Output.IncludeFrames))
	printKeyValue("Timestamps", fmt.Sprintf("%t", config.Output.Timestamps))
	if config.Output.ExportDir != "" {
		printKeyValue("Export Dir", config.Output.ExportDir)
	}

	if len(config.Profiles) > 0 {
		printSection(fmt.Sprintf("PROFILES (%d)", len(config.Profiles)))
		for name, p := range config.Profiles {
			printSubsection(name)
			printKeyValue("  Description", p.Description)
			printKeyValue("  Sample Rate", fmt.Sprintf("%d Hz", p.Audio.SampleRate))
			printKeyValue("  Buffer / Hop", fmt.Sprintf("%d / %d", p.Audio.BufferLength, p.Audio.HopLength))
			printKeyValue("  Feature Kind", string(p.Audio.Kind))
			printKeyValue("  Window Mode", string(p.Window.Mode))
		}
	}
}

func printSection(title string) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("-", len(title)))
}

func printSubsection(title string) {
	fmt.Printf("\n  %s\n", title)
}

func printKeyValue(key, value string) {
	if value == "" {
		fmt.Printf("%-35s\n", key)
	} else {
		fmt.Printf("%-35s %s\n", key+":", value)
	}
}
