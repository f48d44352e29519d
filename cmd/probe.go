package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	probeDuration time.Duration
	probeTimeout  time.Duration
)

// probeCmd opens a source and reports its format and levels
var probeCmd = &cobra.Command{
	Use:   "probe <uri>",
	Short: "Open a source and report its format and signal levels",
	Long: `Detect the source type of a URI, connect to it and read audio to
report the delivered and native sample rates, channel count, peak level
and RMS level.

Examples:
  # Inspect a local file
  spectro probe speech.wav

  # Check one second of the microphone
  spectro probe --duration 1s mic://default

  # Check a remote file
  spectro probe -o json https://example.com/clips/speech.wav`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().DurationVarP(&probeDuration, "duration", "d", 0,
		"read at most this much audio (0 = whole source)")
	probeCmd.Flags().DurationVarP(&probeTimeout, "timeout", "T", 40*time.Second,
		"timeout for source operations")
}

func runProbe(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := signalContext(probeTimeout)
	defer cancel()

	report, err := application.Probe(ctx, args[0], probeDuration)
	if err != nil {
		return err
	}
	return application.Output(report)
}
