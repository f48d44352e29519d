package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	extractFrames  bool
	extractTimeout time.Duration
)

// extractCmd computes feature frames for one or more sources
var extractCmd = &cobra.Command{
	Use:   "extract [uris...]",
	Short: "Extract spectral feature frames from audio sources",
	Long: `Load each source to the end, slice it into overlapping buffers and
compute one feature frame per buffer. Sources are loaded in parallel.

Examples:
  # Summarize two WAV files
  spectro extract speech.wav noise.wav

  # Dump every MFCC frame as JSON
  spectro --profile mfcc extract --frames -o json speech.wav`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().BoolVar(&extractFrames, "frames", false,
		"include every feature frame in the output")
	extractCmd.Flags().DurationVarP(&extractTimeout, "timeout", "T", 5*time.Minute,
		"timeout for the whole extraction")
}

func runExtract(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	if extractFrames {
		application.Config().Output.IncludeFrames = true
	}

	ctx, cancel := signalContext(extractTimeout)
	defer cancel()

	report, err := application.Extract(ctx, args)
	if err != nil {
		return err
	}
	if err := application.Output(report); err != nil {
		return err
	}
	if report.Successful == 0 {
		return fmt.Errorf("all %d sources failed", report.Failed)
	}
	return nil
}
