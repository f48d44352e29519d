package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/mic"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/smoothing"
)

var listenDuration time.Duration

// listenCmd runs the live pipeline
var listenCmd = &cobra.Command{
	Use:   "listen [uri]",
	Short: "Classify a live source and print segments as they close",
	Long: `Capture audio (the default microphone unless a URI is given) and run
the live pipeline: a frame is computed every FFT period from the newest
samples, batches are classified as the window fires, and each smoothed
segment is printed when it closes. Stops on Ctrl-C or after --duration.

Examples:
  # Listen on the default microphone until interrupted
  spectro listen

  # Listen for 30 seconds with async batch callbacks
  SPECTRO_WINDOW_MODE=async spectro listen --duration 30s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().DurationVarP(&listenDuration, "duration", "d", 0,
		"stop after this long (0 = until interrupted)")
}

func runListen(cmd *cobra.Command, args []string) error {
	uri := mic.Scheme + "default"
	if len(args) == 1 {
		uri = args[0]
	}

	application, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := signalContext(listenDuration)
	defer cancel()

	report, err := application.Listen(ctx, uri, func(s smoothing.Segment) {
		fmt.Fprintf(os.Stderr, "%8.2fs - %8.2fs  %d %s\n", s.Start, s.End, s.Label, s.Name)
	})
	if err != nil {
		return err
	}
	return application.Output(report)
}
