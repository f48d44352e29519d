package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/spectro-stream/internal/app"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/smoothing"
)

var (
	smoothWindowSize int
	smoothTieBreak   string
)

// smoothCmd smooths and segments a recorded label stream
var smoothCmd = &cobra.Command{
	Use:   "smooth [labels-file]",
	Short: "Smooth a raw label stream and print its segments",
	Long: `Read one raw classifier label per step (integers separated by spaces,
commas or newlines; "-" marks a step without a prediction), apply the
majority-vote smoother and print the labeled segments. Reads stdin when no
file is given.

Examples:
  # Smooth labels from a file with a 7-step window
  spectro smooth --window-size 7 labels.txt

  # Pipe labels in and get JSON
  echo "0 0 1 0 1 1 1 0 0" | spectro smooth -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSmooth,
}

func init() {
	rootCmd.AddCommand(smoothCmd)

	smoothCmd.Flags().IntVarP(&smoothWindowSize, "window-size", "w", 0,
		"smoothing window in steps (default from config)")
	smoothCmd.Flags().StringVar(&smoothTieBreak, "tie-break", "",
		"tie-break rule: smallest or first_seen (default from config)")
}

func runSmooth(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open labels file: %w", err)
		}
		defer f.Close()
		in = f
	}

	labels, err := app.ParseLabels(in)
	if err != nil {
		return err
	}

	application, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	if smoothWindowSize > 0 {
		application.Config().Smoothing.WindowSize = smoothWindowSize
	}
	if smoothTieBreak != "" {
		application.Config().Smoothing.TieBreak = smoothing.TieBreak(smoothTieBreak)
	}

	report, err := application.Smooth(labels)
	if err != nil {
		return err
	}
	return application.Output(report)
}
