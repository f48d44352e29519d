package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	classifyPredictions bool
	classifyTimeout     time.Duration
)

// classifyCmd runs the offline pipeline over one source
var classifyCmd = &cobra.Command{
	Use:   "classify <uri>",
	Short: "Classify a source and print its labeled segments",
	Long: `Run a whole source through the feature transform, sliding window,
classifier and label smoother, then print the resulting segments.

Examples:
  # Segment a recording with the default threshold classifier
  spectro classify speech.wav

  # Use an ONNX model and keep every prediction
  spectro classify --predictions -o json --config model.yaml speech.wav`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().BoolVar(&classifyPredictions, "predictions", false,
		"include every classifier prediction in the output")
	classifyCmd.Flags().DurationVarP(&classifyTimeout, "timeout", "T", 5*time.Minute,
		"timeout for loading and processing")
}

func runClassify(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	if classifyPredictions {
		application.Config().Output.IncludePredictions = true
	}

	ctx, cancel := signalContext(classifyTimeout)
	defer cancel()

	report, err := application.Classify(ctx, args[0])
	if err != nil {
		return err
	}
	return application.Output(report)
}
