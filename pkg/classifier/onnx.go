package classifier

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/window"
)

// ONNXConfig describes a model taking (1, frames, frameLength, 1) float32
// input and producing (1, numLabels) scores
type ONNXConfig struct {
	ModelPath         string `mapstructure:"model_path" json:"model_path" yaml:"model_path"`
	SharedLibraryPath string `mapstructure:"shared_library_path" json:"shared_library_path" yaml:"shared_library_path"`
	InputName         string `mapstructure:"input_name" json:"input_name" yaml:"input_name"`
	OutputName        string `mapstructure:"output_name" json:"output_name" yaml:"output_name"`
	NumLabels         int    `mapstructure:"num_labels" json:"num_labels" yaml:"num_labels"`
	// Softmax converts the model's logits to probabilities
	Softmax bool `mapstructure:"softmax" json:"softmax" yaml:"softmax"`
}

// Validate checks the config without touching the runtime
func (c ONNXConfig) Validate() error {
	if c.ModelPath == "" {
		return common.NewConfigError("onnx.model_path", c.ModelPath, "is required")
	}
	if c.InputName == "" {
		return common.NewConfigError("onnx.input_name", c.InputName, "is required")
	}
	if c.OutputName == "" {
		return common.NewConfigError("onnx.output_name", c.OutputName, "is required")
	}
	if c.NumLabels < 1 {
		return common.NewConfigError("onnx.num_labels", c.NumLabels, "must be positive")
	}
	return nil
}

// The runtime environment is process-wide; sessions share it by reference.
var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(sharedLibraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return err
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

// ONNX runs an onnxruntime session per batch. Input and output tensors are
// allocated once; Classify serializes access to them.
type ONNX struct {
	cfg       ONNXConfig
	normalize NormalizeConfig
	labels    []string
	numFrames int
	frameLen  int
	logger    logging.Logger

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	closed  bool
}

// NewONNX loads the model and allocates its tensors
func NewONNX(cfg ONNXConfig, normalize NormalizeConfig, labels []string, numFrames, frameLength int) (*ONNX, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := normalize.Validate(); err != nil {
		return nil, err
	}
	if len(labels) > 0 && len(labels) != cfg.NumLabels {
		return nil, common.NewConfigError("labels", labels,
			fmt.Sprintf("need %d names for %d model outputs", cfg.NumLabels, cfg.NumLabels))
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, common.NewConfigError("onnx.model_path", cfg.ModelPath, err.Error())
	}

	if err := acquireEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, common.NewStreamError(common.SourceTypeUnsupported, cfg.ModelPath, common.ErrCodeClassifier,
			"failed to initialize onnxruntime", err)
	}

	inputShape := ort.NewShape(1, int64(numFrames), int64(frameLength), 1)
	inputTensor, err := ort.NewTensor(inputShape, make([]float32, numFrames*frameLength))
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to allocate input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.NumLabels)))
	if err != nil {
		inputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		releaseEnvironment()
		return nil, common.NewStreamError(common.SourceTypeUnsupported, cfg.ModelPath, common.ErrCodeClassifier,
			"failed to create onnx session", err)
	}

	logger := logging.WithFields(logging.Fields{
		"component": "onnx_classifier",
		"model":     cfg.ModelPath,
	})
	logger.Info("ONNX classifier loaded", logging.Fields{
		"num_frames":   numFrames,
		"frame_length": frameLength,
		"num_labels":   cfg.NumLabels,
	})

	return &ONNX{
		cfg:       cfg,
		normalize: normalize,
		labels:    labels,
		numFrames: numFrames,
		frameLen:  frameLength,
		logger:    logger,
		session:   session,
		input:     inputTensor,
		output:    outputTensor,
	}, nil
}

func (o *ONNX) Labels() []string { return o.labels }

// Classify copies the (normalized) batch into the input tensor and runs
// the session
func (o *ONNX) Classify(ctx context.Context, batch *window.Batch) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if batch.NumFrames != o.numFrames || batch.FrameLength != o.frameLen {
		return Prediction{}, fmt.Errorf("%w: model expects %dx%d, batch is %dx%d",
			common.ErrFrameShape, o.numFrames, o.frameLen, batch.NumFrames, batch.FrameLength)
	}

	data := o.normalize.Apply(batch.Data)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return Prediction{}, fmt.Errorf("onnx classifier is closed")
	}

	in := o.input.GetData()
	for i, v := range data {
		in[i] = float32(v)
	}
	if err := o.session.Run(); err != nil {
		return Prediction{}, common.NewStreamError(common.SourceTypeUnsupported, o.cfg.ModelPath, common.ErrCodeClassifier,
			"onnx inference failed", err)
	}

	out := o.output.GetData()
	scores := make([]float64, len(out))
	for i, v := range out {
		scores[i] = float64(v)
	}
	if o.cfg.Softmax {
		scores = Softmax(scores)
	}
	return NewPrediction(scores), nil
}

// Close destroys the session and tensors and releases the environment
func (o *ONNX) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	err := o.session.Destroy()
	o.input.Destroy()
	o.output.Destroy()
	if rerr := releaseEnvironment(); err == nil {
		err = rerr
	}
	return err
}
