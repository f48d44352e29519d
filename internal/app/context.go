package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/RyanBlaney/spectro-stream/configs"
	"github.com/RyanBlaney/spectro-stream/internal/engine"
	"github.com/RyanBlaney/spectro-stream/internal/metrics"
	"github.com/RyanBlaney/spectro-stream/pkg/audio/analyzers"
	"github.com/RyanBlaney/spectro-stream/pkg/classifier"
	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/smoothing"
)

// Context holds the command-line settings and the loaded configuration
type Context struct {
	// CLI arguments
	OutputFile   string
	OutputFormat string
	Profile      string
	Verbose      bool
	Quiet        bool

	// Runtime context
	Logger logging.Logger
	Config *configs.Config
}

// App owns the shared components of one command invocation
type App struct {
	ctx      *Context
	config   *configs.Config
	logger   logging.Logger
	recorder metrics.Recorder
	factory  *stream.Factory
	manager  *stream.Manager
}

// NewApp loads and validates configuration and builds the source manager
func NewApp(ctx *Context) (*App, error) {
	config := ctx.Config
	if config == nil {
		var err error
		config, err = configs.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}
	if err := mergeContext(config, ctx); err != nil {
		return nil, err
	}
	if err := configs.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	ctx.Config = config

	logger := ctx.Logger
	if logger == nil {
		logger = setupLogging(config, ctx)
	}
	ctx.Logger = logger

	recorder, err := metrics.NewRecorder(config.Metrics, logger)
	if err != nil {
		return nil, err
	}

	factory := stream.NewFactory(config.SourceOptions())
	factory.SetHTTPConfig(config.Source.HTTP)
	manager := stream.NewManagerWithConfig(factory, config.ManagerConfig())

	logger.Debug("Application initialized", logging.Fields{
		"profile":       ctx.Profile,
		"output_format": config.OutputFormat,
		"feature_kind":  string(config.Audio.Kind),
		"classifier":    string(config.Classifier.Kind),
	})

	return &App{
		ctx:      ctx,
		config:   config,
		logger:   logger,
		recorder: recorder,
		factory:  factory,
		manager:  manager,
	}, nil
}

// mergeContext applies command-line overrides on top of the file and
// environment configuration
func mergeContext(config *configs.Config, ctx *Context) error {
	if ctx.Profile != "" {
		if err := config.ApplyProfile(ctx.Profile); err != nil {
			return err
		}
	}
	if ctx.OutputFormat != "" {
		config.OutputFormat = ctx.OutputFormat
	}
	if ctx.Verbose {
		config.Verbose = true
	}
	return nil
}

// setupLogging configures the default logger from the log level and the
// verbose and quiet flags
func setupLogging(config *configs.Config, ctx *Context) logging.Logger {
	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		level = logging.InfoLevel
	}
	switch {
	case ctx.Quiet:
		level = logging.ErrorLevel
	case config.Verbose:
		level = logging.DebugLevel
	}

	logger := logging.New(logging.Options{Level: level})
	logging.SetDefault(logger)
	return logger
}

// Config returns the effective configuration
func (app *App) Config() *configs.Config { return app.config }

// Factory returns the source factory
func (app *App) Factory() *stream.Factory { return app.factory }

// Close flushes metrics
func (app *App) Close() error {
	return app.recorder.Close()
}

// Extract loads every URI in parallel and computes its feature frames and
// mean spectral descriptors. Failed sources are reported per file.
func (app *App) Extract(ctx context.Context, uris []string) (*ExtractReport, error) {
	start := time.Now()

	transform, err := analyzers.NewSpectralTransform(app.config.Audio)
	if err != nil {
		return nil, err
	}

	batch, err := app.manager.LoadParallel(ctx, uris)
	if err != nil {
		return nil, err
	}

	report := &ExtractReport{Files: make([]FileFeatures, len(batch.Results))}
	p := pool.New().WithMaxGoroutines(app.config.Source.MaxConcurrent)
	for i, loaded := range batch.Results {
		p.Go(func() {
			report.Files[i] = app.extractOne(transform, loaded)
		})
	}
	p.Wait()

	for _, f := range report.Files {
		if f.Error == "" {
			report.Successful++
		} else {
			report.Failed++
		}
	}
	report.Elapsed = time.Since(start)

	app.logger.Info("Extraction completed", logging.Fields{
		"files":      len(uris),
		"successful": report.Successful,
		"failed":     report.Failed,
		"elapsed_ms": report.Elapsed.Milliseconds(),
	})
	return report, nil
}

func (app *App) extractOne(transform *analyzers.SpectralTransform, loaded *stream.LoadResult) FileFeatures {
	cfg := transform.Config()
	out := FileFeatures{
		URI:         loaded.URI,
		SourceType:  loaded.SourceType,
		SampleRate:  cfg.SampleRate,
		FrameLength: transform.FrameLength(),
		Kind:        string(cfg.Kind),
	}
	if loaded.Error != nil {
		out.Error = loaded.Error.Error()
		return out
	}
	out.Duration = loaded.AudioDuration().Seconds()
	app.recorder.Count(metrics.MetricSourceSamples, int64(len(loaded.Samples)), "source:"+string(loaded.SourceType))

	var sum analyzers.SpectralDescriptors
	for i, buf := range transform.Slicer().All(loaded.Samples) {
		frame, desc, err := transform.Analyze(buf)
		if err != nil {
			out.Error = fmt.Sprintf("frame %d: %v", i, err)
			return out
		}
		out.Frames++
		sum.SpectralCentroid += desc.SpectralCentroid
		sum.SpectralRolloff += desc.SpectralRolloff
		sum.SpectralFlatness += desc.SpectralFlatness
		sum.Energy += desc.Energy
		if app.config.Output.IncludeFrames {
			out.Features = append(out.Features, frame)
		}
	}

	if out.Frames > 0 {
		n := float64(out.Frames)
		out.Descriptors = analyzers.SpectralDescriptors{
			SpectralCentroid: sum.SpectralCentroid / n,
			SpectralRolloff:  sum.SpectralRolloff / n,
			SpectralFlatness: sum.SpectralFlatness / n,
			Energy:           sum.Energy / n,
		}
	}
	app.recorder.Count(metrics.MetricFramesIngested, int64(out.Frames), "command:extract")
	return out
}

// NewEngine builds a pipeline with the configured classifier. The caller
// closes the engine.
func (app *App) NewEngine(onSegment func(smoothing.Segment)) (*engine.Engine, error) {
	clf, err := classifier.New(app.config.Classifier, app.config.Window.NumFrames, app.config.Audio.FrameLength())
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	opts := []engine.Option{
		engine.WithLogger(app.logger.WithFields(logging.Fields{"component": "engine"})),
		engine.WithRecorder(app.recorder),
	}
	if onSegment != nil {
		opts = append(opts, engine.WithSegmentHandler(onSegment))
	}

	e, err := engine.New(app.config.EngineConfig(), clf, opts...)
	if err != nil {
		clf.Close()
		return nil, err
	}
	return e, nil
}

// Classify runs the offline pipeline over one source
func (app *App) Classify(ctx context.Context, uri string) (*ClassifyReport, error) {
	loaded, err := app.manager.Load(ctx, uri)
	if err != nil {
		return nil, err
	}

	e, err := app.NewEngine(nil)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	res, err := e.ProcessSamples(ctx, loaded.Samples)
	if err != nil {
		return nil, fmt.Errorf("failed to process %s: %w", uri, err)
	}
	if !app.config.Output.IncludePredictions {
		res.Predictions = nil
	}

	report := &ClassifyReport{
		URI:      uri,
		Duration: loaded.AudioDuration().Seconds(),
		Result:   res,
	}
	if dir := app.config.Output.ExportDir; dir != "" {
		report.Exports, err = exportSegments(dir, uri, loaded.Samples, app.config.Audio.SampleRate, res.Segments)
		if err != nil {
			return nil, err
		}
		app.logger.Info("Segments exported", logging.Fields{"dir": dir, "files": len(report.Exports)})
	}
	return report, nil
}

// Listen runs the live pipeline on uri until the source ends or ctx is
// cancelled. onSegment receives segments as they close.
func (app *App) Listen(ctx context.Context, uri string, onSegment func(smoothing.Segment)) (*ClassifyReport, error) {
	e, err := app.NewEngine(onSegment)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	source, err := app.factory.Open(ctx, uri)
	if err != nil {
		return nil, err
	}

	app.logger.Info("Listening", logging.Fields{
		"uri":         uri,
		"source_type": string(source.Type()),
	})

	res, err := e.Run(ctx, source)
	if err != nil {
		return nil, err
	}
	if !app.config.Output.IncludePredictions {
		res.Predictions = nil
	}
	return &ClassifyReport{URI: uri, Duration: res.Elapsed.Seconds(), Result: res}, nil
}

// Probe opens uri, reads up to duration of audio (the whole source when
// duration is 0) and reports its format and levels
func (app *App) Probe(ctx context.Context, uri string, duration time.Duration) (*ProbeReport, error) {
	start := time.Now()
	source, err := app.factory.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	report := &ProbeReport{
		URI:         uri,
		Metadata:    source.Metadata(),
		ConnectTime: time.Since(start),
	}

	var sumSquares float64
	readStart := time.Now()
	for {
		if duration > 0 && report.Duration >= duration.Seconds() {
			break
		}
		data, err := source.ReadAudio(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", uri, err)
		}

		report.Chunks++
		for _, v := range data.PCM {
			report.Peak = max(report.Peak, math.Abs(v))
			sumSquares += v * v
		}
		report.Samples += len(data.PCM)
		report.Duration = float64(report.Samples) / float64(data.SampleRate)
	}
	report.ReadTime = time.Since(readStart)

	if report.Samples > 0 {
		report.RMS = math.Sqrt(sumSquares / float64(report.Samples))
		if report.RMS > 0 {
			report.RMSDecibels = 20 * math.Log10(report.RMS)
		}
	}

	app.logger.Debug("Source probed", logging.Fields{
		"uri":        uri,
		"samples":    report.Samples,
		"chunks":     report.Chunks,
		"connect_ms": report.ConnectTime.Milliseconds(),
	})
	return report, nil
}

// Smooth majority-votes a raw label stream and segments the result. A nil
// label is a step without a prediction.
func (app *App) Smooth(labels []*int) (*SmoothReport, error) {
	smoothed, err := smoothing.Smooth(labels, app.config.Smoothing.WindowSize, app.config.Smoothing.TieBreak)
	if err != nil {
		return nil, err
	}

	ecfg, err := app.config.EngineConfig().Resolve(app.config.Audio.FrameLength(), false)
	if err != nil {
		return nil, err
	}
	sg, err := smoothing.NewSegmenter(ecfg.StepSizeSamples, app.config.Audio.SampleRate, app.config.Classifier.Labels)
	if err != nil {
		return nil, err
	}

	raw := make([]int, len(labels))
	for i, l := range labels {
		raw[i] = -1
		if l != nil {
			raw[i] = *l
		}
	}

	return &SmoothReport{
		Raw:         raw,
		Smoothed:    smoothed,
		Segments:    sg.Segments(smoothed),
		StepSeconds: sg.StepSeconds(),
	}, nil
}

// Output formats data and writes it to the output file or stdout
func (app *App) Output(data any) error {
	formatter := NewFormatter(app.config.OutputFormat, app.config.Output.Precision)
	formatted, err := formatter.Format(data, true)
	if err != nil {
		return fmt.Errorf("failed to format output data: %w", err)
	}

	if app.ctx.OutputFile != "" {
		return app.writeToFile(formatted)
	}

	_, err = os.Stdout.Write(formatted)
	return err
}

// writeToFile writes data to the specified output file
func (app *App) writeToFile(data []byte) error {
	dir := filepath.Dir(app.ctx.OutputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(app.ctx.OutputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	app.logger.Debug("Results written to file", logging.Fields{
		"output_file": app.ctx.OutputFile,
		"size_bytes":  len(data),
	})
	return nil
}
