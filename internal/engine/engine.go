package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/spectro-stream/internal/metrics"
	"github.com/RyanBlaney/spectro-stream/pkg/audio/analyzers"
	"github.com/RyanBlaney/spectro-stream/pkg/audio/frames"
	"github.com/RyanBlaney/spectro-stream/pkg/classifier"
	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/smoothing"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/window"
)

// Result summarizes one run of the pipeline
type Result struct {
	Frames           int                     `json:"frames" yaml:"frames"`
	Dropped          int                     `json:"dropped" yaml:"dropped"`
	Batches          int                     `json:"batches" yaml:"batches"`
	Suppressed       int                     `json:"suppressed" yaml:"suppressed"`
	ClassifierErrors int                     `json:"classifier_errors" yaml:"classifier_errors"`
	Predictions      []classifier.Prediction `json:"predictions,omitempty" yaml:"predictions,omitempty"`
	RawLabels        []int                   `json:"raw_labels" yaml:"raw_labels"`
	Smoothed         []int                   `json:"smoothed" yaml:"smoothed"`
	Segments         []smoothing.Segment     `json:"segments" yaml:"segments"`
	StepSeconds      float64                 `json:"step_seconds" yaml:"step_seconds"`
	Latency          *metrics.LatencyStats   `json:"classifier_latency_ms" yaml:"classifier_latency_ms"`
	Elapsed          time.Duration           `json:"elapsed" yaml:"elapsed"`
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRecorder sends pipeline metrics to r
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithSegmentHandler is called as each segment closes. It runs under the
// session lock and must not block.
func WithSegmentHandler(fn func(smoothing.Segment)) Option {
	return func(e *Engine) { e.onSegment = fn }
}

// Engine runs samples through transform, window, classifier and smoother
type Engine struct {
	cfg        Config
	transform  *analyzers.SpectralTransform
	classifier classifier.Classifier
	recorder   metrics.Recorder
	logger     logging.Logger
	onSegment  func(smoothing.Segment)
}

// New builds an engine around clf. The engine owns clf and closes it in
// Close.
func New(cfg Config, clf classifier.Classifier, opts ...Option) (*Engine, error) {
	if clf == nil {
		return nil, common.NewConfigError("classifier", nil, "must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	transform, err := analyzers.NewSpectralTransform(cfg.Features)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		transform:  transform,
		classifier: clf,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.WithFields(logging.Fields{"component": "engine"})
	}
	if e.recorder == nil {
		e.recorder = metrics.NopRecorder{}
	}
	return e, nil
}

// Transform exposes the feature transform
func (e *Engine) Transform() *analyzers.SpectralTransform { return e.transform }

// Config returns the engine configuration
func (e *Engine) Config() Config { return e.cfg }

// Close releases the classifier
func (e *Engine) Close() error {
	return e.classifier.Close()
}

func (e *Engine) start(live bool) (*session, *window.Window, error) {
	cfg, err := e.cfg.Resolve(e.transform.FrameLength(), live)
	if err != nil {
		return nil, nil, err
	}
	s, err := newSession(e, cfg)
	if err != nil {
		return nil, nil, err
	}

	win, err := window.New(cfg.Window, s.classify,
		window.WithLogger(e.logger.WithFields(logging.Fields{"subcomponent": "window"})),
		window.WithErrorHandler(func(err error) {
			e.logger.Error(err, "Async batch callback failed")
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	if err := win.Start(); err != nil {
		return nil, nil, err
	}
	return s, win, nil
}

// drain is stop for exhausted input: async batches still in flight finish
// and are smoothed before the window stops
func (e *Engine) drain(s *session, win *window.Window, started time.Time) *Result {
	win.Wait()
	return e.stop(s, win, started)
}

// stop ends the window and closes the session. Async batches still in
// flight are cancelled and their results discarded.
func (e *Engine) stop(s *session, win *window.Window, started time.Time) *Result {
	if err := win.Stop(); err != nil {
		e.logger.Warn("Window already stopped", logging.Fields{"error": err.Error()})
	}
	win.Wait()
	stats := win.Stats()
	s.finish()

	e.recorder.Count(metrics.MetricFramesIngested, int64(stats.Ingested))
	e.recorder.Count(metrics.MetricFramesDropped, int64(stats.Dropped))
	e.recorder.Count(metrics.MetricBatchesFired, int64(stats.Fired))
	e.recorder.Count(metrics.MetricSuppressions, int64(stats.Suppressed))

	res := s.result(stats, time.Since(started))
	e.logger.Info("Pipeline finished", logging.Fields{
		"frames":   res.Frames,
		"dropped":  res.Dropped,
		"batches":  res.Batches,
		"segments": len(res.Segments),
		"elapsed":  res.Elapsed.String(),
	})
	return res
}

// ProcessSamples runs a whole buffer through the pipeline synchronously,
// one frame per hop. In await mode a classifier error aborts the run.
func (e *Engine) ProcessSamples(ctx context.Context, samples []float64) (*Result, error) {
	started := time.Now()
	s, win, err := e.start(false)
	if err != nil {
		return nil, err
	}
	e.recorder.Count(metrics.MetricSourceSamples, int64(len(samples)))

	cfg := s.cfg
	for i, buf := range e.transform.Slicer().All(samples) {
		if err := ctx.Err(); err != nil {
			e.stop(s, win, started)
			return nil, err
		}
		frame, err := e.transform.Transform(buf)
		if err != nil {
			e.stop(s, win, started)
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		var raw []float64
		if cfg.Window.IncludeRawAudio {
			raw = rawSlice(buf, cfg.Window.RawFrameLength)
		}
		if err := win.Ingest(ctx, frame, raw); err != nil {
			e.stop(s, win, started)
			return nil, err
		}
	}

	return e.drain(s, win, started), nil
}

// Run processes a connected live source until it is exhausted or ctx is
// cancelled. A reader goroutine fills a sample ring; every tick the newest
// BufferLength samples become one frame. Until the ring holds a full
// buffer a silent frame is ingested, which the window drops. The source is
// closed before Run returns.
func (e *Engine) Run(ctx context.Context, source common.SourceHandler) (*Result, error) {
	started := time.Now()
	s, win, err := e.start(true)
	if err != nil {
		source.Close()
		return nil, err
	}

	cfg := s.cfg
	bufferLength := cfg.Features.BufferLength
	ring := newSampleRing(bufferLength)
	done := make(chan struct{})

	logger := e.logger.WithFields(logging.Fields{
		"source":        string(source.Type()),
		"tick_interval": cfg.tickInterval().String(),
	})
	logger.Info("Live pipeline started")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		for {
			chunk, err := source.ReadAudio(gctx)
			if errors.Is(err, io.EOF) {
				logger.Debug("Source exhausted", logging.Fields{"samples": ring.Written()})
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read audio: %w", err)
			}
			ring.Write(chunk.PCM)
			e.recorder.Count(metrics.MetricSourceSamples, int64(len(chunk.PCM)))
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.tickInterval())
		defer ticker.Stop()
		silent := frames.Silent(e.transform.FrameLength())

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-done:
				return nil
			case <-ticker.C:
			}

			buf, ok := ring.Latest(bufferLength)
			if !ok {
				if err := win.Ingest(gctx, silent, nil); err != nil {
					return err
				}
				continue
			}
			frame, err := e.transform.Transform(buf)
			if err != nil {
				return err
			}
			var raw []float64
			if cfg.Window.IncludeRawAudio {
				raw = rawSlice(buf, cfg.Window.RawFrameLength)
			}
			if err := win.Ingest(gctx, frame, raw); err != nil {
				return err
			}
		}
	})

	err = g.Wait()
	var res *Result
	if err == nil {
		res = e.drain(s, win, started)
	} else {
		res = e.stop(s, win, started)
	}
	if cerr := source.Close(); cerr != nil {
		logger.Warn("Failed to close source", logging.Fields{"error": cerr.Error()})
	}

	// cancellation of the caller's context is a normal stop
	if err != nil && ctx.Err() == nil {
		return res, err
	}
	return res, nil
}

// rawSlice returns the newest n samples of buf; n never exceeds len(buf)
func rawSlice(buf []float64, n int) []float64 {
	return buf[len(buf)-n:]
}
