package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RyanBlaney/spectro-stream/internal/metrics"
	"github.com/RyanBlaney/spectro-stream/pkg/classifier"
	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/smoothing"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/window"
)

// session is the per-run state shared by the window callback and the
// caller. Steps are numbered in callback completion order.
type session struct {
	engine    *Engine
	cfg       Config
	smoother  *smoothing.Smoother
	segmenter *smoothing.Segmenter
	logger    logging.Logger

	mu          sync.Mutex
	predictions []classifier.Prediction
	rawLabels   []int
	smoothed    []int
	segments    []smoothing.Segment
	latencies   []time.Duration
	errors      int
}

func newSession(e *Engine, cfg Config) (*session, error) {
	smoother, err := smoothing.New(cfg.Smoothing.WindowSize, cfg.Smoothing.TieBreak)
	if err != nil {
		return nil, err
	}
	segmenter, err := smoothing.NewSegmenter(cfg.StepSizeSamples, cfg.Features.SampleRate, e.classifier.Labels())
	if err != nil {
		return nil, err
	}
	return &session{
		engine:    e,
		cfg:       cfg,
		smoother:  smoother,
		segmenter: segmenter,
		logger:    e.logger,
	}, nil
}

// classify is the window callback
func (s *session) classify(ctx context.Context, batch *window.Batch) (bool, error) {
	start := time.Now()
	pred, err := s.engine.classifier.Classify(ctx, batch)
	elapsed := time.Since(start)
	s.engine.recorder.Timing(metrics.MetricClassifyLatency, elapsed)

	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// batch abandoned by a cancelled run
		s.logger.Debug("Batch abandoned", logging.Fields{"counter": batch.Counter})
		return false, err
	}
	if err != nil {
		s.engine.recorder.Count(metrics.MetricClassifyErrors, 1,
			"category:"+metrics.CategorizeError(err))
		s.mu.Lock()
		s.errors++
		s.mu.Unlock()
		return false, err
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, elapsed)
	s.predictions = append(s.predictions, pred)
	s.rawLabels = append(s.rawLabels, pred.Label)
	label := pred.Label
	s.advance(s.smoother.Push(&label))
	s.mu.Unlock()

	suppress := s.cfg.Suppression.Matches(pred.Label, pred.Probability)
	s.logger.Debug("Batch classified", logging.Fields{
		"counter":     batch.Counter,
		"label":       pred.Label,
		"probability": pred.Probability,
		"suppress":    suppress,
		"latency_ms":  elapsed.Milliseconds(),
	})
	return suppress, nil
}

// advance feeds the segmenter in step order. Steps skipped by the smoother
// keep the default label.
func (s *session) advance(e smoothing.Emission) {
	if !e.Ready {
		return
	}
	for len(s.smoothed) < e.Step {
		s.pushSmoothed(smoothing.DefaultLabel)
	}
	s.pushSmoothed(e.Label)
}

func (s *session) pushSmoothed(label int) {
	s.smoothed = append(s.smoothed, label)
	if seg, ok := s.segmenter.Push(label); ok {
		s.closeSegment(seg)
	}
}

func (s *session) closeSegment(seg smoothing.Segment) {
	s.segments = append(s.segments, seg)
	s.engine.recorder.Count(metrics.MetricSegmentsClosed, 1)
	if s.engine.onSegment != nil {
		s.engine.onSegment(seg)
	}
}

// finish emits the trailing steps with the final window's mode, so the
// open segment runs to the last step, then closes it
func (s *session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.smoother.Flush() {
		s.advance(e)
	}
	for len(s.smoothed) < len(s.rawLabels) {
		s.pushSmoothed(smoothing.DefaultLabel)
	}
	if seg, ok := s.segmenter.Flush(); ok {
		s.closeSegment(seg)
	}
}

func (s *session) result(stats window.Stats, elapsed time.Duration) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &Result{
		Frames:           stats.Ingested,
		Dropped:          stats.Dropped,
		Batches:          stats.Fired,
		Suppressed:       stats.Suppressed,
		ClassifierErrors: s.errors,
		Predictions:      s.predictions,
		RawLabels:        s.rawLabels,
		Smoothed:         s.smoothed,
		Segments:         s.segments,
		StepSeconds:      s.segmenter.StepSeconds(),
		Latency:          metrics.DurationStats(s.latencies),
		Elapsed:          elapsed,
	}
}
