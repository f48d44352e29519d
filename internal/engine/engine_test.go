package engine

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/spectro-stream/pkg/audio/config"
	"github.com/RyanBlaney/spectro-stream/pkg/classifier"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/smoothing"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/window"
)

func testConfig() Config {
	return Config{
		Features: config.FeatureConfig{
			SampleRate:   16000,
			BufferLength: 480,
			HopLength:    160,
			MelCount:     40,
			Kind:         config.FeatureMel,
			Window:       config.WindowHann,
			LowFreq:      0,
			HighFreq:     8000,
		},
		Window: window.Config{
			NumFrames:     3,
			OverlapFactor: 0.67,
			Mode:          window.ModeAwait,
		},
		Smoothing: SmoothingConfig{WindowSize: 5},
	}
}

// scripted returns labels in order, then zero
type scripted struct {
	mu     sync.Mutex
	labels []int
	calls  int
	err    error
	closed bool
}

func (s *scripted) Classify(ctx context.Context, batch *window.Batch) (classifier.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return classifier.Prediction{}, s.err
	}
	label := 0
	if s.calls < len(s.labels) {
		label = s.labels[s.calls]
	}
	s.calls++
	return classifier.NewPrediction(classifier.OneHot(label, 3)), nil
}

func (s *scripted) Labels() []string { return []string{"noise", "left", "right"} }

func (s *scripted) Close() error {
	s.closed = true
	return nil
}

func silenceThenTone(seconds float64) []float64 {
	n := int(seconds * 16000)
	out := make([]float64, 2*n)
	for i := range n {
		out[n+i] = 0.5 * math.Sin(2*math.Pi*1000*float64(i)/16000)
	}
	return out
}

func TestProcessSamplesSegments(t *testing.T) {
	cfg := testConfig()
	clf, err := classifier.NewThreshold(classifier.ThresholdConfig{Thresholds: []float64{1e-3}, Frames: 1},
		classifier.NormalizeConfig{}, nil)
	require.NoError(t, err)

	var handled []smoothing.Segment
	e, err := New(cfg, clf, WithSegmentHandler(func(s smoothing.Segment) {
		handled = append(handled, s)
	}))
	require.NoError(t, err)
	defer e.Close()

	res, err := e.ProcessSamples(context.Background(), silenceThenTone(1))
	require.NoError(t, err)

	assert.Equal(t, 198, res.Frames)
	assert.Equal(t, 0, res.Dropped)
	assert.Equal(t, 198, res.Batches)
	require.Len(t, res.RawLabels, 198)
	require.Len(t, res.Smoothed, 198)
	assert.Equal(t, 0, res.RawLabels[97])
	assert.Equal(t, 1, res.RawLabels[98])
	assert.InDelta(t, 0.01, res.StepSeconds, 1e-12)

	// the tone runs to the last step
	require.Len(t, res.Segments, 2)
	assert.Equal(t, 0, res.Segments[0].Label)
	assert.Equal(t, 98, res.Segments[0].EndStep)
	assert.Equal(t, 1, res.Segments[1].Label)
	assert.Equal(t, 98, res.Segments[1].StartStep)
	assert.Equal(t, 198, res.Segments[1].EndStep)
	assert.InDelta(t, 0.98, res.Segments[1].Start, 1e-9)
	assert.InDelta(t, 1.98, res.Segments[1].End, 1e-9)
	assert.Equal(t, 1, res.Smoothed[197])

	assert.Equal(t, res.Segments, handled)
	assert.Equal(t, 198, res.Latency.Count)
}

func TestProcessSamplesSmoothedMatchesSmooth(t *testing.T) {
	cfg := testConfig()
	labels := []int{0, 1, 0, 1, 1, 2, 1, 1, 0, 0}
	e, err := New(cfg, &scripted{labels: labels})
	require.NoError(t, err)

	// 10 frames
	res, err := e.ProcessSamples(context.Background(), make([]float64, 480+160*9))
	require.NoError(t, err)
	require.Equal(t, labels, res.RawLabels)

	want, err := smoothing.Smooth(smoothing.Labels(labels...), 5, smoothing.TieBreakSmallest)
	require.NoError(t, err)
	assert.Equal(t, want, res.Smoothed)
	assert.Equal(t, "left", res.Segments[1].Name)
}

// delayed holds each batch before classifying it
type delayed struct {
	classifier.Classifier
	delay time.Duration
}

func (d *delayed) Classify(ctx context.Context, batch *window.Batch) (classifier.Prediction, error) {
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		return classifier.Prediction{}, ctx.Err()
	}
	return d.Classifier.Classify(ctx, batch)
}

func TestProcessSamplesAsyncKeepsInflightBatches(t *testing.T) {
	cfg := testConfig()
	cfg.Window.Mode = window.ModeAsync
	clf, err := classifier.NewThreshold(classifier.ThresholdConfig{Thresholds: []float64{1e-3}, Frames: 1},
		classifier.NormalizeConfig{}, nil)
	require.NoError(t, err)

	e, err := New(cfg, &delayed{Classifier: clf, delay: 2 * time.Millisecond})
	require.NoError(t, err)
	defer e.Close()

	awaitClf, err := classifier.NewThreshold(classifier.ThresholdConfig{Thresholds: []float64{1e-3}, Frames: 1},
		classifier.NormalizeConfig{}, nil)
	require.NoError(t, err)
	awaitEngine, err := New(testConfig(), awaitClf)
	require.NoError(t, err)
	defer awaitEngine.Close()

	want, err := awaitEngine.ProcessSamples(context.Background(), silenceThenTone(1))
	require.NoError(t, err)
	res, err := e.ProcessSamples(context.Background(), silenceThenTone(1))
	require.NoError(t, err)

	assert.Equal(t, 198, res.Batches)
	assert.Zero(t, res.ClassifierErrors)
	assert.Len(t, res.RawLabels, res.Batches)
	assert.Len(t, res.Smoothed, res.Batches)
	require.NotEmpty(t, res.Segments)
	assert.Equal(t, 198, res.Segments[len(res.Segments)-1].EndStep)

	// completion order may differ, the labels may not
	assert.ElementsMatch(t, want.RawLabels, res.RawLabels)
}

func TestRunCancelledAbandonsInflightBatches(t *testing.T) {
	cfg := testConfig()
	cfg.Window.Mode = window.ModeAsync
	cfg.TickInterval = time.Millisecond
	e, err := New(cfg, &delayed{Classifier: &scripted{}, delay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := e.Run(ctx, &liveSource{chunks: 3})
	require.NoError(t, err)
	assert.Positive(t, res.Batches)
	assert.Empty(t, res.RawLabels)
	assert.Zero(t, res.ClassifierErrors)
}

func TestProcessSamplesSuppression(t *testing.T) {
	cfg := testConfig()
	cfg.Window.SuppressionMillis = 20
	cfg.Suppression = SuppressionConfig{Labels: []int{1}, MinProbability: 0.5}

	e, err := New(cfg, &scripted{labels: []int{1}})
	require.NoError(t, err)

	res, err := e.ProcessSamples(context.Background(), make([]float64, 480+160*9))
	require.NoError(t, err)
	assert.Equal(t, 10, res.Frames)
	assert.Equal(t, 8, res.Batches)
	assert.Equal(t, 1, res.Suppressed)
}

func TestProcessSamplesClassifierError(t *testing.T) {
	boom := errors.New("boom")
	e, err := New(testConfig(), &scripted{err: boom})
	require.NoError(t, err)

	_, err = e.ProcessSamples(context.Background(), make([]float64, 960))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestProcessSamplesCancelled(t *testing.T) {
	e, err := New(testConfig(), &scripted{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ProcessSamples(ctx, make([]float64, 960))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessSamplesShortInput(t *testing.T) {
	e, err := New(testConfig(), &scripted{})
	require.NoError(t, err)

	res, err := e.ProcessSamples(context.Background(), make([]float64, 100))
	require.NoError(t, err)
	assert.Zero(t, res.Frames)
	assert.Empty(t, res.Segments)
}

func TestProcessSamplesRawAudio(t *testing.T) {
	cfg := testConfig()
	cfg.Window.IncludeRawAudio = true

	var rawLen atomic.Int64
	clf := &rawProbe{n: &rawLen}
	e, err := New(cfg, clf)
	require.NoError(t, err)

	_, err = e.ProcessSamples(context.Background(), make([]float64, 960))
	require.NoError(t, err)
	assert.Equal(t, int64(3*480), rawLen.Load())
}

type rawProbe struct {
	scripted
	n *atomic.Int64
}

func (r *rawProbe) Classify(ctx context.Context, batch *window.Batch) (classifier.Prediction, error) {
	r.n.Store(int64(len(batch.Raw)))
	return r.scripted.Classify(ctx, batch)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(testConfig(), nil)
	assert.True(t, common.IsConfigError(err))

	cfg := testConfig()
	cfg.Smoothing.WindowSize = 2
	_, err = New(cfg, &scripted{})
	assert.True(t, common.IsConfigError(err))

	cfg = testConfig()
	cfg.Window.FrameLength = 13
	e, err := New(cfg, &scripted{})
	require.NoError(t, err)
	_, err = e.ProcessSamples(context.Background(), make([]float64, 960))
	assert.True(t, common.IsConfigError(err))
}

func TestResolveDerivedValues(t *testing.T) {
	cfg := testConfig()
	resolved, err := cfg.Resolve(40, false)
	require.NoError(t, err)
	assert.Equal(t, 40, resolved.Window.FrameLength)
	assert.InDelta(t, 10.0, resolved.Window.FrameDurationMillis, 1e-9)
	assert.Equal(t, 160, resolved.StepSizeSamples)

	cfg.Window.OverlapFactor = 0
	resolved, err = cfg.Resolve(40, true)
	require.NoError(t, err)
	// live frames advance by one FFT length: 512 samples = 32ms
	assert.InDelta(t, 32.0, resolved.Window.FrameDurationMillis, 1e-9)
	assert.Equal(t, 3*512, resolved.StepSizeSamples)
}

func TestCloseReleasesClassifier(t *testing.T) {
	clf := &scripted{}
	e, err := New(testConfig(), clf)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.True(t, clf.closed)
}

// liveSource yields a fixed number of chunks, then either reports EOF or
// blocks until cancelled
type liveSource struct {
	chunks int
	eof    bool
	reads  int
	closed atomic.Bool
}

func (s *liveSource) Type() common.SourceType                { return common.SourceTypeMemory }
func (s *liveSource) CanHandle(context.Context, string) bool { return true }
func (s *liveSource) Connect(context.Context, string) error  { return nil }
func (s *liveSource) Metadata() *common.SourceMetadata {
	return &common.SourceMetadata{SampleRate: 16000}
}
func (s *liveSource) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *liveSource) ReadAudio(ctx context.Context) (*common.AudioData, error) {
	if s.reads < s.chunks {
		s.reads++
		pcm := make([]float64, 480)
		for i := range pcm {
			pcm[i] = math.Sin(float64(i))
		}
		return &common.AudioData{PCM: pcm, SampleRate: 16000}, nil
	}
	if s.eof {
		return nil, io.EOF
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunUntilCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 2 * time.Millisecond
	e, err := New(cfg, &scripted{})
	require.NoError(t, err)

	src := &liveSource{chunks: 3}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	res, err := e.Run(ctx, src)
	require.NoError(t, err)
	assert.True(t, src.closed.Load())
	assert.Positive(t, res.Frames)
	assert.Equal(t, res.Frames, res.Batches)
	assert.Len(t, res.RawLabels, res.Batches)
}

func TestRunSourceExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = time.Millisecond
	e, err := New(cfg, &scripted{})
	require.NoError(t, err)

	src := &liveSource{chunks: 2, eof: true}
	_, err = e.Run(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, src.closed.Load())
}

func TestRunPropagatesClassifierError(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = time.Millisecond
	boom := errors.New("boom")
	e, err := New(cfg, &scripted{err: boom})
	require.NoError(t, err)

	src := &liveSource{chunks: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = e.Run(ctx, src)
	assert.ErrorIs(t, err, boom)
	assert.True(t, src.closed.Load())
}

func TestSampleRing(t *testing.T) {
	r := newSampleRing(4)
	_, ok := r.Latest(3)
	assert.False(t, ok)

	r.Write([]float64{1, 2})
	r.Write([]float64{3, 4, 5})
	got, ok := r.Latest(3)
	require.True(t, ok)
	assert.Equal(t, []float64{3, 4, 5}, got)

	r.Write([]float64{6, 7, 8, 9, 10, 11})
	got, ok = r.Latest(4)
	require.True(t, ok)
	assert.Equal(t, []float64{8, 9, 10, 11}, got)
	assert.Equal(t, int64(11), r.Written())

	_, ok = r.Latest(5)
	assert.False(t, ok)
}
