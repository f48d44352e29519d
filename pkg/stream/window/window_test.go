package window

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/RyanBlaney/spectro-stream/pkg/audio/frames"
	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

type recorder struct {
	mu       sync.Mutex
	batches  []*Batch
	suppress func(b *Batch) bool
	err      error
}

func (r *recorder) callback(_ context.Context, b *Batch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	if r.err != nil {
		return false, r.err
	}
	if r.suppress != nil {
		return r.suppress(b), nil
	}
	return false, nil
}

func (r *recorder) counters() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.batches))
	for i, b := range r.batches {
		out[i] = b.Counter
	}
	return out
}

func frameOf(v float64, n int) frames.Frame {
	f := make(frames.Frame, n)
	for i := range f {
		f[i] = v
	}
	return f
}

func baseConfig() Config {
	return Config{
		NumFrames:           3,
		FrameLength:         2,
		OverlapFactor:       0.999,
		SuppressionMillis:   0,
		FrameDurationMillis: 10,
		Mode:                ModeAwait,
	}
}

type WindowTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *WindowTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *WindowTestSuite) newWindow(cfg Config, rec *recorder, opts ...Option) *Window {
	opts = append(opts, WithLogger(logging.NewNop()))
	w, err := New(cfg, rec.callback, opts...)
	s.Require().NoError(err)
	s.Require().NoError(w.Start())
	return w
}

func (s *WindowTestSuite) TestFiresEveryFrameWithPeriodOne() {
	rec := &recorder{}
	w := s.newWindow(baseConfig(), rec)

	for i := 1; i <= 5; i++ {
		s.Require().NoError(w.Ingest(s.ctx, frameOf(float64(i), 2), nil))
	}
	s.Equal([]int{1, 2, 3, 4, 5}, rec.counters())

	stats := w.Stats()
	s.Equal(5, stats.Ingested)
	s.Equal(5, stats.Fired)
}

func (s *WindowTestSuite) TestZeroPaddingBeforeFullWindow() {
	rec := &recorder{}
	w := s.newWindow(baseConfig(), rec)

	s.Require().NoError(w.Ingest(s.ctx, frames.Frame{1, 2}, nil))
	s.Require().Len(rec.batches, 1)

	b := rec.batches[0]
	s.Equal([]float64{0, 0, 0, 0, 1, 2}, b.Data)
	s.Equal(1, b.Available)
	s.Equal([]int64{1, 3, 2, 1}, b.Shape())

	s.Require().NoError(w.Ingest(s.ctx, frames.Frame{3, 4}, nil))
	s.Require().NoError(w.Ingest(s.ctx, frames.Frame{5, 6}, nil))
	s.Require().NoError(w.Ingest(s.ctx, frames.Frame{7, 8}, nil))

	last := rec.batches[3]
	s.Equal([]float64{3, 4, 5, 6, 7, 8}, last.Data)
	s.Equal(3, last.Available)
	s.Equal([]float64{3, 4}, last.Frame(0))
}

func (s *WindowTestSuite) TestSilentFramesDropped() {
	rec := &recorder{}
	w := s.newWindow(baseConfig(), rec)

	s.Require().NoError(w.Ingest(s.ctx, frames.Frame{}, nil))
	s.Require().NoError(w.Ingest(s.ctx, frames.Frame{math.Inf(-1), 0}, nil))
	s.Require().NoError(w.Ingest(s.ctx, frames.Silent(2), nil))

	s.Equal(0, w.Counter())
	s.Empty(rec.batches)
	s.Equal(3, w.Stats().Dropped)
}

func (s *WindowTestSuite) TestSuppressionGap() {
	cfg := baseConfig()
	cfg.SuppressionMillis = 30 // three frames at 10ms
	rec := &recorder{suppress: func(b *Batch) bool { return b.Counter == 2 }}
	w := s.newWindow(cfg, rec)

	for i := 0; i < 8; i++ {
		s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))
	}
	// onset 2, window 3: frames 3..5 are quiet, 6 fires again
	s.Equal([]int{1, 2, 6, 7, 8}, rec.counters())
	s.Equal(1, w.Stats().Suppressed)
}

func (s *WindowTestSuite) TestFailingCallbackDoesNotSuppress() {
	cfg := baseConfig()
	cfg.SuppressionMillis = 1000
	boom := errors.New("inference failed")
	rec := &recorder{err: boom, suppress: func(*Batch) bool { return true }}
	w := s.newWindow(cfg, rec)

	err := w.Ingest(s.ctx, frameOf(1, 2), nil)
	s.ErrorIs(err, boom)

	rec.err = nil
	rec.suppress = nil
	s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))
	s.Equal([]int{1, 2}, rec.counters())
	s.Equal(1, w.Stats().CallbackErrors)
	s.Equal(0, w.Stats().Suppressed)
}

func (s *WindowTestSuite) TestFrameShapeMismatch() {
	rec := &recorder{}
	w := s.newWindow(baseConfig(), rec)

	err := w.Ingest(s.ctx, frames.Frame{1, 2, 3}, nil)
	s.ErrorIs(err, common.ErrFrameShape)
	s.Equal(0, w.Counter())
}

func (s *WindowTestSuite) TestRawAudioQueue() {
	cfg := baseConfig()
	cfg.IncludeRawAudio = true
	cfg.RawFrameLength = 4
	rec := &recorder{}
	w := s.newWindow(cfg, rec)

	err := w.Ingest(s.ctx, frames.Frame{1, 1}, []float64{1, 2})
	s.ErrorIs(err, common.ErrFrameShape)

	s.Require().NoError(w.Ingest(s.ctx, frames.Frame{1, 1}, []float64{1, 2, 3, 4}))
	s.Require().Len(rec.batches, 1)
	s.Equal([]float64{0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4}, rec.batches[0].Raw)

	for i := 0; i < 3; i++ {
		s.Require().NoError(w.Ingest(s.ctx, frames.Frame{1, 1}, []float64{5, 6, 7, 8}))
	}
	s.Len(rec.batches[3].Raw, 12)
	s.Equal([]float64{5, 6, 7, 8}, rec.batches[3].Raw[8:])
}

func (s *WindowTestSuite) TestLifecycle() {
	rec := &recorder{}
	w, err := New(baseConfig(), rec.callback, WithLogger(logging.NewNop()))
	s.Require().NoError(err)

	s.ErrorIs(w.Stop(), common.ErrNotStreaming)
	s.ErrorIs(w.Ingest(s.ctx, frameOf(1, 2), nil), common.ErrNotStreaming)

	s.Require().NoError(w.Start())
	s.True(w.IsStreaming())
	s.ErrorIs(w.Start(), common.ErrAlreadyStreaming)
	s.True(w.IsStreaming())

	s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))
	s.Require().NoError(w.Stop())
	s.False(w.IsStreaming())
	s.True(common.IsLifecycleError(w.Stop()))

	// restart begins from a clean queue and counter
	s.Require().NoError(w.Start())
	s.Equal(0, w.Counter())
	s.Require().NoError(w.Ingest(s.ctx, frames.Frame{9, 9}, nil))
	s.Equal([]float64{0, 0, 0, 0, 9, 9}, rec.batches[len(rec.batches)-1].Data)
}

func (s *WindowTestSuite) TestAsyncSuppressionAppliesOnResolve() {
	cfg := baseConfig()
	cfg.Mode = ModeAsync
	cfg.SuppressionMillis = 1000

	release := make(chan struct{})
	var calls sync.WaitGroup
	calls.Add(1)
	first := true
	var mu sync.Mutex

	w, err := New(cfg, func(ctx context.Context, b *Batch) (bool, error) {
		mu.Lock()
		isFirst := first
		first = false
		mu.Unlock()
		if isFirst {
			calls.Done()
			<-release
			return true, nil
		}
		return false, nil
	}, WithLogger(logging.NewNop()))
	s.Require().NoError(err)
	s.Require().NoError(w.Start())

	s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))
	calls.Wait()

	// ingestion continues while the first callback is pending
	s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))
	s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))

	close(release)
	s.Eventually(func() bool { return w.Stats().Suppressed == 1 }, time.Second, 5*time.Millisecond)

	// the cooldown starts at the counter reached when the callback resolved
	fired := w.Stats().Fired
	s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))
	s.Equal(fired, w.Stats().Fired)

	s.Require().NoError(w.Stop())
	w.Wait()
}

func (s *WindowTestSuite) TestStopDuringAsyncCallback() {
	cfg := baseConfig()
	cfg.Mode = ModeAsync
	cfg.SuppressionMillis = 1000

	entered := make(chan struct{})
	var errs []error
	var mu sync.Mutex

	w, err := New(cfg, func(ctx context.Context, b *Batch) (bool, error) {
		close(entered)
		<-ctx.Done()
		return true, nil
	}, WithLogger(logging.NewNop()), WithErrorHandler(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}))
	s.Require().NoError(err)
	s.Require().NoError(w.Start())
	s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))

	<-entered
	s.Require().NoError(w.Stop())
	w.Wait()

	s.Equal(0, w.Stats().Suppressed)
	mu.Lock()
	s.Empty(errs)
	mu.Unlock()
}

func (s *WindowTestSuite) TestStopDiscardsCancelledCallbackError() {
	cfg := baseConfig()
	cfg.Mode = ModeAsync

	entered := make(chan struct{})
	called := make(chan error, 1)
	w, err := New(cfg, func(ctx context.Context, b *Batch) (bool, error) {
		close(entered)
		<-ctx.Done()
		return false, ctx.Err()
	}, WithLogger(logging.NewNop()), WithErrorHandler(func(err error) { called <- err }))
	s.Require().NoError(err)
	s.Require().NoError(w.Start())
	s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))

	<-entered
	s.Require().NoError(w.Stop())
	w.Wait()

	s.Empty(called)
	s.Equal(0, w.Stats().CallbackErrors)
}

func (s *WindowTestSuite) TestWaitBeforeStopKeepsInflightResults() {
	cfg := baseConfig()
	cfg.Mode = ModeAsync

	var done atomic.Int32
	w, err := New(cfg, func(ctx context.Context, b *Batch) (bool, error) {
		time.Sleep(5 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return false, err
		}
		done.Add(1)
		return false, nil
	}, WithLogger(logging.NewNop()))
	s.Require().NoError(err)
	s.Require().NoError(w.Start())
	for range 4 {
		s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))
	}

	w.Wait()
	s.Require().NoError(w.Stop())
	s.Equal(int32(w.Stats().Fired), done.Load())
	s.Equal(0, w.Stats().CallbackErrors)
}

func (s *WindowTestSuite) TestAsyncErrorHandler() {
	cfg := baseConfig()
	cfg.Mode = ModeAsync
	boom := errors.New("boom")

	got := make(chan error, 1)
	w, err := New(cfg, func(context.Context, *Batch) (bool, error) {
		return true, boom
	}, WithLogger(logging.NewNop()), WithErrorHandler(func(err error) { got <- err }))
	s.Require().NoError(err)
	s.Require().NoError(w.Start())

	s.Require().NoError(w.Ingest(s.ctx, frameOf(1, 2), nil))
	w.Wait()

	select {
	case err := <-got:
		s.ErrorIs(err, boom)
	case <-time.After(time.Second):
		s.Fail("error handler not called")
	}
	s.Equal(0, w.Stats().Suppressed)
	s.Require().NoError(w.Stop())
}

func TestWindowTestSuite(t *testing.T) {
	suite.Run(t, new(WindowTestSuite))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"no frames", func(c *Config) { c.NumFrames = 0 }, "num_frames"},
		{"no frame length", func(c *Config) { c.FrameLength = 0 }, "frame_length"},
		{"overlap one", func(c *Config) { c.OverlapFactor = 1 }, "overlap_factor"},
		{"negative overlap", func(c *Config) { c.OverlapFactor = -0.1 }, "overlap_factor"},
		{"negative suppression", func(c *Config) { c.SuppressionMillis = -1 }, "suppression_ms"},
		{"zero frame duration", func(c *Config) { c.FrameDurationMillis = 0 }, "frame_duration_ms"},
		{"raw without length", func(c *Config) { c.IncludeRawAudio = true }, "raw_frame_length"},
		{"unknown mode", func(c *Config) { c.Mode = "batch" }, "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var ce *common.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	_, err := New(baseConfig(), nil)
	assert.True(t, common.IsConfigError(err))
}

func TestConfigDerived(t *testing.T) {
	cfg := Config{NumFrames: 3, OverlapFactor: 0.999, SuppressionMillis: 500, FrameDurationMillis: 23.2}
	assert.Equal(t, 1, cfg.Period())
	assert.Equal(t, 22, cfg.SuppressionWindow())
}
