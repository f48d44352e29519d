package window

import (
	"context"
	"fmt"
	"sync"

	"github.com/RyanBlaney/spectro-stream/pkg/audio/frames"
	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// Mode controls how the batch callback is invoked
type Mode string

const (
	// ModeAwait runs the callback on the ingest path. The next frame is not
	// ingested until the callback returns, so suppression is strictly ordered.
	ModeAwait Mode = "await"
	// ModeAsync runs the callback in its own goroutine. A suppression
	// decision takes effect when the callback returns, at whatever counter
	// the window has reached by then.
	ModeAsync Mode = "async"
)

// Config describes the sliding window
type Config struct {
	NumFrames           int     `json:"num_frames" yaml:"num_frames" mapstructure:"num_frames"`
	FrameLength         int     `json:"frame_length" yaml:"frame_length" mapstructure:"frame_length"`
	OverlapFactor       float64 `json:"overlap_factor" yaml:"overlap_factor" mapstructure:"overlap_factor"`
	SuppressionMillis   float64 `json:"suppression_ms" yaml:"suppression_ms" mapstructure:"suppression_ms"`
	FrameDurationMillis float64 `json:"frame_duration_ms" yaml:"frame_duration_ms" mapstructure:"frame_duration_ms"`
	IncludeRawAudio     bool    `json:"include_raw_audio" yaml:"include_raw_audio" mapstructure:"include_raw_audio"`
	RawFrameLength      int     `json:"raw_frame_length" yaml:"raw_frame_length" mapstructure:"raw_frame_length"`
	Mode                Mode    `json:"mode" yaml:"mode" mapstructure:"mode"`
}

// Validate returns a *common.ConfigError for out-of-range values
func (c *Config) Validate() error {
	if c.NumFrames <= 0 {
		return common.NewConfigError("num_frames", c.NumFrames, "must be positive")
	}
	if c.FrameLength <= 0 {
		return common.NewConfigError("frame_length", c.FrameLength, "must be positive")
	}
	if c.OverlapFactor < 0 || c.OverlapFactor >= 1 {
		return common.NewConfigError("overlap_factor", c.OverlapFactor, "must be in [0, 1)")
	}
	if c.SuppressionMillis < 0 {
		return common.NewConfigError("suppression_ms", c.SuppressionMillis, "must not be negative")
	}
	if c.FrameDurationMillis <= 0 {
		return common.NewConfigError("frame_duration_ms", c.FrameDurationMillis, "must be positive")
	}
	if c.IncludeRawAudio && c.RawFrameLength <= 0 {
		return common.NewConfigError("raw_frame_length", c.RawFrameLength, "must be positive when raw audio is included")
	}
	switch c.Mode {
	case ModeAwait, ModeAsync:
	default:
		return common.NewConfigError("mode", c.Mode, "must be await or async")
	}
	return nil
}

// Period is the firing period in frames for this configuration
func (c *Config) Period() int {
	return Period(c.NumFrames, c.OverlapFactor)
}

// SuppressionWindow is the cooldown in frames for this configuration
func (c *Config) SuppressionWindow() int {
	return SuppressionFrames(c.SuppressionMillis, c.FrameDurationMillis)
}

// Batch is one emitted window: NumFrames frames flattened oldest first, with
// zero frames in front when fewer than NumFrames were available
type Batch struct {
	Data        []float64 `json:"data"`
	Raw         []float64 `json:"raw,omitempty"`
	NumFrames   int       `json:"num_frames"`
	FrameLength int       `json:"frame_length"`
	Available   int       `json:"available"`
	Counter     int       `json:"counter"`
}

// Frame returns frame i of the batch (0 is the oldest)
func (b *Batch) Frame(i int) []float64 {
	return b.Data[i*b.FrameLength : (i+1)*b.FrameLength]
}

// Shape returns the classifier input shape (1, NumFrames, FrameLength, 1)
func (b *Batch) Shape() []int64 {
	return []int64{1, int64(b.NumFrames), int64(b.FrameLength), 1}
}

// Callback receives each emitted batch. Returning suppress=true starts the
// cooldown. An error never starts it.
type Callback func(ctx context.Context, batch *Batch) (suppress bool, err error)

// Stats counts what the window has done since Start
type Stats struct {
	Ingested       int `json:"ingested"`
	Dropped        int `json:"dropped"`
	Fired          int `json:"fired"`
	Suppressed     int `json:"suppressed"`
	CallbackErrors int `json:"callback_errors"`
}

// Option configures a Window
type Option func(*Window)

// WithLogger sets the window logger
func WithLogger(logger logging.Logger) Option {
	return func(w *Window) { w.logger = logger }
}

// WithErrorHandler receives callback errors in async mode
func WithErrorHandler(fn func(error)) Option {
	return func(w *Window) { w.onError = fn }
}

// Window is the streaming window tracker: it owns the frame queue, the
// optional raw queue and the firing tracker. It is either idle or streaming.
type Window struct {
	cfg      Config
	callback Callback
	onError  func(error)
	logger   logging.Logger

	mu         sync.Mutex
	streaming  bool
	generation uint64
	tracker    *Tracker
	queue      []frames.Frame
	rawQueue   []frames.Frame
	stats      Stats

	asyncCtx    context.Context
	asyncCancel context.CancelFunc
	inflight    sync.WaitGroup
}

// New validates cfg and creates an idle window
func New(cfg Config, callback Callback, opts ...Option) (*Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if callback == nil {
		return nil, common.NewConfigError("callback", nil, "must not be nil")
	}

	w := &Window{
		cfg:      cfg,
		callback: callback,
		tracker:  NewTracker(cfg.Period(), cfg.SuppressionWindow()),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.WithFields(logging.Fields{"component": "window"})
	}
	return w, nil
}

// Config returns the window configuration
func (w *Window) Config() Config { return w.cfg }

// Start resets the queue and tracker and begins accepting frames
func (w *Window) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.streaming {
		return common.ErrAlreadyStreaming
	}

	w.streaming = true
	w.generation++
	w.tracker = NewTracker(w.cfg.Period(), w.cfg.SuppressionWindow())
	w.queue = make([]frames.Frame, 0, w.cfg.NumFrames)
	if w.cfg.IncludeRawAudio {
		w.rawQueue = make([]frames.Frame, 0, w.cfg.NumFrames)
	}
	w.stats = Stats{}
	w.asyncCtx, w.asyncCancel = context.WithCancel(context.Background())

	w.logger.Info("Window started", logging.Fields{
		"num_frames":         w.cfg.NumFrames,
		"period":             w.tracker.Period(),
		"suppression_window": w.tracker.SuppressionWindow(),
		"mode":               string(w.cfg.Mode),
	})
	return nil
}

// Stop ends streaming and releases the queues. Async callbacks still in
// flight are cancelled; their results are discarded.
func (w *Window) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.streaming {
		return common.ErrNotStreaming
	}

	w.streaming = false
	w.generation++
	w.queue = nil
	w.rawQueue = nil
	if w.asyncCancel != nil {
		w.asyncCancel()
	}

	w.logger.Info("Window stopped", logging.Fields{
		"ingested": w.stats.Ingested,
		"fired":    w.stats.Fired,
	})
	return nil
}

// Wait blocks until all async callbacks have returned
func (w *Window) Wait() {
	w.inflight.Wait()
}

// IsStreaming reports whether the window accepts frames
func (w *Window) IsStreaming() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.streaming
}

// Stats returns a snapshot of the counters
func (w *Window) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Counter returns the tracker counter
func (w *Window) Counter() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tracker.Counter()
}

// Ingest adds one feature frame (and its raw samples when raw audio is
// included). A silent frame is dropped without advancing the counter. When
// the tracker fires, the batch is handed to the callback; in await mode its
// error is returned.
func (w *Window) Ingest(ctx context.Context, frame frames.Frame, raw []float64) error {
	w.mu.Lock()

	if !w.streaming {
		w.mu.Unlock()
		return common.ErrNotStreaming
	}

	if frame.IsSilent() {
		w.stats.Dropped++
		w.mu.Unlock()
		return nil
	}
	if len(frame) != w.cfg.FrameLength {
		w.mu.Unlock()
		return fmt.Errorf("%w: expected %d values, got %d", common.ErrFrameShape, w.cfg.FrameLength, len(frame))
	}
	if w.cfg.IncludeRawAudio && len(raw) != w.cfg.RawFrameLength {
		w.mu.Unlock()
		return fmt.Errorf("%w: expected %d raw samples, got %d", common.ErrFrameShape, w.cfg.RawFrameLength, len(raw))
	}

	w.stats.Ingested++
	w.queue = pushFIFO(w.queue, frame.Clone(), w.cfg.NumFrames)
	if w.cfg.IncludeRawAudio {
		w.rawQueue = pushFIFO(w.rawQueue, frames.Frame(raw).Clone(), w.cfg.NumFrames)
	}

	if !w.tracker.Tick() {
		w.mu.Unlock()
		return nil
	}

	batch := w.flatten()
	generation := w.generation
	asyncCtx := w.asyncCtx
	w.stats.Fired++
	w.mu.Unlock()

	w.logger.Debug("Window fired", logging.Fields{
		"counter":   batch.Counter,
		"available": batch.Available,
	})

	if w.cfg.Mode == ModeAsync {
		w.inflight.Add(1)
		go func() {
			defer w.inflight.Done()
			suppress, err := w.callback(asyncCtx, batch)
			if err = w.resolve(generation, batch.Counter, suppress, err); err != nil && w.onError != nil {
				w.onError(err)
			}
		}()
		return nil
	}

	suppress, err := w.callback(ctx, batch)
	return w.resolve(generation, batch.Counter, suppress, err)
}

// resolve applies a callback result. Results from a previous streaming
// session are ignored.
func (w *Window) resolve(generation uint64, counter int, suppress bool, err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if generation != w.generation {
		return nil
	}
	if err != nil {
		w.stats.CallbackErrors++
		return fmt.Errorf("batch callback at frame %d: %w", counter, err)
	}
	if !suppress || !w.streaming {
		return nil
	}

	w.tracker.Suppress()
	w.stats.Suppressed++
	w.logger.Debug("Suppression started", logging.Fields{
		"onset":  w.tracker.Counter(),
		"window": w.tracker.SuppressionWindow(),
	})
	return nil
}

func (w *Window) flatten() *Batch {
	batch := &Batch{
		Data:        frames.Flatten(w.queue, w.cfg.NumFrames, w.cfg.FrameLength),
		NumFrames:   w.cfg.NumFrames,
		FrameLength: w.cfg.FrameLength,
		Available:   len(w.queue),
		Counter:     w.tracker.Counter(),
	}
	if w.cfg.IncludeRawAudio {
		batch.Raw = frames.Flatten(w.rawQueue, w.cfg.NumFrames, w.cfg.RawFrameLength)
	}
	return batch
}

func pushFIFO(queue []frames.Frame, f frames.Frame, capacity int) []frames.Frame {
	if len(queue) == capacity {
		copy(queue, queue[1:])
		queue[len(queue)-1] = f
		return queue
	}
	return append(queue, f)
}
