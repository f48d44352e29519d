package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// Manager loads finite sources, one at a time or in parallel, through a
// Factory
type Manager struct {
	factory *Factory
	config  *ManagerConfig
}

// ManagerConfig holds configuration for the manager
type ManagerConfig struct {
	// Timeout for loading a single source
	SourceTimeout time.Duration `json:"source_timeout"`
	// Maximum number of sources loaded at once
	MaxConcurrentSources int `json:"max_concurrent_sources"`
	// Sources longer than this are truncated (0 = unlimited)
	MaxDuration time.Duration `json:"max_duration"`
}

// LoadResult is the outcome of loading one source
type LoadResult struct {
	URI        string                 `json:"uri"`
	Index      int                    `json:"index"`
	Samples    []float64              `json:"-"`
	Metadata   *common.SourceMetadata `json:"metadata,omitempty"`
	Error      error                  `json:"-"`
	StartTime  time.Time              `json:"start_time"`
	Duration   time.Duration          `json:"duration"`
	SourceType common.SourceType      `json:"source_type"`
}

// AudioDuration is the length of the loaded samples
func (r *LoadResult) AudioDuration() time.Duration {
	if r.Metadata == nil {
		return 0
	}
	return common.ChunkDuration(len(r.Samples), r.Metadata.SampleRate)
}

// BatchLoadResult contains the results of LoadParallel or LoadSequential,
// in input order
type BatchLoadResult struct {
	Results           []*LoadResult `json:"results"`
	TotalDuration     time.Duration `json:"total_duration"`
	SuccessfulSources int           `json:"successful_sources"`
	FailedSources     int           `json:"failed_sources"`
}

// Err joins the errors of all failed sources
func (b *BatchLoadResult) Err() error {
	var errs []error
	for _, r := range b.Results {
		if r.Error != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.URI, r.Error))
		}
	}
	return errors.Join(errs...)
}

// DefaultManagerConfig returns the default manager configuration
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		SourceTimeout:        60 * time.Second,
		MaxConcurrentSources: 4,
	}
}

// NewManager creates a manager with the default configuration
func NewManager(factory *Factory) *Manager {
	return NewManagerWithConfig(factory, nil)
}

// NewManagerWithConfig creates a manager with a custom configuration
func NewManagerWithConfig(factory *Factory, config *ManagerConfig) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}
	if config.MaxConcurrentSources <= 0 {
		config.MaxConcurrentSources = 1
	}
	return &Manager{
		factory: factory,
		config:  config,
	}
}

// LoadParallel loads every URI using at most MaxConcurrentSources workers.
// A failing source does not cancel the others.
func (m *Manager) LoadParallel(ctx context.Context, uris []string) (*BatchLoadResult, error) {
	if len(uris) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	logger := logging.WithFields(logging.Fields{
		"component":    "source_manager",
		"function":     "LoadParallel",
		"source_count": len(uris),
		"workers":      m.config.MaxConcurrentSources,
	})
	logger.Info("Starting parallel source loading")

	start := time.Now()
	p := pool.NewWithResults[*LoadResult]().
		WithContext(ctx).
		WithMaxGoroutines(m.config.MaxConcurrentSources)

	for i, uri := range uris {
		p.Go(func(ctx context.Context) (*LoadResult, error) {
			return m.loadSingle(ctx, uri, i), nil
		})
	}

	collected, err := p.Wait()
	if err != nil {
		return nil, err
	}

	results := make([]*LoadResult, len(uris))
	for _, r := range collected {
		results[r.Index] = r
	}

	batch := summarize(results, time.Since(start))
	logger.Info("Parallel source loading completed", logging.Fields{
		"total_duration_ms":  batch.TotalDuration.Milliseconds(),
		"successful_sources": batch.SuccessfulSources,
		"failed_sources":     batch.FailedSources,
	})
	return batch, nil
}

// LoadSequential loads the URIs one after another, stopping early if ctx is
// cancelled
func (m *Manager) LoadSequential(ctx context.Context, uris []string) (*BatchLoadResult, error) {
	if len(uris) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	start := time.Now()
	results := make([]*LoadResult, 0, len(uris))
	for i, uri := range uris {
		results = append(results, m.loadSingle(ctx, uri, i))
		if ctx.Err() != nil {
			break
		}
	}
	return summarize(results, time.Since(start)), nil
}

// Load reads one source to the end
func (m *Manager) Load(ctx context.Context, uri string) (*LoadResult, error) {
	r := m.loadSingle(ctx, uri, 0)
	return r, r.Error
}

func summarize(results []*LoadResult, total time.Duration) *BatchLoadResult {
	batch := &BatchLoadResult{Results: results, TotalDuration: total}
	for _, r := range results {
		if r.Error == nil {
			batch.SuccessfulSources++
		} else {
			batch.FailedSources++
		}
	}
	return batch
}

func (m *Manager) loadSingle(ctx context.Context, uri string, index int) *LoadResult {
	result := &LoadResult{
		URI:       uri,
		Index:     index,
		StartTime: time.Now(),
	}
	defer func() { result.Duration = time.Since(result.StartTime) }()

	if m.config.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.SourceTimeout)
		defer cancel()
	}

	handler, err := m.factory.DetectAndCreate(ctx, uri)
	if err != nil {
		result.Error = fmt.Errorf("failed to create handler: %w", err)
		return result
	}
	defer handler.Close()

	result.SourceType = handler.Type()
	if result.SourceType == common.SourceTypeMic {
		result.Error = common.NewStreamError(common.SourceTypeMic, uri, common.ErrCodeUnsupported,
			"live sources cannot be loaded to completion", nil)
		return result
	}

	if err := handler.Connect(ctx, uri); err != nil {
		result.Error = fmt.Errorf("failed to connect to source: %w", err)
		return result
	}
	result.Metadata = handler.Metadata()

	samples, err := ReadAll(ctx, handler, m.config.MaxDuration)
	if err != nil {
		result.Error = fmt.Errorf("failed to read audio: %w", err)
		return result
	}
	result.Samples = samples

	logging.Debug("Source loaded", logging.Fields{
		"component":    "source_manager",
		"uri":          uri,
		"samples":      len(samples),
		"load_time_ms": time.Since(result.StartTime).Milliseconds(),
	})
	return result
}

// ReadAll drains a connected handler until io.EOF, or until maxDuration of
// audio has been read when maxDuration > 0
func ReadAll(ctx context.Context, handler common.SourceHandler, maxDuration time.Duration) ([]float64, error) {
	var limit int
	if md := handler.Metadata(); md != nil && maxDuration > 0 {
		limit = int(maxDuration.Seconds() * float64(md.SampleRate))
	}

	var samples []float64
	for {
		data, err := handler.ReadAudio(ctx)
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
		samples = append(samples, data.PCM...)
		if limit > 0 && len(samples) >= limit {
			return samples[:limit], nil
		}
	}
}

// Factory returns the underlying factory
func (m *Manager) Factory() *Factory {
	return m.factory
}

// Config returns the current manager configuration
func (m *Manager) Config() *ManagerConfig {
	return m.config
}
