package stream

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/memory"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/mic"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/remote"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/wav"
)

// Factory creates source handlers by type and detects the type of a URI
type Factory struct {
	handlers map[common.SourceType]func() common.SourceHandler
	detector common.SourceDetector
	opts     common.SourceOptions
	memory   *memory.Store
	http     remote.Config
	mu       sync.RWMutex
}

// NewFactory creates a factory with the wav, mic, memory and http handlers
// registered
func NewFactory(opts common.SourceOptions) *Factory {
	f := &Factory{
		handlers: make(map[common.SourceType]func() common.SourceHandler),
		detector: NewDetector(),
		opts:     opts,
		memory:   memory.NewStore(),
		http:     remote.DefaultConfig(),
	}

	f.RegisterHandlerFactory(common.SourceTypeWAV, func() common.SourceHandler {
		return wav.NewHandler(f.opts)
	})
	f.RegisterHandlerFactory(common.SourceTypeMic, func() common.SourceHandler {
		return mic.NewHandler(f.opts)
	})
	f.RegisterHandlerFactory(common.SourceTypeMemory, func() common.SourceHandler {
		return memory.NewHandler(f.opts, f.memory)
	})
	f.RegisterHandlerFactory(common.SourceTypeHTTP, func() common.SourceHandler {
		f.mu.RLock()
		defer f.mu.RUnlock()
		return remote.NewHandler(f.opts, f.http)
	})

	return f
}

// Options returns the options handed to every handler
func (f *Factory) Options() common.SourceOptions { return f.opts }

// Memory returns the store backing mem:// URIs
func (f *Factory) Memory() *memory.Store { return f.memory }

// SetHTTPConfig replaces the settings used by http handlers created later
func (f *Factory) SetHTTPConfig(cfg remote.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.http = cfg
}

// SetDetector replaces the URI detector
func (f *Factory) SetDetector(d common.SourceDetector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detector = d
}

// CreateHandler creates a handler for the given source type
func (f *Factory) CreateHandler(sourceType common.SourceType) (common.SourceHandler, error) {
	f.mu.RLock()
	handlerFactory, exists := f.handlers[sourceType]
	f.mu.RUnlock()

	if !exists {
		return nil, common.NewStreamError(
			sourceType, "", common.ErrCodeUnsupported,
			fmt.Sprintf("unsupported source type: %s", sourceType),
			nil,
		)
	}

	return handlerFactory(), nil
}

// DetectAndCreate detects the source type of uri and creates a handler
func (f *Factory) DetectAndCreate(ctx context.Context, uri string) (common.SourceHandler, error) {
	f.mu.RLock()
	detector := f.detector
	f.mu.RUnlock()

	sourceType, err := detector.DetectType(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to detect source type: %w", err)
	}

	return f.CreateHandler(sourceType)
}

// Open detects, creates and connects a handler for uri
func (f *Factory) Open(ctx context.Context, uri string) (common.SourceHandler, error) {
	handler, err := f.DetectAndCreate(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := handler.Connect(ctx, uri); err != nil {
		handler.Close()
		return nil, err
	}
	return handler, nil
}

// RegisterHandlerFactory registers a handler constructor
func (f *Factory) RegisterHandlerFactory(sourceType common.SourceType, factory func() common.SourceHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[sourceType] = factory
}

// SupportedTypes returns the registered source types, sorted
func (f *Factory) SupportedTypes() []common.SourceType {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]common.SourceType, 0, len(f.handlers))
	for sourceType := range f.handlers {
		types = append(types, sourceType)
	}
	slices.Sort(types)
	return types
}
