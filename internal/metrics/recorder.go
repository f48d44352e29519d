package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/RyanBlaney/spectro-stream/pkg/logging"
)

// Metric names
const (
	MetricFramesIngested  = "frames.ingested"
	MetricFramesDropped   = "frames.dropped"
	MetricBatchesFired    = "batches.fired"
	MetricSuppressions    = "batches.suppressed"
	MetricClassifyLatency = "classifier.latency"
	MetricClassifyErrors  = "classifier.errors"
	MetricSegmentsClosed  = "segments.closed"
	MetricSourceSamples   = "source.samples"
)

// Recorder receives pipeline metrics
type Recorder interface {
	Count(name string, value int64, tags ...string)
	Gauge(name string, value float64, tags ...string)
	Timing(name string, value time.Duration, tags ...string)
	Close() error
}

// Config selects and configures the recorder
type Config struct {
	Enabled   bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Address   string   `mapstructure:"address" json:"address" yaml:"address"`
	Namespace string   `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
	Tags      []string `mapstructure:"tags" json:"tags" yaml:"tags"`
}

// NewRecorder returns a DogStatsD recorder when enabled, otherwise a no-op
func NewRecorder(cfg Config, logger logging.Logger) (Recorder, error) {
	if !cfg.Enabled || cfg.Address == "" {
		return NopRecorder{}, nil
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	namespace := cfg.Namespace
	if namespace != "" && !strings.HasSuffix(namespace, ".") {
		namespace += "."
	}

	client, err := statsd.New(cfg.Address,
		statsd.WithNamespace(namespace),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client for %s: %w", cfg.Address, err)
	}

	logger.Info("Metrics enabled", logging.Fields{
		"address":   cfg.Address,
		"namespace": namespace,
	})
	return NewStatsdRecorder(client, logger), nil
}

// StatsdRecorder sends metrics through a DogStatsD client. Send errors are
// logged at debug level; metrics never fail the pipeline.
type StatsdRecorder struct {
	client statsd.ClientInterface
	logger logging.Logger
}

// NewStatsdRecorder wraps an existing client
func NewStatsdRecorder(client statsd.ClientInterface, logger logging.Logger) *StatsdRecorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StatsdRecorder{
		client: client,
		logger: logger.WithFields(logging.Fields{"component": "metrics"}),
	}
}

func (r *StatsdRecorder) Count(name string, value int64, tags ...string) {
	r.check(name, r.client.Count(name, value, tags, 1))
}

func (r *StatsdRecorder) Gauge(name string, value float64, tags ...string) {
	r.check(name, r.client.Gauge(name, value, tags, 1))
}

func (r *StatsdRecorder) Timing(name string, value time.Duration, tags ...string) {
	r.check(name, r.client.Timing(name, value, tags, 1))
}

func (r *StatsdRecorder) Close() error {
	return r.client.Close()
}

func (r *StatsdRecorder) check(name string, err error) {
	if err != nil {
		r.logger.Debug("Metric not sent", logging.Fields{
			"metric": name,
			"error":  err.Error(),
		})
	}
}

// NopRecorder discards everything
type NopRecorder struct{}

func (NopRecorder) Count(string, int64, ...string)          {}
func (NopRecorder) Gauge(string, float64, ...string)        {}
func (NopRecorder) Timing(string, time.Duration, ...string) {}
func (NopRecorder) Close() error                            { return nil }
