package metrics

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// LatencyStats represents statistical measures of a set of durations, in
// milliseconds
type LatencyStats struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	P95    float64 `json:"p95" yaml:"p95"`
	P99    float64 `json:"p99" yaml:"p99"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Count  int     `json:"count" yaml:"count"`
}

// DurationStats summarizes durations
func DurationStats(ds []time.Duration) *LatencyStats {
	ms := make([]float64, len(ds))
	for i, d := range ds {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	return CalculateStats(ms)
}

// CalculateStats calculates statistical measures for a dataset
func CalculateStats(data []float64) *LatencyStats {
	if len(data) == 0 {
		return &LatencyStats{Count: 0}
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	mean, std := stat.PopMeanStdDev(data, nil)
	stats := &LatencyStats{
		Count:  len(data),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
		Mean:   mean,
		StdDev: std,
	}

	return sanitize(stats)
}

// sanitize replaces infinite and NaN values so the stats serialize
func sanitize(s *LatencyStats) *LatencyStats {
	for _, v := range []*float64{&s.Mean, &s.Median, &s.P95, &s.P99, &s.Min, &s.Max, &s.StdDev} {
		if math.IsInf(*v, 0) || math.IsNaN(*v) {
			*v = 0
		}
	}
	return s
}

// percentile linearly interpolates the p-th percentile of sorted data
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// CategorizeError maps an error to a short tag for error counters
func CategorizeError(err error) string {
	if err == nil {
		return "none"
	}

	var se *common.StreamError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case common.IsConfigError(err):
		return "configuration"
	case common.IsLifecycleError(err):
		return "lifecycle"
	case errors.Is(err, common.ErrFrameShape), errors.Is(err, common.ErrBufferLength):
		return "shape"
	case errors.As(err, &se):
		switch se.Code {
		case common.ErrCodeConnection:
			return "connection"
		case common.ErrCodeInvalidFormat, common.ErrCodeDecoding:
			return "format"
		case common.ErrCodeClassifier:
			return "classifier"
		}
	}
	return "other"
}
