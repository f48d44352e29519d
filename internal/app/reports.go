package app

import (
	"time"

	"github.com/RyanBlaney/spectro-stream/internal/engine"
	"github.com/RyanBlaney/spectro-stream/pkg/audio/analyzers"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/smoothing"
)

// FileFeatures is the extraction result for one source
type FileFeatures struct {
	URI         string                        `json:"uri" yaml:"uri"`
	SourceType  common.SourceType             `json:"source_type" yaml:"source_type"`
	SampleRate  int                           `json:"sample_rate" yaml:"sample_rate"`
	Duration    float64                       `json:"duration_seconds" yaml:"duration_seconds"`
	Frames      int                           `json:"frames" yaml:"frames"`
	FrameLength int                           `json:"frame_length" yaml:"frame_length"`
	Kind        string                        `json:"kind" yaml:"kind"`
	Descriptors analyzers.SpectralDescriptors `json:"descriptors" yaml:"descriptors"`
	Features    [][]float64                   `json:"features,omitempty" yaml:"features,omitempty"`
	Error       string                        `json:"error,omitempty" yaml:"error,omitempty"`
}

// ExtractReport covers every file of an extract run, in input order
type ExtractReport struct {
	Files      []FileFeatures `json:"files" yaml:"files"`
	Successful int            `json:"successful" yaml:"successful"`
	Failed     int            `json:"failed" yaml:"failed"`
	Elapsed    time.Duration  `json:"elapsed" yaml:"elapsed"`
}

func (r *ExtractReport) Header() []string {
	return []string{"URI", "FRAMES", "LENGTH", "DURATION_S", "CENTROID_HZ", "ROLLOFF_HZ", "FLATNESS", "ENERGY", "ERROR"}
}

func (r *ExtractReport) Rows() [][]any {
	rows := make([][]any, 0, len(r.Files))
	for _, f := range r.Files {
		rows = append(rows, []any{
			f.URI, f.Frames, f.FrameLength, f.Duration,
			f.Descriptors.SpectralCentroid, f.Descriptors.SpectralRolloff,
			f.Descriptors.SpectralFlatness, f.Descriptors.Energy, f.Error,
		})
	}
	return rows
}

// ClassifyReport is the pipeline result for one source
type ClassifyReport struct {
	URI      string         `json:"uri" yaml:"uri"`
	Duration float64        `json:"duration_seconds" yaml:"duration_seconds"`
	Result   *engine.Result `json:"result" yaml:"result"`
	Exports  []string       `json:"exports,omitempty" yaml:"exports,omitempty"`
}

func (r *ClassifyReport) Header() []string { return segmentHeader() }

func (r *ClassifyReport) Rows() [][]any {
	if r.Result == nil {
		return nil
	}
	return segmentRows(r.Result.Segments)
}

// SmoothReport is the result of smoothing a label stream
type SmoothReport struct {
	Raw         []int               `json:"raw" yaml:"raw"`
	Smoothed    []int               `json:"smoothed" yaml:"smoothed"`
	Segments    []smoothing.Segment `json:"segments" yaml:"segments"`
	StepSeconds float64             `json:"step_seconds" yaml:"step_seconds"`
}

func (r *SmoothReport) Header() []string { return segmentHeader() }
func (r *SmoothReport) Rows() [][]any    { return segmentRows(r.Segments) }

// ProbeReport describes an opened source and the levels of the audio read
type ProbeReport struct {
	URI         string                 `json:"uri" yaml:"uri"`
	Metadata    *common.SourceMetadata `json:"metadata" yaml:"metadata"`
	Chunks      int                    `json:"chunks" yaml:"chunks"`
	Samples     int                    `json:"samples" yaml:"samples"`
	Duration    float64                `json:"duration_seconds" yaml:"duration_seconds"`
	Peak        float64                `json:"peak" yaml:"peak"`
	RMS         float64                `json:"rms" yaml:"rms"`
	RMSDecibels float64                `json:"rms_dbfs" yaml:"rms_dbfs"`
	ConnectTime time.Duration          `json:"connect_time" yaml:"connect_time"`
	ReadTime    time.Duration          `json:"read_time" yaml:"read_time"`
}

func (r *ProbeReport) Header() []string {
	return []string{"URI", "TYPE", "RATE", "NATIVE_RATE", "CHANNELS", "SAMPLES", "DURATION_S", "PEAK", "RMS_DBFS"}
}

func (r *ProbeReport) Rows() [][]any {
	md := r.Metadata
	if md == nil {
		md = &common.SourceMetadata{}
	}
	return [][]any{{
		r.URI, string(md.Type), md.SampleRate, md.NativeSampleRate, md.Channels,
		r.Samples, r.Duration, r.Peak, r.RMSDecibels,
	}}
}

func segmentHeader() []string {
	return []string{"LABEL", "NAME", "START_S", "END_S", "STEPS"}
}

func segmentRows(segments []smoothing.Segment) [][]any {
	rows := make([][]any, 0, len(segments))
	for _, s := range segments {
		name := s.Name
		if name == "" {
			name = "-"
		}
		rows = append(rows, []any{s.Label, name, s.Start, s.End, s.Steps()})
	}
	return rows
}
