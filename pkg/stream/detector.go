package stream

import (
	"context"
	"strings"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/memory"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/mic"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/remote"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/wav"
)

// Detector resolves URIs to source types
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// DetectType tries URI patterns first and falls back to sniffing the file
// header
func (sd *Detector) DetectType(ctx context.Context, uri string) (common.SourceType, error) {
	if err := ctx.Err(); err != nil {
		return common.SourceTypeUnsupported, err
	}

	if sourceType := sd.detectFromURI(uri); sourceType != common.SourceTypeUnsupported {
		return sourceType, nil
	}

	return sd.detectFromHeader(uri)
}

// detectFromURI attempts to detect the source type from URI patterns
func (sd *Detector) detectFromURI(uri string) common.SourceType {
	if st := mic.DetectFromURI(uri); st == common.SourceTypeMic {
		return st
	}
	if st := remote.DetectFromURL(uri); st == common.SourceTypeHTTP {
		return st
	}
	if st := wav.DetectFromURI(uri); st == common.SourceTypeWAV {
		return st
	}
	if strings.HasPrefix(uri, memory.Scheme) {
		return common.SourceTypeMemory
	}
	return common.SourceTypeUnsupported
}

// detectFromHeader reads the file magic for paths without a known extension
func (sd *Detector) detectFromHeader(uri string) (common.SourceType, error) {
	if st := wav.DetectFromHeader(uri); st == common.SourceTypeWAV {
		return st, nil
	}

	return common.SourceTypeUnsupported, common.NewStreamError(
		common.SourceTypeUnsupported, uri, common.ErrCodeUnsupported,
		"unable to determine source type from URI or file header",
		nil,
	)
}
