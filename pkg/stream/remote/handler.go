package remote

import (
	"bytes"
	"context"
	"fmt"

	"github.com/RyanBlaney/spectro-stream/pkg/logging"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
	"github.com/RyanBlaney/spectro-stream/pkg/stream/wav"
)

// Handler fetches a WAV file over HTTP and decodes it like a local file
type Handler struct {
	config     Config
	downloader *Downloader
	decoder    *wav.Handler
	logger     logging.Logger
}

// NewHandler creates an unconnected HTTP handler
func NewHandler(opts common.SourceOptions, config Config) *Handler {
	return &Handler{
		config:     config,
		downloader: NewDownloader(config),
		decoder:    wav.NewHandler(opts),
		logger: logging.WithFields(logging.Fields{
			"component": "http_source",
		}),
	}
}

func (h *Handler) Type() common.SourceType { return common.SourceTypeHTTP }

func (h *Handler) CanHandle(_ context.Context, uri string) bool {
	return DetectFromURL(uri) == common.SourceTypeHTTP
}

// Connect downloads uri and reads its WAV format
func (h *Handler) Connect(ctx context.Context, uri string) error {
	if DetectFromURL(uri) != common.SourceTypeHTTP {
		return common.NewStreamError(common.SourceTypeHTTP, uri, common.ErrCodeUnsupported,
			"not an http or https URL", nil)
	}

	dl, err := h.downloader.Fetch(ctx, uri)
	if err != nil {
		return common.NewStreamError(common.SourceTypeHTTP, uri, common.ErrCodeConnection,
			"failed to download audio", err)
	}
	if !IsWAVContentType(dl.ContentType) {
		return common.NewStreamError(common.SourceTypeHTTP, uri, common.ErrCodeInvalidFormat,
			fmt.Sprintf("unsupported content type %q", dl.ContentType), nil)
	}

	h.logger.Debug("Remote WAV downloaded", logging.Fields{
		"url":          uri,
		"bytes":        len(dl.Body),
		"attempts":     dl.Attempts,
		"elapsed_ms":   dl.Elapsed.Milliseconds(),
		"content_type": dl.ContentType,
	})

	return h.decoder.Open(common.SourceTypeHTTP, uri, bytes.NewReader(dl.Body), nil)
}

func (h *Handler) Metadata() *common.SourceMetadata { return h.decoder.Metadata() }

// ReadAudio returns up to ChunkSize mono samples, or io.EOF at the end
func (h *Handler) ReadAudio(ctx context.Context) (*common.AudioData, error) {
	return h.decoder.ReadAudio(ctx)
}

func (h *Handler) Close() error { return h.decoder.Close() }
