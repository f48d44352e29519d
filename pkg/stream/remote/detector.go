package remote

import (
	"mime"
	"net/url"
	"slices"
	"strings"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// wavContentTypes are the media types accepted as WAV content
var wavContentTypes = []string{
	"audio/wav",
	"audio/wave",
	"audio/x-wav",
	"audio/vnd.wave",
	"application/octet-stream",
}

// DetectFromURL reports SourceTypeHTTP for http and https URLs
func DetectFromURL(uri string) common.SourceType {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return common.SourceTypeUnsupported
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return common.SourceTypeHTTP
	}
	return common.SourceTypeUnsupported
}

// IsWAVContentType reports whether a Content-Type header can carry WAV
// data. A missing header is accepted and left to the decoder.
func IsWAVContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return slices.Contains(wavContentTypes, strings.ToLower(mediaType))
}
