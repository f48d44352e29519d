package common

import (
	"errors"
	"fmt"
)

// Common error codes
const (
	ErrCodeInvalidConfig = "INVALID_CONFIG"
	ErrCodeLifecycle     = "LIFECYCLE"
	ErrCodeConnection    = "CONNECTION_FAILED"
	ErrCodeInvalidFormat = "INVALID_FORMAT"
	ErrCodeDecoding      = "DECODING_FAILED"
	ErrCodeUnsupported   = "UNSUPPORTED_SOURCE"
	ErrCodeClassifier    = "CLASSIFIER_FAILED"
)

var (
	// ErrAlreadyStreaming is returned by Start on a streaming window
	ErrAlreadyStreaming = errors.New("window is already streaming")
	// ErrNotStreaming is returned by Stop (and Ingest) on an idle window
	ErrNotStreaming = errors.New("window is not streaming")
	// ErrFrameShape is returned when a frame does not match the configured length
	ErrFrameShape = errors.New("feature frame has unexpected length")
	// ErrBufferLength is returned when a transform input is not bufferLength samples
	ErrBufferLength = errors.New("sample buffer has unexpected length")
	// ErrSourceClosed is returned when reading from a closed source
	ErrSourceClosed = errors.New("source is closed")
)

// StreamError represents source-related errors
type StreamError struct {
	Type    SourceType `json:"type"`
	URI     string     `json:"uri"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Cause   error      `json:"-"`
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// NewStreamError creates a new source error
func NewStreamError(sourceType SourceType, uri, code, message string, cause error) *StreamError {
	return &StreamError{
		Type:    sourceType,
		URI:     uri,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigError reports an invalid configuration value. It is raised once,
// when a component is constructed, and never while processing frames.
type ConfigError struct {
	Field  string `json:"field"`
	Value  any    `json:"value"`
	Reason string `json:"reason"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Code returns ErrCodeInvalidConfig
func (e *ConfigError) Code() string {
	return ErrCodeInvalidConfig
}

// NewConfigError creates a configuration error for field
func NewConfigError(field string, value any, reason string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

// IsConfigError reports whether err wraps a *ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsLifecycleError reports whether err is a start/stop ordering error
func IsLifecycleError(err error) bool {
	return errors.Is(err, ErrAlreadyStreaming) || errors.Is(err, ErrNotStreaming)
}
