package remote

import (
	"maps"
	"time"

	"github.com/RyanBlaney/spectro-stream/pkg/stream/common"
)

// Config holds the HTTP settings used to fetch remote WAV files
type Config struct {
	UserAgent         string            `mapstructure:"user_agent" json:"user_agent" yaml:"user_agent"`
	AcceptHeader      string            `mapstructure:"accept_header" json:"accept_header" yaml:"accept_header"`
	ConnectionTimeout time.Duration     `mapstructure:"connection_timeout" json:"connection_timeout" yaml:"connection_timeout"`
	ReadTimeout       time.Duration     `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	MaxRedirects      int               `mapstructure:"max_redirects" json:"max_redirects" yaml:"max_redirects"`
	MaxAttempts       int               `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	RetryDelay        time.Duration     `mapstructure:"retry_delay" json:"retry_delay" yaml:"retry_delay"`
	MaxBytes          int64             `mapstructure:"max_bytes" json:"max_bytes" yaml:"max_bytes"`
	CustomHeaders     map[string]string `mapstructure:"custom_headers" json:"custom_headers" yaml:"custom_headers"`
}

// DefaultConfig returns the default HTTP configuration
func DefaultConfig() Config {
	return Config{
		UserAgent:         "spectro/1.0",
		AcceptHeader:      "audio/wav,audio/x-wav,audio/*;q=0.9,*/*;q=0.5",
		ConnectionTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		MaxRedirects:      5,
		MaxAttempts:       3,
		RetryDelay:        500 * time.Millisecond,
		MaxBytes:          256 << 20,
		CustomHeaders:     make(map[string]string),
	}
}

// Headers returns all HTTP headers that should be set for requests
func (c Config) Headers() map[string]string {
	headers := map[string]string{
		"User-Agent": c.UserAgent,
		"Accept":     c.AcceptHeader,
	}
	maps.Copy(headers, c.CustomHeaders)
	return headers
}

// Validate returns a *common.ConfigError for out-of-range values
func (c Config) Validate() error {
	if c.ConnectionTimeout <= 0 {
		return common.NewConfigError("http.connection_timeout", c.ConnectionTimeout, "must be positive")
	}
	if c.ReadTimeout <= 0 {
		return common.NewConfigError("http.read_timeout", c.ReadTimeout, "must be positive")
	}
	if c.MaxRedirects < 0 {
		return common.NewConfigError("http.max_redirects", c.MaxRedirects, "cannot be negative")
	}
	if c.MaxAttempts <= 0 {
		return common.NewConfigError("http.max_attempts", c.MaxAttempts, "must be positive")
	}
	if c.RetryDelay < 0 {
		return common.NewConfigError("http.retry_delay", c.RetryDelay, "cannot be negative")
	}
	if c.MaxBytes <= 0 {
		return common.NewConfigError("http.max_bytes", c.MaxBytes, "must be positive")
	}
	return nil
}
