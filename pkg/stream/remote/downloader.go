package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/RyanBlaney/spectro-stream/pkg/logging"
)

// ErrTooLarge is returned when a response body exceeds Config.MaxBytes
var ErrTooLarge = errors.New("response body exceeds size limit")

// StatusError is a non-2xx HTTP response
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Status)
}

// Temporary reports whether a retry can succeed
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Download is a fetched response body
type Download struct {
	Body        []byte
	ContentType string
	Attempts    int
	Elapsed     time.Duration
}

// Downloader fetches whole response bodies with retries
type Downloader struct {
	client *http.Client
	config Config
}

// NewDownloader creates a downloader for config
func NewDownloader(config Config) *Downloader {
	dialer := &net.Dialer{Timeout: config.ConnectionTimeout}
	client := &http.Client{
		Timeout: config.ReadTimeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   config.ConnectionTimeout,
			ResponseHeaderTimeout: config.ReadTimeout,
			MaxIdleConns:          4,
			IdleConnTimeout:       30 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > config.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", config.MaxRedirects)
			}
			return nil
		},
	}
	return &Downloader{client: client, config: config}
}

// Fetch downloads url, retrying transport errors and 5xx/429 responses up
// to MaxAttempts times
func (d *Downloader) Fetch(ctx context.Context, url string) (*Download, error) {
	logger := logging.WithFields(logging.Fields{
		"component":    "http_downloader",
		"function":     "Fetch",
		"url":          url,
		"max_attempts": d.config.MaxAttempts,
	})

	start := time.Now()
	var lastErr error

	for attempt := range d.config.MaxAttempts {
		if attempt > 0 {
			logger.Info("Retrying download", logging.Fields{
				"attempt":    attempt + 1,
				"last_error": lastErr.Error(),
			})

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * d.config.RetryDelay):
			}
		}

		body, contentType, err := d.fetchOnce(ctx, url)
		if err == nil {
			logger.Debug("Download complete", logging.Fields{
				"attempt":      attempt + 1,
				"bytes":        len(body),
				"content_type": contentType,
			})
			return &Download{
				Body:        body,
				ContentType: contentType,
				Attempts:    attempt + 1,
				Elapsed:     time.Since(start),
			}, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		logger.Warn("Download attempt failed", logging.Fields{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed after %d attempts, last error: %w", d.config.MaxAttempts, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range d.config.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if resp.ContentLength > d.config.MaxBytes {
		return nil, "", fmt.Errorf("%w: content length %d", ErrTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.config.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > d.config.MaxBytes {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.config.MaxBytes)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
