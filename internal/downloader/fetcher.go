// Package downloader fetches image bytes over HTTP with browser-like
// headers and maps response statuses onto the error taxonomy, so callers
// can decide what is worth retrying.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"tierup/pkg/errors"
	"tierup/pkg/logger"
)

// Fetcher retrieves the raw bytes behind an image URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher is the plain HTTP implementation. The CDN serving library
// images does not require the browser session, only headers that look
// like one.
type HTTPFetcher struct {
	client  *http.Client
	headers map[string]string
	logger  logger.Logger
}

// NewHTTPFetcher creates a fetcher with the given request timeout. An
// empty userAgent falls back to a desktop Chrome string.
func NewHTTPFetcher(timeout time.Duration, userAgent string, log logger.Logger) *HTTPFetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
			"Sec-Fetch-Dest":  "image",
			"Sec-Fetch-Mode":  "no-cors",
			"Sec-Fetch-Site":  "cross-site",
		},
		logger: log,
	}
}

// SetHeader sets a custom header for subsequent requests.
func (f *HTTPFetcher) SetHeader(key, value string) {
	f.headers[key] = value
}

// Fetch downloads one image. Failures come back classified: network
// errors and 5xx/429 statuses as retryable download errors, client
// statuses like 404 as permanent ones. Context cancellation passes
// through unwrapped.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewWithURL(errors.ErrorTypeDownload,
			fmt.Sprintf("invalid image URL: %v", err), url).NotRetryable()
	}
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	f.logger.DebugWithFields("fetching image", map[string]interface{}{
		"url": url,
	})

	resp, err := f.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.ErrorWithFields("image request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.Wrap(errors.ErrorTypeDownload, "image request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.WarnWithFields("image request returned bad status", map[string]interface{}{
			"url":    url,
			"status": resp.StatusCode,
		})
		return nil, errors.NewWithURL(errors.ErrorTypeDownload,
			fmt.Sprintf("server returned status %d", resp.StatusCode), url).
			WithCode(resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.ErrorWithFields("failed to read image body", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
		return nil, errors.Wrap(errors.ErrorTypeDownload, "failed to read image body", err)
	}

	if len(data) == 0 {
		return nil, errors.NewWithURL(errors.ErrorTypeDownload, "server returned empty body", url)
	}

	f.logger.DebugWithFields("image fetched", map[string]interface{}{
		"url":      url,
		"size":     len(data),
		"duration": duration,
	})

	return data, nil
}
