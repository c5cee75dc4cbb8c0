package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrFetch wraps every failure to download an image.
var ErrFetch = errors.New("failed to fetch image")

// Fetcher downloads images over HTTP with a bounded timeout and size
type Fetcher struct {
	HTTPClient *http.Client
	MaxBytes   int64
}

// NewFetcher creates a new image fetcher. The timeout bounds the whole
// request including reading the body.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		MaxBytes: maxBytes,
	}
}

// Fetch downloads imageURL and returns the raw bytes
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid URL %q", ErrFetch, imageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	start := time.Now()
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrFetch, resp.StatusCode)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image data: %w", ErrFetch, err)
	}
	if int64(len(imageData)) > f.MaxBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", ErrFetch, f.MaxBytes)
	}

	slog.Debug("Fetched image", "url", imageURL, "bytes", len(imageData), "elapsed", time.Since(start))
	return imageData, nil
}
