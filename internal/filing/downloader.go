package filing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Downloader fetches raw filing markup from a resolved URL, bounded by a
// request timeout and a maximum payload size. Retrying is the scheduler's
// job, not this component's.
type Downloader struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
	userAgent  string
}

func NewDownloader(timeout time.Duration, maxBytes int64, userAgent string) *Downloader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		maxBytes:   maxBytes,
		userAgent:  userAgent,
	}
}

// Fetch downloads the document at url and returns its raw markup.
func (d *Downloader) Fetch(ctx context.Context, url string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request failed: %v", ErrDownload, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %s returned status %d", ErrDownload, url, resp.StatusCode)
	}

	// Read one byte past the limit to distinguish "exactly at the cap" from
	// "over the cap".
	raw, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: read body failed: %v", ErrDownload, err)
	}
	if int64(len(raw)) > d.maxBytes {
		return "", fmt.Errorf("%w: payload exceeds %d bytes", ErrDownload, d.maxBytes)
	}
	return string(raw), nil
}
