package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTooLarge marks payloads over the configured ceiling so callers can
// degrade to a text-only turn instead of failing it.
type ErrTooLarge struct {
	Size  int64
	Limit int64
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("media payload of %d bytes exceeds limit of %d", e.Size, e.Limit)
}

// Downloader fetches inbound media with a hard size ceiling.
type Downloader struct {
	httpClient *http.Client
	maxBytes   int64
}

func NewDownloader(maxBytes int64) *Downloader {
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &Downloader{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxBytes:   maxBytes,
	}
}

// Fetch downloads url, returning the bytes and the content type the server
// declared. Payloads over the ceiling return *ErrTooLarge.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download media: status %d", resp.StatusCode)
	}
	if resp.ContentLength > d.maxBytes {
		return nil, "", &ErrTooLarge{Size: resp.ContentLength, Limit: d.maxBytes}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, "", &ErrTooLarge{Size: int64(len(data)), Limit: d.maxBytes}
	}
	return data, resp.Header.Get("Content-Type"), nil
}
