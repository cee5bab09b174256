package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxDownloadBytes caps a single download. Text exports beyond this are a
// mistake, not a repair target.
const MaxDownloadBytes = 64 << 20

// Client downloads remote text resources for repair.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// Download retrieves url and returns the raw body bytes, untouched by any
// charset handling: classification is the caller's job.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed for %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s for %s", resp.Status, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	if len(body) > MaxDownloadBytes {
		return nil, fmt.Errorf("%s exceeds download cap of %d bytes", url, MaxDownloadBytes)
	}

	return body, nil
}
