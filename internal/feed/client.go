package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable marks an HTTP 5xx from the feed source. The source drops
// out regularly; callers treat this as an expected transient condition,
// not a failure.
var ErrUnavailable = errors.New("feed source unavailable")

// Client downloads the GTFS-realtime TripUpdates snapshot.
type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

// Fetch returns the raw protobuf bytes of the current feed snapshot.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: HTTP %d from %s", resp.StatusCode, c.url)
	}

	const maxFeedSize = 50 * 1024 * 1024
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	if int64(len(b)) > maxFeedSize {
		return nil, fmt.Errorf("feed response exceeds size limit of %d bytes", maxFeedSize)
	}
	return b, nil
}
