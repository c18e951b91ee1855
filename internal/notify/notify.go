// Package notify reports job completion back to the backend. This is the
// only path through which the worker touches the backend's video records.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const secretHeader = "x-encoder-secret"

// NotifyError means the status callback failed after the encoded output
// was already durable in storage. Re-issuing the callback is safe and does
// not require re-encoding.
type NotifyError struct {
	URL    string
	Status int
	Err    error
}

func (e *NotifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notify %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("notify %s: unexpected status %d", e.URL, e.Status)
}

func (e *NotifyError) Unwrap() error { return e.Err }

type Client struct {
	base   string
	secret string
	http   *http.Client
	logger zerolog.Logger
}

func New(base, secret string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		secret: secret,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

// Encoded flips the backend's video record to its encoded state. A 404
// means the record was deleted while we were encoding; that is benign and
// reported as success.
func (c *Client) Encoded(ctx context.Context, videoID string) error {
	url := fmt.Sprintf("%s/videos/%s/encoded", c.base, videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return &NotifyError{URL: url, Err: err}
	}
	req.Header.Set(secretHeader, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return &NotifyError{URL: url, Err: err}
	}
	// Drain so the keep-alive connection is reusable for the next callback.
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Info().Str("video_id", videoID).Msg("video record gone, skipping status update")
		return nil
	default:
		return &NotifyError{URL: url, Status: resp.StatusCode}
	}
}
