package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/overlayrelay/relay/message"
)

// HTTP POSTs each envelope as a one-shot request, the transport of the
// first script generation. Retries are off unless configured.
type HTTP struct {
	url        string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// HTTPOption configures an HTTP sender.
type HTTPOption func(*HTTP)

// WithHTTPRetries sets the maximum number of retries. Default: 0.
func WithHTTPRetries(n int) HTTPOption {
	return func(h *HTTP) { h.maxRetries = n }
}

// WithHTTPBackoff sets the wait before the first retry; it doubles on
// each further retry. Default: 500ms.
func WithHTTPBackoff(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		if d > 0 {
			h.backoff = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithHTTPLogger sets a custom logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHTTP creates an HTTP sender posting to url.
func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		backoff: 500 * time.Millisecond,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *HTTP) Send(ctx context.Context, payload any) error {
	body, err := message.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := h.backoff * (1 << uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("transport: new request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = err
			h.logger.Warn("transport: post failed", "url", h.url, "attempt", attempt+1, "error", err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
		h.logger.Warn("transport: bad status", "url", h.url, "attempt", attempt+1, "status", resp.StatusCode)
	}
	return fmt.Errorf("transport: post %s: %w", h.url, lastErr)
}

func (h *HTTP) Close() error { return nil }
