package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Transport performs one outbound delivery attempt. Injected so tests can
// run deliveries without a network.
type Transport interface {
	Deliver(ctx context.Context, url string, headers map[string]string, body []byte) error
}

// HTTPTransport posts deliveries over a shared client. A token bucket paces
// all outbound calls so a burst of triggers doesn't stampede subscribers.
type HTTPTransport struct {
	client *http.Client
	pace   *rate.Limiter
}

// NewHTTPTransport builds the production transport. perSecond <= 0 disables
// pacing.
func NewHTTPTransport(perSecond float64, burst int) *HTTPTransport {
	var pace *rate.Limiter
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		pace = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &HTTPTransport{
		client: &http.Client{Timeout: 30 * time.Second},
		pace:   pace,
	}
}

// Deliver posts the body to url. Any non-2xx response counts as a failure.
func (t *HTTPTransport) Deliver(ctx context.Context, url string, headers map[string]string, body []byte) error {
	if t.pace != nil {
		if err := t.pace.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
