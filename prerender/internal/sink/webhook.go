package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// Webhook POSTs JSON notices to a URL with retry and exponential backoff.
// Notices never carry the rendered HTML.
type Webhook struct {
	url        string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay, doubled on each retry.
// Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook sink targeting the given URL.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Send(ctx context.Context, res snapshot.Result) error {
	return w.post(ctx, "result", res.Notice())
}

func (w *Webhook) SendSummary(ctx context.Context, sum snapshot.Summary) error {
	return w.post(ctx, "summary", sum)
}

func (w *Webhook) Close() error { return nil }

// post delivers one envelope. Transport errors, 429 and 5xx are retried;
// any other non-2xx status fails immediately.
func (w *Webhook) post(ctx context.Context, typ string, data any) error {
	body, err := json.Marshal(envelope{Type: typ, Data: data})
	if err != nil {
		return fmt.Errorf("webhook: marshal %s: %w", typ, err)
	}

	var lastErr error
	delay := w.backoff
	for attempt := 1; attempt <= w.maxRetries+1; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}

		code, err := w.do(ctx, typ, body)
		switch {
		case err != nil:
			lastErr = err
			w.logger.Warn("webhook: request failed", "event", typ, "attempt", attempt, "error", err)
		case code/100 == 2:
			return nil
		case code == http.StatusTooManyRequests || code >= 500:
			lastErr = fmt.Errorf("webhook: status %d", code)
			w.logger.Warn("webhook: bad status", "event", typ, "attempt", attempt, "status", code)
		default:
			return fmt.Errorf("webhook: %s rejected: status %d", typ, code)
		}
	}
	return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}

func (w *Webhook) do(ctx context.Context, typ string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Prerender-Event", typ)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
