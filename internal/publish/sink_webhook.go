package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookOptions tunes delivery. Zero values pick defaults.
type WebhookOptions struct {
	Headers        map[string]string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// WebhookSink POSTs events to an HTTP endpoint, retrying with capped
// exponential backoff on network errors and 5xx responses.
type WebhookSink struct {
	url     string
	headers map[string]string
	client  *http.Client
	retries int
	backoff time.Duration
	maxWait time.Duration
}

func NewWebhookSink(url string, opts WebhookOptions) (*WebhookSink, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 100 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 2 * time.Second
	}
	hdr := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		hdr[k] = v
	}
	return &WebhookSink{
		url:     url,
		headers: hdr,
		client:  &http.Client{Timeout: opts.Timeout},
		retries: opts.MaxRetries,
		backoff: opts.BackoffInitial,
		maxWait: opts.BackoffMax,
	}, nil
}

func (s *WebhookSink) Name() string { return "webhook:" + s.url }

func (s *WebhookSink) Deliver(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	wait := s.backoff
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		retry, err := s.post(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == s.retries {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		wait *= 2
		if wait > s.maxWait {
			wait = s.maxWait
		}
	}
	return lastErr
}

func (s *WebhookSink) post(ctx context.Context, payload []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("post: %w", err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	err = fmt.Errorf("status %d body=%q", resp.StatusCode, truncateBody(body))
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, err
}

func (s *WebhookSink) Close(context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
