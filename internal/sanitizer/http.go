package sanitizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/straja-ai/desens/internal/detection"
)

const (
	pathSanitize     = "/sanitize"
	pathSanitizeFile = "/sanitize-file"
	pathWeights      = "/config/weights"
	pathHealth       = "/health"
)

// Options configures an HTTPClient.
type Options struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	MaxResponseBytes int64
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
}

// HTTPClient implements Client against the service's JSON/multipart API.
type HTTPClient struct {
	baseURL          string
	apiKey           string
	client           *http.Client
	maxResponseBytes int64
}

// NewHTTP creates a client for the service at opts.BaseURL.
func NewHTTP(opts Options) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8000"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxResponseBytes := opts.MaxResponseBytes
	if maxResponseBytes <= 0 {
		maxResponseBytes = 4 * 1024 * 1024
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{
		baseURL:          baseURL,
		apiKey:           opts.APIKey,
		client:           hc,
		maxResponseBytes: maxResponseBytes,
	}
}

// BaseURL returns the service root this client talks to.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

type sanitizeRequest struct {
	Text string `json:"text"`
}

// SanitizeText submits a single text for analysis.
func (c *HTTPClient) SanitizeText(ctx context.Context, text string) (*detection.Result, error) {
	body, err := json.Marshal(sanitizeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal sanitize request: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, pathSanitize, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	res, err := detection.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pathSanitize, err)
	}
	return res, nil
}

// SanitizeFile uploads one file as multipart form field "file".
func (c *HTTPClient) SanitizeFile(ctx context.Context, filename string, r io.Reader) (*detection.Result, error) {
	if r == nil {
		return nil, fmt.Errorf("%s: no file content", pathSanitizeFile)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	hdr.Set("Content-Type", contentTypeFor(name))
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read upload %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, pathSanitizeFile, mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	res, err := detection.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pathSanitizeFile, err)
	}
	return res, nil
}

// UpdateWeights replaces the service's per-entity risk weights.
func (c *HTTPClient) UpdateWeights(ctx context.Context, weights map[string]float64) (*WeightsStatus, error) {
	body, err := json.Marshal(struct {
		Weights map[string]float64 `json:"weights"`
	}{Weights: weights})
	if err != nil {
		return nil, fmt.Errorf("marshal weights: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, pathWeights, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out WeightsStatus
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", pathWeights, err)
	}
	return &out, nil
}

// Health probes the service.
func (c *HTTPClient) Health(ctx context.Context) (*HealthStatus, error) {
	raw, err := c.do(ctx, http.MethodGet, pathHealth, "", nil)
	if err != nil {
		return nil, err
	}
	var out HealthStatus
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", pathHealth, err)
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.maxResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Body:       truncateBody(respBody),
		}
	}
	if int64(len(respBody)) > c.maxResponseBytes {
		return nil, fmt.Errorf("%s response exceeded limit (%d bytes)", path, c.maxResponseBytes)
	}
	return respBody, nil
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func truncateBody(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
