// Package sanitizer is the client side of the remote sanitization service.
package sanitizer

import (
	"context"
	"fmt"
	"io"

	"github.com/straja-ai/desens/internal/detection"
)

// Client submits text or files to the sanitization service.
type Client interface {
	SanitizeText(ctx context.Context, text string) (*detection.Result, error)
	SanitizeFile(ctx context.Context, filename string, r io.Reader) (*detection.Result, error)
}

// TransportError is returned for non-success responses. The body is kept
// truncated for diagnostics and is never normalized.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// WeightsStatus is the service reply to a risk-weight update.
type WeightsStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the service accepted the update.
func (s *WeightsStatus) OK() bool {
	return s != nil && s.Status == "success"
}

// HealthStatus is the service reply to a health probe.
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
