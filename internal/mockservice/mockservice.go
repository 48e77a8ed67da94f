// Package mockservice is a deterministic stand-in for the remote
// sanitization service. It speaks the same JSON and multipart API so the
// CLI and the regression runner can be exercised without the real backend.
package mockservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/straja-ai/desens/internal/detection"
	"github.com/straja-ai/desens/internal/log"
)

const (
	defaultPort     = 18000
	defaultDelayMS  = 0
	serviceName     = "desensitization-ms"
	maxTextBytes    = 1 << 20
	maxUploadBytes  = 20 << 20
	defaultLanguage = "fr"
)

// Service serves the sanitization API over an Engine.
type Service struct {
	engine *Engine
	delay  time.Duration
	logger *log.Logger
}

// New creates a service. A nil logger discards output.
func New(engine *Engine, delay time.Duration, logger *log.Logger) *Service {
	if engine == nil {
		engine = NewEngine(DefaultWeights())
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{engine: engine, delay: delay, logger: logger}
}

// Engine returns the decision engine behind the service.
func (s *Service) Engine() *Engine { return s.engine }

// Handler returns the service routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sanitize", s.handleSanitize)
	mux.HandleFunc("POST /sanitize-file", s.handleSanitizeFile)
	mux.HandleFunc("POST /config/weights", s.handleWeights)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeNotFoundJSON(w)
	})
	return s.logRequests(mux)
}

// Start launches the mock service.
// If addr is empty, it listens on 127.0.0.1:MOCK_SANITIZER_PORT (default 18000).
// MOCK_DELAY_MS adds a fixed latency to every sanitize call.
// It returns a shutdown function and the base URL (e.g., http://127.0.0.1:18000).
func Start(addr string, logger *log.Logger) (func(context.Context) error, string, error) {
	if strings.TrimSpace(addr) == "" {
		port := strings.TrimSpace(os.Getenv("MOCK_SANITIZER_PORT"))
		if port == "" {
			port = strconv.Itoa(defaultPort)
		}
		addr = "127.0.0.1:" + port
	}

	delay := defaultDelayMS
	if val := strings.TrimSpace(os.Getenv("MOCK_DELAY_MS")); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			delay = parsed
		}
	}
	if logger == nil {
		logger = log.NewNop()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	svc := New(nil, time.Duration(delay)*time.Millisecond, logger)
	srv := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mock sanitizer server error", log.Err(err))
		}
	}()

	baseURL := "http://" + ln.Addr().String()
	logger.Info("mock sanitizer listening", zap.String("url", baseURL), zap.Int("delay_ms", delay))
	return srv.Shutdown, baseURL, nil
}

type sanitizeResponse struct {
	SanitizedText string             `json:"sanitized_text"`
	Decision      detection.Decision `json:"decision"`
	RiskScore     float64            `json:"risk_score"`
	Entities      []detection.Entity `json:"entities"`
	Metadata      map[string]any     `json:"metadata"`
}

func (s *Service) handleSanitize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text *string `json:"text"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBytes))
	if err := dec.Decode(&req); err != nil || req.Text == nil {
		writeUnprocessable(w, "body must be a JSON object with a string field \"text\"")
		return
	}
	text := *req.Text
	meta := map[string]any{
		"source_type": "text",
		"filename":    nil,
		"size":        len(text),
		"lang":        defaultLanguage,
	}
	s.respond(w, r, text, meta)
}

func (s *Service) handleSanitizeFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeUnprocessable(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeUnprocessable(w, "could not read uploaded file")
		return
	}

	sourceType := GuessSourceType(hdr.Filename, hdr.Header.Get("Content-Type"))
	meta := map[string]any{
		"source_type": sourceType,
		"filename":    hdr.Filename,
		"size":        len(content),
		"lang":        defaultLanguage,
	}
	// No document parsers here: content is read as text, invalid bytes dropped.
	text := strings.ToValidUTF8(string(content), "")
	switch sourceType {
	case "pdf":
		meta["pages"] = strings.Count(text, "\f") + 1
	case "docx":
		meta["paragraphs"] = countParagraphs(text)
	}
	s.respond(w, r, text, meta)
}

func (s *Service) respond(w http.ResponseWriter, r *http.Request, text string, meta map[string]any) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}

	a := s.engine.Analyze(text)
	meta["llm_guard"] = map[string]any{
		"enabled":    false,
		"decision":   "ALLOW",
		"risk_score": 0.0,
		"reason":     "guard disabled (stub)",
	}

	s.logger.Debug("sanitized",
		zap.String("decision", string(a.Decision)),
		zap.Float64("risk_score", a.RiskScore),
		zap.Int("entities", len(a.Entities)),
	)
	writeJSON(w, http.StatusOK, sanitizeResponse{
		SanitizedText: a.SanitizedText,
		Decision:      a.Decision,
		RiskScore:     a.RiskScore,
		Entities:      a.Entities,
		Metadata:      meta,
	})
}

func (s *Service) handleWeights(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "error",
			"message": "update failed: " + err.Error(),
		})
		return
	}
	s.engine.SetWeights(req.Weights)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Risk weights updated.",
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"service": serviceName,
	})
}

func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("mock request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

func countParagraphs(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeUnprocessable(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": msg,
	})
}

func writeNotFoundJSON(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"detail": "Not Found",
	})
}
