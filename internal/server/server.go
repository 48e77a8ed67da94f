// Package server exposes the workbench over a local JSON API.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/straja-ai/desens/internal/auth"
	"github.com/straja-ai/desens/internal/config"
	"github.com/straja-ai/desens/internal/detection"
	"github.com/straja-ai/desens/internal/log"
	"github.com/straja-ai/desens/internal/present"
	"github.com/straja-ai/desens/internal/regression"
	"github.com/straja-ai/desens/internal/sanitizer"
	"github.com/straja-ai/desens/internal/workbench"
)

const maxTextBytes = 1 << 20

// Server wraps the HTTP handlers fronting a Workbench.
type Server struct {
	mux    *http.ServeMux
	cfg    config.ServerConfig
	wb     *workbench.Workbench
	auth   *auth.Auth
	runs   *runStore
	logger *log.Logger
}

type clientKey struct{}

// New creates a server with all routes registered.
func New(cfg config.ServerConfig, wb *workbench.Workbench, authz *auth.Auth, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = config.DefaultMaxUploadBytes
	}
	s := &Server{
		mux:    http.NewServeMux(),
		cfg:    cfg,
		wb:     wb,
		auth:   authz,
		runs:   newRunStore(0),
		logger: logger.Named("server"),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("POST /api/sanitize", s.requireAuth(http.HandlerFunc(s.handleSanitize)))
	s.mux.Handle("POST /api/sanitize-file", s.requireAuth(http.HandlerFunc(s.handleSanitizeFile)))
	s.mux.Handle("POST /api/regression", s.requireAuth(http.HandlerFunc(s.handleRunRegression)))
	s.mux.Handle("GET /api/regression", s.requireAuth(http.HandlerFunc(s.handleLastRegression)))
	s.mux.Handle("GET /api/regression/runs/{id}", s.requireAuth(http.HandlerFunc(s.handleRunStatus)))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("workbench api listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"runner": s.wb.Runner().State().String(),
	})
}

type sanitizeRequest struct {
	Text string `json:"text"`
}

type resultResponse struct {
	Result      *detection.Result  `json:"result"`
	View        present.ResultView `json:"view"`
	FileDetails string             `json:"file_details,omitempty"`
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTextBytes)
	var req sanitizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_request")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty", "invalid_request")
		return
	}

	res, err := s.wb.SubmitText(r.Context(), req.Text)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: res, View: present.Result(res)})
}

func (s *Server) handleSanitizeFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large", "invalid_request")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required", "invalid_request")
		return
	}
	defer file.Close()

	res, err := s.wb.SubmitFile(r.Context(), filepath.Base(header.Filename), file)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{
		Result:      res,
		View:        present.Result(res),
		FileDetails: present.FileDetails(res.Metadata),
	})
}

type regressionResponse struct {
	State   string                  `json:"state"`
	Summary string                  `json:"summary,omitempty"`
	Report  *present.ReportDocument `json:"report"`
}

func (s *Server) handleRunRegression(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	// Read fully first so a slow upload never holds the runner.
	data, err := io.ReadAll(r.Body)
	if err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "dataset too large", "invalid_request")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body", "invalid_request")
		return
	}

	if parseBoolQuery(r.URL.Query().Get("async")) {
		s.startBackgroundRun(w, r, data)
		return
	}

	rep, err := s.wb.RunDataset(r.Context(), bytes.NewReader(data))
	if err != nil {
		var derr *regression.DatasetError
		switch {
		case errors.Is(err, regression.ErrBusy):
			writeError(w, http.StatusConflict, err.Error(), "busy")
		case errors.As(err, &derr):
			writeError(w, http.StatusBadRequest, err.Error(), "dataset_error")
		default:
			s.writeServiceError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, reportResponse(s.wb.Runner().State(), rep))
}

func (s *Server) handleLastRegression(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, reportResponse(s.wb.Runner().State(), s.wb.Runner().Last()))
}

// startBackgroundRun validates the dataset and claims the runner before
// replying, then evaluates it detached from the request. Progress is polled
// through handleRunStatus.
func (s *Server) startBackgroundRun(w http.ResponseWriter, r *http.Request, data []byte) {
	run, err := s.wb.StartDataset(data)
	if err != nil {
		var derr *regression.DatasetError
		switch {
		case errors.Is(err, regression.ErrBusy):
			writeError(w, http.StatusConflict, err.Error(), "busy")
		case errors.As(err, &derr):
			writeError(w, http.StatusBadRequest, err.Error(), "dataset_error")
		default:
			writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
		}
		return
	}

	id := s.runs.Start(clientFrom(r.Context()))
	go func() {
		s.runs.Finish(id, run(context.Background()), nil)
	}()

	w.Header().Set("Location", "/api/regression/runs/"+id)
	writeJSON(w, http.StatusAccepted, runStatusResponse{ID: id, Status: runPending})
}

type runStatusResponse struct {
	ID      string                  `json:"id"`
	Status  string                  `json:"status"`
	Summary string                  `json:"summary,omitempty"`
	Report  *present.ReportDocument `json:"report"`
	Error   string                  `json:"error,omitempty"`
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	entry, ok := s.runs.Get(id)
	if !ok || entry.owner != clientFrom(r.Context()) {
		writeError(w, http.StatusNotFound, "unknown run", "not_found")
		return
	}

	resp := runStatusResponse{ID: id, Status: entry.status, Error: entry.err}
	if entry.status == runCompleted && entry.report != nil {
		doc := present.Document(entry.report)
		resp.Report = &doc
		resp.Summary = present.Report(entry.report).Summary
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseBoolQuery(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func reportResponse(state regression.State, rep *regression.Report) regressionResponse {
	out := regressionResponse{State: state.String()}
	if rep != nil {
		doc := present.Document(rep)
		out.Report = &doc
		out.Summary = present.Report(rep).Summary
	}
	return out
}

// --- Auth ---

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		token := auth.BearerToken(r)
		client, ok := s.auth.Lookup(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key", "authentication_error")
			return
		}
		s.logger.Debug("request", zap.String("client", client.Name), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, client.Name)))
	})
}

func clientFrom(ctx context.Context) string {
	name, _ := ctx.Value(clientKey{}).(string)
	return name
}

// --- Errors ---

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Status  int    `json:"status,omitempty"`
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var (
		terr *sanitizer.TransportError
		nerr *detection.NormalizationError
	)
	switch {
	case errors.As(err, &terr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
			Message: "sanitization service error",
			Type:    "service_error",
			Status:  terr.StatusCode,
		}})
	case errors.As(err, &nerr):
		writeError(w, http.StatusBadGateway, "malformed response from sanitization service", "normalization_error")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "sanitization service timed out", "service_error")
	default:
		s.logger.Warn("unclassified service failure", log.Err(err))
		writeError(w, http.StatusBadGateway, "sanitization service unreachable", "service_error")
	}
}

func writeError(w http.ResponseWriter, status int, message, typ string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Type: typ}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
