package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/straja-ai/desens/internal/log"
	"github.com/straja-ai/desens/internal/publish"
)

const maxEventBytes = 1 << 20

func main() {
	addr := flag.String("addr", ":8099", "listen address for the report receiver")
	debug := flag.Bool("debug", false, "development log output")
	flag.Parse()

	logger := log.New(*debug, "info")
	defer func() { _ = logger.Sync() }()

	mux := http.NewServeMux()
	mux.Handle("/events", eventHandler(logger))
	mux.Handle("/", eventHandler(logger))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("report receiver listening (POST JSON events to /events)", zap.String("addr", *addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("receiver error", log.Err(err))
	}
}

func eventHandler(logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
		_ = r.Body.Close()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var ev publish.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			logger.Warn("undecodable event", zap.Int("len", len(body)), log.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		logEvent(logger, &ev)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
	})
}

func logEvent(logger *log.Logger, ev *publish.Event) {
	fields := []zap.Field{
		zap.String("id", ev.ID),
		zap.String("run_id", ev.RunID),
		zap.String("kind", string(ev.Kind)),
	}
	switch {
	case ev.Case != nil:
		fields = append(fields,
			zap.String("case", ev.Case.ID),
			zap.String("status", ev.Case.Status),
			zap.Strings("expected", ev.Case.Expected),
			zap.Strings("detected", ev.Case.Detected),
		)
	case ev.Run != nil:
		fields = append(fields,
			zap.Int("passed", ev.Run.Passed),
			zap.Int("total", ev.Run.Total),
			zap.Float64("duration_ms", ev.Run.DurationMs),
		)
	}
	logger.Info("received event", fields...)
}
