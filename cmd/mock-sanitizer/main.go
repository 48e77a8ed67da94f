package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/straja-ai/desens/internal/log"
	"github.com/straja-ai/desens/internal/mockservice"
)

func main() {
	addr := flag.String("addr", "", "listen address (default 127.0.0.1:$MOCK_SANITIZER_PORT or 127.0.0.1:18000)")
	debug := flag.Bool("debug", false, "log every request")
	flag.Parse()

	logger := log.New(*debug, "info")
	defer func() { _ = logger.Sync() }()

	shutdown, baseURL, err := mockservice.Start(*addr, logger)
	if err != nil {
		logger.Fatal("start mock sanitizer", log.Err(err))
	}
	logger.Sugar().Infof("point desens at it with DESENS_BASE_URL=%s", baseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", log.Err(err))
	}
}
