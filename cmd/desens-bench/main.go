package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"time"

	"github.com/straja-ai/desens/internal/config"
	"github.com/straja-ai/desens/internal/log"
	"github.com/straja-ai/desens/internal/redact"
	"github.com/straja-ai/desens/internal/sanitizer"
)

func main() {
	cfgPath := flag.String("config", "desens.yaml", "path to config yaml")
	n := flag.Int("n", 200, "number of iterations")
	text := flag.String("text", "John Smith, SSN 123-45-6789, mail john.smith@example.com", "text to submit")
	flag.Parse()

	logger := log.New(false, "info")
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", log.Err(err))
	}

	client := sanitizer.NewHTTP(sanitizer.Options{
		BaseURL:          cfg.Service.BaseURL,
		APIKey:           cfg.Service.APIKey,
		Timeout:          cfg.Service.Timeout,
		MaxResponseBytes: cfg.Service.MaxResponseBytes,
	})
	ctx := context.Background()

	// Warmup
	for i := 0; i < 5; i++ {
		if _, err := client.SanitizeText(ctx, *text); err != nil {
			logger.Fatal("warmup sanitize failed", log.Err(err))
		}
	}

	if *n <= 0 {
		*n = 1
	}

	durations := make([]time.Duration, 0, *n)
	for i := 0; i < *n; i++ {
		start := time.Now()
		if _, err := client.SanitizeText(ctx, *text); err != nil {
			logger.Fatal("sanitize failed", log.Err(err))
		}
		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	avg := float64(total.Microseconds()) / 1000.0 / float64(len(durations))
	p50 := float64(durations[len(durations)/2].Microseconds()) / 1000.0
	p95 := float64(durations[int(float64(len(durations))*0.95)].Microseconds()) / 1000.0

	fmt.Printf("bench: n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f service=%s\n",
		len(durations),
		avg,
		p50,
		p95,
		redact.URL(client.BaseURL()),
	)
}
