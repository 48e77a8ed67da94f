package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/straja-ai/desens/internal/detection"
	"github.com/straja-ai/desens/internal/regression"
)

func newRecordingProvider(t *testing.T) (*Provider, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})
	return NewWithProviders(tp, mp), sr, reader
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if p.Enabled {
		t.Fatalf("expected disabled provider")
	}
	_, end := p.StartCall(context.Background(), "/sanitize")
	end("ALLOW", nil, nil)
	p.RecordCase("OK", "ALLOW", time.Millisecond)
	p.RecordRun(1, 1, time.Millisecond)
	p.Shutdown(context.Background())

	var nilProvider *Provider
	nilProvider.RecordCase("OK", "", 0)
	classify := nilProvider.Classify("/sanitize", func(ctx context.Context, text string) (*detection.Result, error) {
		return &detection.Result{}, nil
	})
	if _, err := classify(context.Background(), "x"); err != nil {
		t.Fatalf("nil provider should pass calls through: %v", err)
	}
}

func TestUnsupportedProtocol(t *testing.T) {
	if _, err := NewProvider(context.Background(), Config{Enabled: true, Endpoint: "localhost:4317", Protocol: "udp"}); err == nil {
		t.Fatalf("expected error for unsupported protocol")
	}
}

func TestClassifyRecordsSpanAndMetrics(t *testing.T) {
	p, sr, reader := newRecordingProvider(t)

	classify := p.Classify("/sanitize", func(ctx context.Context, text string) (*detection.Result, error) {
		if text == "fail" {
			return nil, errors.New("status 502")
		}
		return &detection.Result{
			Decision: detection.DecisionMask,
			Entities: []detection.Entity{{Type: "EMAIL", Value: "a@b.c"}, {Type: "PHONE", Value: "555"}},
		}, nil
	})

	if _, err := classify(context.Background(), "contact a@b.c"); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if _, err := classify(context.Background(), "fail"); err == nil {
		t.Fatalf("expected error to pass through")
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "desens.service.sanitize" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
	for _, kv := range spans[0].Attributes() {
		if kv.Value.Emit() == "a@b.c" || kv.Value.Emit() == "contact a@b.c" {
			t.Fatalf("span leaks content in %s", kv.Key)
		}
	}
	if len(spans[1].Events()) == 0 {
		t.Fatalf("expected recorded error event on failed call")
	}

	if got := sumOf(t, reader, "desens_service_calls_total"); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
	if got := sumOf(t, reader, "desens_detected_entities_total"); got != 2 {
		t.Fatalf("expected 2 entities, got %d", got)
	}
}

func TestObserverRecordsRegressionMetrics(t *testing.T) {
	p, _, reader := newRecordingProvider(t)

	ev := &regression.Evaluator{Observers: []regression.Observer{Observer{Provider: p}}}
	cases := []regression.Case{
		{ID: "1", Text: "a", Expected: []string{"EMAIL"}},
		{ID: "2", Text: "b"},
		{ID: "3", Text: "c"},
	}
	ev.Evaluate(context.Background(), cases, func(ctx context.Context, text string) (*detection.Result, error) {
		return &detection.Result{Decision: detection.DecisionAllow}, nil
	})

	if got := sumOf(t, reader, "desens_regression_cases_total"); got != 3 {
		t.Fatalf("expected 3 cases, got %d", got)
	}
	if got := sumOf(t, reader, "desens_regression_runs_total"); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}
}
