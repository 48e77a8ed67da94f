// Package telemetry wires OpenTelemetry traces and metrics for sanitization
// calls and regression runs. When disabled every helper is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/straja-ai/desens"

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

// Provider wires tracer/meter providers and exposes helpers.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	callsCounter  metric.Int64Counter
	callDuration  metric.Float64Histogram
	casesCounter  metric.Int64Counter
	caseDuration  metric.Float64Histogram
	runsCounter   metric.Int64Counter
	runDuration   metric.Float64Histogram
	entityCounter metric.Int64Counter

	shutdown []func(context.Context) error
}

// NewProvider configures OTLP exporters and providers. When disabled it
// returns a no-op provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		return Noop(), nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var (
		spanExp   sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
	)
	switch strings.ToLower(cfg.Protocol) {
	case "", "grpc":
		if spanExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure()); err != nil {
			return nil, err
		}
	case "http":
		if spanExp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("telemetry: unsupported protocol %q", cfg.Protocol)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(spanExp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	p := NewWithProviders(tp, mp)
	p.shutdown = []func(context.Context) error{tp.Shutdown, mp.Shutdown}
	return p, nil
}

// Noop returns a disabled provider.
func Noop() *Provider {
	p := &Provider{
		tracer: tracenoop.NewTracerProvider().Tracer(""),
		meter:  metricnoop.NewMeterProvider().Meter(""),
	}
	p.initInstruments()
	return p
}

// NewWithProviders builds an enabled Provider on caller-owned providers.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) *Provider {
	p := &Provider{
		Enabled: true,
		tracer:  tp.Tracer(instrumentationName),
		meter:   mp.Meter(instrumentationName),
	}
	p.initInstruments()
	return p
}

func (p *Provider) initInstruments() {
	// Best-effort: a failed instrument falls back to the meter's no-op.
	p.callsCounter, _ = p.meter.Int64Counter("desens_service_calls_total")
	p.callDuration, _ = p.meter.Float64Histogram("desens_service_call_duration_ms")
	p.casesCounter, _ = p.meter.Int64Counter("desens_regression_cases_total")
	p.caseDuration, _ = p.meter.Float64Histogram("desens_regression_case_duration_ms")
	p.runsCounter, _ = p.meter.Int64Counter("desens_regression_runs_total")
	p.runDuration, _ = p.meter.Float64Histogram("desens_regression_run_duration_ms")
	p.entityCounter, _ = p.meter.Int64Counter("desens_detected_entities_total")
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	for _, fn := range p.shutdown {
		_ = fn(ctx)
	}
}

// StartCall opens a span around one call to the sanitization service. The
// returned func ends it and records the call metrics.
func (p *Provider) StartCall(ctx context.Context, endpoint string) (context.Context, func(decision string, entities []string, err error)) {
	if p == nil {
		return ctx, func(string, []string, error) {}
	}
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "desens.service."+strings.TrimPrefix(endpoint, "/"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("desens.endpoint", endpoint)),
	)
	return ctx, func(decision string, entities []string, err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "service call failed")
		}
		span.SetAttributes(SafeAttributes(map[string]any{
			"desens.decision":     decision,
			"desens.entity_count": len(entities),
			"desens.entity_types": entities,
		})...)
		span.End()

		labels := metric.WithAttributes(
			attribute.String("desens.endpoint", endpoint),
			attribute.String("desens.outcome", outcome),
			attribute.String("desens.decision", decision),
		)
		p.callsCounter.Add(context.Background(), 1, labels)
		p.callDuration.Record(context.Background(), ms(time.Since(start)), labels)
		for _, typ := range entities {
			p.entityCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("desens.entity_type", typ)))
		}
	}
}

// RecordCase emits per-case regression metrics.
func (p *Provider) RecordCase(status, decision string, dur time.Duration) {
	if p == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("desens.status", status),
		attribute.String("desens.decision", decision),
	)
	p.casesCounter.Add(context.Background(), 1, labels)
	p.caseDuration.Record(context.Background(), ms(dur), labels)
}

// RecordRun emits per-run regression metrics.
func (p *Provider) RecordRun(passed, total int, dur time.Duration) {
	if p == nil {
		return
	}
	result := "all_passed"
	if passed < total {
		result = "failures"
	}
	labels := metric.WithAttributes(attribute.String("desens.result", result))
	p.runsCounter.Add(context.Background(), 1, labels)
	p.runDuration.Record(context.Background(), ms(dur), labels)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
