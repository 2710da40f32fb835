// Package tracing configures OpenTelemetry trace export and provides span helpers.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/JaimeStill/attest/pkg/lifecycle"
)

// Attribute keys shared by spans across the service.
const (
	StageKey         = "attest.stage"
	AttemptKey       = "attest.attempt"
	RegulationKey    = "attest.regulation"
	DocumentCountKey = "attest.document.count"
	DocumentIDKey    = "attest.document.id"
)

// Provider owns the process tracer and its exporter.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
	logger *slog.Logger
}

// New creates a Provider. When tracing is disabled the tracer is a no-op and
// nothing is exported. An enabled provider is installed as the global provider.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Provider, error) {
	logger = logger.With("system", "tracing")

	if !cfg.Enabled {
		return &Provider{
			tracer: noop.NewTracerProvider().Tracer(cfg.ServiceName),
			logger: logger,
		}, nil
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return &Provider{
		sdk:    tp,
		tracer: tp.Tracer(cfg.ServiceName),
		logger: logger,
	}, nil
}

// Tracer returns the service tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Start registers a shutdown hook that flushes pending spans.
func (p *Provider) Start(lc *lifecycle.Coordinator) error {
	if p.sdk == nil {
		return nil
	}

	p.logger.Info("starting tracing system")

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := p.sdk.Shutdown(context.Background()); err != nil {
			p.logger.Error("tracer shutdown failed", "error", err)
			return
		}
		p.logger.Info("tracer shutdown complete")
	})

	return nil
}

// StartSpan starts a span named name with the given attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// SetError records err on span and marks the span as failed.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(attrs...))
}
