// Package tracing wires OpenTelemetry for the service. Spans are exported
// with the stdout exporter to a configurable writer; when tracing is disabled
// the global no-op provider stays in place and every helper is free.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "todoapp"

type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Output is "stdout", "stderr" or a file path. Empty means stdout.
	Output string
}

// Provider owns the SDK tracer provider and the exporter sink.
type Provider struct {
	tp     *sdktrace.TracerProvider
	closer io.Closer
}

// Setup installs a global tracer provider. A disabled config returns a nil
// *Provider whose Shutdown is a no-op.
func Setup(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	w, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	p, err := SetupWithExporter(cfg, exporter)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	p.closer = closer
	return p, nil
}

// SetupWithExporter installs a global tracer provider that sends spans to exporter.
func SetupWithExporter(cfg Config, exporter sdktrace.SpanExporter) (*Provider, error) {
	if exporter == nil {
		return nil, fmt.Errorf("tracing: nil exporter")
	}
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "todoapp"
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", name),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans and closes the output file, if any.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	err := p.tp.Shutdown(ctx)
	if p.closer != nil {
		if cerr := p.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func openOutput(out string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(out)) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("tracing output: %w", err)
	}
	return f, f, nil
}

// Start opens a span on the global tracer.
func Start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// End records err (if any) and ends the span.
func End(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SetHTTPStatus maps an HTTP response code onto the span status.
// Only 5xx marks a server span as failed.
func SetHTTPStatus(span trace.Span, code int) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", code))
	if code >= 500 {
		span.SetStatus(codes.Error, "server error")
	}
}
