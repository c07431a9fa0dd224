// Package telemetry installs the process-wide OpenTelemetry tracer provider.
// Spans started through otel.Tracer before or after Setup are exported once
// Setup has run with an exporter other than "none".
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Options control tracer provider setup.
type Options struct {
	ServiceName string
	Version     string

	Exporter    string
	Endpoint    string // host:port or a full URL; empty means the OTLP default
	Insecure    bool
	SampleRatio float64

	// Writer receives stdout-exporter output. Defaults to os.Stderr so spans
	// do not mix with the chat transcript.
	Writer io.Writer
}

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(context.Context) error

// Setup builds a tracer provider for opts and installs it globally. With the
// "none" exporter the global provider is left untouched and the returned
// ShutdownFunc is a no-op.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	exporter := strings.ToLower(strings.TrimSpace(opts.Exporter))
	if exporter == "" || exporter == ExporterNone {
		return func(context.Context) error { return nil }, nil
	}

	spanExporter, err := newExporter(ctx, exporter, opts)
	if err != nil {
		return nil, fmt.Errorf("build %s exporter: %w", exporter, err)
	}

	res, err := buildResource(opts)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, exporter string, opts Options) (sdktrace.SpanExporter, error) {
	switch exporter {
	case ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterOTLP:
		return otlptracehttp.New(ctx, otlpOptions(opts)...)
	}
	return nil, fmt.Errorf("unknown exporter %q", exporter)
}

func otlpOptions(opts Options) []otlptracehttp.Option {
	var out []otlptracehttp.Option
	switch {
	case strings.Contains(opts.Endpoint, "://"):
		out = append(out, otlptracehttp.WithEndpointURL(opts.Endpoint))
	case opts.Endpoint != "":
		out = append(out, otlptracehttp.WithEndpoint(opts.Endpoint))
		if opts.Insecure {
			out = append(out, otlptracehttp.WithInsecure())
		}
	}
	return out
}

func buildResource(opts Options) (*resource.Resource, error) {
	name := opts.ServiceName
	if name == "" {
		name = "cvchat"
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if opts.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.Version))
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}
