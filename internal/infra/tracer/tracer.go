package tracer

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"scriptoria/internal/infra/config"
)

const (
	tracerName  = "scriptoria"
	serviceName = "scriptoria"
)

// Setup installs the global TracerProvider for one CLI run and returns its
// shutdown. Spans of the stdout exporter go to stderr, next to the thought
// log, and are exported as each span ends because the process exits right
// after the last call.
func Setup(ctx context.Context, cfg config.TracerConfig) (func(context.Context) error, error) {
	return setup(ctx, cfg, os.Stderr)
}

func setup(_ context.Context, cfg config.TracerConfig, w io.Writer) (func(context.Context) error, error) {
	exporter, err := newExporter(cfg, w)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.Int("process.pid", os.Getpid()),
	))
	if err != nil {
		return nil, fmt.Errorf("tracer resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// newExporter returns nil when tracing is off.
func newExporter(cfg config.TracerConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Exporter {
	case "noop", "":
		return nil, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

// StartSpan starts a span on the scriptoria tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// RecordError marks the span failed.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

func StringAttr(key, value string) attribute.KeyValue { return attribute.String(key, value) }

func IntAttr(key string, value int) attribute.KeyValue { return attribute.Int(key, value) }

func BoolAttr(key string, value bool) attribute.KeyValue { return attribute.Bool(key, value) }
