package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/autobrr/dupelink/pkg/runtime"
)

// Init installs a global tracer provider that exports spans as JSON to traceFile.
// With an empty traceFile nothing is installed and the noop provider stays in place.
// The returned function flushes pending spans and closes the file.
func Init(traceFile string) (func(context.Context) error, error) {
	if traceFile == "" {
		return func(context.Context) error { return nil }, nil
	}

	f, err := os.Create(traceFile)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("dupelink"),
		semconv.ServiceVersion(runtime.Version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		shutdownErr := tp.Shutdown(ctx)
		if err := f.Close(); err != nil && shutdownErr == nil {
			return fmt.Errorf("close trace file: %w", err)
		}
		return shutdownErr
	}, nil
}
