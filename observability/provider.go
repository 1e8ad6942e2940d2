package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InstallSDKTracerProvider builds a real OpenTelemetry SDK TracerProvider
// (resource describing the running service, ratio-based sampling) and
// installs it as the global provider NewTracer reads from. Grounded on the
// teacher's internal/telemetry.Init, trimmed to drop the OTLP gRPC
// exporter wiring: Claudette ships no bundled collector endpoint, so no
// span processor is attached here. A host that wants spans shipped
// somewhere attaches its own exporter via sdktrace.WithBatcher on the
// returned provider, or installs an entirely different global provider
// and skips this helper — NewTracer only ever reads whatever is current.
func InstallSDKTracerProvider(serviceName, version string, sampleRatio float64) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
