package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInstallSDKTracerProviderInstallsGlobalProvider(t *testing.T) {
	tp, err := InstallSDKTracerProvider("claudette-test", "0.0.0-test", 1.0)
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer tp.Shutdown(context.Background())

	global := otel.GetTracerProvider()
	sdkProvider, ok := global.(*sdktrace.TracerProvider)
	require.True(t, ok, "global provider must be the installed SDK provider")
	assert.Same(t, tp, sdkProvider)
}

func TestInstallSDKTracerProviderTracerProducesSpans(t *testing.T) {
	tp, err := InstallSDKTracerProvider("claudette-test", "0.0.0-test", 1.0)
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	tracer := NewTracer()
	_, span := tracer.StartOptimize(context.Background(), RequestAttrs{RequestID: "r1"})
	require.NotNil(t, span)
	assert.True(t, span.SpanContext().IsValid())
	tracer.EndOptimize(span, ResponseAttrs{})
}
