package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(DebugLevel, buf)

	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)

	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.Contains(t, buf.String(), "OpenTelemetry is disabled")
}

// OTLP exporters connect lazily, so an unreachable endpoint still initializes
func TestInitOTel_UnreachableEndpoint(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	cfg := OTelConfig{
		Enabled:        true,
		Endpoint:       "invalid-endpoint:9999",
		ServiceName:    "toolhost-test",
		ServiceVersion: "1.0.0",
		Insecure:       true,
	}

	providers, err := InitOTel(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)
	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)

	_ = ShutdownOTel(context.Background(), providers, logger)
}

func TestNewResource(t *testing.T) {
	cfg := OTelConfig{
		ServiceName:    "toolhost",
		ServiceVersion: "1.2.3",
		ToolName:       "headless",
		PluginID:       "toolhost.mcp.ServerPlugin",
		InstanceID:     "host-1",
	}

	res, err := newResource(context.Background(), cfg)
	require.NoError(t, err)

	lookup := func(key attribute.Key) string {
		v, ok := res.Set().Value(key)
		require.True(t, ok, "missing %s", key)
		return v.AsString()
	}
	assert.Equal(t, "toolhost", lookup("service.name"))
	assert.Equal(t, "headless", lookup(AttrToolName))
	assert.Equal(t, "toolhost.mcp.ServerPlugin", lookup(AttrPluginID))
	assert.Equal(t, "host-1", lookup(AttrInstanceID))

	t.Run("generated instance and no tool", func(t *testing.T) {
		res, err := newResource(context.Background(), OTelConfig{ServiceName: "toolhost"})
		require.NoError(t, err)

		v, ok := res.Set().Value(AttrInstanceID)
		require.True(t, ok)
		assert.Len(t, v.AsString(), 36)
		_, ok = res.Set().Value(AttrToolName)
		assert.False(t, ok)
	})
}

func TestShutdownOTel(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	t.Run("nil providers", func(t *testing.T) {
		assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
	})

	t.Run("empty providers", func(t *testing.T) {
		assert.NoError(t, ShutdownOTel(context.Background(), &OTelProviders{}, logger))
	})

	t.Run("tracer provider only", func(t *testing.T) {
		buf := &bytes.Buffer{}
		providers := &OTelProviders{TracerProvider: sdktrace.NewTracerProvider()}

		require.NoError(t, ShutdownOTel(context.Background(), providers, NewLogger(InfoLevel, buf)))
		assert.Contains(t, buf.String(), "OpenTelemetry shutdown complete")
	})
}

func TestTracer(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "noop")
	defer span.End()
	assert.NotNil(t, span)
}

func TestWithTraceContext(t *testing.T) {
	t.Run("no span", func(t *testing.T) {
		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		assert.Same(t, logger, WithTraceContext(context.Background(), logger))
	})

	t.Run("recording span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		buf := &bytes.Buffer{}
		WithTraceContext(ctx, NewLogger(InfoLevel, buf)).Info("traced")

		assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())
		assert.Contains(t, buf.String(), "span_id")
	})

	t.Run("non-recording span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		assert.Same(t, logger, WithTraceContext(ctx, logger))
	})
}
