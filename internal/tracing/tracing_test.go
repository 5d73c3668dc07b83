package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TracingConfig)
		wantErr string
	}{
		{name: "default", mutate: func(*TracingConfig) {}},
		{name: "no service", mutate: func(c *TracingConfig) { c.ServiceName = "" }, wantErr: "service name"},
		{name: "no endpoint", mutate: func(c *TracingConfig) { c.OTLPEndpoint = "" }, wantErr: "endpoint"},
		{name: "ratio above one", mutate: func(c *TracingConfig) { c.SampleRatio = 1.5 }, wantErr: "sample ratio"},
		{name: "negative ratio", mutate: func(c *TracingConfig) { c.SampleRatio = -0.1 }, wantErr: "sample ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("daedalus-worker")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResource(t *testing.T) {
	cfg := DefaultConfig("daedalus-worker")
	cfg.ServiceVersion = "1.2.3"

	res, err := cfg.Resource(context.Background())
	require.NoError(t, err)

	value, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "daedalus-worker", value.AsString())
	value, ok = res.Set().Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", value.AsString())
}

func TestSetupTracingRejectsInvalidConfig(t *testing.T) {
	_, err := SetupTracing(context.Background(), TracingConfig{}, nil)
	assert.Error(t, err)
}

func TestSetupTracing(t *testing.T) {
	// the exporter connects lazily, so setup succeeds without a collector
	shutdown, err := SetupTracing(context.Background(), DefaultConfig("daedalus-test"), nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
