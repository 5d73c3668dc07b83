package runner

import (
	"context"

	"go.uber.org/zap"

	internaltracing "github.com/wehubfusion/Daedalus/internal/tracing"
)

// TracingConfig is the tracing configuration accepted by NewRunner.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	Insecure       bool
	SampleRatio    float64
}

// DefaultTracingConfig exports every trace to a local OTLP/HTTP collector.
func DefaultTracingConfig(serviceName string) TracingConfig {
	cfg := internaltracing.DefaultConfig(serviceName)
	return TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.Insecure,
		SampleRatio:    cfg.SampleRatio,
	}
}

// Setup installs the global tracer provider and returns its shutdown function.
func (c TracingConfig) Setup(ctx context.Context, logger *zap.Logger) (func(context.Context) error, error) {
	return internaltracing.SetupTracing(ctx, internaltracing.TracingConfig{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTLPEndpoint,
		Insecure:       c.Insecure,
		SampleRatio:    c.SampleRatio,
	}, logger)
}
