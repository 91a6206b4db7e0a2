package otelx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Sampler names accepted in OTEL_TRACES_SAMPLER.
const (
	SamplerAlways = "always_on"
	SamplerNever  = "always_off"
	SamplerRatio  = "ratio"
)

type Config struct {
	Enabled     bool
	ServiceName string
	Version     string
	Environment string
	// Endpoint is the collector's OTLP gRPC address, host:port.
	Endpoint      string
	Insecure      bool
	ExportTimeout time.Duration
	Sampler       string
	SampleRatio   float64
}

// ConfigFromEnv reads the OTEL_* variables. Tracing is off unless OTEL_ENABLED is set.
func ConfigFromEnv(serviceName string) Config {
	cfg := Config{
		Enabled:       config.Bool("OTEL_ENABLED", false),
		ServiceName:   serviceName,
		Version:       config.String("SERVICE_VERSION", "dev"),
		Environment:   config.String("DEPLOY_ENV", "local"),
		Endpoint:      strings.TrimSpace(config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		Insecure:      config.Bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		ExportTimeout: time.Duration(config.Int("OTEL_EXPORT_TIMEOUT_MS", 3000)) * time.Millisecond,
		Sampler:       strings.ToLower(strings.TrimSpace(config.String("OTEL_TRACES_SAMPLER", SamplerRatio))),
		SampleRatio:   1,
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(config.String("OTEL_SAMPLING_RATIO", "1")), 64); err == nil && f >= 0 && f <= 1 {
		cfg.SampleRatio = f
	}
	return cfg
}

// NewSampler honours a parent's decision and applies the configured rule to root spans.
func (c Config) NewSampler() (sdktrace.Sampler, error) {
	var root sdktrace.Sampler
	switch c.Sampler {
	case SamplerAlways:
		root = sdktrace.AlwaysSample()
	case SamplerNever:
		root = sdktrace.NeverSample()
	case SamplerRatio, "":
		root = sdktrace.TraceIDRatioBased(c.SampleRatio)
	default:
		return nil, fmt.Errorf("unknown OTEL_TRACES_SAMPLER %q", c.Sampler)
	}
	return sdktrace.ParentBased(root), nil
}

// Resource describes the booking process on every exported span.
func (c Config) Resource() *resource.Resource {
	return resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.Version),
		attribute.String("deployment.environment", c.Environment),
	)
}

// Setup installs W3C trace-context propagation and, when enabled, a batching OTLP provider.
// The returned func flushes pending spans; call it during shutdown.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	sampler, err := cfg.NewSampler()
	if err != nil {
		return noop, err
	}
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(cfg.Resource()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
