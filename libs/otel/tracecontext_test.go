package otelx

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTracerProvider(tp)

	ctx, span := Start(context.Background(), "reserve")
	traceparent, _ := TraceContextStrings(ctx)
	Finish(span, nil)
	if traceparent == "" {
		t.Fatal("expected traceparent to be injected")
	}

	restored := ContextWithTraceContext(context.Background(), traceparent, "")
	_, child := Start(restored, "publish")
	defer child.End()
	if child.SpanContext().TraceID() != span.SpanContext().TraceID() {
		t.Fatal("expected child span to continue the trace")
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "2")
	t.Setenv("OTEL_TRACES_SAMPLER", "")
	cfg := ConfigFromEnv("booking-service")
	if cfg.Enabled {
		t.Fatal("expected tracing to default to disabled")
	}
	if cfg.SampleRatio != 1 {
		t.Fatalf("expected out-of-range ratio to fall back to 1, got %v", cfg.SampleRatio)
	}
	if cfg.Sampler != SamplerRatio {
		t.Fatalf("expected ratio sampler by default, got %q", cfg.Sampler)
	}
}

func TestSamplerSelection(t *testing.T) {
	for name, want := range map[string]string{
		SamplerAlways: "AlwaysOnSampler",
		SamplerNever:  "AlwaysOffSampler",
		SamplerRatio:  "TraceIDRatioBased",
	} {
		s, err := Config{Sampler: name, SampleRatio: 0.5}.NewSampler()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(s.Description(), want) || !strings.HasPrefix(s.Description(), "ParentBased") {
			t.Fatalf("%s: unexpected sampler %s", name, s.Description())
		}
	}
	if _, err := (Config{Sampler: "sometimes"}).NewSampler(); err == nil {
		t.Fatal("expected unknown sampler to fail")
	}
}

func TestResourceNamesService(t *testing.T) {
	res := Config{ServiceName: "booking-service", Version: "1.2.0", Environment: "test"}.Resource()
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got["service.name"] != "booking-service" || got["service.version"] != "1.2.0" || got["deployment.environment"] != "test" {
		t.Fatalf("unexpected resource %v", got)
	}
}

func TestSetupDisabledInstallsPropagatorOnly(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fields := otel.GetTextMapPropagator().Fields(); len(fields) == 0 {
		t.Fatal("expected trace-context propagator")
	}
}
