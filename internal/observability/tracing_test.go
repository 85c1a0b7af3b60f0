package observability

import (
	"context"
	"testing"

	"github.com/signalsfoundry/gridsense/internal/logging"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("GRIDSIM_TRACING_ENABLED", "")
	t.Setenv("GRIDSIM_TRACING_EXPORTER", "")
	t.Setenv("GRIDSIM_TRACING_SERVICE_NAME", "")
	t.Setenv("GRIDSIM_TRACING_SAMPLE_RATIO", "")

	cfg := TracingConfigFromEnv()
	if cfg.Enabled {
		t.Fatalf("tracing enabled by default")
	}
	if cfg.Exporter != "stdout" || cfg.ServiceName != "gridsim" || cfg.SampleRatio != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestTracingConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("GRIDSIM_TRACING_ENABLED", "TRUE")
	t.Setenv("GRIDSIM_TRACING_EXPORTER", "OTLP")
	t.Setenv("GRIDSIM_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("GRIDSIM_TRACING_SAMPLE_RATIO", "0.25")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.Endpoint != "collector:4317" || cfg.SampleRatio != 0.25 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("GRIDSIM_TRACING_SAMPLE_RATIO", "7")
	if got := TracingConfigFromEnv().SampleRatio; got != 1 {
		t.Fatalf("out of range ratio = %v, want fallback 1", got)
	}
}

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}

func TestStartSpanTagsRunID(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := logging.ContextWithRunID(context.Background(), "run-1")
	_, span := StartSpan(ctx, "gridsim.test")
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if string(kv.Key) == "run_id" && kv.Value.AsString() == "run-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("span missing run_id attribute: %v", ended[0].Attributes())
	}
}
