package telemetry

import (
	"context"
	"testing"

	"github.com/dunamismax/docflow/internal/config"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TelemetryConfig{Exporter: "none"}, nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupTracingRejectsBadExporters(t *testing.T) {
	if _, err := SetupTracing(context.Background(), config.TelemetryConfig{Exporter: "zipkin"}, nil); err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
	if _, err := SetupTracing(context.Background(), config.TelemetryConfig{Exporter: "otlp"}, nil); err == nil {
		t.Fatal("expected error for otlp without endpoint")
	}
}

func TestSetupTracingStdout(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TelemetryConfig{Exporter: "stdout", ServiceName: "docflow-test"}, nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
