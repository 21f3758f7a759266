package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials/insecure"
)

// createExporter 按类型创建 span exporter
func (m *Manager) createExporter(ctx context.Context) (trace.SpanExporter, error) {
	switch m.config.Exporter.Type {
	case ExporterOTLP:
		return m.createOTLPExporter(ctx)
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterNoop:
		return &noopExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", m.config.Exporter.Type)
	}
}

func (m *Manager) createOTLPExporter(ctx context.Context) (trace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(m.config.Exporter.Endpoint),
		otlptracegrpc.WithTimeout(m.config.Exporter.Timeout),
	}
	if m.config.Exporter.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if len(m.config.Exporter.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(m.config.Exporter.Headers))
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}

// noopExporter drops every span
type noopExporter struct{}

func (n *noopExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	return nil
}

func (n *noopExporter) Shutdown(ctx context.Context) error {
	return nil
}
