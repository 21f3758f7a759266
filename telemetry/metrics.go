package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// createMeterProvider 创建 MeterProvider
// prometheus: 私有 registry + pull；otlp/stdout: PeriodicReader 推送
func (m *Manager) createMeterProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	cfg := m.config.Metrics

	var reader sdkmetric.Reader
	switch cfg.Exporter {
	case ExporterPrometheus:
		registry := prometheus.NewRegistry()
		if cfg.RuntimeMetrics {
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}
		opts := []otelprom.Option{otelprom.WithRegisterer(registry)}
		if cfg.Namespace != "" {
			opts = append(opts, otelprom.WithNamespace(cfg.Namespace))
		}
		exporter, err := otelprom.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		m.registry = registry
		reader = exporter

	case ExporterOTLP:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(m.config.Exporter.Endpoint),
			otlpmetricgrpc.WithTimeout(m.config.Exporter.Timeout),
		}
		if m.config.Exporter.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		if len(m.config.Exporter.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(m.config.Exporter.Headers))
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		reader = m.periodic(exporter)

	case ExporterStdout:
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		reader = m.periodic(exporter)

	default:
		return nil, fmt.Errorf("unsupported metrics exporter type: %s", cfg.Exporter)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	), nil
}

func (m *Manager) periodic(exporter sdkmetric.Exporter) sdkmetric.Reader {
	return sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(m.config.Metrics.ExportInterval),
		sdkmetric.WithTimeout(m.config.Metrics.ExportTimeout),
	)
}
