package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// createTracerProvider 创建 TracerProvider
func (m *Manager) createTracerProvider(ctx context.Context, res *resource.Resource) (*trace.TracerProvider, error) {
	exporter, err := m.createExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("create exporter failed: %w", err)
	}

	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(m.createSampler()),
	}
	if m.config.Batch.Enabled {
		opts = append(opts, trace.WithBatcher(exporter,
			trace.WithMaxQueueSize(m.config.Batch.MaxQueueSize),
			trace.WithMaxExportBatchSize(m.config.Batch.MaxExportBatchSize),
			trace.WithBatchTimeout(m.config.Batch.ScheduleDelay),
			trace.WithExportTimeout(m.config.Batch.ExportTimeout),
		))
	} else {
		// 同步模式（仅用于调试）
		opts = append(opts, trace.WithSyncer(exporter))
	}
	return trace.NewTracerProvider(opts...), nil
}

func (m *Manager) createSampler() trace.Sampler {
	switch m.config.Sampler.Type {
	case "always_on":
		return trace.AlwaysSample()
	case "always_off":
		return trace.NeverSample()
	case "trace_id_ratio":
		return trace.TraceIDRatioBased(m.config.Sampler.Ratio)
	default:
		return trace.ParentBased(trace.AlwaysSample())
	}
}
