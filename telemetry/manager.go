package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Manager owns the TracerProvider and MeterProvider of the process.
// 两者都注册为 otel 全局 provider，limiter/storage 通过 otel.Tracer / Meter 取用
type Manager struct {
	config         Config
	logger         *logger.CtxZapLogger
	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *prometheus.Registry
	mu             sync.RWMutex
	started        bool
}

// NewManager 创建 telemetry manager
func NewManager(config Config, log *logger.CtxZapLogger) *Manager {
	if log == nil {
		log = logger.GetLogger("telemetry")
	}
	return &Manager{
		config: config,
		logger: log,
	}
}

// Start builds the providers. Calling Start twice is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	if !m.config.Enabled && !m.config.Metrics.Enabled {
		m.logger.InfoCtx(ctx, "Telemetry disabled, skipping initialization")
		m.started = true
		return nil
	}

	res, err := m.createResource(ctx)
	if err != nil {
		return fmt.Errorf("create resource failed: %w", err)
	}

	if m.config.Enabled {
		tp, err := m.createTracerProvider(ctx, res)
		if err != nil {
			return err
		}
		m.tracerProvider = tp
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		))
	}

	if m.config.Metrics.Enabled {
		mp, err := m.createMeterProvider(ctx, res)
		if err != nil {
			if m.tracerProvider != nil {
				_ = m.tracerProvider.Shutdown(ctx)
				m.tracerProvider = nil
			}
			return err
		}
		m.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	m.started = true
	m.logger.InfoCtx(ctx, "✅ Telemetry started",
		zap.String("service_name", m.config.ServiceName),
		zap.Bool("tracing", m.tracerProvider != nil),
		zap.String("exporter", m.config.Exporter.Type),
		zap.String("metrics_exporter", m.config.Metrics.Exporter),
	)
	return nil
}

// Shutdown flushes and closes both providers
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.tracerProvider != nil {
		if err := m.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider failed: %w", err))
		}
		m.tracerProvider = nil
	}
	if m.meterProvider != nil {
		if err := m.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider failed: %w", err))
		}
		m.meterProvider = nil
	}
	m.started = false
	return errors.Join(errs...)
}

// GetTracer obtain tracer
func (m *Manager) GetTracer(name string) otelTrace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// Meter 指标未启用时返回 noop meter
func (m *Manager) Meter(name string) metric.Meter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.meterProvider == nil {
		return noop.NewMeterProvider().Meter(name)
	}
	return m.meterProvider.Meter(name)
}

// MetricsHandler serves the prometheus registry; 404 when the pull exporter is not in use
func (m *Manager) MetricsHandler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IsEnabled whether tracing is enabled
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled
}

// MetricsEnabled 指标是否启用
func (m *Manager) MetricsEnabled() bool {
	return m.config.Metrics.Enabled
}

// GetConfig Retrieve configuration
func (m *Manager) GetConfig() Config {
	return m.config
}
