package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
)

func testManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	log, _ := logger.NewTestCtxLogger("telemetry")
	m := NewManager(cfg, log)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestNewManager(t *testing.T) {
	m := NewManager(Config{Enabled: true, ServiceName: "svc"}, nil)
	require.NotNil(t, m)
	assert.NotNil(t, m.logger)
	assert.True(t, m.IsEnabled())
	assert.Equal(t, "svc", m.GetConfig().ServiceName)
}

func TestManager_Start_Disabled(t *testing.T) {
	m := testManager(t, Config{})
	require.NoError(t, m.Start(context.Background()))

	assert.Nil(t, m.tracerProvider)
	assert.Nil(t, m.meterProvider)
	assert.NotNil(t, m.Meter("x"))
	assert.NotNil(t, m.GetTracer("x"))

	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManager_Start_Tracing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter.Type = ExporterNoop
	cfg.Sampler.Type = "always_on"
	cfg.Metrics.Enabled = false
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	m := testManager(t, cfg)
	require.NoError(t, m.Start(context.Background()))
	require.NotNil(t, m.tracerProvider)
	assert.Nil(t, m.meterProvider)

	_, span := m.GetTracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	// Start 幂等
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Nil(t, m.tracerProvider)
}

func TestManager_PrometheusScrape(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.RuntimeMetrics = false
	m := testManager(t, cfg)
	require.NoError(t, m.Start(context.Background()))
	require.NotNil(t, m.meterProvider)

	counter, err := m.Meter("test").Int64Counter("scrape_check_total", metric.WithDescription("scrape check"))
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	srv := httptest.NewServer(m.MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "scrape_check_total")
	assert.NotContains(t, string(body), "go_goroutines")
}

func TestManager_RuntimeMetrics(t *testing.T) {
	cfg := DefaultConfig()
	m := testManager(t, cfg)
	require.NoError(t, m.Start(context.Background()))

	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestManager_UnsupportedMetricsExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Exporter = "statsd"
	m := testManager(t, cfg)
	assert.Error(t, m.Start(context.Background()))
	assert.Nil(t, m.meterProvider)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("default is valid", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad sampler ratio", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Enabled = true
		cfg.Sampler = SamplerConfig{Type: "trace_id_ratio", Ratio: 1.5}
		assert.Error(t, cfg.Validate())
	})

	t.Run("otlp needs endpoint", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Enabled = true
		cfg.Exporter.Endpoint = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown trace exporter", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Enabled = true
		cfg.Exporter.Type = "zipkin"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown metrics exporter", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Metrics.Exporter = "statsd"
		assert.Error(t, cfg.Validate())
	})

	t.Run("apply defaults fills partial config", func(t *testing.T) {
		cfg := Config{Enabled: true}
		cfg.ApplyDefaults()
		assert.Equal(t, "ratelimiter", cfg.ServiceName)
		assert.Equal(t, "localhost:4317", cfg.Exporter.Endpoint)
		assert.Equal(t, ExporterPrometheus, cfg.Metrics.Exporter)
		assert.NoError(t, cfg.Validate())
	})
}

func TestFlattenMap(t *testing.T) {
	got := flattenMap(map[string]interface{}{
		"deployment": map[string]interface{}{"environment": "prod"},
		"replicas":   3,
	}, "")
	assert.Equal(t, map[string]string{
		"deployment.environment": "prod",
		"replicas":               "3",
	}, got)
}
