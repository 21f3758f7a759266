package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/config"
	"github.com/KOMKZ/go-yogan-ratelimiter/health"
	"github.com/KOMKZ/go-yogan-ratelimiter/limiter"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/KOMKZ/go-yogan-ratelimiter/storage"
	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) *limiter.Manager {
	t.Helper()
	reg := storage.NewRegistry(storage.TypeMemory)
	reg.Register(storage.TypeMemory, storage.NewMemoryStore())
	log, _ := logger.NewTestCtxLogger("limiter")
	m, err := limiter.NewManager(limiter.DefaultConfig(), reg, log)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func testServerConfig() ServerConfig {
	cfg := DefaultConfig().Server
	cfg.Mode = "test"
	cfg.Port = 0
	return cfg
}

func doRequest(s *HTTPServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, storage.TypeEmbedded, cfg.Storage.Type)
	assert.Contains(t, cfg.Database.Instances, "embedded")
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.JWT.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
app:
  name: edge-limiter
storage:
  type: memory
  state_ttl: 1h
server:
  port: 9090
  throttle:
    enable: true
    algorithm: fixed_window
    max_requests: 50
limiter:
  defaults:
    algorithm: sliding_window
    window_size: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	loader, err := config.NewLoaderBuilder().WithConfigPath(dir).Build()
	require.NoError(t, err)
	cfg, err := Load(loader)
	require.NoError(t, err)

	assert.Equal(t, "edge-limiter", cfg.App.Name)
	assert.Equal(t, storage.TypeMemory, cfg.Storage.Type)
	assert.Equal(t, time.Hour, cfg.Storage.StateTTL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, limiter.AlgorithmSlidingWindow, cfg.Limiter.Defaults.Algorithm)
	assert.Equal(t, int64(10), cfg.Limiter.Defaults.WindowSize)
	// 未覆盖的默认值保留
	assert.Equal(t, limiter.DefaultRate, cfg.Limiter.Defaults.Rate)
	assert.Contains(t, cfg.Database.Instances, "embedded")
	assert.Equal(t, "release", cfg.Server.Mode)

	p := cfg.Server.Throttle.Params()
	require.NotNil(t, p.MaxRequests)
	assert.Equal(t, int64(50), *p.MaxRequests)
	assert.Nil(t, p.Rate)
}

func TestAppConfig_Validate(t *testing.T) {
	t.Run("redis instance must exist", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage.Type = storage.TypeRedis
		cfg.ApplyDefaults()
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis_instance")
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ApplyDefaults()
		cfg.Server.Port = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown throttle algorithm", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ApplyDefaults()
		cfg.Server.Throttle.Enable = true
		cfg.Server.Throttle.Algorithm = "leaky"
		assert.Error(t, cfg.Validate())
	})

	t.Run("jwt enabled without secret", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.JWT.Enabled = true
		cfg.ApplyDefaults()
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid limiter defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Limiter.Defaults.Capacity = -1
		cfg.ApplyDefaults()
		assert.Error(t, cfg.Validate())
	})
}

func TestHTTPServer_Routes(t *testing.T) {
	agg := health.NewAggregator(time.Second)
	agg.Register(health.NewChecker("storage:memory", func(context.Context) error { return nil }))

	s := NewHTTPServer(testServerConfig(), ServerDeps{Limiter: newTestLimiter(t), Health: agg})

	rec := doRequest(s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = doRequest(s, http.MethodPost, "/v1/ratelimit/check", map[string]interface{}{
		"unique_id": "svc", "user_id": "u1", "action_type": "login",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"allowed":"true"`)

	// 未启用 jwt 时 reset 不需要 token
	rec = doRequest(s, http.MethodDelete, "/v1/ratelimit/keys?unique_id=svc&user_id=u1&action_type=login", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s, http.MethodPut, "/healthz", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	// telemetry 未注入, 不挂 /metrics
	rec = doRequest(s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPServer_HealthStatus(t *testing.T) {
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("optional failure is degraded", func(t *testing.T) {
		agg := health.NewAggregator(time.Second)
		agg.Register(health.NewChecker("storage:memory", func(context.Context) error { return nil }))
		agg.Register(health.NewOptionalChecker("storage:redis", down))
		s := NewHTTPServer(testServerConfig(), ServerDeps{Limiter: newTestLimiter(t), Health: agg})

		rec := doRequest(s, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"degraded"`)
	})

	t.Run("required failure is unavailable", func(t *testing.T) {
		agg := health.NewAggregator(time.Second)
		agg.Register(health.NewChecker("storage:embedded", down))
		s := NewHTTPServer(testServerConfig(), ServerDeps{Limiter: newTestLimiter(t), Health: agg})

		rec := doRequest(s, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestHTTPServer_Throttle(t *testing.T) {
	cfg := testServerConfig()
	cfg.Throttle = ThrottleSettings{
		Enable:      true,
		UniqueID:    "api",
		Algorithm:   limiter.AlgorithmFixedWindow,
		MaxRequests: 1,
		WindowSize:  60,
		SkipPaths:   []string{"/healthz"},
	}
	s := NewHTTPServer(cfg, ServerDeps{Limiter: newTestLimiter(t)})

	body := map[string]interface{}{"unique_id": "svc", "user_id": "u1", "action_type": "login"}
	rec := doRequest(s, http.MethodPost, "/v1/ratelimit/check", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = doRequest(s, http.MethodPost, "/v1/ratelimit/check", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	for i := 0; i < 3; i++ {
		rec = doRequest(s, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestHTTPServer_StartShutdown(t *testing.T) {
	s := NewHTTPServer(testServerConfig(), ServerDeps{Limiter: newTestLimiter(t)})
	require.NoError(t, s.Start())
	require.NotEmpty(t, s.Addr())

	_, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%s/healthz", port))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestApplication_Lifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server = testServerConfig()

	injector := do.New()
	do.ProvideValue(injector, &cfg)
	log, logs := logger.NewTestCtxLogger("app")
	do.ProvideValue(injector, log)
	lim := newTestLimiter(t)
	do.Provide(injector, func(do.Injector) (*HTTPServer, error) {
		return NewHTTPServer(cfg.Server, ServerDeps{Limiter: lim}), nil
	})

	app, err := New(injector)
	require.NoError(t, err)
	assert.Equal(t, StateInit, app.GetState())

	require.NoError(t, app.RunNonBlocking())
	assert.Equal(t, StateRunning, app.GetState())
	require.NotNil(t, app.HTTPServer())

	app.Cancel()
	app.WaitShutdown()
	require.NoError(t, app.Shutdown(time.Second))
	assert.Equal(t, StateStopped, app.GetState())
	assert.Greater(t, logs.FilterMessage("ratelimiter started").Len(), 0)
}
