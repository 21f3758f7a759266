package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Manager Redis 管理器（多实例，支持 Cluster）
type Manager struct {
	clients map[string]redis.UniversalClient
	configs map[string]Config
	logger  *logger.CtxZapLogger
	mu      sync.RWMutex
}

// NewManager connects every configured instance and pings it
// A failed ping is fatal: it is the credential/connectivity check at startup
func NewManager(configs map[string]Config, log *logger.CtxZapLogger) (*Manager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	m := &Manager{
		clients: make(map[string]redis.UniversalClient),
		configs: make(map[string]Config),
		logger:  log,
	}

	ctx := context.Background()
	for name, cfg := range configs {
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("invalid config for %s: %w", name, err)
		}

		client := newClient(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = m.Close()
			return nil, fmt.Errorf("ping %s failed: %w", name, err)
		}

		m.clients[name] = client
		m.configs[name] = cfg
		m.logger.DebugCtx(ctx, "Redis connection successful",
			zap.String("name", name),
			zap.String("mode", cfg.Mode),
			zap.Strings("addrs", cfg.Addrs))
	}

	return m, nil
}

func newClient(cfg Config) redis.UniversalClient {
	if cfg.Mode == "cluster" {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addrs[0],
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// Client returns the named instance, nil when not configured
func (m *Manager) Client(name string) redis.UniversalClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[name]
}

// InstanceNames sorted instance names
func (m *Manager) InstanceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnableMetrics installs the command metrics hook on every instance
func (m *Manager) EnableMetrics(meter metric.Meter) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, client := range m.clients {
		hook, err := NewMetricsHook(meter, name)
		if err != nil {
			return err
		}
		client.AddHook(hook)
	}
	return nil
}

// Ping check all connections
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, client := range m.clients {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping %s failed: %w", name, err)
		}
	}
	return nil
}

// Close closes all connections
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, client := range m.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s failed: %w", name, err)
		}
	}
	m.clients = make(map[string]redis.UniversalClient)
	return firstErr
}

// Shutdown implements do.Shutdowner
func (m *Manager) Shutdown() error {
	return m.Close()
}
