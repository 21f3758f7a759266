package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/KOMKZ/go-yogan-ratelimiter/application"
	"github.com/KOMKZ/go-yogan-ratelimiter/database"
	"github.com/KOMKZ/go-yogan-ratelimiter/etcd"
	"github.com/KOMKZ/go-yogan-ratelimiter/health"
	"github.com/KOMKZ/go-yogan-ratelimiter/jwt"
	"github.com/KOMKZ/go-yogan-ratelimiter/kafka"
	"github.com/KOMKZ/go-yogan-ratelimiter/limiter"
	"github.com/KOMKZ/go-yogan-ratelimiter/middleware"
	"github.com/KOMKZ/go-yogan-ratelimiter/redis"
	"github.com/KOMKZ/go-yogan-ratelimiter/storage"
	"github.com/KOMKZ/go-yogan-ratelimiter/telemetry"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
)

// ErrComponentDisabled 组件在配置中未启用
var ErrComponentDisabled = errors.New("component disabled")

// ============================================
// 基础设施: telemetry, redis, database, etcd, kafka
// ============================================

// ProvideTelemetry 禁用时仍返回 Manager, Meter/GetTracer 为 noop
func ProvideTelemetry(i do.Injector) (*telemetry.Manager, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	mgr := telemetry.NewManager(cfg.Telemetry, moduleLogger(i, "telemetry"))
	if err := mgr.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("telemetry start failed: %w", err)
	}
	return mgr, nil
}

// ProvideRedisManager 连接 redis.instances 并挂上命令指标
func ProvideRedisManager(i do.Injector) (*redis.Manager, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	if len(cfg.Redis.Instances) == 0 {
		return nil, fmt.Errorf("redis: %w", ErrComponentDisabled)
	}
	mgr, err := redis.NewManager(cfg.Redis.Instances, moduleLogger(i, "redis"))
	if err != nil {
		return nil, err
	}
	tel, err := do.Invoke[*telemetry.Manager](i)
	if err == nil && tel.MetricsEnabled() {
		if err := mgr.EnableMetrics(tel.Meter("redis")); err != nil {
			_ = mgr.Close()
			return nil, err
		}
	}
	return mgr, nil
}

// ProvideDatabaseManager opens database.instances (embedded sqlite by default)
func ProvideDatabaseManager(i do.Injector) (*database.Manager, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	if len(cfg.Database.Instances) == 0 {
		return nil, fmt.Errorf("database: %w", ErrComponentDisabled)
	}
	return database.NewManager(cfg.Database.Instances, moduleLogger(i, "database"))
}

// ProvideEtcdClient storage.etcd_enabled 为 false 时不可用
func ProvideEtcdClient(i do.Injector) (*etcd.Client, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	if !cfg.Storage.EtcdEnabled {
		return nil, fmt.Errorf("etcd: %w", ErrComponentDisabled)
	}
	return etcd.NewClient(cfg.Etcd, moduleLogger(i, "etcd"))
}

// ProvideAuditSink Kafka 审计 sink, 由 limiter 订阅
func ProvideAuditSink(i do.Injector) (*kafka.AuditSink, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	if !cfg.Kafka.Enabled {
		return nil, fmt.Errorf("kafka: %w", ErrComponentDisabled)
	}
	log := moduleLogger(i, "kafka")
	producer, err := kafka.NewSyncProducer(cfg.Kafka, log)
	if err != nil {
		return nil, err
	}
	return kafka.NewAuditSink(producer, cfg.Kafka.Audit, log), nil
}

// ============================================
// 存储
// ============================================

// stores registry plus the raw stores that can purge expired entries.
// 包装后的 Store 不再暴露 PurgeExpired, 所以在包装之前收集
type stores struct {
	registry *storage.Registry
	purgers  map[string]storage.Purger
}

// provideStores registers memory always, and redis, embedded, etcd when configured
func provideStores(i do.Injector) (*stores, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	tel, err := do.Invoke[*telemetry.Manager](i)
	if err != nil {
		return nil, err
	}
	meter := tel.Meter("storage")
	sc := cfg.Storage

	set := &stores{
		registry: storage.NewRegistry(sc.Type),
		purgers:  make(map[string]storage.Purger),
	}
	add := func(t storage.Type, s storage.Store) error {
		wrapped, err := storage.Instrument(storage.WithTimeout(s, sc.OpTimeout), meter, string(t))
		if err != nil {
			return err
		}
		set.registry.Register(t, wrapped)
		return nil
	}

	mem := storage.NewMemoryStore()
	set.purgers[string(storage.TypeMemory)] = mem
	if err := add(storage.TypeMemory, mem); err != nil {
		return nil, err
	}

	if sc.RedisInstance != "" {
		mgr, err := do.Invoke[*redis.Manager](i)
		if err != nil {
			return nil, err
		}
		client := mgr.Client(sc.RedisInstance)
		if client == nil {
			return nil, fmt.Errorf("redis instance %q not found", sc.RedisInstance)
		}
		if err := add(storage.TypeRedis, storage.NewRedisStore(client)); err != nil {
			return nil, err
		}
	}

	if sc.DatabaseInstance != "" {
		mgr, err := do.Invoke[*database.Manager](i)
		if err != nil {
			return nil, err
		}
		db := mgr.DB(sc.DatabaseInstance)
		if db == nil {
			return nil, fmt.Errorf("database instance %q not found", sc.DatabaseInstance)
		}
		gs, err := storage.NewGormStore(db)
		if err != nil {
			return nil, err
		}
		set.purgers[string(storage.TypeEmbedded)] = gs
		if err := add(storage.TypeEmbedded, gs); err != nil {
			return nil, err
		}
	}

	if sc.EtcdEnabled {
		client, err := do.Invoke[*etcd.Client](i)
		if err != nil {
			return nil, err
		}
		if err := add(storage.TypeEtcd, storage.NewEtcdStore(client.Raw())); err != nil {
			return nil, err
		}
	}

	// 默认存储必须已注册
	if _, err := set.registry.Default(); err != nil {
		return nil, err
	}
	return set, nil
}

// ProvideStorageRegistry *storage.Registry, 关闭时关闭所有 Store
func ProvideStorageRegistry(i do.Injector) (*storage.Registry, error) {
	set, err := do.Invoke[*stores](i)
	if err != nil {
		return nil, err
	}
	return set.registry, nil
}

// ProvideSweeper 定期清理 embedded/memory 中过期的条目
func ProvideSweeper(i do.Injector) (*storage.Sweeper, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweeper: %w", ErrComponentDisabled)
	}
	set, err := do.Invoke[*stores](i)
	if err != nil {
		return nil, err
	}
	sweeper, err := storage.NewSweeper(cfg.Storage.SweepInterval, set.purgers, moduleLogger(i, "storage"))
	if err != nil {
		return nil, err
	}
	sweeper.Start()
	return sweeper, nil
}

// ============================================
// limiter 与外层
// ============================================

// ProvideLimiter the admission façade; subscribes the audit sink when kafka is on
func ProvideLimiter(i do.Injector) (*limiter.Manager, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	reg, err := do.Invoke[*storage.Registry](i)
	if err != nil {
		return nil, err
	}
	tel, err := do.Invoke[*telemetry.Manager](i)
	if err != nil {
		return nil, err
	}
	log := moduleLogger(i, "limiter")

	opts := []limiter.Option{limiter.WithRetention(cfg.Storage.StateTTL, cfg.Storage.ConfigTTL)}
	if tel.MetricsEnabled() {
		metrics := limiter.NewOTelMetrics()
		if err := metrics.RegisterMetrics(tel.Meter("limiter")); err != nil {
			return nil, fmt.Errorf("register limiter metrics failed: %w", err)
		}
		opts = append(opts, limiter.WithOTelMetrics(metrics))
	}

	lc := cfg.Limiter
	if cfg.Kafka.Enabled && lc.EventPoolSize == 0 {
		// 审计需要事件总线
		lc.EventPoolSize = 4
	}
	mgr, err := limiter.NewManager(lc, reg, log, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.Kafka.Enabled {
		// 先 Invoke 再 Subscribe: limiter 依赖 sink, 关闭时先排空总线再关 producer
		sink, err := do.Invoke[*kafka.AuditSink](i)
		if err != nil {
			mgr.Close()
			return nil, err
		}
		mgr.Subscribe(sink)
		log.DebugCtx(context.Background(), "audit sink subscribed", zap.String("topic", cfg.Kafka.Audit.Topic))
	}
	return mgr, nil
}

// ProvideTokenManager admin token 签发和校验
func ProvideTokenManager(i do.Injector) (*jwt.TokenManager, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	if !cfg.JWT.Enabled {
		return nil, fmt.Errorf("jwt: %w", ErrComponentDisabled)
	}
	return jwt.NewTokenManager(cfg.JWT, moduleLogger(i, "jwt"))
}

// ProvideHealth one checker per configured store; only the default store is required
func ProvideHealth(i do.Injector) (*health.Aggregator, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	reg, err := do.Invoke[*storage.Registry](i)
	if err != nil {
		return nil, err
	}

	agg := health.NewAggregator(cfg.Health.Timeout)
	agg.SetMetadata("service", cfg.App.Name)
	if cfg.App.Version != "" {
		agg.SetMetadata("version", cfg.App.Version)
	}
	for _, t := range reg.Types() {
		store, err := reg.Get(string(t))
		if err != nil {
			return nil, err
		}
		name := "storage:" + string(t)
		if t == cfg.Storage.Type {
			agg.Register(health.NewChecker(name, store.Ping))
		} else {
			agg.Register(health.NewOptionalChecker(name, store.Ping))
		}
	}
	return agg, nil
}

// ProvideHTTPMetrics HTTP 指标, telemetry 指标关闭时不可用
func ProvideHTTPMetrics(i do.Injector) (*middleware.HTTPMetrics, error) {
	tel, err := do.Invoke[*telemetry.Manager](i)
	if err != nil {
		return nil, err
	}
	if !tel.MetricsEnabled() {
		return nil, fmt.Errorf("http metrics: %w", ErrComponentDisabled)
	}
	return middleware.NewHTTPMetrics(tel.Meter("http"), false)
}

// ProvideHTTPServer assembles the server; optional components are skipped when disabled
func ProvideHTTPServer(i do.Injector) (*application.HTTPServer, error) {
	cfg, err := mustConfig(i)
	if err != nil {
		return nil, err
	}
	lim, err := do.Invoke[*limiter.Manager](i)
	if err != nil {
		return nil, err
	}
	tel, err := do.Invoke[*telemetry.Manager](i)
	if err != nil {
		return nil, err
	}

	deps := application.ServerDeps{
		Limiter:   lim,
		Telemetry: tel,
		Logger:    moduleLogger(i, "http"),
	}
	if cfg.Health.Enabled {
		if deps.Health, err = do.Invoke[*health.Aggregator](i); err != nil {
			return nil, err
		}
	}
	if tel.MetricsEnabled() {
		if deps.Metrics, err = do.Invoke[*middleware.HTTPMetrics](i); err != nil {
			return nil, err
		}
	}
	if cfg.JWT.Enabled {
		if deps.Tokens, err = do.Invoke[*jwt.TokenManager](i); err != nil {
			return nil, err
		}
	}
	return application.NewHTTPServer(cfg.Server, deps), nil
}
