package di

import (
	"github.com/KOMKZ/go-yogan-ratelimiter/config"
	"github.com/samber/do/v2"
)

// RegisterProviders registers every component provider, lazy by layer
func RegisterProviders(injector do.Injector, opts Options) {
	// ═══════════════════════════════════════════════════════════
	// Layer 0: Config
	// ═══════════════════════════════════════════════════════════
	if opts.Config != nil {
		do.ProvideValue(injector, opts.Config)
	} else {
		do.Provide(injector, config.ProvideLoader(config.ProvideLoaderOptions{
			ConfigPath:   opts.ConfigPath,
			EnvPrefix:    opts.EnvPrefix,
			Flags:        opts.Flags,
			FlagBindings: opts.FlagBindings,
		}))
		do.Provide(injector, ProvideAppConfig)
	}

	// ═══════════════════════════════════════════════════════════
	// Layer 1: Logger, Telemetry
	// ═══════════════════════════════════════════════════════════
	do.Provide(injector, ProvideLoggerManager)
	do.Provide(injector, ProvideLogger)
	do.Provide(injector, ProvideTelemetry)

	// ═══════════════════════════════════════════════════════════
	// Layer 2: 连接 (按 storage 配置懒加载)
	// ═══════════════════════════════════════════════════════════
	do.Provide(injector, ProvideRedisManager)
	do.Provide(injector, ProvideDatabaseManager)
	do.Provide(injector, ProvideEtcdClient)
	do.Provide(injector, ProvideAuditSink)

	// ═══════════════════════════════════════════════════════════
	// Layer 3: 存储, limiter
	// ═══════════════════════════════════════════════════════════
	do.Provide(injector, provideStores)
	do.Provide(injector, ProvideStorageRegistry)
	do.Provide(injector, ProvideSweeper)
	do.Provide(injector, ProvideLimiter)

	// ═══════════════════════════════════════════════════════════
	// Layer 4: HTTP
	// ═══════════════════════════════════════════════════════════
	do.Provide(injector, ProvideTokenManager)
	do.Provide(injector, ProvideHealth)
	do.Provide(injector, ProvideHTTPMetrics)
	do.Provide(injector, ProvideHTTPServer)
}

// NewInjector 创建根注入器并注册全部 Provider
func NewInjector(opts Options) *do.RootScope {
	injector := do.New()
	RegisterProviders(injector, opts)
	return injector
}
