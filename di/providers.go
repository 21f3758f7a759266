package di

import (
	"fmt"

	"github.com/KOMKZ/go-yogan-ratelimiter/application"
	"github.com/KOMKZ/go-yogan-ratelimiter/config"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/samber/do/v2"
	"github.com/spf13/pflag"
)

// Options 注入器选项
type Options struct {
	// ConfigPath 配置目录, 读取 config.yaml 和 <env>.yaml
	ConfigPath string

	// EnvPrefix 环境变量前缀, 例如 RATELIMITER_SERVER_PORT
	EnvPrefix string

	Flags        *pflag.FlagSet
	FlagBindings map[string]string

	// Config 非 nil 时跳过 Loader, 直接使用该配置 (测试)
	Config *application.AppConfig
}

// ProvideAppConfig loads, defaults and validates the root config
func ProvideAppConfig(i do.Injector) (*application.AppConfig, error) {
	loader, err := do.Invoke[*config.Loader](i)
	if err != nil {
		return nil, err
	}
	return application.Load(loader)
}

// ProvideLoggerManager 初始化全局 logger, 包级函数 (logger.GetLogger) 与注入的实例一致
func ProvideLoggerManager(i do.Injector) (*logger.Manager, error) {
	cfg, err := do.Invoke[*application.AppConfig](i)
	if err != nil {
		return nil, err
	}
	logger.InitManager(cfg.Logger)
	return logger.Default(), nil
}

// ProvideLogger root "app" logger
func ProvideLogger(i do.Injector) (*logger.CtxZapLogger, error) {
	mgr, err := do.Invoke[*logger.Manager](i)
	if err != nil {
		return nil, err
	}
	return mgr.GetLogger("app"), nil
}

// moduleLogger 取模块 logger, 失败时回退到全局
func moduleLogger(i do.Injector, module string) *logger.CtxZapLogger {
	if mgr, err := do.Invoke[*logger.Manager](i); err == nil {
		return mgr.GetLogger(module)
	}
	return logger.GetLogger(module)
}

func mustConfig(i do.Injector) (*application.AppConfig, error) {
	cfg, err := do.Invoke[*application.AppConfig](i)
	if err != nil {
		return nil, fmt.Errorf("config unavailable: %w", err)
	}
	return cfg, nil
}
