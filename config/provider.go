package config

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/pflag"
)

// ProvideLoaderOptions 创建 Loader 的选项
type ProvideLoaderOptions struct {
	ConfigPath   string
	EnvPrefix    string
	Defaults     map[string]interface{}
	Flags        *pflag.FlagSet
	FlagBindings map[string]string
}

// ProvideLoader Config 是最底层组件，无任何依赖
//
//	do.Provide(injector, config.ProvideLoader(config.ProvideLoaderOptions{
//	    ConfigPath: "./configs",
//	    EnvPrefix:  "RATELIMITER",
//	}))
func ProvideLoader(opts ProvideLoaderOptions) func(do.Injector) (*Loader, error) {
	return func(do.Injector) (*Loader, error) {
		loader, err := NewLoaderBuilder().
			WithConfigPath(opts.ConfigPath).
			WithEnvPrefix(opts.EnvPrefix).
			WithDefaults(opts.Defaults).
			WithFlags(opts.Flags, opts.FlagBindings).
			Build()
		if err != nil {
			return nil, fmt.Errorf("config loader build failed: %w", err)
		}
		return loader, nil
	}
}
