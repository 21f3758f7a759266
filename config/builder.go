package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// LoaderBuilder configuration loader builder
type LoaderBuilder struct {
	configPath   string
	envPrefix    string
	defaults     map[string]interface{}
	flags        *pflag.FlagSet
	flagBindings map[string]string
}

// NewLoaderBuilder creates a loader builder
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{}
}

// WithConfigPath set configuration directory
func (b *LoaderBuilder) WithConfigPath(path string) *LoaderBuilder {
	b.configPath = path
	return b
}

// WithEnvPrefix set environment variable prefix
func (b *LoaderBuilder) WithEnvPrefix(prefix string) *LoaderBuilder {
	b.envPrefix = prefix
	return b
}

// WithDefaults lowest priority values, nested maps allowed
func (b *LoaderBuilder) WithDefaults(defaults map[string]interface{}) *LoaderBuilder {
	b.defaults = defaults
	return b
}

// WithFlags binds cobra/pflag flags to config keys
func (b *LoaderBuilder) WithFlags(flags *pflag.FlagSet, bindings map[string]string) *LoaderBuilder {
	b.flags = flags
	b.flagBindings = bindings
	return b
}

// Build loader
// defaults(1) < config.yaml(10) < <env>.yaml(20) < env vars(50) < flags(100)
func (b *LoaderBuilder) Build() (*Loader, error) {
	loader := NewLoader()

	if b.defaults != nil {
		loader.AddSource(NewMapSource("defaults", 1, b.defaults))
	}
	if b.configPath != "" {
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, "config.yaml"), 10))
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, GetEnv()+".yaml"), 20))
	}
	if b.envPrefix != "" {
		loader.AddSource(NewEnvSource(b.envPrefix, 50))
	}
	if b.flags != nil {
		loader.AddSource(NewFlagSource(b.flags, b.flagBindings, 100))
	}

	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader, nil
}

// GetEnv APP_ENV > ENV > dev
func GetEnv() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "dev"
}
