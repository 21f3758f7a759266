package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Loader configuration loader (multiple prioritized sources)
type Loader struct {
	sources      []ConfigSource
	mergedConfig map[string]interface{}
	v            *viper.Viper
	loadedFiles  []string
}

// NewLoader creates an empty loader
func NewLoader() *Loader {
	return &Loader{
		mergedConfig: make(map[string]interface{}),
		v:            viper.New(),
	}
}

// AddSource add configuration data source
func (l *Loader) AddSource(source ConfigSource) {
	l.sources = append(l.sources, source)
}

// Load merges all sources, higher priority overrides lower
func (l *Loader) Load() error {
	sort.SliceStable(l.sources, func(i, j int) bool {
		return l.sources[i].Priority() < l.sources[j].Priority()
	})

	l.mergedConfig = make(map[string]interface{})
	l.loadedFiles = l.loadedFiles[:0]
	for _, source := range l.sources {
		data, err := source.Load()
		if err != nil {
			return fmt.Errorf("加载数据源 %s 失败: %w", source.Name(), err)
		}
		if fs, ok := source.(*FileSource); ok {
			l.loadedFiles = append(l.loadedFiles, fs.path)
		}

		_, isEnv := source.(*EnvSource)
		for key, value := range data {
			if isEnv {
				key = l.resolveEnvKey(key)
			}
			l.mergedConfig[key] = value
		}
	}

	l.v = viper.New()
	for key, value := range unflattenMap(l.mergedConfig) {
		l.v.Set(key, value)
	}
	return nil
}

// resolveEnvKey maps "storage_state_ttl" to an already known "storage.state_ttl",
// otherwise every underscore becomes a dot
func (l *Loader) resolveEnvKey(envKey string) string {
	for known := range l.mergedConfig {
		if strings.ReplaceAll(known, ".", "_") == envKey {
			return known
		}
	}
	return strings.ReplaceAll(envKey, "_", ".")
}

// unflattenMap {"a.b": 1} -> {"a": {"b": 1}}
func unflattenMap(flat map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for key, value := range flat {
		parts := strings.Split(key, ".")
		current := result
		for _, p := range parts[:len(parts)-1] {
			next, ok := current[p].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[p] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = value
	}
	return result
}

// Unmarshal parse the whole configuration into struct
func (l *Loader) Unmarshal(v interface{}) error {
	return l.v.Unmarshal(v)
}

// UnmarshalKey parse one section, e.g. UnmarshalKey("limiter", &cfg)
func (l *Loader) UnmarshalKey(key string, v interface{}) error {
	return l.v.UnmarshalKey(key, v)
}

func (l *Loader) Get(key string) interface{}          { return l.v.Get(key) }
func (l *Loader) GetString(key string) string         { return l.v.GetString(key) }
func (l *Loader) GetInt(key string) int               { return l.v.GetInt(key) }
func (l *Loader) GetBool(key string) bool             { return l.v.GetBool(key) }
func (l *Loader) IsSet(key string) bool               { return l.v.IsSet(key) }
func (l *Loader) AllSettings() map[string]interface{} { return l.v.AllSettings() }

// GetLoadedFiles files that took part in the last Load
func (l *Loader) GetLoadedFiles() []string {
	return l.loadedFiles
}

// Reload reload configuration
func (l *Loader) Reload() error {
	return l.Load()
}
