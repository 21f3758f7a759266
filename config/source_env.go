package config

import (
	"os"
	"strings"
)

// EnvSource 环境变量数据源
// RATELIMITER_STORAGE_STATE_TTL is returned as "storage_state_ttl"; the Loader
// resolves it against known keys ("storage.state_ttl") when merging.
type EnvSource struct {
	prefix   string
	priority int
}

// NewEnvSource 创建环境变量数据源
func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{prefix: prefix, priority: priority}
}

func (s *EnvSource) Name() string  { return "env:" + s.prefix }
func (s *EnvSource) Priority() int { return s.priority }

func (s *EnvSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if s.prefix == "" {
		return result, nil
	}

	prefix := s.prefix + "_"
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		result[strings.ToLower(strings.TrimPrefix(key, prefix))] = value
	}
	return result, nil
}
