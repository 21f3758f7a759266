package config

// ConfigSource configuration data source (files, env vars, flags, defaults)
type ConfigSource interface {
	Name() string

	// Priority higher value wins
	// defaults: 1, config.yaml: 10, <env>.yaml: 20, env vars: 50, flags: 100
	Priority() int

	// Load returns dot-separated flat keys, e.g. "storage.redis.instance"
	Load() (map[string]interface{}, error)
}

// MapSource 固定键值数据源（默认值、测试）
type MapSource struct {
	name     string
	priority int
	data     map[string]interface{}
}

// NewMapSource nested maps are flattened on load
func NewMapSource(name string, priority int, data map[string]interface{}) *MapSource {
	return &MapSource{name: name, priority: priority, data: data}
}

func (s *MapSource) Name() string  { return "map:" + s.name }
func (s *MapSource) Priority() int { return s.priority }

func (s *MapSource) Load() (map[string]interface{}, error) {
	return flattenMap("", s.data), nil
}
