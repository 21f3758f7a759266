package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// FileSource 文件配置数据源 (yaml/json/toml, by extension)
type FileSource struct {
	path     string
	priority int
}

// NewFileSource 创建文件数据源
func NewFileSource(path string, priority int) *FileSource {
	return &FileSource{path: path, priority: priority}
}

func (s *FileSource) Name() string  { return "file:" + s.path }
func (s *FileSource) Priority() int { return s.priority }

// Load 文件不存在时返回空配置（非错误）
func (s *FileSource) Load() (map[string]interface{}, error) {
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("访问配置文件失败 %s: %w", s.path, err)
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败 %s: %w", s.path, err)
	}
	return flattenMap("", v.AllSettings()), nil
}

// flattenMap {"a": {"b": 1}} -> {"a.b": 1}
func flattenMap(prefix string, data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for key, value := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			for k, v := range flattenMap(fullKey, nested) {
				result[k] = v
			}
			continue
		}
		result[fullKey] = value
	}
	return result
}
