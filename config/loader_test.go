package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoader_Priority(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
storage:
  type: redis
  state_ttl: 1h
limiter:
  max_retries: 3
`)
	writeFile(t, dir, "test.yaml", `
limiter:
  max_retries: 4
`)
	t.Setenv("APP_ENV", "test")
	t.Setenv("RLTEST_STORAGE_STATE_TTL", "2h")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("store", "", "")
	require.NoError(t, fs.Parse([]string{"--store=memory"}))

	loader, err := NewLoaderBuilder().
		WithDefaults(map[string]interface{}{"limiter": map[string]interface{}{"key_prefix": "p"}}).
		WithConfigPath(dir).
		WithEnvPrefix("RLTEST").
		WithFlags(fs, map[string]string{"store": "storage.type"}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "memory", loader.GetString("storage.type"), "flags 优先级最高")
	assert.Equal(t, "2h", loader.GetString("storage.state_ttl"), "env 覆盖文件并保留下划线 key")
	assert.Equal(t, 4, loader.GetInt("limiter.max_retries"), "环境文件覆盖基础文件")
	assert.Equal(t, "p", loader.GetString("limiter.key_prefix"))
	assert.Len(t, loader.GetLoadedFiles(), 2)
}

func TestLoader_UnmarshalKey(t *testing.T) {
	loader := NewLoader()
	loader.AddSource(NewMapSource("test", 1, map[string]interface{}{
		"redis": map[string]interface{}{"addr": "127.0.0.1:6379", "db": 2},
	}))
	require.NoError(t, loader.Load())

	var cfg struct {
		Addr string `mapstructure:"addr"`
		DB   int    `mapstructure:"db"`
	}
	require.NoError(t, loader.UnmarshalKey("redis", &cfg))
	assert.Equal(t, "127.0.0.1:6379", cfg.Addr)
	assert.Equal(t, 2, cfg.DB)
}

func TestLoader_UnknownEnvKey(t *testing.T) {
	t.Setenv("RLTEST2_SERVER_ADDR", ":9090")
	loader := NewLoader()
	loader.AddSource(NewEnvSource("RLTEST2", 50))
	require.NoError(t, loader.Load())

	assert.Equal(t, ":9090", loader.GetString("server.addr"))
}

func TestFileSource_Missing(t *testing.T) {
	data, err := NewFileSource("/nonexistent/config.yaml", 10).Load()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileSource_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "storage: [unclosed")
	_, err := NewFileSource(filepath.Join(dir, "config.yaml"), 10).Load()
	assert.Error(t, err)
}

func TestFlagSource_OnlyChanged(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("addr", ":8080", "")
	fs.StringSlice("brokers", nil, "")
	require.NoError(t, fs.Parse([]string{"--brokers=a:9092,b:9092"}))

	data, err := NewFlagSource(fs, map[string]string{
		"addr":    "server.addr",
		"brokers": "kafka.brokers",
	}, 100).Load()
	require.NoError(t, err)

	_, hasAddr := data["server.addr"]
	assert.False(t, hasAddr, "未显式设置的 flag 不应覆盖配置")
	assert.Equal(t, []string{"a:9092", "b:9092"}, data["kafka.brokers"])
}

type okValidator struct{}

func (okValidator) Validate() error { return nil }

type badValidator struct{}

func (badValidator) Validate() error { return assert.AnError }

func TestValidateAll(t *testing.T) {
	assert.NoError(t, ValidateAll(okValidator{}, okValidator{}))
	assert.ErrorIs(t, ValidateAll(okValidator{}, badValidator{}), assert.AnError)
}
