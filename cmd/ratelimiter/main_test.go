package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/KOMKZ/go-yogan-ratelimiter/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testConfig = `
logger:
  enable_console: false
storage:
  type: embedded
  sweep_interval: 0s
telemetry:
  metrics:
    enabled: false
jwt:
  enabled: true
  secret: 0123456789abcdef0123456789abcdef
`

// testDir 使用 embedded sqlite, 进程内多次命令共享状态
func testDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig + "database:\n  instances:\n    embedded:\n      dsn: " + filepath.Join(dir, "rl.db") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckStatusReset(t *testing.T) {
	dir := testDir(t)

	for i, want := range []bool{true, true, false} {
		out, err := run(t, "check", "tenant", "u1", "login", "-c", dir,
			"--algorithm", "fixed_window", "--max-requests", "2", "--window-size", "60")
		require.NoError(t, err, out)
		var d limiter.Decision
		require.NoError(t, json.Unmarshal([]byte(out), &d))
		assert.Equal(t, want, d.Allowed, "call %d", i)
	}

	out, err := run(t, "status", "tenant", "u1", "login", "-c", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "fixed_window")

	out, err = run(t, "status", "tenant", "u1", "-c", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "login")

	out, err = run(t, "reset", "tenant", "u1", "login", "-c", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, `"reset": true`)

	// reset 之后重新开始计数
	out, err = run(t, "check", "tenant", "u1", "login", "-c", dir, "--algorithm", "fixed_window", "--max-requests", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"allowed": "true"`)
}

func TestCheck_InvalidArgs(t *testing.T) {
	dir := testDir(t)

	_, err := run(t, "check", "tenant", "u1", "-c", dir)
	assert.Error(t, err)

	_, err = run(t, "check", "tenant", "u1", "login", "-c", dir, "--capacity", "0")
	assert.ErrorIs(t, err, limiter.ErrConfigInvalid)

	_, err = run(t, "check", "tenant", "u1", "login", "-c", dir, "--storage-type", "redis")
	assert.Error(t, err)
}

func TestConfigCmd(t *testing.T) {
	dir := testDir(t)
	out, err := run(t, "config", "-c", dir, "--storage", "memory")
	require.NoError(t, err, out)

	var dumped map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &dumped))
	storage := dumped["storage"].(map[string]interface{})
	assert.Equal(t, "memory", storage["type"])
	// 密钥不输出
	assert.NotContains(t, out, "0123456789abcdef")
}

func TestAdminTokenCmd(t *testing.T) {
	dir := testDir(t)
	out, err := run(t, "admin-token", "-c", dir, "--subject", "ops")
	require.NoError(t, err, out)
	assert.Regexp(t, `^[\w-]+\.[\w-]+\.[\w-]+\n$`, out)
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ratelimiter "+Version)
}
