package etcd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Endpoints)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Endpoints: []string{"a:2379"}, Password: "secret"}
	assert.Error(t, cfg.Validate())

	cfg = Config{}
	assert.Error(t, cfg.Validate())
}
