package database

import (
	"context"
	"testing"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Sqlite(t *testing.T) {
	log, _ := logger.NewTestCtxLogger("database")
	m, err := NewManager(map[string]Config{
		"embedded": {Driver: "sqlite", DSN: "file::memory:"},
	}, log)
	require.NoError(t, err)
	defer m.Close()

	db := m.DB("embedded")
	require.NotNil(t, db)
	assert.Nil(t, m.DB("other"))
	assert.NoError(t, m.Ping(context.Background()))

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{DSN: "x.db"}
	cfg.ApplyDefaults()
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, 1, cfg.MaxOpenConns, "sqlite 默认单连接")

	pg := Config{Driver: "postgres", DSN: "host=localhost"}
	pg.ApplyDefaults()
	assert.Equal(t, 50, pg.MaxOpenConns)
	assert.NoError(t, pg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Driver: "oracle", DSN: "x"}
	assert.ErrorIs(t, cfg.Validate(), ErrUnsupportedDriver)

	cfg = Config{Driver: "sqlite"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestNewManager_InvalidConfig(t *testing.T) {
	log, _ := logger.NewTestCtxLogger("database")
	_, err := NewManager(map[string]Config{"x": {Driver: "oracle", DSN: "x"}}, log)
	assert.Error(t, err)

	_, err = NewManager(nil, nil)
	assert.Error(t, err)
}
