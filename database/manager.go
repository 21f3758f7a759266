package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Manager database manager (multiple named instances)
type Manager struct {
	instances map[string]*gorm.DB
	configs   map[string]Config
	logger    *logger.CtxZapLogger
	mu        sync.RWMutex
}

// NewManager opens every configured instance
func NewManager(configs map[string]Config, log *logger.CtxZapLogger) (*Manager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	m := &Manager{
		instances: make(map[string]*gorm.DB),
		configs:   make(map[string]Config),
		logger:    log,
	}

	for name, cfg := range configs {
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("invalid config for %s: %w", name, err)
		}

		db, err := m.openDB(cfg)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("failed to open database %s: %w", name, err)
		}

		m.instances[name] = db
		m.configs[name] = cfg
		m.logger.DebugCtx(context.Background(), "Database connection successful",
			zap.String("name", name),
			zap.String("driver", cfg.Driver))
	}

	return m, nil
}

func (m *Manager) openDB(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, ErrUnsupportedDriver
	}

	level := gormlogger.Silent
	if cfg.EnableLog {
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(logger.GetLogger("sql"), cfg.SlowThreshold, level),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// DB returns the named instance, nil when absent
func (m *Manager) DB(name string) *gorm.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instances[name]
}

// Ping check all database connections
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, db := range m.instances {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB for %s: %w", name, err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("ping failed for %s: %w", name, err)
		}
	}
	return nil
}

// Close all database connections
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, db := range m.instances {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil {
			m.logger.ErrorCtx(context.Background(), "Failed to close database connection",
				zap.String("name", name), zap.Error(err))
		}
	}
	m.instances = make(map[string]*gorm.DB)
	return nil
}

// Shutdown implements do.Shutdowner
func (m *Manager) Shutdown() error {
	return m.Close()
}
