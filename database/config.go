// Package database provides gorm connection management
package database

import (
	"time"
)

// Config database configuration
type Config struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"` // mysql, postgres, sqlite
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	EnableLog       bool          `mapstructure:"enable_log" yaml:"enable_log"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`
}

// DefaultConfig embedded sqlite file next to the process
func DefaultConfig() Config {
	return Config{
		Driver:          "sqlite",
		DSN:             "ratelimiter.db?_busy_timeout=5000",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		SlowThreshold:   200 * time.Millisecond,
	}
}

// ApplyDefaults fills zero values
// sqlite allows a single writer, so its pool defaults to one connection
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.MaxOpenConns <= 0 {
		if c.Driver == "sqlite" {
			c.MaxOpenConns = 1
		} else {
			c.MaxOpenConns = 50
		}
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
}

// Validate configuration
func (c *Config) Validate() error {
	switch c.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return ErrUnsupportedDriver
	}
	if c.DSN == "" {
		return ErrInvalidConfig
	}
	return nil
}
