package redis

import (
	"fmt"
	"time"
)

// Config Redis instance settings
type Config struct {
	// Mode: "standalone" or "cluster"
	Mode string `mapstructure:"mode" yaml:"mode"`

	// Addrs standalone uses the first address, cluster uses all
	Addrs []string `mapstructure:"addrs" yaml:"addrs"`

	// Addr single address (prefer Addrs)
	Addr string `mapstructure:"addr" yaml:"addr"`

	Password string `mapstructure:"password" yaml:"-"`

	// DB 0-15, standalone only
	DB int `mapstructure:"db" yaml:"db"`

	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Validate configuration
func (c *Config) Validate() error {
	if c.Mode != "standalone" && c.Mode != "cluster" {
		return fmt.Errorf("invalid mode: %s (must be standalone or cluster)", c.Mode)
	}
	if len(c.Addrs) == 0 {
		return fmt.Errorf("addrs cannot be empty")
	}
	if c.Mode == "standalone" && (c.DB < 0 || c.DB > 15) {
		return fmt.Errorf("db must be between 0 and 15, got: %d", c.DB)
	}
	if c.PoolSize < 0 || c.MinIdleConns < 0 {
		return fmt.Errorf("pool_size and min_idle_conns must be >= 0")
	}
	return nil
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "standalone"
	}
	if c.Addr != "" && len(c.Addrs) == 0 {
		c.Addrs = []string{c.Addr}
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = 2
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}
