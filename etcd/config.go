// Package etcd wraps the etcd v3 client
package etcd

import (
	"errors"
	"time"
)

// Config etcd client configuration
type Config struct {
	Endpoints   []string      `mapstructure:"endpoints" yaml:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	Username    string        `mapstructure:"username" yaml:"username"`
	Password    string        `mapstructure:"password" yaml:"-"`
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if len(c.Endpoints) == 0 {
		c.Endpoints = []string{"127.0.0.1:2379"}
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
}

// Validate configuration
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("etcd: endpoints cannot be empty")
	}
	if c.Password != "" && c.Username == "" {
		return errors.New("etcd: password set without username")
	}
	return nil
}
