package storage

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config storage configuration
type Config struct {
	// Type default backend: memory, redis, embedded, etcd
	Type Type `mapstructure:"type" yaml:"type"`

	// RedisInstance instance name in redis.instances, enables the "redis" store
	RedisInstance string `mapstructure:"redis_instance" yaml:"redis_instance"`

	// DatabaseInstance instance name in database.instances, enables the "embedded" store
	DatabaseInstance string `mapstructure:"database_instance" yaml:"database_instance"`

	// EtcdEnabled enables the "etcd" store
	EtcdEnabled bool `mapstructure:"etcd_enabled" yaml:"etcd_enabled"`

	// OpTimeout per-operation deadline
	OpTimeout time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`

	// StateTTL retention of state entries, 0 keeps forever
	StateTTL time.Duration `mapstructure:"state_ttl" yaml:"state_ttl"`

	// ConfigTTL retention of memoized configs, 0 keeps forever
	ConfigTTL time.Duration `mapstructure:"config_ttl" yaml:"config_ttl"`

	// SweepInterval embedded/memory expiry sweep, 0 disables
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// DefaultConfig embedded store, no remote dependency
func DefaultConfig() Config {
	return Config{
		Type:             TypeEmbedded,
		DatabaseInstance: "embedded",
		OpTimeout:        2 * time.Second,
		StateTTL:         24 * time.Hour,
		SweepInterval:    10 * time.Minute,
	}
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Type == "" {
		c.Type = d.Type
	}
	if c.Type == TypeEmbedded && c.DatabaseInstance == "" {
		c.DatabaseInstance = d.DatabaseInstance
	}
	if c.Type == TypeRedis && c.RedisInstance == "" {
		c.RedisInstance = "main"
	}
	if c.Type == TypeEtcd {
		c.EtcdEnabled = true
	}
	if c.OpTimeout == 0 {
		c.OpTimeout = d.OpTimeout
	}
}

// Validate configuration
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.Required,
			validation.In(TypeMemory, TypeRedis, TypeEmbedded, TypeEtcd)),
		validation.Field(&c.OpTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.StateTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.ConfigTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.SweepInterval, validation.Min(time.Duration(0))),
	)
}
