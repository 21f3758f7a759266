package limiter

import (
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// 参数默认值
const (
	DefaultRate        = 10.0
	DefaultCapacity    = int64(100)
	DefaultMaxRequests = int64(100)
	DefaultWindowSize  = int64(60)
)

// Params parameter hints, nil means "use the default"
type Params struct {
	Rate        *float64 `json:"rate,omitempty"`
	Capacity    *int64   `json:"capacity,omitempty"`
	MaxRequests *int64   `json:"max_requests,omitempty"`
	WindowSize  *int64   `json:"window_size,omitempty"`
}

// AlgorithmConfig immutable per-key configuration, first call wins
type AlgorithmConfig struct {
	AlgorithmType AlgorithmType `json:"algorithm_type"`
	ActionType    string        `json:"action_type"`
	Rate          float64       `json:"rate"`
	Capacity      int64         `json:"capacity"`
	MaxRequests   int64         `json:"max_requests"`
	WindowSize    int64         `json:"window_size"`
	CreatedAt     int64         `json:"created_at"`
}

// Validate rejects non-positive parameters and unknown algorithms
func (c AlgorithmConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.AlgorithmType, validation.Required, validation.By(func(v interface{}) error {
			if !v.(AlgorithmType).Valid() {
				return validation.NewError("validation_unknown_algorithm", "unknown algorithm")
			}
			return nil
		})),
		validation.Field(&c.Rate, validation.Min(0.0).Exclusive()),
		validation.Field(&c.Capacity, validation.Min(int64(1))),
		validation.Field(&c.MaxRequests, validation.Min(int64(1))),
		validation.Field(&c.WindowSize, validation.Min(int64(1))),
	)
}

// Defaults per-deployment parameter defaults
type Defaults struct {
	Algorithm   AlgorithmType `mapstructure:"algorithm" yaml:"algorithm"`
	Rate        float64       `mapstructure:"rate" yaml:"rate"`
	Capacity    int64         `mapstructure:"capacity" yaml:"capacity"`
	MaxRequests int64         `mapstructure:"max_requests" yaml:"max_requests"`
	WindowSize  int64         `mapstructure:"window_size" yaml:"window_size"`
}

func (d *Defaults) applyDefaults() {
	if d.Algorithm == "" {
		d.Algorithm = AlgorithmTokenBucket
	}
	if d.Rate == 0 {
		d.Rate = DefaultRate
	}
	if d.Capacity == 0 {
		d.Capacity = DefaultCapacity
	}
	if d.MaxRequests == 0 {
		d.MaxRequests = DefaultMaxRequests
	}
	if d.WindowSize == 0 {
		d.WindowSize = DefaultWindowSize
	}
}

// Build merges hints over the defaults
func (d Defaults) Build(algo AlgorithmType, action string, p Params, now time.Time) AlgorithmConfig {
	cfg := AlgorithmConfig{
		AlgorithmType: algo,
		ActionType:    action,
		Rate:          d.Rate,
		Capacity:      d.Capacity,
		MaxRequests:   d.MaxRequests,
		WindowSize:    d.WindowSize,
		CreatedAt:     now.Unix(),
	}
	if cfg.AlgorithmType == "" {
		cfg.AlgorithmType = d.Algorithm
	}
	if p.Rate != nil {
		cfg.Rate = *p.Rate
	}
	if p.Capacity != nil {
		cfg.Capacity = *p.Capacity
	}
	if p.MaxRequests != nil {
		cfg.MaxRequests = *p.MaxRequests
	}
	if p.WindowSize != nil {
		cfg.WindowSize = *p.WindowSize
	}
	return cfg
}

func encodeConfig(cfg AlgorithmConfig) ([]byte, error) {
	return json.Marshal(cfg)
}

// decodeConfig a stored config that does not validate counts as corrupt
func decodeConfig(data []byte) (AlgorithmConfig, error) {
	var cfg AlgorithmConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Config limiter manager configuration
type Config struct {
	// KeyPrefix storage key prefix
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// Defaults used when a first call leaves parameters unset
	Defaults Defaults `mapstructure:"defaults" yaml:"defaults"`

	// MaxRetries CompareAndSet attempts per check
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// RetryBaseDelay first backoff delay, doubled per attempt
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`

	// RetryMaxDelay backoff cap
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay" yaml:"retry_max_delay"`

	// ConfigCacheSize resolved configs kept in process
	ConfigCacheSize int `mapstructure:"config_cache_size" yaml:"config_cache_size"`

	// ConfigCacheTTL how long a resolved config is trusted without re-reading
	ConfigCacheTTL time.Duration `mapstructure:"config_cache_ttl" yaml:"config_cache_ttl"`

	// StatusConcurrency parallel lookups in StatusAll
	StatusConcurrency int `mapstructure:"status_concurrency" yaml:"status_concurrency"`

	// EventPoolSize listener worker pool, 0 disables the event bus
	EventPoolSize int `mapstructure:"event_pool_size" yaml:"event_pool_size"`

	// EventBufferSize pending events before new ones are dropped
	EventBufferSize int `mapstructure:"event_buffer_size" yaml:"event_buffer_size"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	c.Defaults.applyDefaults()
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 2 * time.Millisecond
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = 50 * time.Millisecond
	}
	if c.ConfigCacheSize == 0 {
		c.ConfigCacheSize = 10000
	}
	if c.ConfigCacheTTL == 0 {
		c.ConfigCacheTTL = 30 * time.Second
	}
	if c.StatusConcurrency == 0 {
		c.StatusConcurrency = 8
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = 1000
	}
}

// Validate configuration
func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.KeyPrefix, validation.Required),
		validation.Field(&c.MaxRetries, validation.Min(1)),
		validation.Field(&c.RetryBaseDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.ConfigCacheSize, validation.Min(1)),
		validation.Field(&c.ConfigCacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.StatusConcurrency, validation.Min(1)),
		validation.Field(&c.EventPoolSize, validation.Min(0)),
	); err != nil {
		return err
	}

	// 默认参数本身必须是合法配置
	sample := c.Defaults.Build("", "defaults", Params{}, time.Time{})
	if err := sample.Validate(); err != nil {
		return validation.Errors{"defaults": err}
	}
	return nil
}
