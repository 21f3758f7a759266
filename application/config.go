package application

import (
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/config"
	"github.com/KOMKZ/go-yogan-ratelimiter/database"
	"github.com/KOMKZ/go-yogan-ratelimiter/etcd"
	"github.com/KOMKZ/go-yogan-ratelimiter/health"
	"github.com/KOMKZ/go-yogan-ratelimiter/httpx"
	"github.com/KOMKZ/go-yogan-ratelimiter/jwt"
	"github.com/KOMKZ/go-yogan-ratelimiter/kafka"
	"github.com/KOMKZ/go-yogan-ratelimiter/limiter"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/KOMKZ/go-yogan-ratelimiter/redis"
	"github.com/KOMKZ/go-yogan-ratelimiter/storage"
	"github.com/KOMKZ/go-yogan-ratelimiter/telemetry"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// AppConfig 根配置, 与 config.yaml 顶层 key 一一对应
type AppConfig struct {
	App       AppInfo              `mapstructure:"app" yaml:"app"`
	Logger    logger.ManagerConfig `mapstructure:"logger" yaml:"logger"`
	Storage   storage.Config       `mapstructure:"storage" yaml:"storage"`
	Redis     RedisSection         `mapstructure:"redis" yaml:"redis"`
	Database  DatabaseSection      `mapstructure:"database" yaml:"database"`
	Etcd      etcd.Config          `mapstructure:"etcd" yaml:"etcd"`
	Limiter   limiter.Config       `mapstructure:"limiter" yaml:"limiter"`
	Server    ServerConfig         `mapstructure:"server" yaml:"server"`
	JWT       jwt.Config           `mapstructure:"jwt" yaml:"jwt"`
	Telemetry telemetry.Config     `mapstructure:"telemetry" yaml:"telemetry"`
	Kafka     kafka.Config         `mapstructure:"kafka" yaml:"kafka"`
	Health    health.Config        `mapstructure:"health" yaml:"health"`
}

// AppInfo 应用元信息
type AppInfo struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Version string `mapstructure:"version" yaml:"version"`
}

// RedisSection named redis instances
type RedisSection struct {
	Instances map[string]redis.Config `mapstructure:"instances" yaml:"instances"`
}

// DatabaseSection named gorm instances
type DatabaseSection struct {
	Instances map[string]database.Config `mapstructure:"instances" yaml:"instances"`
}

// ServerConfig HTTP API 配置
type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	Mode            string        `mapstructure:"mode" yaml:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	TraceID      TraceIDSettings          `mapstructure:"trace_id" yaml:"trace_id"`
	RequestLog   RequestLogSettings       `mapstructure:"request_log" yaml:"request_log"`
	Throttle     ThrottleSettings         `mapstructure:"throttle" yaml:"throttle"`
	ErrorLogging httpx.ErrorLoggingConfig `mapstructure:"error_logging" yaml:"error_logging"`
}

// TraceIDSettings trace id 中间件
type TraceIDSettings struct {
	Enable               bool   `mapstructure:"enable" yaml:"enable"`
	TraceIDKey           string `mapstructure:"trace_id_key" yaml:"trace_id_key"`
	TraceIDHeader        string `mapstructure:"trace_id_header" yaml:"trace_id_header"`
	EnableResponseHeader bool   `mapstructure:"enable_response_header" yaml:"enable_response_header"`
}

// RequestLogSettings 请求日志中间件
type RequestLogSettings struct {
	Enable    bool     `mapstructure:"enable" yaml:"enable"`
	SkipPaths []string `mapstructure:"skip_paths" yaml:"skip_paths"`
}

// ThrottleSettings 对 HTTP API 自身限流, 参数为 0 时使用 limiter.defaults
type ThrottleSettings struct {
	Enable      bool                  `mapstructure:"enable" yaml:"enable"`
	UniqueID    string                `mapstructure:"unique_id" yaml:"unique_id"`
	Algorithm   limiter.AlgorithmType `mapstructure:"algorithm" yaml:"algorithm"`
	Rate        float64               `mapstructure:"rate" yaml:"rate"`
	Capacity    int64                 `mapstructure:"capacity" yaml:"capacity"`
	MaxRequests int64                 `mapstructure:"max_requests" yaml:"max_requests"`
	WindowSize  int64                 `mapstructure:"window_size" yaml:"window_size"`
	StorageType string                `mapstructure:"storage_type" yaml:"storage_type"`
	SkipPaths   []string              `mapstructure:"skip_paths" yaml:"skip_paths"`
	FailOpen    bool                  `mapstructure:"fail_open" yaml:"fail_open"`
}

// Params converts the non-zero settings into limiter hints
func (t ThrottleSettings) Params() limiter.Params {
	var p limiter.Params
	if t.Rate > 0 {
		p.Rate = &t.Rate
	}
	if t.Capacity > 0 {
		p.Capacity = &t.Capacity
	}
	if t.MaxRequests > 0 {
		p.MaxRequests = &t.MaxRequests
	}
	if t.WindowSize > 0 {
		p.WindowSize = &t.WindowSize
	}
	return p
}

// DefaultConfig 每个 section 都带默认值, 配置文件只需覆盖差异部分
func DefaultConfig() AppConfig {
	return AppConfig{
		App:     AppInfo{Name: "ratelimiter"},
		Logger:  logger.DefaultManagerConfig(),
		Storage: storage.DefaultConfig(),
		Redis:   RedisSection{Instances: map[string]redis.Config{}},
		Database: DatabaseSection{Instances: map[string]database.Config{
			"embedded": database.DefaultConfig(),
		}},
		Limiter: limiter.DefaultConfig(),
		Server: ServerConfig{
			Port:            8080,
			Mode:            "release",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			TraceID: TraceIDSettings{
				Enable:               true,
				TraceIDKey:           "trace_id",
				TraceIDHeader:        "X-Trace-ID",
				EnableResponseHeader: true,
			},
			RequestLog: RequestLogSettings{
				Enable:    true,
				SkipPaths: []string{"/healthz", "/metrics"},
			},
			Throttle: ThrottleSettings{
				UniqueID:  "ratelimiter-api",
				SkipPaths: []string{"/healthz", "/metrics"},
			},
			ErrorLogging: httpx.DefaultErrorLoggingConfig(),
		},
		Telemetry: telemetry.DefaultConfig(),
		Health:    health.DefaultConfig(),
	}
}

// Load unmarshals the loader over DefaultConfig, then fills and validates
func Load(loader *config.Loader) (*AppConfig, error) {
	cfg := DefaultConfig()
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values in every section
func (c *AppConfig) ApplyDefaults() {
	c.Logger.ApplyDefaults()
	if c.Logger.AppName == "" {
		c.Logger.AppName = c.App.Name
	}
	c.Storage.ApplyDefaults()
	for name, rc := range c.Redis.Instances {
		rc.ApplyDefaults()
		c.Redis.Instances[name] = rc
	}
	for name, dc := range c.Database.Instances {
		dc.ApplyDefaults()
		c.Database.Instances[name] = dc
	}
	if c.Storage.EtcdEnabled {
		c.Etcd.ApplyDefaults()
	}
	c.Limiter.ApplyDefaults()

	s := &c.Server
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.Mode == "" {
		s.Mode = "release"
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 10 * time.Second
	}
	if s.TraceID.TraceIDKey == "" {
		s.TraceID.TraceIDKey = "trace_id"
	}
	if s.TraceID.TraceIDHeader == "" {
		s.TraceID.TraceIDHeader = "X-Trace-ID"
	}
	if s.Throttle.UniqueID == "" {
		s.Throttle.UniqueID = "ratelimiter-api"
	}

	if c.JWT.Enabled {
		c.JWT.ApplyDefaults()
	}
	c.Telemetry.ApplyDefaults()
	if c.Kafka.Enabled {
		c.Kafka.ApplyDefaults()
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = health.DefaultConfig().Timeout
	}
}

// Validate 校验各 section, 以及 storage 引用的实例是否存在
func (c *AppConfig) Validate() error {
	validators := []config.Validator{c.Logger, c.Storage, c.Limiter, c.JWT, c.Telemetry, c.Kafka}
	for name := range c.Redis.Instances {
		rc := c.Redis.Instances[name]
		validators = append(validators, &rc)
	}
	for name := range c.Database.Instances {
		dc := c.Database.Instances[name]
		validators = append(validators, &dc)
	}
	if c.Storage.EtcdEnabled {
		validators = append(validators, &c.Etcd)
	}
	if err := config.ValidateAll(validators...); err != nil {
		return err
	}

	if c.Storage.RedisInstance != "" {
		if _, ok := c.Redis.Instances[c.Storage.RedisInstance]; !ok {
			return fmt.Errorf("storage.redis_instance %q not found in redis.instances", c.Storage.RedisInstance)
		}
	}
	if c.Storage.DatabaseInstance != "" {
		if _, ok := c.Database.Instances[c.Storage.DatabaseInstance]; !ok {
			return fmt.Errorf("storage.database_instance %q not found in database.instances", c.Storage.DatabaseInstance)
		}
	}

	return validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Server.Mode, validation.In("debug", "release", "test")),
		validation.Field(&c.Server.Throttle, validation.By(func(interface{}) error {
			t := c.Server.Throttle
			if t.Enable && t.Algorithm != "" && !t.Algorithm.Valid() {
				return fmt.Errorf("unknown algorithm %q", t.Algorithm)
			}
			return nil
		})),
	)
}
