package telemetry

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Exporter 类型
const (
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNoop       = "noop"
	ExporterPrometheus = "prometheus"
)

// Config OpenTelemetry configuration
type Config struct {
	Enabled        bool                   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName    string                 `mapstructure:"service_name" yaml:"service_name"`
	ServiceVersion string                 `mapstructure:"service_version" yaml:"service_version"`
	Exporter       ExporterConfig         `mapstructure:"exporter" yaml:"exporter"`
	Sampler        SamplerConfig          `mapstructure:"sampler" yaml:"sampler"`
	ResourceAttrs  map[string]interface{} `mapstructure:"resource_attributes" yaml:"resource_attributes"`
	Batch          BatchConfig            `mapstructure:"batch" yaml:"batch"`
	Metrics        MetricsConfig          `mapstructure:"metrics" yaml:"metrics"`
}

// ExporterConfig trace exporter
type ExporterConfig struct {
	Type     string            `mapstructure:"type" yaml:"type"` // otlp, stdout, noop
	Endpoint string            `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool              `mapstructure:"insecure" yaml:"insecure"`
	Timeout  time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	Headers  map[string]string `mapstructure:"headers" yaml:"headers"` // OpenObserve 等认证头
}

// SamplerConfig 采样配置
type SamplerConfig struct {
	Type  string  `mapstructure:"type" yaml:"type"` // always_on, always_off, trace_id_ratio, parent_based_always_on
	Ratio float64 `mapstructure:"ratio" yaml:"ratio"`
}

// BatchConfig span 批处理
type BatchConfig struct {
	Enabled            bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxQueueSize       int           `mapstructure:"max_queue_size" yaml:"max_queue_size"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size" yaml:"max_export_batch_size"`
	ScheduleDelay      time.Duration `mapstructure:"schedule_delay" yaml:"schedule_delay"`
	ExportTimeout      time.Duration `mapstructure:"export_timeout" yaml:"export_timeout"`
}

// MetricsConfig metrics pipeline.
// Exporter=prometheus 时指标通过 /metrics 拉取，otlp/stdout 走周期推送
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	Exporter       string        `mapstructure:"exporter" yaml:"exporter"`
	Namespace      string        `mapstructure:"namespace" yaml:"namespace"`
	ExportInterval time.Duration `mapstructure:"export_interval" yaml:"export_interval"`
	ExportTimeout  time.Duration `mapstructure:"export_timeout" yaml:"export_timeout"`
	RuntimeMetrics bool          `mapstructure:"runtime_metrics" yaml:"runtime_metrics"` // go_* / process_* collectors
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "ratelimiter",
		ServiceVersion: "1.0.0",
		Exporter: ExporterConfig{
			Type:     ExporterOTLP,
			Endpoint: "localhost:4317",
			Insecure: true,
			Timeout:  10 * time.Second,
		},
		Sampler: SamplerConfig{
			Type:  "parent_based_always_on",
			Ratio: 1.0,
		},
		ResourceAttrs: make(map[string]interface{}),
		Batch: BatchConfig{
			Enabled:            true,
			MaxQueueSize:       2048,
			MaxExportBatchSize: 512,
			ScheduleDelay:      5 * time.Second,
			ExportTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			Exporter:       ExporterPrometheus,
			ExportInterval: 10 * time.Second,
			ExportTimeout:  5 * time.Second,
			RuntimeMetrics: true,
		},
	}
}

// ApplyDefaults fills zero values left by a partial config file
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.ServiceName == "" {
		c.ServiceName = def.ServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = def.ServiceVersion
	}
	if c.Exporter.Type == "" {
		c.Exporter.Type = def.Exporter.Type
	}
	if c.Exporter.Type == ExporterOTLP && c.Exporter.Endpoint == "" {
		c.Exporter.Endpoint = def.Exporter.Endpoint
	}
	if c.Exporter.Timeout <= 0 {
		c.Exporter.Timeout = def.Exporter.Timeout
	}
	if c.Sampler.Type == "" {
		c.Sampler = def.Sampler
	}
	if c.Batch.MaxQueueSize <= 0 {
		c.Batch.MaxQueueSize = def.Batch.MaxQueueSize
	}
	if c.Batch.MaxExportBatchSize <= 0 {
		c.Batch.MaxExportBatchSize = def.Batch.MaxExportBatchSize
	}
	if c.Batch.ScheduleDelay <= 0 {
		c.Batch.ScheduleDelay = def.Batch.ScheduleDelay
	}
	if c.Batch.ExportTimeout <= 0 {
		c.Batch.ExportTimeout = def.Batch.ExportTimeout
	}
	if c.Metrics.Exporter == "" {
		c.Metrics.Exporter = def.Metrics.Exporter
	}
	if c.Metrics.ExportInterval <= 0 {
		c.Metrics.ExportInterval = def.Metrics.ExportInterval
	}
	if c.Metrics.ExportTimeout <= 0 {
		c.Metrics.ExportTimeout = def.Metrics.ExportTimeout
	}
}

// Validate configuration
func (c Config) Validate() error {
	if c.Metrics.Enabled {
		if err := validation.Validate(c.Metrics.Exporter,
			validation.In(ExporterPrometheus, ExporterOTLP, ExporterStdout).
				Error(fmt.Sprintf("unsupported metrics exporter: %s", c.Metrics.Exporter)),
		); err != nil {
			return err
		}
	}
	if !c.Enabled {
		return nil // tracing 未启用，不校验
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.Exporter, validation.By(func(interface{}) error {
			return validation.ValidateStruct(&c.Exporter,
				validation.Field(&c.Exporter.Type, validation.In(ExporterOTLP, ExporterStdout, ExporterNoop)),
				validation.Field(&c.Exporter.Endpoint, validation.When(c.Exporter.Type == ExporterOTLP, validation.Required)),
			)
		})),
		validation.Field(&c.Sampler, validation.By(func(interface{}) error {
			return validation.ValidateStruct(&c.Sampler,
				validation.Field(&c.Sampler.Type, validation.In("always_on", "always_off", "trace_id_ratio", "parent_based_always_on")),
				validation.Field(&c.Sampler.Ratio, validation.When(c.Sampler.Type == "trace_id_ratio",
					validation.Min(0.0), validation.Max(1.0))),
			)
		})),
	)
}
