package logger

import (
	"fmt"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap/zapcore"
)

var validLevels = []interface{}{"debug", "info", "warn", "error", "fatal"}

// ManagerConfig global logger configuration (shared by all modules)
type ManagerConfig struct {
	BaseLogDir       string `mapstructure:"base_log_dir" yaml:"base_log_dir"` // default logs/
	Level            string `mapstructure:"level" yaml:"level"`
	AppName          string `mapstructure:"app_name" yaml:"app_name"` // injected into every entry
	Encoding         string `mapstructure:"encoding" yaml:"encoding"` // json | console
	EnableConsole    bool   `mapstructure:"enable_console" yaml:"enable_console"`
	EnableFile       bool   `mapstructure:"enable_file" yaml:"enable_file"`
	MaxSize          int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups       int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge           int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress         bool   `mapstructure:"compress" yaml:"compress"`
	EnableCaller     bool   `mapstructure:"enable_caller" yaml:"enable_caller"`
	EnableStacktrace bool   `mapstructure:"enable_stacktrace" yaml:"enable_stacktrace"`
	StacktraceLevel  string `mapstructure:"stacktrace_level" yaml:"stacktrace_level"`
	StacktraceDepth  int    `mapstructure:"stacktrace_depth" yaml:"stacktrace_depth"` // 0 = 默认 10 层
	EnableTraceID    bool   `mapstructure:"enable_trace_id" yaml:"enable_trace_id"`
	TraceIDKey       string `mapstructure:"trace_id_key" yaml:"trace_id_key"` // ctx key, default "trace_id"
}

// DefaultManagerConfig returns default manager configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BaseLogDir:       "logs",
		Level:            "info",
		AppName:          "ratelimiter",
		Encoding:         "json",
		EnableConsole:    true,
		EnableFile:       false,
		MaxSize:          100,
		MaxBackups:       3,
		MaxAge:           28,
		Compress:         true,
		EnableCaller:     true,
		EnableStacktrace: true,
		StacktraceLevel:  "error",
		StacktraceDepth:  5,
		EnableTraceID:    true,
		TraceIDKey:       "trace_id",
	}
}

// ApplyDefaults fills zero-valued fields in place
// Booleans cannot be told apart from "unset" and are kept as-is
func (c *ManagerConfig) ApplyDefaults() {
	d := DefaultManagerConfig()
	if c.BaseLogDir == "" {
		c.BaseLogDir = d.BaseLogDir
	}
	if c.Level == "" {
		c.Level = d.Level
	}
	if c.Encoding == "" {
		c.Encoding = d.Encoding
	}
	if c.StacktraceLevel == "" {
		c.StacktraceLevel = d.StacktraceLevel
	}
	if c.TraceIDKey == "" {
		c.TraceIDKey = d.TraceIDKey
	}
	if c.MaxSize == 0 {
		c.MaxSize = d.MaxSize
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = d.MaxBackups
	}
	if c.MaxAge == 0 {
		c.MaxAge = d.MaxAge
	}
}

// Validate implements config.Validator
func (c ManagerConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.Required, validation.In(validLevels...)),
		validation.Field(&c.Encoding, validation.Required, validation.In("json", "console")),
		validation.Field(&c.StacktraceLevel, validation.In(validLevels...)),
		validation.Field(&c.MaxSize, validation.Min(1), validation.Max(10000)),
		validation.Field(&c.MaxBackups, validation.Min(0), validation.Max(1000)),
		validation.Field(&c.MaxAge, validation.Min(0), validation.Max(3650)),
	)
	if err != nil {
		return fmt.Errorf("[Logger] invalid config: %w", err)
	}
	return nil
}

// ParseLevel parse log level string, unknown values fall back to info
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// logs/<module>/<module>-<level>.log
func (c ManagerConfig) filePath(module, level string) string {
	return filepath.Join(c.BaseLogDir, module, module+"-"+level+".log")
}
