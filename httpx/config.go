// Package httpx provides unified handling of HTTP requests/responses
package httpx

// ErrorLoggingConfig Error logging configuration
type ErrorLoggingConfig struct {
	// Enable error log recording (default false)
	Enable bool `mapstructure:"enable" yaml:"enable"`

	// IgnoreHTTPStatus 这些状态码不记录, 例如 []int{400} 忽略参数错误
	IgnoreHTTPStatus []int `mapstructure:"ignore_http_status" yaml:"ignore_http_status"`

	// FullErrorChain 记录完整错误链 (cause)
	FullErrorChain bool `mapstructure:"full_error_chain" yaml:"full_error_chain"`

	// LogLevel error, warn, info
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// DefaultErrorLoggingConfig returns the default configuration.
// 存储不可用属于运维关注的错误, 默认开启, 参数错误不记录
func DefaultErrorLoggingConfig() ErrorLoggingConfig {
	return ErrorLoggingConfig{
		Enable:           true,
		IgnoreHTTPStatus: []int{400, 401, 404},
		FullErrorChain:   true,
		LogLevel:         "warn",
	}
}
