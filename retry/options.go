package retry

import "time"

// Config 重试配置
type Config struct {
	maxAttempts int
	backoff     BackoffStrategy
	condition   RetryCondition
	onRetry     func(attempt int, err error)
}

// 默认: 3 次, 指数退避 100ms, 所有错误都重试
func defaultConfig() *Config {
	return &Config{
		maxAttempts: 3,
		backoff:     ExponentialBackoff(100 * time.Millisecond),
		condition:   AlwaysRetry(),
	}
}

// Option 配置选项函数
type Option func(*Config)

// MaxAttempts includes the first attempt
func MaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// Backoff 设置退避策略
func Backoff(b BackoffStrategy) Option {
	return func(c *Config) {
		if b != nil {
			c.backoff = b
		}
	}
}

// Condition 设置重试条件
func Condition(cond RetryCondition) Option {
	return func(c *Config) {
		if cond != nil {
			c.condition = cond
		}
	}
}

// OnRetry called before each backoff wait
func OnRetry(f func(attempt int, err error)) Option {
	return func(c *Config) {
		c.onRetry = f
	}
}
