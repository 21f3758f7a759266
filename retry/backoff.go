package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy 退避策略接口
type BackoffStrategy interface {
	// Next attempt starts from 1
	Next(attempt int) time.Duration
}

// BackoffOption 退避策略选项
type BackoffOption func(*backoffConfig)

type backoffConfig struct {
	multiplier float64
	maxDelay   time.Duration
	jitter     float64 // 0.2 = ±20%
}

func defaultBackoffConfig() *backoffConfig {
	return &backoffConfig{multiplier: 2.0, maxDelay: 30 * time.Second, jitter: 0.2}
}

// WithMultiplier 设置指数倍数
func WithMultiplier(m float64) BackoffOption {
	return func(c *backoffConfig) {
		if m > 0 {
			c.multiplier = m
		}
	}
}

// WithMaxDelay 设置最大延迟
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(c *backoffConfig) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithJitter ratio in [0, 1]
func WithJitter(ratio float64) BackoffOption {
	return func(c *backoffConfig) {
		if ratio >= 0 && ratio <= 1.0 {
			c.jitter = ratio
		}
	}
}

type exponentialBackoff struct {
	base   time.Duration
	config *backoffConfig
}

// ExponentialBackoff delay = base * multiplier^(attempt-1), capped at maxDelay
func ExponentialBackoff(base time.Duration, opts ...BackoffOption) BackoffStrategy {
	cfg := defaultBackoffConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &exponentialBackoff{base: base, config: cfg}
}

func (b *exponentialBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(b.base) * math.Pow(b.config.multiplier, float64(attempt-1))
	if delay > float64(b.config.maxDelay) {
		delay = float64(b.config.maxDelay)
	}
	return time.Duration(applyJitter(delay, b.config.jitter))
}

type constantBackoff struct {
	delay time.Duration
}

// ConstantBackoff 固定延迟
func ConstantBackoff(delay time.Duration) BackoffStrategy {
	return &constantBackoff{delay: delay}
}

func (b *constantBackoff) Next(int) time.Duration { return b.delay }

// NoBackoff retries immediately
func NoBackoff() BackoffStrategy {
	return &constantBackoff{}
}

func applyJitter(delay, ratio float64) float64 {
	if ratio <= 0 {
		return delay
	}
	jitter := delay * ratio * (rand.Float64()*2 - 1)
	return math.Max(0, delay+jitter)
}
