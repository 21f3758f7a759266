// Package health 提供统一的健康检查能力
package health

import (
	"context"
	"time"
)

// Status 健康状态枚举
type Status string

const (
	// StatusHealthy 健康
	StatusHealthy Status = "healthy"
	// StatusDegraded 降级（非关键依赖不可用）
	StatusDegraded Status = "degraded"
	// StatusUnhealthy 不健康
	StatusUnhealthy Status = "unhealthy"
)

// Checker one dependency check
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// optional is implemented by checkers whose failure only degrades the service
type optional interface {
	Optional() bool
}

// FuncChecker adapts a check function
type FuncChecker struct {
	name     string
	fn       func(ctx context.Context) error
	optional bool
}

// NewChecker 关键依赖, 失败即 unhealthy
func NewChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

// NewOptionalChecker 非关键依赖, 失败只会 degraded
func NewOptionalChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn, optional: true}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) error { return c.fn(ctx) }

func (c *FuncChecker) Optional() bool { return c.optional }

// CheckResult 单个检查项的结果
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Response 健康检查响应
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IsHealthy 判断整体是否健康
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// IsDegraded 判断是否降级
func (r *Response) IsDegraded() bool {
	return r.Status == StatusDegraded
}
