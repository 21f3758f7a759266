// Package application 进程生命周期: 启动 HTTP 服务, 等待信号, 按依赖逆序关闭组件
package application

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
)

// AppState 应用状态
type AppState int

const (
	StateInit AppState = iota
	StateRunning
	StateStopping
	StateStopped
)

// String 状态字符串表示
func (s AppState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// BaseApplication owns the injector and the root context.
// 组件在 Provider 中完成创建和启动, 关闭交给 samber/do (依赖逆序)
type BaseApplication struct {
	injector *do.RootScope
	logger   *logger.CtxZapLogger

	ctx    context.Context
	cancel context.CancelFunc
	state  AppState
	mu     sync.RWMutex

	version    string
	onShutdown func(context.Context) error
}

// NewBase wraps an injector whose providers are already registered
func NewBase(injector *do.RootScope, log *logger.CtxZapLogger) *BaseApplication {
	if log == nil {
		log = logger.GetLogger("app")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BaseApplication{
		injector: injector,
		logger:   log,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateInit,
	}
}

// WithVersion 设置版本号, 启动日志会带上
func (b *BaseApplication) WithVersion(version string) *BaseApplication {
	b.version = version
	return b
}

// OnShutdown 注册关闭前回调, 在组件关闭之前执行
func (b *BaseApplication) OnShutdown(fn func(context.Context) error) *BaseApplication {
	b.onShutdown = fn
	return b
}

// Shutdown runs the callback, then shuts the container down within timeout
func (b *BaseApplication) Shutdown(timeout time.Duration) error {
	b.setState(StateStopping)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if b.onShutdown != nil {
		if err := b.onShutdown(ctx); err != nil {
			b.logger.ErrorCtx(ctx, "OnShutdown callback failed", zap.Error(err))
		}
	}

	report := b.injector.ShutdownWithContext(ctx)
	if report != nil && !report.Succeed {
		b.logger.ErrorCtx(ctx, "DI container shutdown failed", zap.Error(report))
		b.setState(StateStopped)
		return report
	}

	b.logger.DebugCtx(ctx, "所有组件已关闭")
	b.setState(StateStopped)
	return nil
}

// WaitShutdown blocks until SIGINT/SIGTERM or Cancel.
// 第一次信号触发优雅关闭, 第二次信号立即退出
func (b *BaseApplication) WaitShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		b.logger.InfoCtx(b.ctx, "Shutdown signal received", zap.String("signal", sig.String()))
		b.cancel()

		go func() {
			sig := <-quit
			b.logger.WarnCtx(context.Background(), "Second signal received, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		}()

	case <-b.ctx.Done():
		b.logger.DebugCtx(context.Background(), "Context cancelled, starting graceful shutdown")
	}
}

// Cancel 手动触发关闭
func (b *BaseApplication) Cancel() {
	b.cancel()
}

// Injector samber/do 注入器
func (b *BaseApplication) Injector() *do.RootScope {
	return b.injector
}

// Context 根上下文, 收到关闭信号后取消
func (b *BaseApplication) Context() context.Context {
	return b.ctx
}

// GetState 当前状态
func (b *BaseApplication) GetState() AppState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *BaseApplication) setState(state AppState) {
	b.mu.Lock()
	old := b.state
	b.state = state
	b.mu.Unlock()

	b.logger.DebugCtx(b.ctx, "State changed",
		zap.String("from", old.String()),
		zap.String("to", state.String()))
}
