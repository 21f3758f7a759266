package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewTestCtxLogger 测试专用 Logger，日志记录到内存
// 用法：
//
//	log, logs := logger.NewTestCtxLogger("limiter")
//	mgr := limiter.NewManager(cfg, store, log)
//	assert.Equal(t, 1, logs.FilterMessage("corrupt state").Len())
func NewTestCtxLogger(module string) (*CtxZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewCtxZapLogger(zap.New(core), module), logs
}
