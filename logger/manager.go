package logger

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager Logger 管理器（每个模块一个 Logger 实例）
type Manager struct {
	baseConfig ManagerConfig
	loggers    map[string]*CtxZapLogger
	zapLoggers map[string]*zap.Logger
	writers    map[string][]*lumberjack.Logger // 用于关闭文件句柄
	mu         sync.RWMutex
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager 创建独立的 Manager 实例，零值字段自动填充默认值
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		baseConfig: cfg,
		loggers:    make(map[string]*CtxZapLogger),
		zapLoggers: make(map[string]*zap.Logger),
		writers:    make(map[string][]*lumberjack.Logger),
	}
}

// InitManager 初始化全局 Logger 管理器（只生效一次）
func InitManager(cfg ManagerConfig) {
	managerOnce.Do(func() {
		globalManager = NewManager(cfg)
	})
}

// Default 全局 Manager, 未初始化时使用默认配置
func Default() *Manager {
	InitManager(DefaultManagerConfig())
	return globalManager
}

// GetLogger returns the module logger, creating it on first use
// The returned logger already carries the module field
func (m *Manager) GetLogger(module string) *CtxZapLogger {
	m.mu.RLock()
	if l, ok := m.loggers[module]; ok {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loggers[module]; ok {
		return l
	}

	zl := m.createLogger(module).With(zap.String("module", module))
	l := &CtxZapLogger{
		base:   zl.WithOptions(zap.AddCallerSkip(1)),
		module: module,
		config: &m.baseConfig,
	}
	m.loggers[module] = l
	m.zapLoggers[module] = zl
	return l
}

func (m *Manager) createLogger(module string) *zap.Logger {
	cfg := m.baseConfig
	encoder := createEncoder(cfg.Encoding)
	level := ParseLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if cfg.EnableFile {
		infoWriter, infoLumber := createFileWriter(cfg.filePath(module, "info"), cfg)
		errorWriter, errorLumber := createFileWriter(cfg.filePath(module, "error"), cfg)
		m.writers[module] = []*lumberjack.Logger{infoLumber, errorLumber}

		cores = append(cores,
			zapcore.NewCore(encoder, infoWriter, zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= level && lvl < zapcore.ErrorLevel
			})),
			zapcore.NewCore(encoder, errorWriter, zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= zapcore.ErrorLevel
			})),
		)
	}

	if len(cores) == 0 {
		return zap.NewNop()
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	// 堆栈由 CtxZapLogger.ErrorCtx 按深度自行控制，不使用 zap.AddStacktrace
	return zap.New(zapcore.NewTee(cores...), opts...)
}

// CloseAll flushes buffers and closes file handles
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.zapLoggers {
		_ = l.Sync()
	}
	for _, ws := range m.writers {
		for _, w := range ws {
			_ = w.Close()
		}
	}
	m.loggers = make(map[string]*CtxZapLogger)
	m.zapLoggers = make(map[string]*zap.Logger)
	m.writers = make(map[string][]*lumberjack.Logger)
}

// Shutdown implements do.Shutdowner
func (m *Manager) Shutdown() error {
	m.CloseAll()
	return nil
}

func createEncoder(encoding string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if encoding == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// createFileWriter 使用 lumberjack 实现文件切割
func createFileWriter(filename string, cfg ManagerConfig) (zapcore.WriteSyncer, *lumberjack.Logger) {
	_ = os.MkdirAll(filepath.Dir(filename), 0755)

	lj := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
	return zapcore.AddSync(lj), lj
}

// ============================================
// 包级别便捷函数（调用 globalManager）
// ============================================

// GetLogger 获取指定模块的 CtxZapLogger（未初始化时使用默认配置）
func GetLogger(module string) *CtxZapLogger {
	InitManager(DefaultManagerConfig())
	return globalManager.GetLogger(module)
}

// CloseAll 关闭所有 Logger（应用退出时调用）
func CloseAll() {
	if globalManager != nil {
		globalManager.CloseAll()
	}
}

// InfoCtx logs through the module logger
func InfoCtx(ctx context.Context, module, msg string, fields ...zap.Field) {
	GetLogger(module).InfoCtx(ctx, msg, fields...)
}

// DebugCtx logs through the module logger
func DebugCtx(ctx context.Context, module, msg string, fields ...zap.Field) {
	GetLogger(module).DebugCtx(ctx, msg, fields...)
}

// WarnCtx logs through the module logger
func WarnCtx(ctx context.Context, module, msg string, fields ...zap.Field) {
	GetLogger(module).WarnCtx(ctx, msg, fields...)
}

// ErrorCtx logs through the module logger
func ErrorCtx(ctx context.Context, module, msg string, fields ...zap.Field) {
	GetLogger(module).ErrorCtx(ctx, msg, fields...)
}
