package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CtxZapLogger Context-Aware 的 Zap Logger 包装器
// module 在创建时绑定，使用时只需传递 ctx
type CtxZapLogger struct {
	base   *zap.Logger
	module string
	config *ManagerConfig
}

// NewCtxZapLogger wraps an existing zap logger (tests, third-party integration)
func NewCtxZapLogger(base *zap.Logger, module string) *CtxZapLogger {
	cfg := DefaultManagerConfig()
	cfg.EnableStacktrace = false
	return &CtxZapLogger{
		base:   base.With(zap.String("module", module)),
		module: module,
		config: &cfg,
	}
}

// InfoCtx 记录 Info 级别日志（自动提取 TraceID）
func (l *CtxZapLogger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Info(msg, l.enrichFields(ctx, fields)...)
}

// DebugCtx 记录 Debug 级别日志
func (l *CtxZapLogger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Debug(msg, l.enrichFields(ctx, fields)...)
}

// WarnCtx 记录 Warn 级别日志
func (l *CtxZapLogger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Warn(msg, l.enrichFields(ctx, fields)...)
}

// ErrorCtx 记录 Error 级别日志（自动提取 TraceID + 可选堆栈）
func (l *CtxZapLogger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	enriched := l.enrichFields(ctx, fields)

	if l.config != nil && shouldCaptureStacktrace("error", *l.config) {
		depth := l.config.StacktraceDepth
		if depth <= 0 {
			depth = 10
		}
		// skip=3: runtime.Callers -> CaptureStacktrace -> ErrorCtx
		if stack := CaptureStacktrace(3, depth); stack != "" {
			enriched = append(enriched, zap.String("stack", stack))
		}
	}

	l.base.Error(msg, enriched...)
}

// With 返回带有预设字段的新 Logger
func (l *CtxZapLogger) With(fields ...zap.Field) *CtxZapLogger {
	return &CtxZapLogger{
		base:   l.base.With(fields...),
		module: l.module,
		config: l.config,
	}
}

// GetZapLogger 获取底层的 *zap.Logger（用于第三方库集成）
func (l *CtxZapLogger) GetZapLogger() *zap.Logger {
	return l.base
}

// Module returns the bound module name
func (l *CtxZapLogger) Module() string {
	return l.module
}

func (l *CtxZapLogger) enrichFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if l.config == nil {
		return fields
	}

	enriched := make([]zap.Field, 0, len(fields)+2)
	if l.config.AppName != "" {
		enriched = append(enriched, zap.String("app_name", l.config.AppName))
	}
	if l.config.EnableTraceID {
		if traceID := TraceIDFromContext(ctx, l.config.TraceIDKey); traceID != "" {
			enriched = append(enriched, zap.String("trace_id", traceID))
		}
	}
	return append(enriched, fields...)
}

// TraceIDFromContext 优先级：OpenTelemetry Span > ctx key
func TraceIDFromContext(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	if key == "" {
		key = "trace_id"
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
