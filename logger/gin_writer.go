package logger

import (
	"context"
	"strings"
)

// GinWriter adapts gin's text output (route table, debug warnings) to a module logger
type GinWriter struct {
	log *CtxZapLogger
}

// NewGinWriter 用于 gin.DefaultWriter / gin.DefaultErrorWriter
func NewGinWriter(log *CtxZapLogger) *GinWriter {
	return &GinWriter{log: log}
}

// Write implements io.Writer
func (w *GinWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}
	ctx := context.Background()
	switch {
	case strings.Contains(msg, "[GIN-debug] [WARNING]"):
		w.log.WarnCtx(ctx, msg)
	case strings.Contains(msg, "[GIN-debug]"):
		w.log.DebugCtx(ctx, msg)
	case strings.Contains(msg, "[Recovery]"), strings.Contains(msg, "panic recovered"):
		w.log.ErrorCtx(ctx, msg)
	default:
		w.log.InfoCtx(ctx, msg)
	}
	return len(p), nil
}
