package middleware

import (
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogConfig HTTP request log configuration
type RequestLogConfig struct {
	// SkipPaths 不记录的路径, 例如 /healthz /metrics
	SkipPaths []string

	// Logger 默认 logger.GetLogger("http")
	Logger *logger.CtxZapLogger
}

// DefaultRequestLogConfig skips the health endpoints
func DefaultRequestLogConfig() RequestLogConfig {
	return RequestLogConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}
}

// RequestLog structured access log, replaces gin.Logger()
//
// 按状态码选择级别: 5xx Error, 4xx Warn, 其余 Info
func RequestLog(cfg RequestLogConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger("http")
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("body_size", c.Writer.Size()),
		}
		if errMsg := c.Errors.ByType(gin.ErrorTypePrivate).String(); errMsg != "" {
			fields = append(fields, zap.String("error", errMsg))
		}
		// 限流拒绝单独标记, 便于检索
		if v, ok := c.Get(ThrottleDecisionKey); ok {
			fields = append(fields, zap.Any("throttle", v))
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.ErrorCtx(ctx, "HTTP 请求", fields...)
		case status >= 400:
			log.WarnCtx(ctx, "HTTP 请求", fields...)
		default:
			log.InfoCtx(ctx, "HTTP 请求", fields...)
		}
	}
}
