package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TraceIDKeyDefault TraceID key in gin.Context and context.Context
	TraceIDKeyDefault = "trace_id"

	// TraceIDHeaderDefault request/response header
	TraceIDHeaderDefault = "X-Trace-ID"
)

// TraceConfig Trace middleware configuration
type TraceConfig struct {
	TraceIDKey    string
	TraceIDHeader string

	// EnableResponseHeader 回写 TraceID 到响应头
	EnableResponseHeader bool

	// Generator 默认 UUID
	Generator func() string
}

// DefaultTraceConfig default configuration
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		TraceIDKey:           TraceIDKeyDefault,
		TraceIDHeader:        TraceIDHeaderDefault,
		EnableResponseHeader: true,
		Generator:            uuid.NewString,
	}
}

// TraceID injects a trace id into the request.
// otelgin 已创建 span 时直接使用 OTel trace id, 否则取请求头或生成 UUID
//
// Usage:
//
//	engine.Use(otelgin.Middleware("ratelimiter"), middleware.TraceID(middleware.DefaultTraceConfig()))
func TraceID(cfg TraceConfig) gin.HandlerFunc {
	if cfg.TraceIDKey == "" {
		cfg.TraceIDKey = TraceIDKeyDefault
	}
	if cfg.TraceIDHeader == "" {
		cfg.TraceIDHeader = TraceIDHeaderDefault
	}
	if cfg.Generator == nil {
		cfg.Generator = uuid.NewString
	}

	return func(c *gin.Context) {
		var traceID string
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			traceID = sc.TraceID().String()
		} else {
			traceID = c.GetHeader(cfg.TraceIDHeader)
			if traceID == "" {
				traceID = cfg.Generator()
			}
			// logger.TraceIDFromContext 读取同一个 key
			ctx := context.WithValue(c.Request.Context(), cfg.TraceIDKey, traceID) //nolint:staticcheck
			c.Request = c.Request.WithContext(ctx)
		}

		c.Set(cfg.TraceIDKey, traceID)
		if cfg.EnableResponseHeader {
			c.Writer.Header().Set(cfg.TraceIDHeader, traceID)
		}
		c.Next()
	}
}

// GetTraceID retrieves the TraceID from gin.Context
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKeyDefault)
}
