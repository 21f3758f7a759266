package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/KOMKZ/go-yogan-ratelimiter/httpx"
	"github.com/KOMKZ/go-yogan-ratelimiter/limiter"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ThrottleDecisionKey rejected decision in gin.Context, picked up by RequestLog
const ThrottleDecisionKey = "throttle_decision"

// Response headers
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Checker admission check, implemented by *limiter.Manager
type Checker interface {
	CheckAndConsume(ctx context.Context, req limiter.CheckRequest) (*limiter.Decision, error)
}

// ThrottleConfig limits the HTTP API itself through the limiter
type ThrottleConfig struct {
	Checker Checker

	// UniqueID tenant of the throttle quotas
	UniqueID string

	// ActionFunc 默认路由模式 (c.FullPath())
	ActionFunc func(c *gin.Context) string

	// UserFunc 默认客户端 IP
	UserFunc func(c *gin.Context) string

	AlgorithmType limiter.AlgorithmType
	Params        limiter.Params
	StorageType   string

	SkipPaths []string

	// FailOpen 限流器出错时放行; 否则返回错误响应
	FailOpen bool

	Logger *logger.CtxZapLogger
}

// Throttle admits or rejects every request; rejected requests get 429 with the decision
func Throttle(cfg ThrottleConfig) gin.HandlerFunc {
	if cfg.ActionFunc == nil {
		cfg.ActionFunc = func(c *gin.Context) string {
			if p := c.FullPath(); p != "" {
				return c.Request.Method + " " + p
			}
			return c.Request.Method + " unknown"
		}
	}
	if cfg.UserFunc == nil {
		cfg.UserFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger("http")
	}
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		decision, err := cfg.Checker.CheckAndConsume(ctx, limiter.CheckRequest{
			Key: limiter.Key{
				UniqueID:   cfg.UniqueID,
				UserID:     cfg.UserFunc(c),
				ActionType: cfg.ActionFunc(c),
			},
			AlgorithmType: cfg.AlgorithmType,
			Params:        cfg.Params,
			StorageType:   cfg.StorageType,
		})
		if err != nil {
			if cfg.FailOpen {
				cfg.Logger.WarnCtx(ctx, "throttle check failed, request let through", zap.Error(err))
				c.Next()
				return
			}
			httpx.HandleError(c, err)
			c.Abort()
			return
		}

		c.Header(HeaderRemaining, strconv.FormatInt(decision.Remaining, 10))
		c.Header(HeaderReset, strconv.FormatInt(decision.ResetTime, 10))
		if !decision.Allowed {
			c.Set(ThrottleDecisionKey, decision)
			c.Header(HeaderRetryAfter, strconv.FormatInt(max(decision.ResetTime, 1), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httpx.Response{
				Code:  http.StatusTooManyRequests,
				Msg:   decision.Reason,
				MsgCN: decision.ReasonCN,
				Data:  decision,
			})
			return
		}
		c.Next()
	}
}
