package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/KOMKZ/go-yogan-ratelimiter/errcode"
	"github.com/KOMKZ/go-yogan-ratelimiter/httpx"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery replaces gin.Recovery: logs the panic with stack, answers ErrInternal
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorCtx(c.Request.Context(), "gin-error", "Panic recovered",
					zap.Any("error", rec),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("stack", string(debug.Stack())),
				)

				// 不向客户端暴露 panic 内容
				httpx.ErrorJson(c, errcode.ErrInternal.Wrap(fmt.Errorf("panic: %v", rec)))
				c.Abort()
			}
		}()
		c.Next()
	}
}
