package httpx

import (
	"errors"
	"net/http"

	"github.com/KOMKZ/go-yogan-ratelimiter/errcode"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response unified response format
type Response struct {
	Code  int         `json:"code"`
	Msg   string      `json:"msg,omitempty"`
	MsgCN string      `json:"msg_cn,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// OkJson successful response
func OkJson(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: 0,
		Msg:  "ok",
		Data: data,
	})
}

// ErrorJson renders a LayeredError as is
func ErrorJson(c *gin.Context, err *errcode.LayeredError) {
	resp := Response{
		Code:  err.Code(),
		Msg:   err.Message(),
		MsgCN: err.MessageCN(),
	}
	if len(err.Data()) > 0 {
		resp.Data = err.Data()
	}
	c.JSON(err.HTTPStatus(), resp)
}

// NoRouteHandler 404 route not found handler
func NoRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{
			Code:  http.StatusNotFound,
			Msg:   "route not found: " + c.Request.Method + " " + c.Request.URL.Path,
			MsgCN: "路由不存在",
		})
	}
}

// NoMethodHandler 405 Method Not Allowed Handler
func NoMethodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, Response{
			Code:  http.StatusMethodNotAllowed,
			Msg:   "method not allowed: " + c.Request.Method + " " + c.Request.URL.Path,
			MsgCN: "方法不允许",
		})
	}
}

// HandleError renders err with the unified format.
// LayeredError 按自身 HTTP 状态和错误码返回; 其他错误统一 500, 不泄露内部信息
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	ctx := c.Request.Context()
	cfg := getErrorLoggingConfig(c)

	var layeredErr *errcode.LayeredError
	if !errors.As(err, &layeredErr) {
		layeredErr = errcode.ErrInternal.Wrap(err)
	}

	if shouldLogError(cfg, layeredErr) {
		fields := []zap.Field{
			zap.Int("error_code", layeredErr.Code()),
			zap.String("error_msg", layeredErr.Message()),
			zap.String("path", c.FullPath()),
		}
		if cfg.FullErrorChain {
			fields = append(fields,
				zap.String("error_chain", layeredErr.String()),
				zap.Error(err),
			)
		}

		switch cfg.LogLevel {
		case "warn":
			logger.WarnCtx(ctx, "httpx", "request failed", fields...)
		case "info":
			logger.InfoCtx(ctx, "httpx", "request failed", fields...)
		default:
			logger.ErrorCtx(ctx, "httpx", "request failed", fields...)
		}
	}

	ErrorJson(c, layeredErr)
}

func shouldLogError(cfg errorLoggingConfigInternal, err *errcode.LayeredError) bool {
	if !cfg.Enable {
		return false
	}
	return !cfg.IgnoreStatusMap[err.HTTPStatus()]
}
