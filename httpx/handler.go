package httpx

import (
	"github.com/KOMKZ/go-yogan-ratelimiter/validator"
	"github.com/gin-gonic/gin"
)

// HandlerFunc 泛型 Handler 函数签名
// Req: 请求类型（支持 form/json/uri tag）
type HandlerFunc[Req any, Resp any] func(c *gin.Context, req *Req) (*Resp, error)

// Wrap parses, validates, calls handler and renders the unified response
func Wrap[Req any, Resp any](handler HandlerFunc[Req, Resp]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if err := Parse(c, &req); err != nil {
			HandleError(c, err)
			return
		}

		if validatableReq, ok := any(&req).(validator.Validatable); ok {
			if err := validator.ValidateRequest(validatableReq); err != nil {
				HandleError(c, err) // 10010 + 字段详情
				return
			}
		}

		resp, err := handler(c, &req)
		if err != nil {
			HandleError(c, err)
			return
		}
		OkJson(c, resp)
	}
}
