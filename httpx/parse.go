package httpx

import (
	"github.com/KOMKZ/go-yogan-ratelimiter/errcode"
	"github.com/gin-gonic/gin"
)

// Parse binds uri, query and (when present) JSON body into req.
// 没有 uri tag 时 ShouldBindUri 失败是正常的, 忽略
func Parse(c *gin.Context, req interface{}) error {
	_ = c.ShouldBindUri(req)

	if err := c.ShouldBindQuery(req); err != nil {
		return errcode.ErrInvalidParams.Wrap(err).WithMsg(err.Error())
	}

	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			return errcode.ErrInvalidParams.Wrap(err).WithMsg(err.Error())
		}
	}
	return nil
}
