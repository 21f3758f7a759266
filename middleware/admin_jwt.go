package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/KOMKZ/go-yogan-ratelimiter/errcode"
	"github.com/KOMKZ/go-yogan-ratelimiter/httpx"
	"github.com/KOMKZ/go-yogan-ratelimiter/jwt"
	"github.com/gin-gonic/gin"
)

// ClaimsKey admin claims in gin.Context
const ClaimsKey = "admin_claims"

type claimsCtxKey struct{}

// AdminJWT protects destructive admin routes (key reset).
// 只接受 "Authorization: Bearer <token>", 并要求配置的角色
func AdminJWT(tm *jwt.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			httpx.HandleError(c, errcode.ErrUnauthorized.Wrap(jwt.ErrTokenMissing).
				WithMsg("missing bearer token"))
			c.Abort()
			return
		}

		claims, err := tm.Authorize(c.Request.Context(), token)
		if err != nil {
			httpx.HandleError(c, unauthorized(err))
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), claimsCtxKey{}, claims))
		c.Next()
	}
}

// ClaimsFromContext admin claims set by AdminJWT
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsCtxKey{}).(*jwt.Claims)
	return claims, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(err error) *errcode.LayeredError {
	e := errcode.ErrUnauthorized.Wrap(err)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return e.WithMsg("token expired").WithCN("令牌已过期")
	case errors.Is(err, jwt.ErrRoleRequired):
		return e.WithMsg("admin role required").WithCN("需要管理员权限")
	default:
		return e.WithMsg("invalid token").WithCN("令牌无效")
	}
}
