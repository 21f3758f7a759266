package jwt

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Claims admin token claims
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether role was granted
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}
