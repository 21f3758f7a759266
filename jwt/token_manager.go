package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenManager signs and verifies admin tokens (HMAC only)
type TokenManager struct {
	config        Config
	signingMethod jwt.SigningMethod
	key           []byte
	logger        *logger.CtxZapLogger
	now           func() time.Time
}

// NewTokenManager creates TokenManager
func NewTokenManager(config Config, log *logger.CtxZapLogger) (*TokenManager, error) {
	config.ApplyDefaults()
	config.Enabled = true
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logger.GetLogger("jwt")
	}

	m := &TokenManager{
		config: config,
		key:    []byte(config.Secret),
		logger: log,
		now:    time.Now,
	}
	switch config.Algorithm {
	case "HS256":
		m.signingMethod = jwt.SigningMethodHS256
	case "HS384":
		m.signingMethod = jwt.SigningMethodHS384
	case "HS512":
		m.signingMethod = jwt.SigningMethodHS512
	default:
		return nil, ErrAlgorithmNotSupported
	}
	return m, nil
}

// Generate issues a token for subject; ttl<=0 uses config TTL
func (m *TokenManager) Generate(ctx context.Context, subject string, roles []string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = m.config.TTL
	}
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Roles: roles,
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(m.signingMethod, claims).SignedString(m.key)
	if err != nil {
		m.logger.ErrorCtx(ctx, "failed to sign token", zap.Error(err), zap.String("subject", subject))
		return "", fmt.Errorf("sign token failed: %w", err)
	}

	m.logger.DebugCtx(ctx, "token generated",
		zap.String("subject", subject),
		zap.Strings("roles", roles),
		zap.Duration("ttl", ttl),
	)
	return signed, nil
}

// Verify parses the token and checks signature, time claims, issuer and audience
func (m *TokenManager) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signingMethod.Alg()}),
		jwt.WithLeeway(m.config.ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.config.Audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	}, opts...)
	if err != nil {
		m.logger.WarnCtx(ctx, "token verification failed", zap.Error(err))
		return nil, parseJWTError(err)
	}
	return claims, nil
}

// Authorize verifies the token and requires the configured role
func (m *TokenManager) Authorize(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := m.Verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if m.config.RequiredRole != "" && !claims.HasRole(m.config.RequiredRole) {
		m.logger.WarnCtx(ctx, "token lacks required role",
			zap.String("subject", claims.Subject),
			zap.String("required_role", m.config.RequiredRole))
		return nil, ErrRoleRequired
	}
	return claims, nil
}

func parseJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
