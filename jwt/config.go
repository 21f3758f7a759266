package jwt

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config admin token 配置
type Config struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	Algorithm string `yaml:"algorithm" mapstructure:"algorithm"` // HS256, HS384, HS512
	Secret    string `yaml:"-" mapstructure:"secret"`

	Issuer   string `yaml:"issuer" mapstructure:"issuer"`
	Audience string `yaml:"audience" mapstructure:"audience"`

	// RequiredRole 管理接口要求的角色
	RequiredRole string        `yaml:"required_role" mapstructure:"required_role"`
	TTL          time.Duration `yaml:"ttl" mapstructure:"ttl"`               // 签发有效期
	ClockSkew    time.Duration `yaml:"clock_skew" mapstructure:"clock_skew"` // 时钟偏移容忍
}

// ApplyDefaults 应用默认值
func (c *Config) ApplyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = "HS256"
	}
	if c.Issuer == "" {
		c.Issuer = "ratelimiter"
	}
	if c.RequiredRole == "" {
		c.RequiredRole = "admin"
	}
	if c.TTL == 0 {
		c.TTL = time.Hour
	}
	if c.ClockSkew == 0 {
		c.ClockSkew = 30 * time.Second
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Secret == "" {
		return ErrSecretEmpty
	}
	if err := validation.Validate(c.Algorithm, validation.In("HS256", "HS384", "HS512")); err != nil {
		return ErrAlgorithmNotSupported
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Secret, validation.Length(32, 0).Error("secret must be at least 32 bytes")),
		validation.Field(&c.TTL, validation.Min(time.Second)),
	)
}
