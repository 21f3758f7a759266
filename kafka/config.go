package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultAuditTopic decisions topic
const DefaultAuditTopic = "ratelimiter.decisions"

// Config Kafka audit stream settings
type Config struct {
	// Enabled 关闭时不创建 producer, 审计事件不落 Kafka
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	Brokers  []string `mapstructure:"brokers" yaml:"brokers"`
	Version  string   `mapstructure:"version" yaml:"version"` // e.g. "3.8.0"
	ClientID string   `mapstructure:"client_id" yaml:"client_id"`

	Producer ProducerConfig `mapstructure:"producer" yaml:"producer"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`

	SASL *SASLConfig `mapstructure:"sasl" yaml:"sasl,omitempty"`
	TLS  *TLSConfig  `mapstructure:"tls" yaml:"tls,omitempty"`
}

// ProducerConfig producer configuration
type ProducerConfig struct {
	// RequiredAcks 0=NoResponse, 1=WaitForLocal, -1=WaitForAll
	RequiredAcks    int           `mapstructure:"required_acks" yaml:"required_acks"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryMax        int           `mapstructure:"retry_max" yaml:"retry_max"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	MaxMessageBytes int           `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// Compression none, gzip, snappy, lz4, zstd
	Compression string `mapstructure:"compression" yaml:"compression"`
	Idempotent  bool   `mapstructure:"idempotent" yaml:"idempotent"`
}

// AuditConfig which limiter events go to which topic
type AuditConfig struct {
	Topic string `mapstructure:"topic" yaml:"topic"`
	// Events 为空表示全部: allowed, rejected, config_created, corrupt_state, reset
	Events      []string      `mapstructure:"events" yaml:"events"`
	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
}

// SASLConfig SASL authentication configuration
type SASLConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Mechanism PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Mechanism string `mapstructure:"mechanism" yaml:"mechanism"`
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"-"`
}

// TLSConfig TLS configuration
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	CertFile           string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile            string `mapstructure:"key_file" yaml:"key_file"`
	CAFile             string `mapstructure:"ca_file" yaml:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// ApplyDefaults Apply default values
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "3.8.0"
	}
	if c.ClientID == "" {
		c.ClientID = "ratelimiter"
	}
	if c.Producer.RequiredAcks == 0 && !c.Producer.Idempotent {
		c.Producer.RequiredAcks = 1 // WaitForLocal
	}
	if c.Producer.Idempotent {
		c.Producer.RequiredAcks = -1
	}
	if c.Producer.Timeout == 0 {
		c.Producer.Timeout = 10 * time.Second
	}
	if c.Producer.RetryMax == 0 {
		c.Producer.RetryMax = 3
	}
	if c.Producer.RetryBackoff == 0 {
		c.Producer.RetryBackoff = 100 * time.Millisecond
	}
	if c.Producer.MaxMessageBytes == 0 {
		c.Producer.MaxMessageBytes = 1048576 // 1MB
	}
	if c.Producer.Compression == "" {
		c.Producer.Compression = "none"
	}
	if c.Audit.Topic == "" {
		c.Audit.Topic = DefaultAuditTopic
	}
	if c.Audit.SendTimeout == 0 {
		c.Audit.SendTimeout = 5 * time.Second
	}
}

// Validate configuration; disabled config is always valid
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.Version, validation.By(func(interface{}) error {
			_, err := sarama.ParseKafkaVersion(c.Version)
			return err
		})),
	)
	if err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Producer,
		validation.Field(&c.Producer.RequiredAcks, validation.Min(-1), validation.Max(1)),
		validation.Field(&c.Producer.MaxMessageBytes, validation.Min(0)),
		validation.Field(&c.Producer.Compression, validation.In("", "none", "gzip", "snappy", "lz4", "zstd")),
	); err != nil {
		return fmt.Errorf("producer config invalid: %w", err)
	}
	if err := validation.ValidateStruct(&c.Audit,
		validation.Field(&c.Audit.Topic, validation.Required),
		validation.Field(&c.Audit.Events, validation.Each(validation.In(auditEventNames()...))),
	); err != nil {
		return fmt.Errorf("audit config invalid: %w", err)
	}
	if c.SASL != nil && c.SASL.Enabled {
		if err := validation.ValidateStruct(c.SASL,
			validation.Field(&c.SASL.Username, validation.Required),
			validation.Field(&c.SASL.Password, validation.Required),
			validation.Field(&c.SASL.Mechanism, validation.In("PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512")),
		); err != nil {
			return fmt.Errorf("sasl config invalid: %w", err)
		}
	}
	return nil
}

// buildSaramaConfig Build Sarama configuration
func buildSaramaConfig(cfg Config) (*sarama.Config, error) {
	saramaCfg := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("parse kafka version failed: %w", err)
	}
	saramaCfg.Version = version
	saramaCfg.ClientID = cfg.ClientID

	// SyncProducer 要求 Return.Successes
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	switch cfg.Producer.RequiredAcks {
	case 0:
		saramaCfg.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	default:
		saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	}
	saramaCfg.Producer.Timeout = cfg.Producer.Timeout
	saramaCfg.Producer.Retry.Max = cfg.Producer.RetryMax
	saramaCfg.Producer.Retry.Backoff = cfg.Producer.RetryBackoff
	saramaCfg.Producer.MaxMessageBytes = cfg.Producer.MaxMessageBytes
	if cfg.Producer.Idempotent {
		saramaCfg.Producer.Idempotent = true
		saramaCfg.Net.MaxOpenRequests = 1
	}
	switch cfg.Producer.Compression {
	case "gzip":
		saramaCfg.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaCfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaCfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaCfg.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaCfg.Producer.Compression = sarama.CompressionNone
	}

	if cfg.SASL != nil && cfg.SASL.Enabled {
		saramaCfg.Net.SASL.Enable = true
		saramaCfg.Net.SASL.User = cfg.SASL.Username
		saramaCfg.Net.SASL.Password = cfg.SASL.Password
		switch cfg.SASL.Mechanism {
		case "SCRAM-SHA-256":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = newSCRAMClientGenerator(sha256Gen)
		case "SCRAM-SHA-512":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = newSCRAMClientGenerator(sha512Gen)
		default:
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		saramaCfg.Net.TLS.Enable = true
		saramaCfg.Net.TLS.Config = tlsCfg
	}

	if err := saramaCfg.Validate(); err != nil {
		return nil, fmt.Errorf("sarama config invalid: %w", err)
	}
	return saramaCfg, nil
}

func buildTLSConfig(c *TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: c.InsecureSkipVerify}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file failed: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in ca file %s", c.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert failed: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}
