package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Config{Enabled: true, Brokers: []string{"localhost:9092"}}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "3.8.0", cfg.Version)
	assert.Equal(t, "ratelimiter", cfg.ClientID)
	assert.Equal(t, 1, cfg.Producer.RequiredAcks)
	assert.Equal(t, 10*time.Second, cfg.Producer.Timeout)
	assert.Equal(t, "none", cfg.Producer.Compression)
	assert.Equal(t, DefaultAuditTopic, cfg.Audit.Topic)
	assert.Equal(t, 5*time.Second, cfg.Audit.SendTimeout)

	idem := Config{Producer: ProducerConfig{Idempotent: true}}
	idem.ApplyDefaults()
	assert.Equal(t, -1, idem.Producer.RequiredAcks)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("disabled skips validation", func(t *testing.T) {
		assert.NoError(t, Config{}.Validate())
	})

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("no brokers", func(t *testing.T) {
		cfg := validConfig()
		cfg.Brokers = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad version", func(t *testing.T) {
		cfg := validConfig()
		cfg.Version = "not-a-version"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad compression", func(t *testing.T) {
		cfg := validConfig()
		cfg.Producer.Compression = "brotli"
		assert.ErrorContains(t, cfg.Validate(), "producer config invalid")
	})

	t.Run("unknown audit event", func(t *testing.T) {
		cfg := validConfig()
		cfg.Audit.Events = []string{"rejected", "throttled"}
		assert.ErrorContains(t, cfg.Validate(), "audit config invalid")
	})

	t.Run("sasl requires credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.SASL = &SASLConfig{Enabled: true, Mechanism: "SCRAM-SHA-512"}
		assert.ErrorContains(t, cfg.Validate(), "sasl config invalid")
	})
}

func TestBuildSaramaConfig(t *testing.T) {
	t.Run("producer settings", func(t *testing.T) {
		cfg := validConfig()
		cfg.Producer.Compression = "zstd"
		cfg.Producer.RequiredAcks = -1

		sc, err := buildSaramaConfig(cfg)
		require.NoError(t, err)
		assert.True(t, sc.Producer.Return.Successes)
		assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
		assert.Equal(t, sarama.CompressionZSTD, sc.Producer.Compression)
		assert.Equal(t, "ratelimiter", sc.ClientID)
		assert.Equal(t, sarama.V3_8_0_0, sc.Version)
	})

	t.Run("scram sha512", func(t *testing.T) {
		cfg := validConfig()
		cfg.SASL = &SASLConfig{Enabled: true, Mechanism: "SCRAM-SHA-512", Username: "u", Password: "p"}

		sc, err := buildSaramaConfig(cfg)
		require.NoError(t, err)
		assert.True(t, sc.Net.SASL.Enable)
		assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), sc.Net.SASL.Mechanism)
		require.NotNil(t, sc.Net.SASL.SCRAMClientGeneratorFunc)
		assert.IsType(t, &scramClient{}, sc.Net.SASL.SCRAMClientGeneratorFunc())
	})

	t.Run("idempotent", func(t *testing.T) {
		cfg := Config{Enabled: true, Brokers: []string{"b:9092"}, Producer: ProducerConfig{Idempotent: true}}
		cfg.ApplyDefaults()

		sc, err := buildSaramaConfig(cfg)
		require.NoError(t, err)
		assert.True(t, sc.Producer.Idempotent)
		assert.Equal(t, 1, sc.Net.MaxOpenRequests)
	})

	t.Run("missing ca file", func(t *testing.T) {
		cfg := validConfig()
		cfg.TLS = &TLSConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"}
		_, err := buildSaramaConfig(cfg)
		assert.ErrorContains(t, err, "read ca file failed")
	})
}
