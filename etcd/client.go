package etcd

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Client encapsulation of etcd client
type Client struct {
	client *clientv3.Client
	config Config
	logger *logger.CtxZapLogger
}

// NewClient connects and checks the first endpoint's status
func NewClient(cfg Config, log *logger.CtxZapLogger) (*Client, error) {
	if log == nil {
		log = logger.GetLogger("etcd")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Logger:      log.GetZapLogger(),
	}
	if cfg.Username != "" {
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	c := &Client{client: cli, config: cfg, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, err
	}

	log.DebugCtx(ctx, "etcd connection successful", zap.Strings("endpoints", cfg.Endpoints))
	return c, nil
}

// Raw the native etcd client
func (c *Client) Raw() *clientv3.Client {
	return c.client
}

// Ping checks the first endpoint
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.Status(ctx, c.config.Endpoints[0]); err != nil {
		return fmt.Errorf("etcd health check failed: %w", err)
	}
	return nil
}

// Close connection
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Shutdown implements do.Shutdowner
func (c *Client) Shutdown() error {
	return c.Close()
}
