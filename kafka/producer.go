package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"go.uber.org/zap"
)

// ErrProducerClosed send after Close
var ErrProducerClosed = errors.New("producer is closed")

// Message structure
type Message struct {
	Topic string

	// Key 分区键
	Key   []byte
	Value []byte

	Headers   map[string]string
	Timestamp time.Time
}

// ProducerResult send result
type ProducerResult struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Producer Kafka producer interface
type Producer interface {
	Send(ctx context.Context, msg *Message) (*ProducerResult, error)
	SendJSON(ctx context.Context, topic string, key string, value interface{}) (*ProducerResult, error)
	Close() error
}

// SyncProducer synchronous producer implementation
type SyncProducer struct {
	producer sarama.SyncProducer
	logger   *logger.CtxZapLogger
	mu       sync.RWMutex
	closed   bool
}

// NewSyncProducer dials the brokers in cfg
func NewSyncProducer(cfg Config, log *logger.CtxZapLogger) (*SyncProducer, error) {
	saramaCfg, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build sarama config failed: %w", err)
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create sync producer failed: %w", err)
	}
	return WrapSyncProducer(producer, log), nil
}

// WrapSyncProducer 包装已有 sarama producer (测试用 mocks.SyncProducer)
func WrapSyncProducer(producer sarama.SyncProducer, log *logger.CtxZapLogger) *SyncProducer {
	if log == nil {
		log = logger.GetLogger("kafka")
	}
	return &SyncProducer{producer: producer, logger: log}
}

// Send synchronous message
func (p *SyncProducer) Send(ctx context.Context, msg *Message) (*ProducerResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrProducerClosed
	}
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	if msg.Topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	saramaMsg := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Value),
	}
	if len(msg.Key) > 0 {
		saramaMsg.Key = sarama.ByteEncoder(msg.Key)
	}
	if !msg.Timestamp.IsZero() {
		saramaMsg.Timestamp = msg.Timestamp
	}
	for k, v := range msg.Headers {
		saramaMsg.Headers = append(saramaMsg.Headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	partition, offset, err := p.producer.SendMessage(saramaMsg)
	if err != nil {
		p.logger.ErrorCtx(ctx, "send message failed",
			zap.String("topic", msg.Topic),
			zap.Error(err))
		return nil, fmt.Errorf("send message failed: %w", err)
	}

	p.logger.DebugCtx(ctx, "message sent",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))

	return &ProducerResult{
		Topic:     msg.Topic,
		Partition: partition,
		Offset:    offset,
	}, nil
}

// SendJSON sends JSON message
func (p *SyncProducer) SendJSON(ctx context.Context, topic string, key string, value interface{}) (*ProducerResult, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal json failed: %w", err)
	}
	return p.Send(ctx, &Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: map[string]string{
			"content-type": "application/json",
		},
	})
}

// Close shutdown producer
func (p *SyncProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close producer failed: %w", err)
	}
	p.logger.DebugCtx(context.Background(), "producer closed")
	return nil
}
