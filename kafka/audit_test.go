package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/KOMKZ/go-yogan-ratelimiter/limiter"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

var auditKey = limiter.Key{UniqueID: "bot", UserID: "u1", ActionType: "chat"}

func rejectedEvent(ctx context.Context) *limiter.DecisionEvent {
	return &limiter.DecisionEvent{
		BaseEvent: limiter.NewBaseEvent(ctx, limiter.EventRejected, auditKey),
		Decision: limiter.Decision{
			Allowed:       false,
			ResetTime:     1,
			ReasonCode:    limiter.ReasonRateExceeded,
			AlgorithmType: limiter.AlgorithmTokenBucket,
			ActionType:    "chat",
		},
		StorageType: "redis",
	}
}

func TestAuditSink_Decision(t *testing.T) {
	p, mock := newMockProducer(t)
	sink := NewAuditSink(p, AuditConfig{SendTimeout: time.Second}, nil)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	var got AuditRecord
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != DefaultAuditTopic {
			return errors.New("wrong topic")
		}
		decodeValue(t, msg, &got)
		return nil
	})

	sink.OnEvent(rejectedEvent(ctx))

	sent, failed := sink.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), failed)

	assert.NotEmpty(t, got.EventID)
	assert.Equal(t, limiter.EventRejected, got.Type)
	assert.Equal(t, "bot", got.UniqueID)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "redis", got.StorageType)
	assert.Equal(t, traceID.String(), got.TraceID)
	require.NotNil(t, got.Decision)
	assert.False(t, got.Decision.Allowed)
	assert.Equal(t, limiter.ReasonRateExceeded, got.Decision.ReasonCode)

	require.NoError(t, sink.Close())
}

func TestAuditSink_EventFilter(t *testing.T) {
	p, mock := newMockProducer(t)
	sink := NewAuditSink(p, AuditConfig{Topic: "audit", Events: []string{"corrupt_state"}}, nil)

	var got AuditRecord
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		decodeValue(t, msg, &got)
		return nil
	})

	// rejected 不在白名单内
	sink.OnEvent(rejectedEvent(context.Background()))
	sink.OnEvent(&limiter.CorruptStateEvent{
		BaseEvent:  limiter.NewBaseEvent(context.Background(), limiter.EventCorruptState, auditKey),
		StorageKey: "safety_chat:rate_limiter:state:token_bucket:u1:chat:bot",
		Err:        errors.New("unexpected end of JSON input"),
	})

	sent, _ := sink.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, limiter.EventCorruptState, got.Type)
	assert.Equal(t, "unexpected end of JSON input", got.Error)
	assert.Empty(t, got.TraceID)
	require.NoError(t, sink.Close())
}

func TestAuditSink_DeliveryFailure(t *testing.T) {
	p, mock := newMockProducer(t)
	log, logs := logger.NewTestCtxLogger("kafka")
	sink := NewAuditSink(p, AuditConfig{}, log)

	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sink.OnEvent(&limiter.ResetEvent{
		BaseEvent:   limiter.NewBaseEvent(context.Background(), limiter.EventReset, auditKey),
		StorageType: "memory",
	})

	sent, failed := sink.Stats()
	assert.Equal(t, int64(0), sent)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, 1, logs.FilterMessage("audit event not delivered").Len())
	require.NoError(t, sink.Close())
}

func TestAuditSink_ConfigCreated(t *testing.T) {
	p, mock := newMockProducer(t)
	sink := NewAuditSink(p, AuditConfig{}, nil)

	var got AuditRecord
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		decodeValue(t, msg, &got)
		return nil
	})
	sink.OnEvent(&limiter.ConfigCreatedEvent{
		BaseEvent: limiter.NewBaseEvent(context.Background(), limiter.EventConfigCreated, auditKey),
		Config: limiter.AlgorithmConfig{
			AlgorithmType: limiter.AlgorithmFixedWindow,
			ActionType:    "chat",
			MaxRequests:   5,
			WindowSize:    60,
		},
	})

	require.NotNil(t, got.Config)
	assert.Equal(t, int64(5), got.Config.MaxRequests)
	assert.Nil(t, got.Decision)
	require.NoError(t, sink.Close())
}
