package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/limiter"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var auditEvents = []limiter.EventType{
	limiter.EventAllowed,
	limiter.EventRejected,
	limiter.EventConfigCreated,
	limiter.EventCorruptState,
	limiter.EventReset,
}

func auditEventNames() []interface{} {
	names := make([]interface{}, len(auditEvents))
	for i, e := range auditEvents {
		names[i] = string(e)
	}
	return names
}

// AuditRecord one message on the audit topic, keyed by unique_id:user_id:action_type
type AuditRecord struct {
	EventID     string                   `json:"event_id"`
	Type        limiter.EventType        `json:"type"`
	UniqueID    string                   `json:"unique_id"`
	UserID      string                   `json:"user_id"`
	ActionType  string                   `json:"action_type"`
	StorageType string                   `json:"storage_type,omitempty"`
	Decision    *limiter.Decision        `json:"decision,omitempty"`
	Config      *limiter.AlgorithmConfig `json:"config,omitempty"`
	StorageKey  string                   `json:"storage_key,omitempty"`
	Error       string                   `json:"error,omitempty"`
	TraceID     string                   `json:"trace_id,omitempty"`
	Timestamp   int64                    `json:"timestamp"` // unix ms
}

// AuditSink limiter.EventListener that forwards events to Kafka.
// OnEvent 运行在事件总线的 ants 协程里，发送失败只记日志和计数
type AuditSink struct {
	producer Producer
	topic    string
	timeout  time.Duration
	events   map[limiter.EventType]bool
	logger   *logger.CtxZapLogger
	sent     atomic.Int64
	failed   atomic.Int64
}

// NewAuditSink creates the sink; cfg.Events empty means every event type
func NewAuditSink(producer Producer, cfg AuditConfig, log *logger.CtxZapLogger) *AuditSink {
	if log == nil {
		log = logger.GetLogger("kafka")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultAuditTopic
	}
	events := make(map[limiter.EventType]bool)
	if len(cfg.Events) == 0 {
		for _, e := range auditEvents {
			events[e] = true
		}
	}
	for _, e := range cfg.Events {
		events[limiter.EventType(e)] = true
	}
	return &AuditSink{
		producer: producer,
		topic:    cfg.Topic,
		timeout:  cfg.SendTimeout,
		events:   events,
		logger:   log,
	}
}

// OnEvent implements limiter.EventListener
func (s *AuditSink) OnEvent(event limiter.Event) {
	if !s.events[event.Type()] {
		return
	}
	record := buildRecord(event)

	// 发布者的 ctx 可能已取消，这里只继承 trace
	ctx := trace.ContextWithSpanContext(context.Background(), spanContext(event))
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := s.producer.SendJSON(ctx, s.topic, event.Key().String(), record); err != nil {
		s.failed.Add(1)
		s.logger.WarnCtx(ctx, "audit event not delivered",
			zap.String("event_id", record.EventID),
			zap.String("type", string(record.Type)),
			zap.Error(err))
		return
	}
	s.sent.Add(1)
}

// Stats delivered and failed counts
func (s *AuditSink) Stats() (sent, failed int64) {
	return s.sent.Load(), s.failed.Load()
}

// Close closes the underlying producer
func (s *AuditSink) Close() error {
	return s.producer.Close()
}

// Shutdown alias of Close for the DI container
func (s *AuditSink) Shutdown() error {
	return s.Close()
}

func buildRecord(event limiter.Event) AuditRecord {
	k := event.Key()
	record := AuditRecord{
		EventID:    uuid.NewString(),
		Type:       event.Type(),
		UniqueID:   k.UniqueID,
		UserID:     k.UserID,
		ActionType: k.ActionType,
		Timestamp:  event.Timestamp().UnixMilli(),
	}
	if sc := spanContext(event); sc.HasTraceID() {
		record.TraceID = sc.TraceID().String()
	}

	switch e := event.(type) {
	case *limiter.DecisionEvent:
		d := e.Decision
		record.Decision = &d
		record.StorageType = e.StorageType
	case *limiter.ConfigCreatedEvent:
		c := e.Config
		record.Config = &c
	case *limiter.CorruptStateEvent:
		record.StorageKey = e.StorageKey
		if e.Err != nil {
			record.Error = e.Err.Error()
		}
	case *limiter.ResetEvent:
		record.StorageType = e.StorageType
	}
	return record
}

func spanContext(event limiter.Event) trace.SpanContext {
	if event.Context() == nil {
		return trace.SpanContext{}
	}
	return trace.SpanContextFromContext(event.Context())
}
