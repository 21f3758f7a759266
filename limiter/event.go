package limiter

import (
	"context"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// EventAllowed 放行
	EventAllowed EventType = "allowed"

	// EventRejected 拒绝
	EventRejected EventType = "rejected"

	// EventConfigCreated 首次调用持久化了配置
	EventConfigCreated EventType = "config_created"

	// EventCorruptState 状态或配置无法解析, 已按不存在处理
	EventCorruptState EventType = "corrupt_state"

	// EventReset 管理员重置
	EventReset EventType = "reset"
)

// Event limiter event
type Event interface {
	Type() EventType
	Key() Key
	Context() context.Context
	Timestamp() time.Time
}

// BaseEvent common fields
type BaseEvent struct {
	eventType EventType
	key       Key
	ctx       context.Context
	timestamp time.Time
}

// NewBaseEvent creates a base event
func NewBaseEvent(ctx context.Context, eventType EventType, key Key) BaseEvent {
	return BaseEvent{
		eventType: eventType,
		key:       key,
		ctx:       ctx,
		timestamp: time.Now(),
	}
}

func (e *BaseEvent) Type() EventType { return e.eventType }

func (e *BaseEvent) Key() Key { return e.key }

// Context 发布者的 context, 仅用于读取 trace 信息
func (e *BaseEvent) Context() context.Context { return e.ctx }

func (e *BaseEvent) Timestamp() time.Time { return e.timestamp }

// DecisionEvent allowed or rejected check
type DecisionEvent struct {
	BaseEvent
	Decision    Decision
	StorageType string
}

// ConfigCreatedEvent first-call config persisted
type ConfigCreatedEvent struct {
	BaseEvent
	Config AlgorithmConfig
}

// CorruptStateEvent stored bytes failed to decode
type CorruptStateEvent struct {
	BaseEvent
	StorageKey string
	Err        error
}

// ResetEvent admin reset
type ResetEvent struct {
	BaseEvent
	StorageType string
}

// EventListener event listener
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc adapter
type EventListenerFunc func(event Event)

// OnEvent implements EventListener
func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}

// EventBus asynchronous event bus
type EventBus interface {
	Subscribe(listener EventListener)

	// Publish never blocks; events are dropped when the buffer is full
	Publish(event Event)

	Close()
}

type noopBus struct{}

func (noopBus) Subscribe(EventListener) {}
func (noopBus) Publish(Event)           {}
func (noopBus) Close()                  {}
