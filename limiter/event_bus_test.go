package limiter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_DeliversAndSurvivesPanic(t *testing.T) {
	log, logs := logger.NewTestCtxLogger("limiter")
	bus, err := NewEventBus(10, 2, log)
	require.NoError(t, err)

	var delivered atomic.Int64
	bus.Subscribe(EventListenerFunc(func(Event) { panic("boom") }))
	bus.Subscribe(EventListenerFunc(func(Event) { delivered.Add(1) }))

	for i := 0; i < 5; i++ {
		bus.Publish(&ResetEvent{BaseEvent: NewBaseEvent(context.Background(), EventReset, chatKey)})
	}
	bus.Close()

	assert.Equal(t, int64(5), delivered.Load())
	assert.Equal(t, 5, logs.FilterMessage("event listener panic").Len())

	// 关闭后发布被忽略
	bus.Publish(&ResetEvent{BaseEvent: NewBaseEvent(context.Background(), EventReset, chatKey)})
	bus.Close()
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus, err := NewEventBus(1, 1, nil)
	require.NoError(t, err)

	block := make(chan struct{})
	bus.Subscribe(EventListenerFunc(func(Event) { <-block }))

	for i := 0; i < 50; i++ {
		bus.Publish(&ResetEvent{BaseEvent: NewBaseEvent(context.Background(), EventReset, chatKey)})
	}
	assert.Eventually(t, func() bool { return bus.(*eventBus).Dropped() > 0 }, time.Second, 5*time.Millisecond)

	close(block)
	bus.Close()
}

func TestBaseEvent(t *testing.T) {
	e := NewBaseEvent(context.Background(), EventAllowed, chatKey)
	assert.Equal(t, EventAllowed, e.Type())
	assert.Equal(t, chatKey, e.Key())
	assert.NotNil(t, e.Context())
	assert.False(t, e.Timestamp().IsZero())
}
