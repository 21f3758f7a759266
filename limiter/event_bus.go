package limiter

import (
	"sync"
	"sync/atomic"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// eventBus 事件总线实现
// 单个分发协程读取缓冲通道, 监听器在 ants 协程池中执行
type eventBus struct {
	listeners []EventListener
	eventChan chan Event
	pool      *ants.Pool
	logger    *logger.CtxZapLogger
	closed    bool
	dropped   atomic.Int64
	mu        sync.RWMutex
	wg        sync.WaitGroup // dispatch loop
	tasks     sync.WaitGroup // in-flight listener calls
}

// NewEventBus 创建事件总线
func NewEventBus(bufferSize, poolSize int, log *logger.CtxZapLogger) (EventBus, error) {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if poolSize <= 0 {
		poolSize = 8
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	bus := &eventBus{
		listeners: make([]EventListener, 0),
		eventChan: make(chan Event, bufferSize),
		pool:      pool,
		logger:    log,
	}

	// 启动事件分发协程
	bus.wg.Add(1)
	go bus.dispatch()

	return bus, nil
}

// Subscribe 订阅事件
func (b *eventBus) Subscribe(listener EventListener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.listeners = append(b.listeners, listener)
}

// Publish 发布事件
func (b *eventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	// 非阻塞发送
	select {
	case b.eventChan <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped events discarded because the buffer was full
func (b *eventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close drains pending events and waits for listeners
func (b *eventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.tasks.Wait()
	b.pool.Release()
}

func (b *eventBus) dispatch() {
	defer b.wg.Done()

	for event := range b.eventChan {
		b.mu.RLock()
		listeners := make([]EventListener, len(b.listeners))
		copy(listeners, b.listeners)
		b.mu.RUnlock()

		for _, listener := range listeners {
			listener := listener
			b.tasks.Add(1)
			err := b.pool.Submit(func() {
				defer b.tasks.Done()
				b.notify(listener, event)
			})
			if err != nil {
				b.tasks.Done()
				b.notify(listener, event)
			}
		}
	}
}

// notify 安全调用，避免 panic 影响其他监听器
func (b *eventBus) notify(listener EventListener, event Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.ErrorCtx(event.Context(), "event listener panic",
				zap.String("event", string(event.Type())), zap.Any("panic", r))
		}
	}()
	listener.OnEvent(event)
}
