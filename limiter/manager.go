package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/errcode"
	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/KOMKZ/go-yogan-ratelimiter/retry"
	"github.com/KOMKZ/go-yogan-ratelimiter/storage"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/KOMKZ/go-yogan-ratelimiter/limiter"

// StoreResolver maps a request-level storage type onto a store, "" is the default
type StoreResolver interface {
	Get(name string) (storage.Store, error)
}

// CheckRequest one admission check
type CheckRequest struct {
	Key
	AlgorithmType AlgorithmType
	Params        Params

	// StorageType redis / plugin_storage / memory / etcd, empty for the default store
	StorageType string

	// Now overrides the clock
	Now *time.Time
}

// Decision admission result; allowed is rendered as "true"/"false"
type Decision struct {
	Allowed       bool          `json:"allowed,string"`
	Remaining     int64         `json:"remaining"`
	ResetTime     int64         `json:"reset_time"`
	Reason        string        `json:"reason"`
	ReasonCN      string        `json:"reason_cn"`
	ReasonCode    Reason        `json:"reason_code"`
	AlgorithmType AlgorithmType `json:"algorithm_type"`
	ActionType    string        `json:"action_type"`
}

func newDecision(res Result, cfg AlgorithmConfig) Decision {
	return Decision{
		Allowed:       res.Allowed,
		Remaining:     max(res.Remaining, 0),
		ResetTime:     max(res.ResetSeconds, 0),
		Reason:        res.Reason.Message(),
		ReasonCN:      res.Reason.MessageCN(),
		ReasonCode:    res.Reason,
		AlgorithmType: cfg.AlgorithmType,
		ActionType:    cfg.ActionType,
	}
}

// Manager limiter façade
//
// 流程: 解析配置 (首次调用写入, 之后不可变) -> 读取状态 -> 算法求值 -> CAS 写回。
// 所有并发控制都依赖 Store.CompareAndSet, 冲突时有界重试。
type Manager struct {
	config    Config
	stores    StoreResolver
	keys      keyspace
	configs   *expirable.LRU[string, AlgorithmConfig]
	group     singleflight.Group
	bus       EventBus
	collector MetricsCollector
	metrics   *OTelMetrics
	logger    *logger.CtxZapLogger
	tracer    trace.Tracer
	clock     func() time.Time
	stateTTL  time.Duration
	configTTL time.Duration
}

// Option manager option
type Option func(*Manager)

// WithClock overrides time.Now
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithEventBus publishes events on bus instead of the built-in one
func WithEventBus(bus EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithOTelMetrics records OTel instruments, metrics must already be registered
func WithOTelMetrics(metrics *OTelMetrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithRetention sets the TTL written with state and config entries, 0 keeps forever
func WithRetention(stateTTL, configTTL time.Duration) Option {
	return func(m *Manager) {
		m.stateTTL = stateTTL
		m.configTTL = configTTL
	}
}

// NewManager creates the limiter façade
func NewManager(cfg Config, stores StoreResolver, log *logger.CtxZapLogger, opts ...Option) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, ErrConfigInvalid.Wrap(err)
	}
	if stores == nil {
		return nil, errors.New("limiter: store resolver is required")
	}
	if log == nil {
		log = logger.GetLogger("limiter")
	}

	m := &Manager{
		config:    cfg,
		stores:    stores,
		keys:      keyspace{prefix: cfg.KeyPrefix},
		configs:   expirable.NewLRU[string, AlgorithmConfig](cfg.ConfigCacheSize, nil, cfg.ConfigCacheTTL),
		collector: NewMetricsCollector(),
		logger:    log,
		tracer:    otel.Tracer(tracerName),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.bus == nil {
		if cfg.EventPoolSize > 0 {
			bus, err := NewEventBus(cfg.EventBufferSize, cfg.EventPoolSize, log)
			if err != nil {
				return nil, err
			}
			m.bus = bus
		} else {
			m.bus = noopBus{}
		}
	}

	return m, nil
}

// Subscribe registers an event listener
func (m *Manager) Subscribe(listener EventListener) {
	m.bus.Subscribe(listener)
}

// Collector in-process counters
func (m *Manager) Collector() MetricsCollector {
	return m.collector
}

// Close stops the event bus
func (m *Manager) Close() {
	m.bus.Close()
}

// Shutdown implements do.ShutdownerWithError
func (m *Manager) Shutdown() error {
	m.Close()
	return nil
}

func (m *Manager) now(override *time.Time) time.Time {
	if override != nil {
		return *override
	}
	return m.clock()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// CheckAndConsume decides whether the request is admitted and consumes a unit if so.
// A rejected admission is a Decision with Allowed=false, not an error.
func (m *Manager) CheckAndConsume(ctx context.Context, req CheckRequest) (*Decision, error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "limiter.CheckAndConsume", trace.WithAttributes(
		attribute.String("ratelimit.action_type", req.ActionType),
		attribute.String("ratelimit.storage_type", req.StorageType),
	))
	defer span.End()

	decision, err := m.checkAndConsume(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.WarnCtx(ctx, "rate limit check failed",
			zap.String("key", req.Key.String()), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", decision.Allowed),
		attribute.String("ratelimit.reason", string(decision.ReasonCode)),
	)
	m.collector.RecordDecision(decision.AlgorithmType, decision.ActionType, decision.Allowed)
	m.metrics.RecordDecision(ctx, decision, time.Since(start))

	eventType := EventAllowed
	if !decision.Allowed {
		eventType = EventRejected
		m.logger.DebugCtx(ctx, "request rejected",
			zap.String("key", req.Key.String()),
			zap.String("reason", string(decision.ReasonCode)),
			zap.Int64("reset_time", decision.ResetTime))
	}
	m.bus.Publish(&DecisionEvent{
		BaseEvent:   NewBaseEvent(ctx, eventType, req.Key),
		Decision:    *decision,
		StorageType: req.StorageType,
	})
	return decision, nil
}

func (m *Manager) checkAndConsume(ctx context.Context, req CheckRequest) (*Decision, error) {
	if err := req.Key.Validate(); err != nil {
		return nil, errcode.ErrInvalidParams.Wrap(err)
	}

	store, err := m.stores.Get(req.StorageType)
	if err != nil {
		return nil, err
	}

	cfg, cached, err := m.resolveConfig(ctx, store, req)
	if err != nil {
		return nil, err
	}

	algo, err := GetAlgorithm(cfg.AlgorithmType)
	if err != nil {
		return nil, err
	}

	stateKey := m.keys.state(cfg.AlgorithmType, req.Key)
	var result Result
	err = retry.Do(ctx, func() error {
		raw, state, err := m.loadState(ctx, store, stateKey, cfg.AlgorithmType, req.Key)
		if err != nil {
			return err
		}

		// 缓存的配置遇到空状态: key 可能已被其他实例 Reset, 回存储确认一次
		if cached && raw == nil {
			cached = false
			fresh, err := m.refreshConfig(ctx, store, req)
			if err != nil {
				return err
			}
			if fresh != cfg {
				if algo, err = GetAlgorithm(fresh.AlgorithmType); err != nil {
					return err
				}
				cfg = fresh
				stateKey = m.keys.state(cfg.AlgorithmType, req.Key)
				if raw, state, err = m.loadState(ctx, store, stateKey, cfg.AlgorithmType, req.Key); err != nil {
					return err
				}
			}
		}

		result = algo.Evaluate(state, cfg, unixSeconds(m.now(req.Now)))

		data, err := EncodeState(result.State)
		if err != nil {
			return err
		}
		ok, err := store.CompareAndSet(ctx, stateKey, raw, data, m.stateTTL)
		if err != nil {
			return err
		}
		if !ok {
			return errConflict
		}
		return nil
	}, m.retryOptions(cfg.AlgorithmType)...)
	if err != nil {
		return nil, m.finalError(stateKey, err)
	}

	d := newDecision(result, cfg)
	return &d, nil
}

func (m *Manager) retryOptions(algo AlgorithmType) []retry.Option {
	return []retry.Option{
		retry.MaxAttempts(m.config.MaxRetries),
		retry.Backoff(retry.ExponentialBackoff(m.config.RetryBaseDelay,
			retry.WithMaxDelay(m.config.RetryMaxDelay), retry.WithJitter(0.2))),
		retry.Condition(retry.RetryOnErrors(errConflict)),
		retry.OnRetry(func(int, error) {
			m.metrics.RecordRetry(context.Background(), algo)
		}),
	}
}

// finalError maps retry failures onto the storage error taxonomy
func (m *Manager) finalError(key string, err error) error {
	var me *retry.MultiError
	if errors.As(err, &me) {
		err = me.LastError()
	}

	var le *errcode.LayeredError
	switch {
	case errors.Is(err, errConflict):
		return storage.ErrStorageUnavailable.Wrap(ErrCASExhausted).WithData("key", key)
	case errors.As(err, &le):
		return err
	default:
		// context 超时 / 取消等
		return storage.ErrStorageUnavailable.Wrap(err).WithData("key", key)
	}
}

// loadState returns the raw bytes for CAS and the decoded state, nil state when fresh
func (m *Manager) loadState(ctx context.Context, store storage.Store, key string, algo AlgorithmType, k Key) ([]byte, *State, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	state, err := DecodeState(raw, algo)
	if err != nil {
		m.reportCorrupt(ctx, k, key, "state", err)
		return raw, nil, nil
	}
	return raw, state, nil
}

// reportCorrupt KeyStateCorrupt: warn, count, publish; the caller continues with a fresh entry
func (m *Manager) reportCorrupt(ctx context.Context, k Key, storageKey, kind string, cause error) {
	err := ErrKeyStateCorrupt.Wrap(cause).WithData("key", storageKey)
	m.logger.WarnCtx(ctx, "corrupt rate limit entry reinitialized",
		zap.String("kind", kind),
		zap.String("storage_key", storageKey),
		zap.Int("code", err.Code()),
		zap.Error(cause))
	m.collector.RecordCorrupt()
	m.metrics.RecordCorrupt(ctx, kind)
	m.bus.Publish(&CorruptStateEvent{
		BaseEvent:  NewBaseEvent(ctx, EventCorruptState, k),
		StorageKey: storageKey,
		Err:        err,
	})
}
