package limiter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-ratelimiter/logger"
	"github.com/KOMKZ/go-yogan-ratelimiter/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_040, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	manager *Manager
	store   storage.Store
	clock   *fakeClock
	logs    *observer.ObservedLogs
}

func newTestEnv(t *testing.T, store storage.Store, mutate ...func(*Config)) *testEnv {
	t.Helper()
	reg := storage.NewRegistry(storage.TypeMemory)
	reg.Register(storage.TypeMemory, store)

	cfg := DefaultConfig()
	for _, f := range mutate {
		f(&cfg)
	}

	log, logs := logger.NewTestCtxLogger("limiter")
	clock := newFakeClock()
	m, err := NewManager(cfg, reg, log, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return &testEnv{manager: m, store: store, clock: clock, logs: logs}
}

func newRedisBackedStore(t *testing.T) (storage.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewRedisStore(client), mr
}

func newSqliteBackedStore(t *testing.T) storage.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s, err := storage.NewGormStore(db)
	require.NoError(t, err)
	return s
}

func ptr[T any](v T) *T { return &v }

var chatKey = Key{UniqueID: "app-1", UserID: "user-1", ActionType: "chat"}

func TestManager_FirstCallWins(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	ctx := context.Background()

	d, err := env.manager.CheckAndConsume(ctx, CheckRequest{
		Key:           chatKey,
		AlgorithmType: AlgorithmFixedWindow,
		Params:        Params{MaxRequests: ptr(int64(3)), WindowSize: ptr(int64(60))},
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(2), d.Remaining)
	assert.Equal(t, AlgorithmFixedWindow, d.AlgorithmType)
	assert.Equal(t, "chat", d.ActionType)

	// 第二次调用的参数被忽略
	d, err = env.manager.CheckAndConsume(ctx, CheckRequest{
		Key:           chatKey,
		AlgorithmType: AlgorithmTokenBucket,
		Params:        Params{Rate: ptr(1000.0), Capacity: ptr(int64(1000))},
	})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmFixedWindow, d.AlgorithmType)
	assert.Equal(t, int64(1), d.Remaining)

	// 绕过进程内缓存, 直接读存储
	cfg, ok, err := env.manager.readConfig(ctx, env.store, chatKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), cfg.MaxRequests)
	assert.Equal(t, 10.0, cfg.Rate, "unused parameters keep their defaults")
}

func TestManager_ColonIDsAreIndependent(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	ctx := context.Background()
	once := Params{MaxRequests: ptr(int64(1))}

	d, err := env.manager.CheckAndConsume(ctx, CheckRequest{
		Key: Key{UniqueID: "z", UserID: "u", ActionType: "x:y"}, AlgorithmType: AlgorithmFixedWindow, Params: once})
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = env.manager.CheckAndConsume(ctx, CheckRequest{
		Key: Key{UniqueID: "y:z", UserID: "u", ActionType: "x"}, AlgorithmType: AlgorithmFixedWindow, Params: once})
	require.NoError(t, err)
	assert.True(t, d.Allowed, "distinct key has its own quota")

	_, err = env.manager.CheckAndConsume(ctx, CheckRequest{
		Key: Key{UniqueID: "app:1", UserID: "u", ActionType: "chat"}, AlgorithmType: AlgorithmFixedWindow})
	require.NoError(t, err)
	d, err = env.manager.CheckAndConsume(ctx, CheckRequest{
		Key: Key{UniqueID: "app", UserID: "1:u", ActionType: "chat"}, AlgorithmType: AlgorithmLeakyBucket})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmLeakyBucket, d.AlgorithmType, "distinct key has its own config")
}

func TestManager_ConfigInvalid(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	ctx := context.Background()

	_, err := env.manager.CheckAndConsume(ctx, CheckRequest{
		Key:    chatKey,
		Params: Params{Rate: ptr(0.0)},
	})
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = env.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey, AlgorithmType: "gcra"})
	assert.ErrorIs(t, err, ErrConfigInvalid)

	// 无状态写入
	_, err = env.store.Get(ctx, env.manager.keys.config(chatKey))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = env.store.Get(ctx, env.manager.keys.state(AlgorithmTokenBucket, chatKey))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManager_InvalidKey(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	_, err := env.manager.CheckAndConsume(context.Background(), CheckRequest{Key: Key{UniqueID: "a"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfigInvalid)
}

func TestManager_CorruptStateReinitialized(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	ctx := context.Background()

	_, err := env.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey, AlgorithmType: AlgorithmLeakyBucket,
		Params: Params{Rate: ptr(1.0), Capacity: ptr(int64(2))}})
	require.NoError(t, err)

	stateKey := env.manager.keys.state(AlgorithmLeakyBucket, chatKey)
	require.NoError(t, env.store.Set(ctx, stateKey, []byte("{garbage"), 0))

	d, err := env.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Remaining, "fresh state, one unit used")

	assert.Equal(t, 1, env.logs.FilterMessage("corrupt rate limit entry reinitialized").Len())
	assert.Equal(t, int64(1), env.manager.Collector().Corrupt())

	raw, err := env.store.Get(ctx, stateKey)
	require.NoError(t, err)
	_, err = DecodeState(raw, AlgorithmLeakyBucket)
	assert.NoError(t, err, "corrupt bytes replaced")
}

func TestManager_CorruptConfigRecreated(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, env.store.Set(ctx, env.manager.keys.config(chatKey), []byte(`{"algorithm_type":"x"}`), 0))
	d, err := env.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey, AlgorithmType: AlgorithmSlidingWindow})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmSlidingWindow, d.AlgorithmType)
	assert.Equal(t, int64(1), env.manager.Collector().Corrupt())
}

func TestManager_StorageUnavailable(t *testing.T) {
	store, mr := newRedisBackedStore(t)
	env := newTestEnv(t, store)
	mr.Close()

	_, err := env.manager.CheckAndConsume(context.Background(), CheckRequest{Key: chatKey})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorageUnavailable)

	_, err = env.manager.Status(context.Background(), chatKey, "", nil)
	assert.ErrorIs(t, err, storage.ErrStorageUnavailable)
}

func TestManager_StoreNotConfigured(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	_, err := env.manager.CheckAndConsume(context.Background(), CheckRequest{Key: chatKey, StorageType: "redis"})
	assert.ErrorIs(t, err, storage.ErrStoreNotConfigured)
}

// conflictStore 对状态 key 的 CAS 永远冲突
type conflictStore struct {
	storage.Store
	prefix string
	calls  atomic.Int64
}

func (s *conflictStore) CompareAndSet(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	if len(key) >= len(s.prefix) && key[:len(s.prefix)] == s.prefix {
		s.calls.Add(1)
		return false, nil
	}
	return s.Store.CompareAndSet(ctx, key, expected, value, ttl)
}

func TestManager_CASExhausted(t *testing.T) {
	store := &conflictStore{Store: storage.NewMemoryStore(), prefix: DefaultKeyPrefix + ":state:"}
	env := newTestEnv(t, store, func(c *Config) {
		c.MaxRetries = 3
		c.RetryBaseDelay = time.Millisecond
	})

	_, err := env.manager.CheckAndConsume(context.Background(), CheckRequest{Key: chatKey})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorageUnavailable)
	assert.ErrorIs(t, err, ErrCASExhausted)
	assert.Equal(t, int64(3), store.calls.Load())
}

// flakyStore 对指定前缀的 CAS 返回存储错误, failures 次之后恢复
type flakyStore struct {
	storage.Store
	prefix   string
	failures atomic.Int64
}

func (s *flakyStore) CompareAndSet(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	if strings.HasPrefix(key, s.prefix) && s.failures.Add(-1) >= 0 {
		return false, storage.ErrStorageUnavailable.Wrap(errors.New("blip"))
	}
	return s.Store.CompareAndSet(ctx, key, expected, value, ttl)
}

func TestManager_ActionRegisteredAfterRegistryFailure(t *testing.T) {
	store := &flakyStore{Store: storage.NewMemoryStore(), prefix: DefaultKeyPrefix + ":actions:"}
	store.failures.Store(1)
	env := newTestEnv(t, store, func(c *Config) { c.RetryBaseDelay = time.Millisecond })
	ctx := context.Background()

	_, err := env.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorageUnavailable)

	// 配置已写入, 下一次调用补登记
	d, err := env.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	views, err := env.manager.StatusAll(ctx, chatKey.UniqueID, chatKey.UserID, "", nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "chat", views[0].ActionType)
}

func TestManager_ResetSeenByOtherInstance(t *testing.T) {
	shared := storage.NewMemoryStore()
	a := newTestEnv(t, shared)
	b := newTestEnv(t, shared)
	ctx := context.Background()

	_, err := a.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey, AlgorithmType: AlgorithmFixedWindow,
		Params: Params{MaxRequests: ptr(int64(1))}})
	require.NoError(t, err)
	d, err := b.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey})
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, AlgorithmFixedWindow, d.AlgorithmType, "b now caches the fixed window config")

	require.NoError(t, a.manager.Reset(ctx, chatKey, ""))
	_, err = a.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey, AlgorithmType: AlgorithmLeakyBucket,
		Params: Params{Capacity: ptr(int64(3))}})
	require.NoError(t, err)

	d, err = b.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmLeakyBucket, d.AlgorithmType)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Remaining)
}

func TestManager_Status(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	ctx := context.Background()

	view, err := env.manager.Status(ctx, chatKey, "", nil)
	require.NoError(t, err)
	assert.False(t, view.Initialized)
	assert.True(t, view.Allowed)
	assert.Equal(t, int64(100), view.Remaining)
	assert.Equal(t, AlgorithmTokenBucket, view.AlgorithmType)
	assert.Equal(t, 10.0, view.Rate)

	for i := 0; i < 3; i++ {
		_, err := env.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey, AlgorithmType: AlgorithmFixedWindow,
			Params: Params{MaxRequests: ptr(int64(5))}})
		require.NoError(t, err)
	}

	first, err := env.manager.Status(ctx, chatKey, "", nil)
	require.NoError(t, err)
	second, err := env.manager.Status(ctx, chatKey, "", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second, "status is idempotent")
	assert.True(t, first.Initialized)
	assert.Equal(t, int64(2), first.Remaining)
	assert.Equal(t, int64(5), first.MaxRequests)
	assert.Equal(t, "user-1", first.UserID)

	// status 不消耗配额
	d, err := env.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey})
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Remaining)
}

func TestManager_StatusAllAndReset(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	ctx := context.Background()

	for _, action := range []string{"search", "chat", "upload"} {
		k := chatKey
		k.ActionType = action
		_, err := env.manager.CheckAndConsume(ctx, CheckRequest{Key: k})
		require.NoError(t, err)
	}

	views, err := env.manager.StatusAll(ctx, chatKey.UniqueID, chatKey.UserID, "", nil)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "chat", views[0].ActionType)
	assert.Equal(t, "search", views[1].ActionType)
	assert.Equal(t, "upload", views[2].ActionType)
	for _, v := range views {
		assert.True(t, v.Initialized)
		assert.Equal(t, int64(99), v.Remaining)
	}

	require.NoError(t, env.manager.Reset(ctx, chatKey, ""))

	actions, err := env.manager.Actions(ctx, chatKey.UniqueID, chatKey.UserID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "upload"}, actions)

	view, err := env.manager.Status(ctx, chatKey, "", nil)
	require.NoError(t, err)
	assert.False(t, view.Initialized)

	// 重置后可以使用新的配置
	d, err := env.manager.CheckAndConsume(ctx, CheckRequest{Key: chatKey, AlgorithmType: AlgorithmLeakyBucket})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmLeakyBucket, d.AlgorithmType)

	_, err = env.manager.StatusAll(ctx, "", "user-1", "", nil)
	assert.Error(t, err)
}

func TestManager_TokenBucketRefillWithClock(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore())
	ctx := context.Background()
	req := CheckRequest{Key: chatKey, Params: Params{Rate: ptr(10.0), Capacity: ptr(int64(100))}}

	// 排空令牌桶
	for i := 0; i < 100; i++ {
		d, err := env.manager.CheckAndConsume(ctx, req)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := env.manager.CheckAndConsume(ctx, req)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRateExceeded, d.ReasonCode)
	assert.Equal(t, "请求频率超出限制，请稍后重试", d.ReasonCN)

	env.clock.Advance(time.Second)
	d, err = env.manager.CheckAndConsume(ctx, req)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(9), d.Remaining)
}

func TestManager_ConcurrentAdmissionsBounded(t *testing.T) {
	stores := map[string]func(t *testing.T) storage.Store{
		"memory": func(*testing.T) storage.Store { return storage.NewMemoryStore() },
		"redis": func(t *testing.T) storage.Store {
			s, _ := newRedisBackedStore(t)
			return s
		},
		"embedded": newSqliteBackedStore,
	}

	for name, factory := range stores {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, factory(t), func(c *Config) {
				c.MaxRetries = 200
				c.RetryBaseDelay = time.Millisecond
				c.RetryMaxDelay = 5 * time.Millisecond
			})
			ctx := context.Background()
			req := CheckRequest{Key: chatKey, AlgorithmType: AlgorithmFixedWindow,
				Params: Params{MaxRequests: ptr(int64(20)), WindowSize: ptr(int64(3600))}}

			var allowed atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d, err := env.manager.CheckAndConsume(ctx, req)
					if assert.NoError(t, err) && d.Allowed {
						allowed.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int64(20), allowed.Load())
		})
	}
}

func TestManager_Events(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStore(), func(c *Config) { c.EventPoolSize = 2 })
	ctx := context.Background()

	var mu sync.Mutex
	seen := map[EventType]int{}
	env.manager.Subscribe(EventListenerFunc(func(e Event) {
		mu.Lock()
		seen[e.Type()]++
		mu.Unlock()
	}))

	req := CheckRequest{Key: chatKey, AlgorithmType: AlgorithmFixedWindow, Params: Params{MaxRequests: ptr(int64(1))}}
	_, err := env.manager.CheckAndConsume(ctx, req)
	require.NoError(t, err)
	_, err = env.manager.CheckAndConsume(ctx, req)
	require.NoError(t, err)
	require.NoError(t, env.manager.Reset(ctx, chatKey, ""))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[EventAllowed] == 1 && seen[EventRejected] == 1 &&
			seen[EventConfigCreated] == 1 && seen[EventReset] == 1
	}, 2*time.Second, 10*time.Millisecond)

	snaps := env.manager.Collector().Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(2), snaps[0].TotalRequests)
	assert.Equal(t, 0.5, snaps[0].RejectRate)
}

func TestDecision_JSON(t *testing.T) {
	d := Decision{Allowed: false, Remaining: 0, ResetTime: 3, ReasonCode: ReasonQueueFull}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"allowed":"false"`)
	assert.Contains(t, string(data), `"reason_code":"QUEUE_FULL"`)

	var back Decision
	require.NoError(t, json.Unmarshal([]byte(`{"allowed":"true"}`), &back))
	assert.True(t, back.Allowed)
}
