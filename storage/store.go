// Package storage 限流状态的持久化后端
//
// 所有后端实现同一个 Store 接口:
//   - RedisStore: 远程共享存储, Lua 脚本实现原子 CAS
//   - GormStore: 嵌入式持久化存储 (sqlite / mysql / postgres), 按 key 加锁 + 版本号
//   - EtcdStore: 远程存储, Txn 比较值
//   - MemoryStore: 进程内存储, 用于测试
//
// 后端错误统一包装为 ErrStorageUnavailable, 由调用方决定如何呈现。
package storage

import (
	"context"
	"time"
)

// Store key-value state with an atomic read-modify-write primitive
type Store interface {
	// Get returns ErrNotFound when the key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes unconditionally, ttl 0 means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// CompareAndSet writes value only if the current value equals expected.
	// expected == nil means "only if absent". Returns false, nil on conflict.
	CompareAndSet(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error)

	// Delete removes keys, missing keys are ignored
	Delete(ctx context.Context, keys ...string) error

	// Ping connectivity check
	Ping(ctx context.Context) error

	Close() error
}

// Type store type
type Type string

const (
	TypeMemory   Type = "memory"
	TypeRedis    Type = "redis"
	TypeEmbedded Type = "embedded"
	TypeEtcd     Type = "etcd"
)

// PluginStorage is the request-level alias of the embedded store
const PluginStorage = "plugin_storage"
