package storage

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内存储（单进程、测试）
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]memEntry
	closed bool
	now    func() time.Time
}

type memEntry struct {
	value    []byte
	expireAt time.Time // zero = never
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// NewMemoryStore creates a memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memEntry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, unavailable("get", key, ErrStoreClosed)
	}

	e, ok := s.data[key]
	if !ok || e.expired(s.now()) {
		return nil, ErrNotFound
	}
	return bytes.Clone(e.value), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("set", key, ErrStoreClosed)
	}

	s.put(key, value, ttl)
	return nil
}

func (s *MemoryStore) CompareAndSet(_ context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, unavailable("cas", key, ErrStoreClosed)
	}

	e, ok := s.data[key]
	present := ok && !e.expired(s.now())
	if expected == nil {
		if present {
			return false, nil
		}
	} else if !present || !bytes.Equal(e.value, expected) {
		return false, nil
	}

	s.put(key, value, ttl)
	return true, nil
}

func (s *MemoryStore) put(key string, value []byte, ttl time.Duration) {
	e := memEntry{value: bytes.Clone(value)}
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	s.data[key] = e
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("delete", "", ErrStoreClosed)
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// PurgeExpired drops expired entries, used by the Sweeper
func (s *MemoryStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("ping", "", ErrStoreClosed)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = make(map[string]memEntry)
	return nil
}
