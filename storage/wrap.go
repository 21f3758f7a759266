package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WithTimeout bounds every operation of store by d
// A deadline hit surfaces as ErrStorageUnavailable from the backend
func WithTimeout(store Store, d time.Duration) Store {
	if d <= 0 {
		return store
	}
	return &timeoutStore{Store: store, d: d}
}

type timeoutStore struct {
	Store
	d time.Duration
}

func (s *timeoutStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.Store.Get(ctx, key)
}

func (s *timeoutStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.Store.Set(ctx, key, value, ttl)
}

func (s *timeoutStore) CompareAndSet(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.Store.CompareAndSet(ctx, key, expected, value, ttl)
}

func (s *timeoutStore) Delete(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.Store.Delete(ctx, keys...)
}

func (s *timeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.Store.Ping(ctx)
}

// Instrument records per-operation latency and CAS conflicts
func Instrument(store Store, meter metric.Meter, name string) (Store, error) {
	duration, err := meter.Float64Histogram("ratelimiter_storage_op_duration_seconds",
		metric.WithDescription("Storage operation latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	conflicts, err := meter.Int64Counter("ratelimiter_storage_cas_conflicts_total",
		metric.WithDescription("CompareAndSet calls that lost the race"))
	if err != nil {
		return nil, err
	}
	return &instrumentedStore{Store: store, name: name, duration: duration, conflicts: conflicts}, nil
}

type instrumentedStore struct {
	Store
	name      string
	duration  metric.Float64Histogram
	conflicts metric.Int64Counter
}

func (s *instrumentedStore) observe(ctx context.Context, op string, start time.Time, err error) {
	s.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("store", s.name),
		attribute.String("op", op),
		attribute.Bool("error", err != nil && err != ErrNotFound),
	))
}

func (s *instrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := s.Store.Get(ctx, key)
	s.observe(ctx, "get", start, err)
	return v, err
}

func (s *instrumentedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.Store.Set(ctx, key, value, ttl)
	s.observe(ctx, "set", start, err)
	return err
}

func (s *instrumentedStore) CompareAndSet(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := s.Store.CompareAndSet(ctx, key, expected, value, ttl)
	s.observe(ctx, "cas", start, err)
	if err == nil && !ok {
		s.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("store", s.name)))
	}
	return ok, err
}

func (s *instrumentedStore) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := s.Store.Delete(ctx, keys...)
	s.observe(ctx, "delete", start, err)
	return err
}
