package storage

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore remote store, CAS compares the stored value inside a Txn.
// TTL 通过共享 lease 实现, 见 leasePool
type EtcdStore struct {
	client *clientv3.Client
	leases *leasePool
}

// NewEtcdStore Close does not close the shared client
func NewEtcdStore(client *clientv3.Client) *EtcdStore {
	return &EtcdStore{client: client, leases: newLeasePool(client)}
}

func (s *EtcdStore) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

func (s *EtcdStore) putOp(ctx context.Context, key string, value []byte, ttl time.Duration) (clientv3.Op, clientv3.LeaseID, error) {
	if ttl <= 0 {
		return clientv3.OpPut(key, string(value)), clientv3.NoLease, nil
	}
	id, err := s.leases.acquire(ctx, ttl)
	if err != nil {
		return clientv3.Op{}, clientv3.NoLease, err
	}
	return clientv3.OpPut(key, string(value), clientv3.WithLease(id)), id, nil
}

// writeFailed drops a shared lease the server may no longer know
func (s *EtcdStore) writeFailed(ttl time.Duration, id clientv3.LeaseID) {
	if id != clientv3.NoLease {
		s.leases.invalidate(ttl, id)
	}
}

func (s *EtcdStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	op, id, err := s.putOp(ctx, key, value, ttl)
	if err != nil {
		return unavailable("set", key, err)
	}
	if _, err := s.client.Do(ctx, op); err != nil {
		s.writeFailed(ttl, id)
		return unavailable("set", key, err)
	}
	return nil
}

func (s *EtcdStore) CompareAndSet(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	cmp := clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	if expected != nil {
		cmp = clientv3.Compare(clientv3.Value(key), "=", string(expected))
	}

	op, id, err := s.putOp(ctx, key, value, ttl)
	if err != nil {
		return false, unavailable("cas", key, err)
	}

	// 冲突时 lease 仍被同窗口内的其他写入复用, 无需 revoke
	resp, err := s.client.Txn(ctx).If(cmp).Then(op).Commit()
	if err != nil {
		s.writeFailed(ttl, id)
		return false, unavailable("cas", key, err)
	}
	return resp.Succeeded, nil
}

func (s *EtcdStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := s.client.Delete(ctx, k); err != nil {
			return unavailable("delete", k, err)
		}
	}
	return nil
}

func (s *EtcdStore) Ping(ctx context.Context) error {
	eps := s.client.Endpoints()
	if len(eps) == 0 {
		return unavailable("ping", "", ErrStoreClosed)
	}
	if _, err := s.client.Status(ctx, eps[0]); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func (s *EtcdStore) Close() error {
	return nil
}
