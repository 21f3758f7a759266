package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type countingGranter struct {
	ttls []int64
	err  error
}

func (g *countingGranter) Grant(_ context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.ttls = append(g.ttls, ttl)
	return &clientv3.LeaseGrantResponse{ID: clientv3.LeaseID(len(g.ttls)), TTL: ttl}, nil
}

func TestLeasePool_SharesLeaseWithinWindow(t *testing.T) {
	g := &countingGranter{}
	pool := newLeasePool(g)
	now := time.Unix(1_700_000_000, 0)
	pool.now = func() time.Time { return now }
	ctx := context.Background()

	// 24h TTL: 窗口 1 分钟, lease TTL = 24h + 1m
	var first clientv3.LeaseID
	for i := 0; i < 1000; i++ {
		id, err := pool.acquire(ctx, 24*time.Hour)
		require.NoError(t, err)
		if i == 0 {
			first = id
		}
		assert.Equal(t, first, id)
	}
	require.Len(t, g.ttls, 1)
	assert.Equal(t, int64((24*time.Hour+time.Minute)/time.Second), g.ttls[0])

	now = now.Add(time.Minute)
	id, err := pool.acquire(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, first, id, "window passed, new lease")
	assert.Len(t, g.ttls, 2)

	// 不同 TTL 各自一个 lease
	_, err = pool.acquire(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(11), g.ttls[2])
}

func TestLeasePool_Invalidate(t *testing.T) {
	g := &countingGranter{}
	pool := newLeasePool(g)
	ctx := context.Background()

	id, err := pool.acquire(ctx, time.Hour)
	require.NoError(t, err)

	pool.invalidate(time.Hour, id+100)
	again, err := pool.acquire(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, id, again, "stale id does not evict the current lease")

	pool.invalidate(time.Hour, id)
	again, err = pool.acquire(ctx, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, id, again)
	assert.Len(t, g.ttls, 2)
}

func TestLeasePool_GrantError(t *testing.T) {
	pool := newLeasePool(&countingGranter{err: errors.New("etcdserver: no leader")})
	_, err := pool.acquire(context.Background(), time.Hour)
	assert.Error(t, err)
	assert.Empty(t, pool.leases)
}

func TestLeaseWindow(t *testing.T) {
	assert.Equal(t, time.Second, leaseWindow(2*time.Second))
	assert.Equal(t, 30*time.Second, leaseWindow(5*time.Minute))
	assert.Equal(t, time.Minute, leaseWindow(24*time.Hour))
}
