package storage

import (
	"context"
	"math"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// leaseGranter clientv3.Lease 中用到的部分
type leaseGranter interface {
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
}

type pooledLease struct {
	id        clientv3.LeaseID
	grantedAt time.Time
}

// leasePool shares one lease per TTL for a short window instead of granting one per write.
// Keys written in the window expire between ttl and ttl+window, so live leases stay
// bounded by ttl/window per distinct TTL.
type leasePool struct {
	granter leaseGranter
	now     func() time.Time

	mu     sync.Mutex
	leases map[time.Duration]pooledLease
}

func newLeasePool(granter leaseGranter) *leasePool {
	return &leasePool{granter: granter, now: time.Now, leases: make(map[time.Duration]pooledLease)}
}

// leaseWindow ttl/10, within [1s, 1m]
func leaseWindow(ttl time.Duration) time.Duration {
	return min(max(ttl/10, time.Second), time.Minute)
}

// acquire returns a shared lease for ttl, granting a new one when the current window has passed
func (p *leasePool) acquire(ctx context.Context, ttl time.Duration) (clientv3.LeaseID, error) {
	window := leaseWindow(ttl)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if l, ok := p.leases[ttl]; ok && now.Sub(l.grantedAt) < window {
		return l.id, nil
	}

	resp, err := p.granter.Grant(ctx, int64(math.Ceil((ttl + window).Seconds())))
	if err != nil {
		return clientv3.NoLease, err
	}
	p.leases[ttl] = pooledLease{id: resp.ID, grantedAt: now}
	return resp.ID, nil
}

// invalidate forgets the lease after a failed write (e.g. lease not found), the next write re-grants
func (p *leasePool) invalidate(ttl time.Duration, id clientv3.LeaseID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.leases[ttl]; ok && l.id == id {
		delete(p.leases, ttl)
	}
}
