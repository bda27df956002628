package rankport

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// TenantLocker serializes score-mutating and score-reading operations per
// tenant. The lock is advisory: every code path touching player_score must
// hold it, but nothing stops an external process that ignores the protocol.
//
// Acquisition always blocks until the lock is free; an earlier revision
// used try-lock with immediate failure and produced spurious contention
// errors under read load. Release goes through the returned io.Closer and
// must happen on every exit path.
type TenantLocker interface {
	LockTenant(ctx context.Context, tenantID int64) (io.Closer, error)
}

// FlockTenantLocker backs the lock with one flock file per tenant, next to
// the tenant's store file. Works across processes on the same host.
// maxWait bounds one acquisition attempt; zero means wait as long as the
// request context allows.
type FlockTenantLocker struct {
	dir          string
	maxWait      time.Duration
	pollInterval time.Duration
}

func NewFlockTenantLocker(dir string, maxWait time.Duration) *FlockTenantLocker {
	return &FlockTenantLocker{dir: dir, maxWait: maxWait, pollInterval: 10 * time.Millisecond}
}

// 排他ロックのためのファイル名を生成する
func (l *FlockTenantLocker) lockFilePath(tenantID int64) string {
	return filepath.Join(l.dir, fmt.Sprintf("%d.lock", tenantID))
}

// 排他ロックする
func (l *FlockTenantLocker) LockTenant(ctx context.Context, tenantID int64) (io.Closer, error) {
	p := l.lockFilePath(tenantID)

	if l.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}
	fl := flock.New(p)
	ok, err := fl.TryLockContext(ctx, l.pollInterval)
	if err != nil {
		return nil, fmt.Errorf("error flock.TryLockContext: path=%s, %w", p, err)
	}
	if !ok {
		return nil, fmt.Errorf("error flock not acquired: path=%s", p)
	}
	return fl, nil
}

// KeyedTenantLocker is the in-process implementation, used by tests and by
// single-process deployments that keep tenant stores on a non-flock
// filesystem.
type KeyedTenantLocker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewKeyedTenantLocker() *KeyedTenantLocker {
	return &KeyedTenantLocker{locks: map[int64]*sync.Mutex{}}
}

func (l *KeyedTenantLocker) mutexFor(tenantID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[tenantID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tenantID] = m
	}
	return m
}

func (l *KeyedTenantLocker) LockTenant(ctx context.Context, tenantID int64) (io.Closer, error) {
	m := l.mutexFor(tenantID)

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return mutexCloser{m: m}, nil
	case <-ctx.Done():
		// The goroutine may still win the mutex; hand it straight back.
		go func() {
			<-acquired
			m.Unlock()
		}()
		return nil, fmt.Errorf("error lock tenant: id=%d, %w", tenantID, ctx.Err())
	}
}

type mutexCloser struct {
	m *sync.Mutex
}

func (c mutexCloser) Close() error {
	c.m.Unlock()
	return nil
}
