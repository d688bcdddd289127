package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLockMutualExclusion(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	first := NewRedisLock(client, "campaign:c1", time.Minute)
	second := NewRedisLock(client, "campaign:c1", time.Minute)

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first Acquire() = %v, %v; want acquired", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second Acquire() error: %v", err)
	}
	if ok {
		t.Fatal("two holders acquired the same lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("Acquire() after release = %v, %v; want acquired", ok, err)
	}
}

func TestRedisLockReleaseRequiresOwnership(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	owner := NewRedisLock(client, "campaign:c1", time.Minute)
	intruder := NewRedisLock(client, "campaign:c1", time.Minute)

	if ok, _ := owner.Acquire(ctx); !ok {
		t.Fatal("owner failed to acquire")
	}

	// A holder whose own TTL expired must not delete the current owner's
	// lock.
	if err := intruder.Release(ctx); err != nil {
		t.Fatalf("intruder Release() error: %v", err)
	}
	if ok, _ := intruder.Acquire(ctx); ok {
		t.Fatal("lock vanished after a non-owner release")
	}
}

func TestRedisLockDifferentKeysIndependent(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign:c1", time.Minute)
	b := NewRedisLock(client, "campaign:c2", time.Minute)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("lock a not acquired")
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lock on a different campaign blocked")
	}
}

func TestRedisLockExtend(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "campaign:c1", time.Minute)
	if ok, _ := l.Acquire(ctx); !ok {
		t.Fatal("Acquire() failed")
	}
	if err := l.Extend(ctx, 2*time.Minute); err != nil {
		t.Fatalf("Extend() error: %v", err)
	}
}

func TestNewLockPrefersRedis(t *testing.T) {
	client := newTestRedis(t)
	l := NewLock(client, nil, "campaign:c1", time.Minute)
	if _, ok := l.(*RedisLock); !ok {
		t.Fatalf("NewLock with redis = %T, want *RedisLock", l)
	}

	l = NewLock(nil, nil, "campaign:c1", time.Minute)
	if _, ok := l.(*PGAdvisoryLock); !ok {
		t.Fatalf("NewLock without redis = %T, want *PGAdvisoryLock", l)
	}
}
