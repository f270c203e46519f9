package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedisStore struct {
	values map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: make(map[string]string)}
}

func (f *fakeRedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeRedisStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "mercato:lock:worker", time.Minute)
	if err != nil {
		t.Fatalf("unexpected lock error: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got ok=%v err=%v", ok, err)
	}

	other, _ := NewRedisLock(store, "mercato:lock:worker", time.Minute)
	ok, err = other.Acquire(context.Background())
	if err != nil || ok {
		t.Fatalf("expected contended acquire to fail, got ok=%v err=%v", ok, err)
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release error: %v", err)
	}
	ok, err = other.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected acquire after release to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseIgnoresForeignOwner(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "mercato:lock:worker", time.Minute)
	if err != nil {
		t.Fatalf("unexpected lock error: %v", err)
	}
	if _, err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire error: %v", err)
	}

	// TTL expiry simulated by another instance taking the key over.
	store.values["mercato:lock:worker"] = "someone-else"
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release error: %v", err)
	}
	if store.values["mercato:lock:worker"] != "someone-else" {
		t.Fatal("release must not delete a lock owned by another instance")
	}
}
