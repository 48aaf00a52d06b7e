//go:build integration
// +build integration

package lock

import (
	"context"
	"os"
	"testing"
	"time"

	logx "schedbot/pkg/logx"

	"github.com/redis/go-redis/v9"
)

func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("SCHEDBOT_TEST_REDIS")
	if addr == "" {
		t.Skip("SCHEDBOT_TEST_REDIS not set")
	}
	return addr
}

func TestLeaseIsExclusive(t *testing.T) {
	ctx := context.Background()
	addr := redisAddr(t)
	key := "schedbot:test:" + t.Name()
	cfg := Config{Addr: addr, Key: key, TTL: 2 * time.Second}

	a, err := New(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer a.Close()
	b, err := New(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()
	defer redis.NewClient(&redis.Options{Addr: addr}).Del(ctx, key)

	if ok, err := a.Acquire(ctx); !ok || err != nil {
		t.Fatalf("a acquire: %v %v", ok, err)
	}
	if ok, err := b.Acquire(ctx); ok || err != nil {
		t.Fatalf("b should not acquire: %v %v", ok, err)
	}
	if ok, err := a.Acquire(ctx); !ok || err != nil {
		t.Fatalf("a renew: %v %v", ok, err)
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := b.Acquire(ctx); !ok || err != nil {
		t.Fatalf("b acquire after release: %v %v", ok, err)
	}
	if !b.Held() || a.Held() {
		t.Fatalf("held flags: a=%v b=%v", a.Held(), b.Held())
	}
}
