package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test"), mr
}

func TestBucket_FixedWindow(t *testing.T) {
	l, mr := newTestLimiter(t)
	b := l.Bucket("login_ip", 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, err := b.Allow(ctx, "203.0.113.9")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("Allow #%d = false, want true", i)
		}
	}
	ok, err := b.Allow(ctx, "203.0.113.9")
	if err != nil || ok {
		t.Fatalf("4th Allow = %v, %v; want false, nil", ok, err)
	}
	if ttl := mr.TTL("test:login_ip:203.0.113.9"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want within window", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	ok, err = b.Allow(ctx, "203.0.113.9")
	if err != nil || !ok {
		t.Fatalf("Allow after window = %v, %v; want true, nil", ok, err)
	}
}

func TestBucket_KeysAreIndependentAndNormalized(t *testing.T) {
	l, _ := newTestLimiter(t)
	b := l.Bucket("login_email", 1, time.Minute)
	ctx := context.Background()

	if ok, _ := b.Allow(ctx, "Ana@Example.com "); !ok {
		t.Fatal("first hit should be allowed")
	}
	if ok, _ := b.Allow(ctx, "ana@example.com"); ok {
		t.Fatal("normalized email should share the bucket")
	}
	if ok, _ := b.Allow(ctx, "bo@example.com"); !ok {
		t.Fatal("other key should have its own counter")
	}
	if ok, _ := l.Bucket("mfa", 1, time.Minute).Allow(ctx, "ana@example.com"); !ok {
		t.Fatal("other bucket should have its own counter")
	}
}

func TestBucket_Disabled(t *testing.T) {
	l, mr := newTestLimiter(t)
	b := l.Bucket("off", 0, time.Minute)
	for i := 0; i < 5; i++ {
		if ok, err := b.Allow(context.Background(), "k"); err != nil || !ok {
			t.Fatalf("disabled bucket Allow = %v, %v", ok, err)
		}
	}
	if mr.Exists("test:off:k") {
		t.Error("disabled bucket should not write counters")
	}
}

func TestBucket_Unavailable(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()
	_, err := l.Bucket("login_ip", 3, time.Minute).Allow(context.Background(), "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if err := l.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Ping err = %v, want ErrUnavailable", err)
	}
}
