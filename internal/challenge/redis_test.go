package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisBackendPutTake(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	b := NewRedisBackend(rdb, "test")
	key := Key{SessionID: "s1", Kind: KindSMS}
	created := time.UnixMilli(time.Now().UnixMilli())

	if err := b.Put(ctx, key, Challenge{Kind: KindSMS, Secret: "042917", Subject: "13800000000", CreatedAt: created}, time.Minute); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("test:sms:s1") {
		t.Fatal("expected key test:sms:s1 to exist")
	}
	if ttl := mr.TTL("test:sms:s1"); ttl != time.Minute {
		t.Fatalf("TTL = %v, want 1m", ttl)
	}

	ch, err := b.Take(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if ch == nil {
		t.Fatal("expected challenge")
	}
	if ch.Secret != "042917" || ch.Subject != "13800000000" || ch.Kind != KindSMS {
		t.Fatalf("unexpected challenge: %#v", ch)
	}
	if !ch.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt = %v, want %v", ch.CreatedAt, created)
	}
	if mr.Exists("test:sms:s1") {
		t.Fatal("take must delete the key")
	}

	ch, err = b.Take(ctx, key)
	if err != nil || ch != nil {
		t.Fatalf("second take = %#v, %v; want nil, nil", ch, err)
	}
}

func TestRedisBackendExpiry(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	b := NewRedisBackend(rdb, "")
	key := Key{SessionID: "s1", Kind: KindImage}

	if err := b.Put(ctx, key, Challenge{Kind: KindImage, Secret: "AB3D", CreatedAt: time.Now()}, time.Minute); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	ch, err := b.Take(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if ch != nil {
		t.Fatalf("expired challenge should be absent, got %#v", ch)
	}
}

func TestRedisBackendDiscard(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	b := NewRedisBackend(rdb, "")
	key := Key{SessionID: "s1", Kind: KindSMS}

	_ = b.Put(ctx, key, Challenge{Kind: KindSMS, Secret: "111111", CreatedAt: time.Now()}, time.Minute)
	if err := b.Discard(ctx, key, "222222"); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("challenge:sms:s1") {
		t.Fatal("discard with another secret must keep the key")
	}
	if err := b.Discard(ctx, key, "111111"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("challenge:sms:s1") {
		t.Fatal("discard with the stored secret must delete the key")
	}
	if err := b.Discard(ctx, key, "111111"); err != nil {
		t.Fatalf("discard of a missing key should succeed, got %v", err)
	}
}

func TestRedisBackendUnavailable(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	b := NewRedisBackend(rdb, "")
	mr.Close()

	_, err := b.Take(ctx, Key{SessionID: "s1", Kind: KindImage})
	if err == nil {
		t.Fatal("expected error when redis is down")
	}
	if errors.Is(err, ErrNoChallenge) {
		t.Fatal("connection errors must not look like a missing challenge")
	}
}

func TestServiceOverRedis(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	sender := &recordingSender{}
	svc, err := NewService(NewRedisBackend(rdb, ""), &stubRenderer{texts: []string{"AB3D"}}, sender, DefaultPolicy(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.IssueImageChallenge(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.IssueSmsChallenge(ctx, "s1", "13800000000", "AB3D"); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(svc.policy.SmsTTL + time.Second)
	if _, err := svc.ConsumeSmsChallenge(ctx, "s1", sender.last(t).code); !errors.Is(err, ErrNoChallenge) {
		t.Fatalf("err = %v, want ErrNoChallenge", err)
	}
}
