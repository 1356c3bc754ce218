package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedis_GrantsThenDenies(t *testing.T) {
	mr, rdb := newTestRedis(t)
	r := NewRedis(rdb, WithPrefix("test:cooldown:"))
	ctx := context.Background()

	first, err := r.TryAcquire(ctx, 7, 5*time.Second)
	if err != nil || !first.Granted {
		t.Fatalf("expected grant, got %+v err=%v", first, err)
	}
	if !mr.Exists("test:cooldown:7") {
		t.Fatalf("expected cooldown key to be set")
	}

	second, err := r.TryAcquire(ctx, 7, 5*time.Second)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if second.Granted {
		t.Fatalf("expected denial inside the window")
	}
	if second.Wait <= 0 || second.Wait > 5*time.Second {
		t.Fatalf("unexpected wait %s", second.Wait)
	}

	mr.FastForward(6 * time.Second)
	third, err := r.TryAcquire(ctx, 7, 5*time.Second)
	if err != nil || !third.Granted {
		t.Fatalf("expected grant after the window, got %+v err=%v", third, err)
	}
}

func TestRedis_ErrorsSurface(t *testing.T) {
	mr, rdb := newTestRedis(t)
	r := NewRedis(rdb)
	mr.Close()

	if _, err := r.TryAcquire(context.Background(), 1, time.Second); err == nil {
		t.Fatalf("expected an error when redis is down")
	}
}
