package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/timeless/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestProductCache_RoundTrip(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	client.Del(ctx, "product:9001")

	_, hit, err := adapter.GetProduct(ctx, 9001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Fatal("expected miss on empty cache")
	}

	p := domain.Product{ID: 9001, Name: "Cache Watch", Price: 1999, Category: "dive", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	if err := adapter.SetProduct(ctx, p, time.Minute); err != nil {
		t.Fatalf("SetProduct failed: %v", err)
	}

	got, hit, err := adapter.GetProduct(ctx, 9001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit {
		t.Fatal("expected hit")
	}
	if got.Name != p.Name || got.Price != p.Price || !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("expected %+v, got %+v", p, got)
	}

	ttl := client.TTL(ctx, "product:9001").Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected ttl within a minute, got %v", ttl)
	}

	client.Del(ctx, "product:9001")
}

func TestCheckoutLock_AcquireRelease(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	client.Del(ctx, "checkout:lock:77")

	token, ok, err := adapter.AcquireCheckoutLock(ctx, 77, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}

	_, ok, err = adapter.AcquireCheckoutLock(ctx, 77, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second acquire to fail")
	}

	// A stale token must not release someone else's lock
	if err := adapter.ReleaseCheckoutLock(ctx, 77, "stale-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Exists(ctx, "checkout:lock:77").Val() != 1 {
		t.Error("lock released by wrong token")
	}

	if err := adapter.ReleaseCheckoutLock(ctx, 77, token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Exists(ctx, "checkout:lock:77").Val() != 0 {
		t.Error("lock not released")
	}
}

func TestCheckoutLock_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	client.Del(ctx, "checkout:lock:78")

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := adapter.AcquireCheckoutLock(ctx, 78, time.Minute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	// Only one should succeed
	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}

	client.Del(ctx, "checkout:lock:78")
}
