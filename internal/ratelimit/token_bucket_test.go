package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dunamismax/docflow/internal/id"
	"github.com/redis/go-redis/v9"
)

func TestNewRedisTokenBucketValidates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	if _, err := NewRedisTokenBucket(nil, 1, time.Second, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisTokenBucket(client, 0, time.Second, ""); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewRedisTokenBucket(client, 1, 0, ""); err == nil {
		t.Fatal("expected error for zero window")
	}

	bucket, err := NewRedisTokenBucket(client, 2, time.Second, "")
	if err != nil {
		t.Fatalf("new bucket: %v", err)
	}
	if bucket.keyPrefix != "docflow:ratelimit" {
		t.Fatalf("unexpected default prefix %q", bucket.keyPrefix)
	}
	if _, err := bucket.AllowN(context.Background(), "subject", 3); err == nil {
		t.Fatal("expected error when cost exceeds capacity")
	}
}

func TestDecisionFrom(t *testing.T) {
	d, err := decisionFrom([]int64{0, 0, 1500})
	if err != nil {
		t.Fatalf("decision: %v", err)
	}
	if d.Allowed || d.RetryAfter != 1500*time.Millisecond {
		t.Fatalf("unexpected decision %+v", d)
	}

	d, err = decisionFrom([]int64{1, 4, 0})
	if err != nil || !d.Allowed || d.Remaining != 4 {
		t.Fatalf("unexpected decision %+v err=%v", d, err)
	}

	if _, err := decisionFrom([]int64{1}); err == nil {
		t.Fatal("expected error for short response")
	}
}

func TestKeyDefaultsSubject(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	bucket, err := NewRedisTokenBucket(client, 1, time.Second, "p")
	if err != nil {
		t.Fatalf("new bucket: %v", err)
	}
	if got := bucket.key("  "); got != "p:anonymous" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := bucket.key("10.0.0.1:POST /jobs/"); got != "p:10.0.0.1:POST /jobs/" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRedisTokenBucketAgainstRedis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	bucket, err := NewRedisTokenBucket(client, 2, time.Minute, "docflow:test:"+id.New())
	if err != nil {
		t.Fatalf("new bucket: %v", err)
	}
	fixed := time.Now()
	bucket.now = func() time.Time { return fixed }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := bucket.Allow(ctx, "user-1")
		if err != nil || !d.Allowed {
			t.Fatalf("attempt %d: decision=%+v err=%v", i, d, err)
		}
	}
	d, err := bucket.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	if d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("expected rejection with retry-after, got %+v", d)
	}

	other, err := bucket.Allow(ctx, "user-2")
	if err != nil || !other.Allowed {
		t.Fatalf("independent subject must be allowed: %+v err=%v", other, err)
	}

	if err := bucket.Reset(ctx, "user-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	d, err = bucket.AllowN(ctx, "user-1", 2)
	if err != nil || !d.Allowed || d.Remaining != 0 {
		t.Fatalf("reset bucket must start full: %+v err=%v", d, err)
	}
}
