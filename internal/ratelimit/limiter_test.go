package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func setupTestLimiter(t *testing.T) (*Limiter, *redis.Client, context.Context) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}

	rdb.FlushDB(ctx)
	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})

	return NewLimiter(rdb), rdb, ctx
}

func TestTake_BlocksAfterLimit(t *testing.T) {
	l, _, ctx := setupTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

	for i := 1; i <= rule.Limit; i++ {
		d, err := l.Take(ctx, "alice", rule)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: %+v err=%v, want allowed", i, d, err)
		}
		if d.Remaining != rule.Limit-i {
			t.Errorf("request %d: Remaining = %d, want %d", i, d.Remaining, rule.Limit-i)
		}
		if d.RetryAfter != 0 {
			t.Errorf("request %d: RetryAfter = %v on an allowed request", i, d.RetryAfter)
		}
	}

	d, err := l.Take(ctx, "alice", rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("request over the limit should be rejected")
	}
	if d.Remaining != 0 || d.RetryAfter <= 0 || d.RetryAfter > rule.Window {
		t.Errorf("rejected decision = %+v, want no requests left and a retry within %v", d, rule.Window)
	}

	// Other identifiers have their own window.
	if d, _ := l.Take(ctx, "bob", rule); !d.Allowed {
		t.Error("bob should not be limited by alice's requests")
	}
}

func TestTake_SetsWindowExpiry(t *testing.T) {
	l, rdb, ctx := setupTestLimiter(t)

	if _, err := l.Take(ctx, "carol", RuleRank); err != nil {
		t.Fatalf("Take: %v", err)
	}
	ttl, err := rdb.TTL(ctx, RuleRank.Key+"carol").Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > RuleRank.Window {
		t.Errorf("TTL = %v, want within (0, %v]", ttl, RuleRank.Window)
	}
}

func TestTake_RepairsMissingExpiry(t *testing.T) {
	l, rdb, ctx := setupTestLimiter(t)
	key := RuleRank.Key + "dave"

	// A counter left behind without a TTL would block dave forever.
	if err := rdb.Set(ctx, key, RuleRank.Limit+5, 0).Err(); err != nil {
		t.Fatalf("Set: %v", err)
	}

	d, err := l.Take(ctx, "dave", RuleRank)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if d.Allowed {
		t.Error("counter over the limit should still reject")
	}
	if ttl, _ := rdb.TTL(ctx, key).Result(); ttl <= 0 {
		t.Errorf("TTL = %v, want the window expiry restored", ttl)
	}
}

func TestTake_FailsOpen(t *testing.T) {
	// Nothing listens on this port.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	d, err := NewLimiter(rdb).Take(context.Background(), "erin", RuleRank)
	if err == nil {
		t.Fatal("expected a connection error")
	}
	if !d.Allowed || d.Remaining != RuleRank.Limit {
		t.Errorf("decision = %+v, want an allowing decision when Redis is unreachable", d)
	}
}
