package matcher

import (
	"context"
	"log"
	"time"

	"github.com/meetmates/matcher/internal/metrics"
	"github.com/meetmates/matcher/internal/pool"
)

const cleanupInterval = time.Minute

// StartCleanup runs a background loop that prunes profiles not upserted
// within maxAge and keeps the pool size gauge current.
func StartCleanup(ctx context.Context, p *pool.Pool, maxAge time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[matcher] cleanup loop stopped")
			return
		case <-ticker.C:
			pruneStale(ctx, p, time.Now().Add(-maxAge))
			refreshPoolSize(ctx, p)
		}
	}
}

// pruneStale removes pool members last upserted before cutoff and returns
// how many were removed.
func pruneStale(ctx context.Context, p *pool.Pool, cutoff time.Time) int {
	ids, err := p.Stale(ctx, cutoff)
	if err != nil {
		log.Printf("[matcher] cleanup: failed to list stale profiles: %v", err)
		return 0
	}

	removed := 0
	for _, id := range ids {
		if err := p.Remove(ctx, id); err != nil {
			log.Printf("[matcher] cleanup: failed to remove %s: %v", id, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		metrics.ProfilesPruned.Add(float64(removed))
		log.Printf("[matcher] cleanup: pruned %d stale profiles", removed)
	}
	return removed
}

func refreshPoolSize(ctx context.Context, p *pool.Pool) {
	size, err := p.Size(ctx)
	if err != nil {
		log.Printf("[matcher] cleanup: pool size: %v", err)
		return
	}
	metrics.PoolSize.Set(float64(size))
}
