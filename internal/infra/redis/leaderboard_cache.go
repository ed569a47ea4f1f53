package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"timestable-quiz/internal/domain"
	"timestable-quiz/internal/leaderboard"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// LeaderboardCache wraps a durable leaderboard.Store and caches TopK results
// in Redis, one hash field per k:
//
//	HSET leaderboard:top {k} {json entries}
//
// Inserts go straight to the backing store and drop the whole hash. A fill
// that read the backing store before a concurrent Insert can still write the
// older board after that Insert's delete; it is then served until the TTL
// expires. Readers that need their own write must go to the backing store.
type LeaderboardCache struct {
	client *redis.Client
	next   leaderboard.Store
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

const topKey = "leaderboard:top"

func NewLeaderboardCache(client *redis.Client, next leaderboard.Store, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		next:   next,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LeaderboardCache) Insert(ctx context.Context, entry domain.LeaderboardEntry) error {
	if err := c.next.Insert(ctx, entry); err != nil {
		return err
	}
	// The row is durable at this point; a failed invalidation only means
	// readers may see the previous board until the TTL runs out.
	_ = c.client.Del(ctx, topKey).Err()
	return nil
}

func (c *LeaderboardCache) TopK(ctx context.Context, k int) ([]domain.LeaderboardEntry, error) {
	field := strconv.Itoa(k)
	if entries, ok := c.cached(ctx, field); ok {
		return entries, nil
	}

	result, err, _ := c.sf.Do(field, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if entries, ok := c.cached(ctx, field); ok {
			return entries, nil
		}

		entries, err := c.next.TopK(ctx, k)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(entries)
		if err == nil {
			pipe := c.client.Pipeline()
			pipe.HSet(ctx, topKey, field, data)
			if ttl := c.ttlWithJitter(); ttl > 0 {
				pipe.Expire(ctx, topKey, ttl)
			}
			_, _ = pipe.Exec(ctx)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.LeaderboardEntry), nil
}

func (c *LeaderboardCache) cached(ctx context.Context, field string) ([]domain.LeaderboardEntry, bool) {
	raw, err := c.client.HGet(ctx, topKey, field).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
