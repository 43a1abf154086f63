// Package ratelimit throttles rank requests per requester with a Redis
// fixed-window counter.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is a limit of Limit requests per Window, counted under Key+id.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// RuleRank allows 30 rank requests per minute per requester.
var RuleRank = Rule{Key: "rl:rank:", Limit: 30, Window: time.Minute}

// Decision is the outcome of counting one request against a rule.
type Decision struct {
	Allowed    bool
	Remaining  int           // requests left in the current window
	RetryAfter time.Duration // until the window resets; zero when allowed
}

// Limiter counts requests in Redis.
type Limiter struct {
	client *redis.Client
	take   *redis.Script
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client, take: redis.NewScript(takeLua)}
}

// Take counts one request by id against rule. A Redis failure lets the
// request through and is returned alongside the allowing Decision.
func (l *Limiter) Take(ctx context.Context, id string, rule Rule) (Decision, error) {
	key := rule.Key + id

	res, err := l.take.Run(ctx, l.client, []string{key}, rule.Window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		log.Printf("[ratelimit] take key=%s: %v (failing open)", key, err)
		return Decision{Allowed: true, Remaining: rule.Limit}, err
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if count <= rule.Limit {
		return Decision{Allowed: true, Remaining: rule.Limit - count}, nil
	}
	return Decision{RetryAfter: ttl}, nil
}

// takeLua increments the window counter and returns {count, pttl}. The
// expiry is set on the first hit and repaired if the key ever lost it.
const takeLua = `
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
    ttl = tonumber(ARGV[1])
end
return {count, ttl}
`
