package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/corecrawl/internal/domain"
)

// claimScript pops the lowest-scoring member of a shard's ready set whose
// score (next_fetch_time) is <= now, then returns that domain's metadata
// hash fields in the same round trip. This is the atomic multi-key update
// §4.1 requires for "claim a domain for shard s".
var claimScript = redis.NewScript(`
local ready_key = KEYS[1]
local claimed_key = KEYS[2]
local now = tonumber(ARGV[1])

local members = redis.call("ZRANGEBYSCORE", ready_key, "-inf", now, "LIMIT", 0, 1)
if #members == 0 then
  return nil
end

local domain = members[1]
redis.call("ZREM", ready_key, domain)
redis.call("HSET", claimed_key, domain, now)

local domain_key = "domain:" .. domain
local fields = redis.call("HMGET", domain_key, "file_path", "frontier_offset", "frontier_size", "next_fetch_time")
return {domain, fields[1], fields[2], fields[3], fields[4]}
`)

// releaseScript re-inserts a domain into its shard's ready set with a new
// score if it still has unread URLs, or drops it (DRAINED) otherwise.
var releaseScript = redis.NewScript(`
local ready_key = KEYS[1]
local domain_key = KEYS[2]
local claimed_key = KEYS[3]
local new_next_fetch_time = tonumber(ARGV[1])
local new_offset = tonumber(ARGV[2])
local still_has_work = tonumber(ARGV[3])
local domain = string.sub(domain_key, 8)

redis.call("HSET", domain_key, "frontier_offset", new_offset, "next_fetch_time", new_next_fetch_time)
redis.call("HDEL", claimed_key, domain)

if still_has_work == 1 then
  redis.call("ZADD", ready_key, new_next_fetch_time, domain)
end

return 1
`)

// recoverStaleScript moves every domain claimed at or before the cutoff back
// into the ready set, so a dead fetcher's in-flight claims become claimable
// again without advancing their next_fetch_time.
var recoverStaleScript = redis.NewScript(`
local ready_key = KEYS[1]
local claimed_key = KEYS[2]
local cutoff = tonumber(ARGV[1])
local now = tonumber(ARGV[2])

local entries = redis.call("HGETALL", claimed_key)
local recovered = 0
for i = 1, #entries, 2 do
  local domain = entries[i]
  local claimed_at = tonumber(entries[i + 1])
  if claimed_at ~= nil and claimed_at <= cutoff then
    redis.call("ZADD", ready_key, now, domain)
    redis.call("HDEL", claimed_key, domain)
    recovered = recovered + 1
  end
end

return recovered
`)

// enqueueReadyScript adds a domain to ready:<shard> with
// score = min(current_score, candidate_score), so a newly eligible domain
// becomes ready immediately without pulling an already-scheduled domain's
// next_fetch_time earlier than politeness intends.
var enqueueReadyScript = redis.NewScript(`
local ready_key = KEYS[1]
local domain = ARGV[1]
local candidate_score = tonumber(ARGV[2])

local current = redis.call("ZSCORE", ready_key, domain)
if current then
  local c = tonumber(current)
  if candidate_score < c then
    redis.call("ZADD", ready_key, candidate_score, domain)
  end
else
  redis.call("ZADD", ready_key, candidate_score, domain)
end

return 1
`)

// ClaimNext atomically pops the next eligible domain from shard's ready set.
// Returns (nil, nil) if no domain is currently eligible -- the caller should
// sleep a short quantum and retry, per §4.5. Claim is never retried beyond
// its single Redis round trip: it is non-idempotent (it mutates the ready
// set), so a transient failure here surfaces immediately rather than being
// retried by withRetry.
func (c *Client) ClaimNext(ctx context.Context, shard int) (*domain.ClaimedDomain, error) {
	defer c.observe("claim", time.Now())
	res, err := claimScript.Run(
		ctx, c.rdb,
		[]string{readyKey(shard), claimedKey(shard)},
		time.Now().Unix(),
	).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("datastore: claim shard %d: %w", shard, err)
	}

	fields, ok := res.([]any)
	if !ok || len(fields) == 0 || fields[0] == nil {
		return nil, nil
	}

	name, _ := fields[0].(string)
	return &domain.ClaimedDomain{
		Domain:         name,
		FilePath:       toString(fields[1]),
		FrontierOffset: toInt64(fields[2]),
		FrontierSize:   toInt64(fields[3]),
		NextFetchTime:  time.Unix(toInt64(fields[4]), 0),
	}, nil
}

// Release persists a domain's new frontier_offset and either re-queues it
// into its shard's ready set (if unread URLs remain) or leaves it DRAINED.
func (c *Client) Release(
	ctx context.Context,
	shard int,
	registeredDomain string,
	newOffset int64,
	newNextFetchTime time.Time,
	stillHasWork bool,
) error {
	defer c.observe("release", time.Now())
	stillHasWorkArg := 0
	if stillHasWork {
		stillHasWorkArg = 1
	}
	err := releaseScript.Run(
		ctx, c.rdb,
		[]string{readyKey(shard), domainKey(registeredDomain), claimedKey(shard)},
		newNextFetchTime.Unix(), newOffset, stillHasWorkArg,
	).Err()
	if err != nil {
		return fmt.Errorf("datastore: release %q shard %d: %w", registeredDomain, shard, err)
	}
	return nil
}

// EnsureReady adds a domain to its shard's ready set, lowering its score to
// `now` if that's earlier than its existing scheduled score, per §4.5 step 7.
func (c *Client) EnsureReady(ctx context.Context, shard int, registeredDomain string, score time.Time) error {
	return c.withRetry(ctx, "ready_ensure", func() error {
		return enqueueReadyScript.Run(ctx, c.rdb, []string{readyKey(shard)}, registeredDomain, score.Unix()).Err()
	})
}

// RemoveFromReady removes a domain from a shard's ready set outright, used
// by the resharder when moving a domain to a different shard. Stale-claim
// recovery goes through RecoverStaleClaims instead.
func (c *Client) RemoveFromReady(ctx context.Context, shard int, registeredDomain string) error {
	return c.withRetry(ctx, "ready_remove", func() error {
		return c.rdb.ZRem(ctx, readyKey(shard), registeredDomain).Err()
	})
}

// RecoverStaleClaims re-queues every domain of shard that has been claimed
// since before cutoff, returning how many were recovered. The orchestrator
// calls this only for shards whose heartbeat has gone stale, so a live
// fetcher's short-lived claims are never stolen (§4.8).
func (c *Client) RecoverStaleClaims(ctx context.Context, shard int, cutoff time.Time) (int64, error) {
	defer c.observe("recover_stale", time.Now())
	n, err := recoverStaleScript.Run(
		ctx, c.rdb,
		[]string{readyKey(shard), claimedKey(shard)},
		cutoff.Unix(), time.Now().Unix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("datastore: recover stale claims shard %d: %w", shard, err)
	}
	return n, nil
}

// ReadySize returns the cardinality of a shard's ready set, for the
// frontier_ready_size{shard} gauge.
func (c *Client) ReadySize(ctx context.Context, shard int) (int64, error) {
	var n int64
	err := c.withRetry(ctx, "ready_size", func() error {
		var zErr error
		n, zErr = c.rdb.ZCard(ctx, readyKey(shard)).Result()
		return zErr
	})
	return n, err
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case string:
		return parseInt64(t)
	case int64:
		return t
	default:
		return 0
	}
}
