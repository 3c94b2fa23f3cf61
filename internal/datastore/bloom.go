package datastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// BloomParams configures the one-time RedisBloom filter provisioning for
// URL dedup: target capacity and false-positive rate (§4.3).
type BloomParams struct {
	Capacity   int64
	ErrorRate  float64
}

// ProvisionBloom reserves seen:bloom with the given capacity/error-rate if
// it does not already exist. RedisBloom's BF.RESERVE has no typed wrapper
// in go-redis, so this issues the module command through the generic Do()
// path -- the documented mechanism for calling non-core Redis modules.
func (c *Client) ProvisionBloom(ctx context.Context, params BloomParams) error {
	err := c.rdb.Do(ctx, "BF.RESERVE", bloomKey, params.ErrorRate, params.Capacity).Err()
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("datastore: provision bloom: %w", err)
	}
	return nil
}

func alreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "exists")
}

// BloomContainsMany runs BF.MEXISTS for a batch of normalized URLs, in one
// round trip, per §4.3's "bulk-only" requirement. The returned slice has
// true at index i when urls[i] is "probably seen".
func (c *Client) BloomContainsMany(ctx context.Context, urls []string) ([]bool, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(urls)+2)
	args = append(args, "BF.MEXISTS", bloomKey)
	for _, u := range urls {
		args = append(args, u)
	}

	var res any
	err := c.withRetry(ctx, "bloom_mexists", func() error {
		var doErr error
		res, doErr = c.rdb.Do(ctx, args...).Result()
		return doErr
	})
	if err != nil {
		return nil, fmt.Errorf("datastore: bloom mexists: %w", err)
	}

	return toBoolSlice(res, len(urls)), nil
}

// BloomAddMany runs BF.MADD for a batch of normalized URLs that survived
// the contains-check, in one round trip.
func (c *Client) BloomAddMany(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	args := make([]any, 0, len(urls)+2)
	args = append(args, "BF.MADD", bloomKey)
	for _, u := range urls {
		args = append(args, u)
	}
	return c.withRetry(ctx, "bloom_madd", func() error {
		return c.rdb.Do(ctx, args...).Err()
	})
}

// bloomAddNovelScript is the batched link-commit primitive (§4.1): test
// each candidate, add the novel ones, and return the novel mask, all in one
// round trip, so concurrent enqueues of the same URL race inside the server
// rather than between two client round trips.
var bloomAddNovelScript = redis.NewScript(`
local key = KEYS[1]
local out = {}
for i = 1, #ARGV do
  local seen = redis.call("BF.EXISTS", key, ARGV[i])
  if seen == 1 then
    out[i] = 0
  else
    redis.call("BF.ADD", key, ARGV[i])
    out[i] = 1
  end
end
return out
`)

// BloomAddNovel tests and adds a batch of normalized URLs in a single
// atomic round trip, returning true at index i when urls[i] had never been
// seen (and is now recorded). Retrying after a lost reply can only turn a
// novel URL into "seen", which drops it -- the safe direction for dedup.
func (c *Client) BloomAddNovel(ctx context.Context, urls []string) ([]bool, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}
	var res any
	err := c.withRetry(ctx, "bloom_add_novel", func() error {
		var runErr error
		res, runErr = bloomAddNovelScript.Run(ctx, c.rdb, []string{bloomKey}, args...).Result()
		return runErr
	})
	if err != nil {
		return nil, fmt.Errorf("datastore: bloom add novel: %w", err)
	}
	return toBoolSlice(res, len(urls)), nil
}

// BloomOccupancyRatio reports observed item count over provisioned capacity
// via BF.INFO, so the caller can warn when it crosses 0.5 (§4.3).
func (c *Client) BloomOccupancyRatio(ctx context.Context, capacity int64) (float64, error) {
	if capacity <= 0 {
		return 0, nil
	}
	res, err := c.rdb.Do(ctx, "BF.INFO", bloomKey, "ITEMS").Result()
	if err != nil {
		return 0, fmt.Errorf("datastore: bloom info: %w", err)
	}
	items := extractBFInfoItems(res)
	return float64(items) / float64(capacity), nil
}

func extractBFInfoItems(res any) int64 {
	switch v := res.(type) {
	case []any:
		for i := 0; i+1 < len(v); i++ {
			if toString(v[i]) == "Number of items inserted" {
				return toInt64(v[i+1])
			}
		}
	}
	return 0
}

func toBoolSlice(res any, n int) []bool {
	out := make([]bool, n)
	arr, ok := res.([]any)
	if !ok {
		return out
	}
	for i := 0; i < n && i < len(arr); i++ {
		switch v := arr[i].(type) {
		case int64:
			out[i] = v == 1
		case string:
			out[i] = v == "1"
		}
	}
	return out
}
