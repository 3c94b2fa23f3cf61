package datastore

import (
	"context"
	"fmt"
	"time"
)

// Heartbeat records the current Unix time as the last time shard's fetcher
// made progress. The orchestrator uses staleness against this key to detect
// a dead fetcher process and recover its in-flight claims (§4.8).
func (c *Client) Heartbeat(ctx context.Context, shard int) error {
	return c.withRetry(ctx, "heartbeat_set", func() error {
		return c.rdb.Set(ctx, heartbeatKey(shard), time.Now().Unix(), 0).Err()
	})
}

// LastHeartbeat returns the last recorded heartbeat time for shard. Returns
// ErrNotFound if the shard has never reported.
func (c *Client) LastHeartbeat(ctx context.Context, shard int) (time.Time, error) {
	var raw string
	err := c.withRetry(ctx, "heartbeat_get", func() error {
		var getErr error
		raw, getErr = c.rdb.Get(ctx, heartbeatKey(shard)).Result()
		return getErr
	})
	if err != nil {
		if isRedisNil(err) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("datastore: last heartbeat shard %d: %w", shard, err)
	}
	return time.Unix(parseInt64(raw), 0), nil
}

// SetReshardInProgress flips the global reshard_in_progress flag. Fetchers
// poll this between claims and pause while it is set (§4.9).
func (c *Client) SetReshardInProgress(ctx context.Context, inProgress bool) error {
	return c.withRetry(ctx, "reshard_flag_set", func() error {
		return c.rdb.Set(ctx, reshardFlagKey, boolToInt(inProgress), 0).Err()
	})
}

// ReshardInProgress reports the current value of reshard_in_progress.
// Treats an unset key as false (no reshard has ever run).
func (c *Client) ReshardInProgress(ctx context.Context) (bool, error) {
	var raw string
	err := c.withRetry(ctx, "reshard_flag_get", func() error {
		var getErr error
		raw, getErr = c.rdb.Get(ctx, reshardFlagKey).Result()
		return getErr
	})
	if err != nil {
		if isRedisNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("datastore: reshard in progress: %w", err)
	}
	return raw == "1", nil
}

// AddSeed records a seed URL in seeds:set for resume/audit purposes; the
// set is never consulted for dedup.
func (c *Client) AddSeed(ctx context.Context, seedURL string) error {
	return c.withRetry(ctx, "seed_add", func() error {
		return c.rdb.SAdd(ctx, seedsSetKey, seedURL).Err()
	})
}

// Seeds returns every seed URL ever recorded.
func (c *Client) Seeds(ctx context.Context) ([]string, error) {
	var out []string
	err := c.withRetry(ctx, "seed_members", func() error {
		var sErr error
		out, sErr = c.rdb.SMembers(ctx, seedsSetKey).Result()
		return sErr
	})
	if err != nil {
		return nil, fmt.Errorf("datastore: seeds: %w", err)
	}
	return out, nil
}

// SetStopRequested flips the global stop_requested flag, the datastore-backed
// form of stop condition (d) (external signal): a separate `stop` CLI
// invocation sets it, and a running coordinator's stop-condition loop polls
// it the same way it polls reshard_in_progress.
func (c *Client) SetStopRequested(ctx context.Context, requested bool) error {
	return c.withRetry(ctx, "stop_flag_set", func() error {
		return c.rdb.Set(ctx, stopRequestedKey, boolToInt(requested), 0).Err()
	})
}

// StopRequested reports the current value of stop_requested. Treats an
// unset key as false.
func (c *Client) StopRequested(ctx context.Context) (bool, error) {
	var raw string
	err := c.withRetry(ctx, "stop_flag_get", func() error {
		var getErr error
		raw, getErr = c.rdb.Get(ctx, stopRequestedKey).Result()
		return getErr
	})
	if err != nil {
		if isRedisNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("datastore: stop requested: %w", err)
	}
	return raw == "1", nil
}

func isRedisNil(err error) bool {
	return err != nil && err.Error() == "redis: nil"
}
