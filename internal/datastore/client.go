// Package datastore wraps the shared Redis key/value+structures store that
// backs domain metadata, per-shard ready sets, the dedup bloom filter,
// visited records, and coordinator heartbeats.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/corecrawl/internal/metrics"
)

// ErrEmptyAddress is returned when no Redis address is configured.
var ErrEmptyAddress = errors.New("datastore: redis address is required")

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("datastore: not found")

// Config configures the Redis connection backing the datastore client.
type Config struct {
	Address  string
	Password string
	DB       int
}

// Client wraps *redis.Client with the typed operations the frontier,
// politeness, and orchestrator components need.
type Client struct {
	rdb     *redis.Client
	metrics *metrics.Metrics
}

// SetMetrics attaches the process metrics so every operation records its
// latency and retry count under a per-op label. Safe to leave unset (tests,
// single-shot CLI commands).
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// NewClient builds a Client, pinging the server with a bounded deadline so
// configuration errors surface at startup rather than on first use.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("datastore: ping: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Raw exposes the underlying *redis.Client for integration tests only.
func (c *Client) Raw() *redis.Client {
	return c.rdb
}
