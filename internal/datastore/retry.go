package datastore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDeadlineExceeded is returned when an idempotent operation could not
// succeed within the retry config's deadline.
var ErrDeadlineExceeded = errors.New("datastore: deadline exceeded")

// retryConfig configures the exponential backoff applied to idempotent
// datastore operations (bloom add/exists, domain metadata upserts).
// Non-idempotent operations (claim) never go through this wrapper.
type retryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Deadline     time.Duration
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Deadline:     5 * time.Second,
	}
}

// isTransient reports whether err represents a transient failure worth
// retrying: connection loss, dataset-loading errors, or a plain network
// timeout. Non-transient errors (bad arguments, wrong type) are not retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"loading",
		"timeout",
		"i/o timeout",
		"eof",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// withRetry runs fn with jittered exponential backoff until it succeeds, a
// non-transient error occurs, or the config deadline elapses, recording
// per-op latency and retry counts when metrics are attached.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := retryTransient(ctx, defaultRetryConfig(), fn, func() {
		if c.metrics != nil {
			c.metrics.DatastoreRetryTotal.WithLabelValues(op).Inc()
		}
	})
	c.observe(op, start)
	return err
}

// observe records one operation's wall-clock latency against its op label.
func (c *Client) observe(op string, start time.Time) {
	if c.metrics != nil {
		c.metrics.DatastoreLatencySeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// retryTransient runs fn until it succeeds, a non-transient error occurs, or
// cfg.Deadline elapses. onRetry is invoked before each backoff sleep.
func retryTransient(ctx context.Context, cfg retryConfig, fn func() error, onRetry func()) error {
	deadline := time.Now().Add(cfg.Deadline)
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %w", ErrDeadlineExceeded, lastErr)
		}
		if onRetry != nil {
			onRetry()
		}

		backoff := time.Duration(float64(delay) * math.Pow(cfg.Multiplier, float64(attempt)))
		if backoff > cfg.MaxDelay {
			backoff = cfg.MaxDelay
		}
		// Jitter: sleep a random duration in [backoff/2, backoff].
		if half := int64(backoff) / 2; half > 0 {
			backoff = time.Duration(half + rand.Int63n(half+1))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
