// Package parser pops fetched pages off a bounded in-process queue,
// extracts text and links, enqueues discovered links back into the
// frontier, and persists content plus a visited record.
package parser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonesrussell/corecrawl/internal/domain"
)

// ErrQueueClosed is returned by Push/Pop once the queue has been closed.
var ErrQueueClosed = errors.New("parser: queue closed")

// pollInterval bounds how long a blocked Push waits before trying again;
// both the byte budget and the item-count bound (a non-blocking channel
// send) are re-checked on each attempt.
const pollInterval = 10 * time.Millisecond

// QueueConfig bounds the in-process parser queue by item count and total
// body bytes, whichever limit is hit first (§4.6/§5 parser_queue_capacity).
type QueueConfig struct {
	MaxItems int
	MaxBytes int64
}

// WithDefaults fills zero-valued fields with the documented defaults.
func (c QueueConfig) WithDefaults() QueueConfig {
	if c.MaxItems <= 0 {
		c.MaxItems = 200
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 50 * 1024 * 1024
	}
	return c
}

// Queue is the bounded channel carrying fetch results from fetcher workers
// to parser workers (§3's "Parse queue" entity). It is the sole backpressure
// mechanism preventing a process from OOMing when parsing is slower than
// fetching: Push blocks cooperatively once either bound is reached.
type Queue struct {
	cfg QueueConfig
	ch  chan domain.FetchResult

	mu        sync.Mutex
	bytesUsed int64
	closed    bool
}

// NewQueue constructs a Queue with the given bounds.
func NewQueue(cfg QueueConfig) *Queue {
	cfg = cfg.WithDefaults()
	return &Queue{
		cfg: cfg,
		ch:  make(chan domain.FetchResult, cfg.MaxItems),
	}
}

// Push adds item to the queue, blocking while either bound is reached.
// Returns ctx.Err() if ctx is cancelled while waiting, or ErrQueueClosed if
// the queue has been closed (shutdown).
func (q *Queue) Push(ctx context.Context, item domain.FetchResult) error {
	for {
		if sent, err := q.tryPush(item); err != nil {
			return err
		} else if sent {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (q *Queue) tryPush(item domain.FetchResult) (sent bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrQueueClosed
	}
	if q.bytesUsed >= q.cfg.MaxBytes {
		return false, nil
	}

	select {
	case q.ch <- item:
		q.bytesUsed += int64(len(item.Body))
		return true, nil
	default:
		return false, nil
	}
}

// Pop removes and returns the oldest item, blocking until one is available,
// ctx is cancelled, or the queue is closed and drained.
func (q *Queue) Pop(ctx context.Context) (domain.FetchResult, error) {
	select {
	case item, ok := <-q.ch:
		if !ok {
			return domain.FetchResult{}, ErrQueueClosed
		}
		q.mu.Lock()
		q.bytesUsed -= int64(len(item.Body))
		q.mu.Unlock()
		return item, nil
	case <-ctx.Done():
		return domain.FetchResult{}, ctx.Err()
	}
}

// Close marks the queue closed and closes the underlying channel. Calls
// after the first are no-ops; Push returns ErrQueueClosed after Close.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Depth returns the current number of queued items, for the
// parse_queue_depth gauge.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Bytes returns the current total queued body bytes, for the
// parse_queue_bytes gauge.
func (q *Queue) Bytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytesUsed
}
