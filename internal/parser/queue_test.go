package parser_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/corecrawl/internal/domain"
	"github.com/jonesrussell/corecrawl/internal/parser"
)

func TestQueuePushPopOrder(t *testing.T) {
	q := parser.NewQueue(parser.QueueConfig{MaxItems: 4})
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, domain.FetchResult{URL: "a"}))
	require.NoError(t, q.Push(ctx, domain.FetchResult{URL: "b"}))
	require.Equal(t, 2, q.Depth())

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", first.URL)

	second, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", second.URL)
}

func TestQueueBlocksWhenFull(t *testing.T) {
	q := parser.NewQueue(parser.QueueConfig{MaxItems: 1})
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, domain.FetchResult{URL: "a"}))

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(ctx, domain.FetchResult{URL: "b"})
	}()

	select {
	case <-pushed:
		t.Fatal("push should have blocked while queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := q.Pop(ctx)
	require.NoError(t, err)

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after a pop freed capacity")
	}
}

func TestQueuePushRespectsContextCancellation(t *testing.T) {
	q := parser.NewQueue(parser.QueueConfig{MaxItems: 1})
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, domain.FetchResult{URL: "a"}))

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()

	err := q.Push(cancelCtx, domain.FetchResult{URL: "b"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueueCloseUnblocksPop(t *testing.T) {
	q := parser.NewQueue(parser.QueueConfig{MaxItems: 1})
	q.Close()

	_, err := q.Pop(context.Background())
	require.ErrorIs(t, err, parser.ErrQueueClosed)
}

func TestQueueBytesBound(t *testing.T) {
	q := parser.NewQueue(parser.QueueConfig{MaxItems: 10, MaxBytes: 5})
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, domain.FetchResult{URL: "a", Body: []byte("12345")}))

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push(ctx, domain.FetchResult{URL: "b", Body: []byte("x")})
	}()

	select {
	case <-pushed:
		t.Fatal("push should have blocked on the byte bound")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := q.Pop(ctx)
	require.NoError(t, err)
	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after byte budget freed")
	}
}
