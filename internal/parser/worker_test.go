package parser_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/corecrawl/internal/domain"
	"github.com/jonesrussell/corecrawl/internal/frontier"
	"github.com/jonesrussell/corecrawl/internal/logger"
	"github.com/jonesrussell/corecrawl/internal/parser"
)

type stubEnqueuer struct {
	mu    sync.Mutex
	calls [][]frontier.Link
}

func (s *stubEnqueuer) Enqueue(_ context.Context, links []frontier.Link, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, links)
	return nil
}

type stubVisitedRecorder struct {
	mu      sync.Mutex
	records []*domain.VisitedRecord
}

func (s *stubVisitedRecorder) RecordVisited(_ context.Context, _ string, rec *domain.VisitedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func TestWorkerPoolExtractsLinksAndWritesContent(t *testing.T) {
	queue := parser.NewQueue(parser.QueueConfig{MaxItems: 4})
	enqueuer := &stubEnqueuer{}
	visited := &stubVisitedRecorder{}

	pool := parser.NewWorkerPool(queue, enqueuer, visited, nil, logger.NewNoOp(), parser.WorkerConfig{
		WorkerCount: 1,
		ContentRoot: t.TempDir(),
	})

	body := []byte(`<html><body><article>Some text</article><a href="/next">next</a></body></html>`)
	item := domain.FetchResult{
		URL:        "https://example.com/page",
		FinalURL:   "https://example.com/page",
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       body,
		Domain:     "example.com",
		Depth:      0,
	}
	require.NoError(t, queue.Push(context.Background(), item))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		visited.mu.Lock()
		defer visited.mu.Unlock()
		return len(visited.records) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	require.Len(t, enqueuer.calls, 1)
	require.Equal(t, "https://example.com/next", enqueuer.calls[0][0].URL)

	visited.mu.Lock()
	defer visited.mu.Unlock()
	require.NotEmpty(t, visited.records[0].ContentPath)
	require.Empty(t, visited.records[0].Error)
}

func TestWorkerPoolSkipsRecordForUnhashableURL(t *testing.T) {
	queue := parser.NewQueue(parser.QueueConfig{MaxItems: 4})
	enqueuer := &stubEnqueuer{}
	visited := &stubVisitedRecorder{}

	pool := parser.NewWorkerPool(queue, enqueuer, visited, nil, logger.NewNoOp(), parser.WorkerConfig{
		WorkerCount: 1,
		ContentRoot: t.TempDir(),
	})

	item := domain.FetchResult{
		URL:        "://not-a-valid-url",
		FinalURL:   "://not-a-valid-url",
		StatusCode: http.StatusOK,
		Body:       []byte("<html></html>"),
	}
	require.NoError(t, queue.Push(context.Background(), item))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Start(ctx)

	visited.mu.Lock()
	defer visited.mu.Unlock()
	require.Empty(t, visited.records)
}
