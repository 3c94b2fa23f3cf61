package fetcherpool_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/corecrawl/internal/domain"
	"github.com/jonesrussell/corecrawl/internal/fetcherpool"
	"github.com/jonesrussell/corecrawl/internal/logger"
	"github.com/jonesrussell/corecrawl/internal/parser"
)

type stubFrontier struct {
	mu         sync.Mutex
	claims     []*domain.ClaimedDomain
	urls       map[string][]string
	release    []time.Time
	resharding bool
}

func (s *stubFrontier) ClaimNext(_ context.Context, _ int) (*domain.ClaimedDomain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.claims) == 0 {
		return nil, nil
	}
	c := s.claims[0]
	s.claims = s.claims[1:]
	return c, nil
}

func (s *stubFrontier) TakeNextURL(_ context.Context, claimed *domain.ClaimedDomain) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := s.urls[claimed.Domain]
	if claimed.FrontierOffset >= int64(len(urls)) {
		return "", 0, fetcherpoolExhausted{}
	}
	u := urls[claimed.FrontierOffset]
	claimed.FrontierOffset++
	return u, 0, nil
}

func (s *stubFrontier) Release(_ context.Context, _ *domain.ClaimedDomain, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release = append(s.release, next)
	return nil
}

func (s *stubFrontier) ReshardInProgress(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resharding, nil
}

type fetcherpoolExhausted struct{}

func (fetcherpoolExhausted) Error() string { return "frontier: domain exhausted" }

type stubPoliteness struct{}

func (stubPoliteness) IsURLAllowed(_ context.Context, _ string) (bool, error) { return true, nil }
func (stubPoliteness) NextFetchTime(_ context.Context, _ string) time.Time {
	return time.Now().Add(time.Second)
}

type stubVisited struct {
	mu      sync.Mutex
	records []*domain.VisitedRecord
}

func (s *stubVisited) RecordVisited(_ context.Context, _ string, rec *domain.VisitedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func TestPoolFetchesAndPushesHTMLToQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	fc := &stubFrontier{
		claims: []*domain.ClaimedDomain{{Domain: "example.com", FrontierSize: 1}},
		urls:   map[string][]string{"example.com": {srv.URL}},
	}
	visited := &stubVisited{}
	queue := parser.NewQueue(parser.QueueConfig{MaxItems: 4})

	pool := fetcherpool.New(fc, stubPoliteness{}, visited, queue, nil, logger.NewNoOp(), fetcherpool.Config{
		WorkerCount: 1,
		UserAgent:   "testbot",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()

	result, err := queue.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, srv.URL, result.URL)
	require.Equal(t, "example.com", result.Domain)

	cancel()
	<-done

	require.Len(t, fc.release, 1)
}

func TestPoolRecordsVisitedOnNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	fc := &stubFrontier{
		claims: []*domain.ClaimedDomain{{Domain: "example.com", FrontierSize: 1}},
		urls:   map[string][]string{"example.com": {srv.URL}},
	}
	visited := &stubVisited{}
	queue := parser.NewQueue(parser.QueueConfig{MaxItems: 4})

	pool := fetcherpool.New(fc, stubPoliteness{}, visited, queue, nil, logger.NewNoOp(), fetcherpool.Config{
		WorkerCount: 1,
		UserAgent:   "testbot",
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Start(ctx)

	visited.mu.Lock()
	defer visited.mu.Unlock()
	require.Len(t, visited.records, 1)
	require.Equal(t, http.StatusOK, visited.records[0].StatusCode)
}

func TestPoolPausesClaimsWhileResharding(t *testing.T) {
	fc := &stubFrontier{
		claims: []*domain.ClaimedDomain{{Domain: "example.com", FrontierSize: 1}},
		urls:   map[string][]string{"example.com": {"http://unused.invalid"}},
	}
	fc.resharding = true
	visited := &stubVisited{}
	queue := parser.NewQueue(parser.QueueConfig{MaxItems: 4})

	pool := fetcherpool.New(fc, stubPoliteness{}, visited, queue, nil, logger.NewNoOp(), fetcherpool.Config{
		WorkerCount: 1,
		UserAgent:   "testbot",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	pool.Start(ctx)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Len(t, fc.claims, 1, "no claim should be taken while resharding is in progress")
}
