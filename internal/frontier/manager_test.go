package frontier_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/corecrawl/internal/domain"
	"github.com/jonesrussell/corecrawl/internal/frontier"
	"github.com/jonesrussell/corecrawl/internal/frontierfile"
)

// newFileBackedManager builds a Manager whose file store flushes every line
// immediately, so TakeNextURL sees appends without waiting for the ticker.
// The datastore and politeness collaborators are nil: TakeNextURL and Shard
// never touch them.
func newFileBackedManager(t *testing.T, shards int) (*frontier.Manager, *frontierfile.Store) {
	t.Helper()
	files, err := frontierfile.New(frontierfile.Config{
		Root:       t.TempDir(),
		FlushLines: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = files.Close() })

	mgr := frontier.NewManager(nil, files, nil, frontier.Config{Shards: shards}, nil, nil)
	return mgr, files
}

func appendLines(t *testing.T, files *frontierfile.Store, relPath string, urls []string) int64 {
	t.Helper()
	lines := make([]string, len(urls))
	for i, u := range urls {
		lines[i] = frontierfile.EncodeLine(u, i, 0, time.Unix(1700000000, 0))
	}
	written, err := files.AppendMany(relPath, lines)
	require.NoError(t, err)
	return written
}

func TestTakeNextURLDispensesInFileOrder(t *testing.T) {
	mgr, files := newFileBackedManager(t, 1)
	relPath := frontierfile.FilePath(0, "example.com")
	size := appendLines(t, files, relPath, []string{
		"https://example.com/first",
		"https://example.com/second",
		"https://example.com/third",
	})

	claimed := &domain.ClaimedDomain{
		Domain:       "example.com",
		FilePath:     relPath,
		FrontierSize: size,
	}

	for i, want := range []string{
		"https://example.com/first",
		"https://example.com/second",
		"https://example.com/third",
	} {
		rawURL, depth, err := mgr.TakeNextURL(context.Background(), claimed)
		require.NoError(t, err)
		assert.Equal(t, want, rawURL)
		assert.Equal(t, i, depth)
	}

	assert.Equal(t, size, claimed.FrontierOffset)
	_, _, err := mgr.TakeNextURL(context.Background(), claimed)
	assert.ErrorIs(t, err, frontier.ErrExhausted)
}

func TestTakeNextURLExhaustedWhenOffsetAtSize(t *testing.T) {
	mgr, _ := newFileBackedManager(t, 1)
	claimed := &domain.ClaimedDomain{
		Domain:         "drained.example",
		FilePath:       frontierfile.FilePath(0, "drained.example"),
		FrontierOffset: 240,
		FrontierSize:   240,
	}
	_, _, err := mgr.TakeNextURL(context.Background(), claimed)
	assert.ErrorIs(t, err, frontier.ErrExhausted)
}

func TestTakeNextURLTreatsPartialTrailingLineAsExhausted(t *testing.T) {
	root := t.TempDir()
	files, err := frontierfile.New(frontierfile.Config{Root: root, FlushLines: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = files.Close() })
	mgr := frontier.NewManager(nil, files, nil, frontier.Config{Shards: 1}, nil, nil)

	relPath := frontierfile.FilePath(0, "partial.example")
	size := appendLines(t, files, relPath, []string{"https://partial.example/done"})

	// Simulate a torn append: bytes on disk past frontier_offset that do not
	// yet end in a newline.
	full := filepath.Join(root, relPath)
	f, err := os.OpenFile(full, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	partial := "https%3A%2F%2Fpartial.example%2Fhalf|0|0|17000"
	_, err = f.WriteString(partial)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	claimed := &domain.ClaimedDomain{
		Domain:       "partial.example",
		FilePath:     relPath,
		FrontierSize: size + int64(len(partial)),
	}

	rawURL, _, err := mgr.TakeNextURL(context.Background(), claimed)
	require.NoError(t, err)
	assert.Equal(t, "https://partial.example/done", rawURL)

	// The torn tail reads as "no URL yet", not as a truncated entry.
	_, _, err = mgr.TakeNextURL(context.Background(), claimed)
	assert.ErrorIs(t, err, frontier.ErrExhausted)
	assert.Equal(t, size, claimed.FrontierOffset, "offset must not advance past a partial line")
}

func TestTakeNextURLSkipsMalformedLine(t *testing.T) {
	mgr, files := newFileBackedManager(t, 1)
	relPath := frontierfile.FilePath(0, "mangled.example")

	bad := "this is not a frontier line\n"
	written, err := files.AppendMany(relPath, []string{bad})
	require.NoError(t, err)
	size := written + appendLines(t, files, relPath, []string{"https://mangled.example/ok"})

	claimed := &domain.ClaimedDomain{
		Domain:       "mangled.example",
		FilePath:     relPath,
		FrontierSize: size,
	}

	// The malformed line is skipped: the offset advances past it and the
	// caller sees Exhausted for this take.
	_, _, err = mgr.TakeNextURL(context.Background(), claimed)
	assert.ErrorIs(t, err, frontier.ErrExhausted)
	assert.Equal(t, int64(len(bad)), claimed.FrontierOffset)

	rawURL, _, err := mgr.TakeNextURL(context.Background(), claimed)
	require.NoError(t, err)
	assert.Equal(t, "https://mangled.example/ok", rawURL)
}

func TestShardIsStableAndInRange(t *testing.T) {
	mgr, _ := newFileBackedManager(t, 4)

	domains := []string{"example.com", "example.org", "a.co", "b.co", "c.co"}
	for _, d := range domains {
		s := mgr.Shard(d)
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, 4)
		assert.Equal(t, s, mgr.Shard(d), "shard assignment must be deterministic")
	}
}
