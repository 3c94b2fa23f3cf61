package frontierfile_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/corecrawl/internal/frontierfile"
)

func newStore(t *testing.T) *frontierfile.Store {
	t.Helper()
	// FlushLines: 1 flushes every append, so ReadLineAt sees it at once
	// instead of after the batch threshold or the flush ticker.
	s, err := frontierfile.New(frontierfile.Config{Root: t.TempDir(), FlushLines: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendThenReadLineAt(t *testing.T) {
	s := newStore(t)
	line := frontierfile.EncodeLine("http://example.com/a", 0, 0, time.Unix(1700000000, 0))

	n, err := s.AppendMany("0/ab/example.com.frontier", []string{line})
	require.NoError(t, err)
	assert.Equal(t, int64(len(line)), n)

	got, next, err := s.ReadLineAt("0/ab/example.com.frontier", 0)
	require.NoError(t, err)
	assert.Equal(t, line, got)
	assert.Equal(t, int64(len(line)), next)
}

func TestReadLineAtOffsetEqualToSizeReturnsNoLineYet(t *testing.T) {
	s := newStore(t)
	line := frontierfile.EncodeLine("http://example.com/a", 0, 0, time.Unix(1700000000, 0))
	n, err := s.AppendMany("0/ab/example.com.frontier", []string{line})
	require.NoError(t, err)

	_, _, err = s.ReadLineAt("0/ab/example.com.frontier", n)
	assert.ErrorIs(t, err, frontierfile.ErrNoLineYet)
}

func TestReadLineAtMissingFileReturnsFileMissing(t *testing.T) {
	s := newStore(t)
	_, _, err := s.ReadLineAt("0/ab/never-written.frontier", 0)
	assert.ErrorIs(t, err, frontierfile.ErrFileMissing)
}

func TestAppendManyRejectsOversizedLine(t *testing.T) {
	s := newStore(t)
	huge := make([]byte, frontierfile.MaxLineBytes+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, err := s.AppendMany("0/ab/example.com.frontier", []string{string(huge)})
	assert.ErrorIs(t, err, frontierfile.ErrLineTooLong)
}

func TestMultipleLinesReadInFIFOOrder(t *testing.T) {
	s := newStore(t)
	path := "0/ab/example.com.frontier"
	l1 := frontierfile.EncodeLine("http://example.com/1", 0, 0, time.Unix(1700000000, 0))
	l2 := frontierfile.EncodeLine("http://example.com/2", 0, 0, time.Unix(1700000001, 0))
	_, err := s.AppendMany(path, []string{l1, l2})
	require.NoError(t, err)

	got1, off1, err := s.ReadLineAt(path, 0)
	require.NoError(t, err)
	assert.Equal(t, l1, got1)

	got2, _, err := s.ReadLineAt(path, off1)
	require.NoError(t, err)
	assert.Equal(t, l2, got2)
}

func TestMoveFileRelocatesContent(t *testing.T) {
	s := newStore(t)
	oldPath := "0/ab/example.com.frontier"
	newPath := "1/ab/example.com.frontier"
	line := frontierfile.EncodeLine("http://example.com/a", 0, 0, time.Unix(1700000000, 0))
	_, err := s.AppendMany(oldPath, []string{line})
	require.NoError(t, err)

	require.NoError(t, s.MoveFile(oldPath, newPath))

	got, _, err := s.ReadLineAt(newPath, 0)
	require.NoError(t, err)
	assert.Equal(t, line, got)

	_, _, err = s.ReadLineAt(oldPath, 0)
	assert.ErrorIs(t, err, frontierfile.ErrFileMissing)
}

func TestMoveFileOfNeverWrittenDomainIsNoop(t *testing.T) {
	s := newStore(t)
	assert.NoError(t, s.MoveFile("0/ab/missing.frontier", "1/ab/missing.frontier"))
}

func TestFilePathIsTwoLevelSharded(t *testing.T) {
	p := frontierfile.FilePath(3, "example.com")
	assert.Contains(t, p, "3")
	assert.Contains(t, p, "example.com.frontier")
}
