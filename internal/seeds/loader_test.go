package seeds_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/corecrawl/internal/seeds"
)

func TestLoadSkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.txt")
	content := "http://example.com/\n\n# comment\nhttp://example.org/a\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	urls, err := seeds.Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"http://example.com/", "http://example.org/a"}, urls)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := seeds.Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}
