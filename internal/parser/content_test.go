package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentStoreWriteThenRename(t *testing.T) {
	store := NewContentStore(t.TempDir())

	path, err := store.Write("abcd1234", ".txt", []byte("hello"))
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(path) || filepath.Dir(path) != ".")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp")
	}
}

func TestContentStoreRejectsShortHash(t *testing.T) {
	store := NewContentStore(t.TempDir())
	_, err := store.Write("a", ".txt", []byte("x"))
	require.Error(t, err)
}
