package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/corecrawl/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, 1, cfg.Shards)
	require.Equal(t, 500, cfg.FetcherTasksPerShard)
	require.Equal(t, 200, cfg.ParserQueueItems)
	require.InDelta(t, 1e-4, cfg.BloomFPR, 1e-9)
	require.Equal(t, 2048, cfg.MaxURLLen)
	require.Equal(t, "127.0.0.1:6379", cfg.RedisAddress)
}
