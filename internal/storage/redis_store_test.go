package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR не задан, пропускаем тест Redis")
	}

	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "voxel-test:"
	store, err := NewRedisStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	coord := vec.Vec3{X: 42, Y: -1, Z: 7}
	require.NoError(t, store.SaveChunk(coord, testBlocks()))

	loaded, ok, err := store.LoadChunk(coord)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testBlocks(), loaded)

	_, ok, err = store.LoadChunk(vec.Vec3{X: 1 << 20})
	require.NoError(t, err)
	assert.False(t, ok)
}
