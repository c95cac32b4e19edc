package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/world/block"
)

func TestChunkCodecCompressesUniformChunk(t *testing.T) {
	blocks := testBlocks()
	data, err := EncodeChunk(blocks)
	require.NoError(t, err)
	assert.Less(t, len(data), len(blocks)*2, "почти пустой чанк должен сжиматься")

	decoded, err := DecodeChunk(data)
	require.NoError(t, err)
	assert.Equal(t, blocks, decoded)
}

func TestChunkCodecRejectsGarbage(t *testing.T) {
	_, err := EncodeChunk(make([]block.BlockID, 10))
	assert.True(t, errors.Is(err, ErrCorruptChunk))

	_, err = DecodeChunk(nil)
	assert.True(t, errors.Is(err, ErrCorruptChunk))

	_, err = DecodeChunk([]byte{chunkFormatV1, 1, 2, 3})
	assert.True(t, errors.Is(err, ErrCorruptChunk))
}
