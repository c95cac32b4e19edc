package sync

import (
	"errors"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/network"
	"github.com/annel0/voxel-world/internal/protocol"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

func sampleFrames(n int) []protocol.Frame {
	frames := make([]protocol.Frame, 0, n)
	for i := 1; i <= n; i++ {
		frames = append(frames, protocol.MutationFrame(world.Mutation{
			Pos: vec.Vec3{X: i, Y: 1, Z: -i}, Block: block.StoneBlockID, Sequence: uint64(i),
		}))
	}
	return frames
}

func TestCompressors(t *testing.T) {
	zc, err := NewZstdCompressor(64)
	require.NoError(t, err)
	pc := NewPassthroughCompressor()

	frames := sampleFrames(200)

	packed, err := zc.Compress(frames)
	require.NoError(t, err)
	assert.Equal(t, codecZstd, packed[0])

	raw, err := pc.Compress(frames)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(raw), "zstd должен сжимать повторяющиеся кадры")

	got, err := pc.Decompress(packed)
	require.NoError(t, err, "любой компрессор читает zstd-пакет")
	assert.Equal(t, frames, got)

	got, err = zc.Decompress(raw)
	require.NoError(t, err)
	assert.Equal(t, frames, got)

	small, err := zc.Compress(sampleFrames(1))
	require.NoError(t, err)
	assert.Equal(t, codecRaw, small[0], "короткий пакет не сжимается")
}

func TestDecompressErrors(t *testing.T) {
	pc := NewPassthroughCompressor()

	_, err := pc.Decompress(nil)
	assert.True(t, errors.Is(err, protocol.ErrMalformedFrame))

	_, err = pc.Decompress([]byte{9, 1, 2})
	assert.True(t, errors.Is(err, ErrUnknownCodec))

	_, err = pc.Decompress([]byte{codecZstd, 1, 2, 3})
	assert.True(t, errors.Is(err, protocol.ErrMalformedFrame))
}

func TestDecompressRejectsOversizedPacket(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()

	// нули сжимаются в несколько килобайт, но распаковываются за предел
	bomb := enc.EncodeAll(make([]byte, maxDecodedPacket+1), []byte{codecZstd})
	require.Less(t, len(bomb), network.MaxPacketSize, "пакет проходит транспорт")

	_, err = NewPassthroughCompressor().Decompress(bomb)
	assert.ErrorIs(t, err, protocol.ErrMalformedFrame)

	// обычный пакет по-прежнему разбирается
	zc, err := NewZstdCompressor(0)
	require.NoError(t, err)
	frames := sampleFrames(256)
	data, err := zc.Compress(frames)
	require.NoError(t, err)
	got, err := zc.Decompress(data)
	require.NoError(t, err)
	assert.Equal(t, frames, got)
}
