package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

func TestMutationPayloadLayout(t *testing.T) {
	m := world.Mutation{Pos: vec.Vec3{X: -1, Y: 2, Z: 70000}, Block: block.SandBlockID, Sequence: 0x0102030405060708}
	f := MutationFrame(m)

	require.Len(t, f.Payload, 22)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, f.Payload[0:4], "координаты в big-endian дополнительном коде")
	assert.Equal(t, []byte{0x00, 0x04}, f.Payload[12:14])
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, f.Payload[14:22])

	decoded, err := DecodeFrame(EncodeFrame(f))
	require.NoError(t, err)
	got, err := DecodeMutation(decoded)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeRejectsInconsistentFrames(t *testing.T) {
	f := MutationFrame(world.Mutation{Sequence: 5})
	f.Sequence = 6
	_, err := DecodeMutation(f)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = DecodeMutation(Frame{Kind: KindMutation, Sequence: 1, Payload: []byte{1, 2}})
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = DecodeFrame([]byte{0xFF})
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = DecodeFrame(nil)
	assert.ErrorIs(t, err, ErrMalformedFrame, "кадр без типа")

	_, err = DecodeIntent(AckFrame(3))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	buf := EncodeFrame(AckFrame(42))
	buf = protowire.AppendTag(buf, 15, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte("future"))

	f, err := DecodeFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, KindAck, f.Kind)
	assert.Equal(t, uint64(42), f.Sequence)
}

func TestBatch(t *testing.T) {
	frames := []Frame{
		MutationFrame(world.Mutation{Pos: vec.Vec3{X: 1}, Block: block.StoneBlockID, Sequence: 1}),
		IntentFrame(Intent{TempID: 9, Pos: vec.Vec3{Y: -3}, Block: block.DirtBlockID}),
		AckFrame(1),
	}
	got, err := DecodeBatch(EncodeBatch(frames))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, frames[2], got[2])

	in, err := DecodeIntent(got[1])
	require.NoError(t, err)
	assert.Equal(t, Intent{TempID: 9, Pos: vec.Vec3{Y: -3}, Block: block.DirtBlockID}, in)

	broken := EncodeBatch(frames)
	_, err = DecodeBatch(broken[:len(broken)-1])
	assert.ErrorIs(t, err, ErrMalformedFrame, "обрезанный пакет отклоняется целиком")
}

func TestChunkDataRLE(t *testing.T) {
	blocks := make([]block.BlockID, vec.ChunkVolume)
	for i := 0; i < 256; i++ {
		blocks[i] = block.StoneBlockID
	}
	blocks[4095] = block.GrassBlockID

	f := ChunkDataFrame(17, ChunkData{Coord: vec.Vec3{X: -2, Z: 5}, Blocks: blocks})
	assert.Less(t, len(f.Payload), 64, "однородные серии сжимаются")

	cd, err := DecodeChunkData(f)
	require.NoError(t, err)
	assert.Equal(t, vec.Vec3{X: -2, Z: 5}, cd.Coord)
	assert.Equal(t, blocks, cd.Blocks)

	f.Payload = f.Payload[:len(f.Payload)-4]
	_, err = DecodeChunkData(f)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}
