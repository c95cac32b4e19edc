package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Формат записи чанка: [версия 1 байт][zstd(4096 x uint16 big-endian)]
const chunkFormatV1 byte = 1

// ErrCorruptChunk запись чанка не разбирается
var ErrCorruptChunk = errors.New("повреждённая запись чанка")

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

// EncodeAll/DecodeAll у zstd безопасны для конкурентного использования
func initCodec() error {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return codecErr
}

// chunkKey ключ чанка во всех хранилищах
func chunkKey(prefix string, coord vec.Vec3) string {
	return fmt.Sprintf("%schunk:%d:%d:%d", prefix, coord.X, coord.Y, coord.Z)
}

// EncodeChunk упаковывает блоки чанка
func EncodeChunk(blocks []block.BlockID) ([]byte, error) {
	if len(blocks) != vec.ChunkVolume {
		return nil, fmt.Errorf("%w: %d блоков", ErrCorruptChunk, len(blocks))
	}
	if err := initCodec(); err != nil {
		return nil, err
	}
	raw := make([]byte, 0, len(blocks)*2)
	for _, id := range blocks {
		raw = binary.BigEndian.AppendUint16(raw, uint16(id))
	}
	out := []byte{chunkFormatV1}
	return encoder.EncodeAll(raw, out), nil
}

// DecodeChunk распаковывает блоки чанка
func DecodeChunk(data []byte) ([]block.BlockID, error) {
	if len(data) == 0 || data[0] != chunkFormatV1 {
		return nil, fmt.Errorf("%w: неизвестная версия формата", ErrCorruptChunk)
	}
	if err := initCodec(); err != nil {
		return nil, err
	}
	raw, err := decoder.DecodeAll(data[1:], make([]byte, 0, vec.ChunkVolume*2))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptChunk, err)
	}
	if len(raw) != vec.ChunkVolume*2 {
		return nil, fmt.Errorf("%w: %d байт после распаковки", ErrCorruptChunk, len(raw))
	}
	blocks := make([]block.BlockID, vec.ChunkVolume)
	for i := range blocks {
		blocks[i] = block.BlockID(binary.BigEndian.Uint16(raw[i*2:]))
	}
	return blocks, nil
}
