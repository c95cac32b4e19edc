package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Размеры фиксированных полезных нагрузок
const (
	MutationPayloadSize = 3*4 + 2 + 8 // координата, блок, номер
	IntentPayloadSize   = 3*4 + 2     // координата, блок
	chunkHeaderSize     = 3 * 4
)

// Intent намерение клиента поставить блок (или воздух) в позицию.
// TempID локальный идентификатор предсказания, сервер его только возвращает в логах.
type Intent struct {
	TempID uint64
	Pos    vec.Vec3
	Block  block.BlockID
}

// ChunkData снимок чанка целиком
type ChunkData struct {
	Coord  vec.Vec3
	Blocks []block.BlockID
}

func appendVec3(buf []byte, v vec.Vec3) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(v.X)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(v.Y)))
	return binary.BigEndian.AppendUint32(buf, uint32(int32(v.Z)))
}

func readVec3(b []byte) vec.Vec3 {
	return vec.Vec3{
		X: int(int32(binary.BigEndian.Uint32(b[0:4]))),
		Y: int(int32(binary.BigEndian.Uint32(b[4:8]))),
		Z: int(int32(binary.BigEndian.Uint32(b[8:12]))),
	}
}

// MutationFrame упаковывает мутацию в кадр
func MutationFrame(m world.Mutation) Frame {
	buf := make([]byte, 0, MutationPayloadSize)
	buf = appendVec3(buf, m.Pos)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Block))
	buf = binary.BigEndian.AppendUint64(buf, m.Sequence)
	return Frame{Kind: KindMutation, Sequence: m.Sequence, Payload: buf}
}

// DecodeMutation извлекает мутацию из кадра
func DecodeMutation(f Frame) (world.Mutation, error) {
	if f.Kind != KindMutation {
		return world.Mutation{}, fmt.Errorf("%w: ожидалась мутация, получено %s", ErrMalformedFrame, f.Kind)
	}
	if len(f.Payload) != MutationPayloadSize {
		return world.Mutation{}, fmt.Errorf("%w: размер мутации %d", ErrMalformedFrame, len(f.Payload))
	}
	m := world.Mutation{
		Pos:      readVec3(f.Payload),
		Block:    block.BlockID(binary.BigEndian.Uint16(f.Payload[12:14])),
		Sequence: binary.BigEndian.Uint64(f.Payload[14:22]),
	}
	if m.Sequence != f.Sequence {
		return world.Mutation{}, fmt.Errorf("%w: номер в кадре %d не совпадает с номером мутации %d",
			ErrMalformedFrame, f.Sequence, m.Sequence)
	}
	return m, nil
}

// IntentFrame упаковывает намерение клиента
func IntentFrame(in Intent) Frame {
	buf := make([]byte, 0, IntentPayloadSize)
	buf = appendVec3(buf, in.Pos)
	buf = binary.BigEndian.AppendUint16(buf, uint16(in.Block))
	return Frame{Kind: KindIntent, Sequence: in.TempID, Payload: buf}
}

// DecodeIntent извлекает намерение из кадра
func DecodeIntent(f Frame) (Intent, error) {
	if f.Kind != KindIntent || len(f.Payload) != IntentPayloadSize {
		return Intent{}, fmt.Errorf("%w: намерение (%s, %d байт)", ErrMalformedFrame, f.Kind, len(f.Payload))
	}
	return Intent{
		TempID: f.Sequence,
		Pos:    readVec3(f.Payload),
		Block:  block.BlockID(binary.BigEndian.Uint16(f.Payload[12:14])),
	}, nil
}

// AckFrame подтверждение всех мутаций до seq включительно
func AckFrame(seq uint64) Frame {
	return Frame{Kind: KindAck, Sequence: seq}
}

// ChunkDataFrame упаковывает снимок чанка. Блоки сжимаются RLE-парами (длина, id).
func ChunkDataFrame(seq uint64, cd ChunkData) Frame {
	buf := make([]byte, 0, chunkHeaderSize+64)
	buf = appendVec3(buf, cd.Coord)
	for i := 0; i < len(cd.Blocks); {
		id := cd.Blocks[i]
		run := 1
		for i+run < len(cd.Blocks) && cd.Blocks[i+run] == id && run < 0xFFFF {
			run++
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(run))
		buf = binary.BigEndian.AppendUint16(buf, uint16(id))
		i += run
	}
	return Frame{Kind: KindChunkData, Sequence: seq, Payload: buf}
}

// DecodeChunkData извлекает снимок чанка
func DecodeChunkData(f Frame) (ChunkData, error) {
	if f.Kind != KindChunkData || len(f.Payload) < chunkHeaderSize || (len(f.Payload)-chunkHeaderSize)%4 != 0 {
		return ChunkData{}, fmt.Errorf("%w: снимок чанка (%s, %d байт)", ErrMalformedFrame, f.Kind, len(f.Payload))
	}
	cd := ChunkData{Coord: readVec3(f.Payload), Blocks: make([]block.BlockID, 0, vec.ChunkVolume)}
	for p := f.Payload[chunkHeaderSize:]; len(p) > 0; p = p[4:] {
		run := int(binary.BigEndian.Uint16(p[0:2]))
		id := block.BlockID(binary.BigEndian.Uint16(p[2:4]))
		if run == 0 || len(cd.Blocks)+run > vec.ChunkVolume {
			return ChunkData{}, fmt.Errorf("%w: неверная длина серии %d", ErrMalformedFrame, run)
		}
		for k := 0; k < run; k++ {
			cd.Blocks = append(cd.Blocks, id)
		}
	}
	if len(cd.Blocks) != vec.ChunkVolume {
		return ChunkData{}, fmt.Errorf("%w: в снимке %d блоков", ErrMalformedFrame, len(cd.Blocks))
	}
	return cd, nil
}
