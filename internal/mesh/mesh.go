// Package mesh строит геометрию чанков жадным слиянием видимых граней.
// Построение чистое: вход только снимки чанков, выход только данные меша.
package mesh

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Quad прямоугольник из слитых граней одного типа блока и одной ориентации.
// Origin локальная позиция блока с минимальными координатами по осям U и V,
// Width растяжение по первичной оси U=(ось нормали+1)%3, Height по вторичной V=(ось нормали+2)%3.
type Quad struct {
	Dir    vec.Direction
	Block  block.BlockID
	Origin vec.Vec3
	Width  int
	Height int
}

// Area возвращает число граней блоков, покрытых прямоугольником
func (q Quad) Area() int { return q.Width * q.Height }

// Mesh результат построения для одного чанка
type Mesh struct {
	Coords     vec.Vec3
	Generation uint64 // поколение снимка, по которому построен меш

	Quads []Quad

	// Буферы для рендера, по 4 вершины на прямоугольник
	Positions []mgl32.Vec3 // в локальных координатах чанка
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2 // растянуты по размеру прямоугольника для тайлинга
	Blocks    []block.BlockID
	Indices   []uint32
}

// Empty сообщает, что в меше нет ни одной грани
func (m *Mesh) Empty() bool { return len(m.Quads) == 0 }

// VertexCount число вершин
func (m *Mesh) VertexCount() int { return len(m.Positions) }

// TriangleCount число треугольников
func (m *Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// FaceCount число граней блоков, покрытых мешем
func (m *Mesh) FaceCount() int {
	n := 0
	for _, q := range m.Quads {
		n += q.Area()
	}
	return n
}

// Encode сериализует меш в детерминированный бинарный вид.
// Одинаковые снимки дают побайтно одинаковый результат.
func (m *Mesh) Encode() []byte {
	buf := make([]byte, 0, 16+len(m.Quads)*8+len(m.Positions)*32+len(m.Indices)*4)
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(m.Coords.X)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(m.Coords.Y)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(m.Coords.Z)))

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Quads)))
	for _, q := range m.Quads {
		buf = append(buf, byte(q.Dir))
		buf = binary.BigEndian.AppendUint16(buf, uint16(q.Block))
		buf = append(buf, byte(q.Origin.X), byte(q.Origin.Y), byte(q.Origin.Z), byte(q.Width), byte(q.Height))
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Positions)))
	for i := range m.Positions {
		buf = appendVec3(buf, m.Positions[i])
		buf = appendVec3(buf, m.Normals[i])
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(m.UVs[i].X()))
		buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(m.UVs[i].Y()))
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Indices)))
	for _, idx := range m.Indices {
		buf = binary.BigEndian.AppendUint32(buf, idx)
	}
	return buf
}

// Digest хеш от Encode, используется кешем, чтобы не загружать одинаковые меши повторно
func (m *Mesh) Digest() uint64 {
	return xxhash.Sum64(m.Encode())
}

func appendVec3(buf []byte, v mgl32.Vec3) []byte {
	buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(v.X()))
	buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(v.Y()))
	return binary.BigEndian.AppendUint32(buf, math.Float32bits(v.Z()))
}
