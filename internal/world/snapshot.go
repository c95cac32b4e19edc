package world

import (
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// ChunkSnapshot неизменяемая копия содержимого чанка на момент поколения Generation
type ChunkSnapshot struct {
	Coords     vec.Vec3
	Generation uint64
	Blocks     [vec.ChunkVolume]block.BlockID
}

// Get возвращает блок по локальным координатам
func (s *ChunkSnapshot) Get(local vec.Vec3) block.BlockID {
	return s.Blocks[BlockIndex(local)]
}

// Neighborhood снимок чанка вместе с шестью соседями по граням.
// Отсутствующий сосед (nil) считается целиком пустым.
type Neighborhood struct {
	Center    *ChunkSnapshot
	Neighbors [6]*ChunkSnapshot // индекс = vec.Direction
}

// Generation поколение, на котором снят центральный чанк
func (n Neighborhood) Generation() uint64 {
	if n.Center == nil {
		return 0
	}
	return n.Center.Generation
}

// BlockAt возвращает блок по локальным координатам центра, допуская выход
// на одну клетку за границу по одной оси (в этом случае читается сосед).
func (n Neighborhood) BlockAt(local vec.Vec3) block.BlockID {
	dir, inside := outsideDirection(local)
	if inside {
		return n.Center.Get(local)
	}
	nb := n.Neighbors[dir]
	if nb == nil {
		return block.AirBlockID
	}
	return nb.Get(local.LocalInChunk())
}

// outsideDirection определяет, в какую сторону координата вышла за чанк.
// Выход сразу по нескольким осям мешеру не нужен и трактуется как воздух
// через первую найденную ось.
func outsideDirection(local vec.Vec3) (vec.Direction, bool) {
	for axis := 0; axis < 3; axis++ {
		c := local.Axis(axis)
		if c < 0 {
			return vec.DirectionFrom(axis, false), false
		}
		if c >= vec.ChunkSize {
			return vec.DirectionFrom(axis, true), false
		}
	}
	return 0, true
}
