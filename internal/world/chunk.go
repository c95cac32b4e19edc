package world

import (
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Chunk представляет куб мира 16x16x16 блоков.
// Чанк принадлежит горутине логики и не защищён мьютексом: наружу
// (в пул мешинга) уходят только неизменяемые снимки.
type Chunk struct {
	Coords vec.Vec3 // Координаты чанка в мире

	// Плоский массив блоков, индекс x*256 + y*16 + z
	blocks [vec.ChunkVolume]block.BlockID

	nonEmpty   int    // число не-воздушных блоков, поддерживается инкрементально
	dirty      bool   // меш устарел
	generation uint64 // значение счётчика мутаций мира при последнем изменении/пометке
	unsaved    bool   // есть изменения, не записанные в хранилище
}

// NewChunk создаёт пустой чанк с указанными координатами
func NewChunk(coords vec.Vec3) *Chunk {
	return &Chunk{Coords: coords}
}

// BlockIndex возвращает индекс локальной координаты в плоском массиве
func BlockIndex(local vec.Vec3) int {
	return local.X<<(2*vec.ChunkShift) | local.Y<<vec.ChunkShift | local.Z
}

// LocalFromIndex обратное к BlockIndex
func LocalFromIndex(i int) vec.Vec3 {
	return vec.Vec3{
		X: i >> (2 * vec.ChunkShift),
		Y: (i >> vec.ChunkShift) & vec.ChunkMask,
		Z: i & vec.ChunkMask,
	}
}

// GetBlock возвращает ID блока по локальным координатам
func (c *Chunk) GetBlock(local vec.Vec3) block.BlockID {
	return c.blocks[BlockIndex(local)]
}

// setBlock пишет блок и возвращает предыдущее значение
func (c *Chunk) setBlock(local vec.Vec3, id block.BlockID) block.BlockID {
	i := BlockIndex(local)
	prev := c.blocks[i]
	if prev == id {
		return prev
	}
	if prev == block.AirBlockID {
		c.nonEmpty++
	} else if id == block.AirBlockID {
		c.nonEmpty--
	}
	c.blocks[i] = id
	c.unsaved = true
	return prev
}

// fill заменяет всё содержимое чанка. raw должен иметь длину ChunkVolume.
func (c *Chunk) fill(raw []block.BlockID) {
	copy(c.blocks[:], raw)
	c.nonEmpty = 0
	for _, id := range c.blocks {
		if id != block.AirBlockID {
			c.nonEmpty++
		}
	}
}

// markDirty помечает меш устаревшим на поколении gen
func (c *Chunk) markDirty(gen uint64) {
	c.dirty = true
	c.generation = gen
}

// IsEmpty сообщает, состоит ли чанк целиком из воздуха
func (c *Chunk) IsEmpty() bool { return c.nonEmpty == 0 }

// NonEmptyCount возвращает число не-воздушных блоков
func (c *Chunk) NonEmptyCount() int { return c.nonEmpty }

// Dirty сообщает, нужен ли чанку новый меш
func (c *Chunk) Dirty() bool { return c.dirty }

// Generation возвращает поколение чанка
func (c *Chunk) Generation() uint64 { return c.generation }

// Blocks возвращает копию блоков (для сохранения и сетевой передачи)
func (c *Chunk) Blocks() []block.BlockID {
	out := make([]block.BlockID, vec.ChunkVolume)
	copy(out, c.blocks[:])
	return out
}

// Snapshot возвращает неизменяемую копию чанка
func (c *Chunk) Snapshot() *ChunkSnapshot {
	return &ChunkSnapshot{
		Coords:     c.Coords,
		Generation: c.generation,
		Blocks:     c.blocks,
	}
}
