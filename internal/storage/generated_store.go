package storage

import (
	"github.com/annel0/voxel-world/internal/util"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

// TerrainConfig параметры генерации рельефа
type TerrainConfig struct {
	Seed      int64
	BaseLevel int     // средняя высота поверхности в блоках
	Amplitude float64 // размах высот
	Scale     float64 // масштаб шума (блоков на период)
	SeaLevel  int
}

// DefaultTerrainConfig возвращает параметры по умолчанию
func DefaultTerrainConfig() TerrainConfig {
	return TerrainConfig{Seed: 1, BaseLevel: 8, Amplitude: 12, Scale: 48, SeaLevel: 6}
}

// GeneratedStore дополняет хранилище генератором: чанки, которых нет в
// базе, строятся из шума Перлина. Генерация детерминирована по сиду.
type GeneratedStore struct {
	base  world.ChunkStore
	noise *util.Noise
	cfg   TerrainConfig
}

// NewGeneratedStore оборачивает base (может быть nil)
func NewGeneratedStore(base world.ChunkStore, cfg TerrainConfig) *GeneratedStore {
	if cfg.Scale <= 0 {
		cfg.Scale = 48
	}
	return &GeneratedStore{base: base, noise: util.NewNoise(cfg.Seed), cfg: cfg}
}

// LoadChunk читает чанк из базы, а при отсутствии генерирует его
func (gs *GeneratedStore) LoadChunk(coord vec.Vec3) ([]block.BlockID, bool, error) {
	if gs.base != nil {
		blocks, ok, err := gs.base.LoadChunk(coord)
		if err != nil || ok {
			return blocks, ok, err
		}
	}
	return gs.Generate(coord), true, nil
}

// SaveChunk пишет в базовое хранилище
func (gs *GeneratedStore) SaveChunk(coord vec.Vec3, blocks []block.BlockID) error {
	if gs.base == nil {
		return nil
	}
	return gs.base.SaveChunk(coord, blocks)
}

// Height высота поверхности в колонке (x, z)
func (gs *GeneratedStore) Height(x, z int) int {
	n := gs.noise.Noise2D(float64(x)/gs.cfg.Scale, float64(z)/gs.cfg.Scale)
	return gs.cfg.BaseLevel + int((n-0.5)*2*gs.cfg.Amplitude)
}

// Generate строит содержимое чанка
func (gs *GeneratedStore) Generate(coord vec.Vec3) []block.BlockID {
	blocks := make([]block.BlockID, vec.ChunkVolume)
	origin := coord.ChunkOrigin()

	for x := 0; x < vec.ChunkSize; x++ {
		for z := 0; z < vec.ChunkSize; z++ {
			h := gs.Height(origin.X+x, origin.Z+z)
			for y := 0; y < vec.ChunkSize; y++ {
				wy := origin.Y + y
				var id block.BlockID
				switch {
				case wy < h-3:
					id = block.StoneBlockID
				case wy < h:
					id = block.DirtBlockID
				case wy == h && h <= gs.cfg.SeaLevel:
					id = block.SandBlockID
				case wy == h:
					id = block.GrassBlockID
				case wy <= gs.cfg.SeaLevel:
					id = block.WaterBlockID
				default:
					id = block.AirBlockID
				}
				blocks[world.BlockIndex(vec.Vec3{X: x, Y: y, Z: z})] = id
			}
		}
	}
	return blocks
}
