package storage

import (
	"sync"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// MemoryStore потокобезопасное хранилище чанков в памяти
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[vec.Vec3][]block.BlockID
}

// NewMemoryStore создаёт пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[vec.Vec3][]block.BlockID)}
}

// LoadChunk возвращает копию сохранённых блоков
func (ms *MemoryStore) LoadChunk(coord vec.Vec3) ([]block.BlockID, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	blocks, ok := ms.chunks[coord]
	if !ok {
		return nil, false, nil
	}
	out := make([]block.BlockID, len(blocks))
	copy(out, blocks)
	return out, true, nil
}

// SaveChunk сохраняет копию блоков
func (ms *MemoryStore) SaveChunk(coord vec.Vec3, blocks []block.BlockID) error {
	cp := make([]block.BlockID, len(blocks))
	copy(cp, blocks)

	ms.mu.Lock()
	ms.chunks[coord] = cp
	ms.mu.Unlock()
	return nil
}

// Len число сохранённых чанков
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.chunks)
}
