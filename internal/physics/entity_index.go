package physics

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-world/internal/vec"
)

// OverlapQuery сообщает, занят ли объём сущностями.
// Сервер проверяет им установку твёрдых блоков.
type OverlapQuery interface {
	Overlaps(box AABB) bool
}

// EntityIndex потокобезопасный набор боксов сущностей
type EntityIndex struct {
	mu    sync.RWMutex
	boxes map[uint64]AABB
}

// NewEntityIndex создаёт пустой индекс
func NewEntityIndex() *EntityIndex {
	return &EntityIndex{boxes: make(map[uint64]AABB)}
}

// Set добавляет или перемещает сущность
func (ei *EntityIndex) Set(id uint64, box AABB) {
	ei.mu.Lock()
	ei.boxes[id] = box
	ei.mu.Unlock()
}

// Place ставит сущность стандартного размера (0.6 x 1.8) ногами в feet
func (ei *EntityIndex) Place(id uint64, feet vec.Vec3Float) {
	ei.Set(id, NewAABB(feet, 0.6, 1.8))
}

// Remove удаляет сущность
func (ei *EntityIndex) Remove(id uint64) {
	ei.mu.Lock()
	delete(ei.boxes, id)
	ei.mu.Unlock()
}

// Len число сущностей
func (ei *EntityIndex) Len() int {
	ei.mu.RLock()
	defer ei.mu.RUnlock()
	return len(ei.boxes)
}

// Overlaps проверяет пересечение хотя бы с одной сущностью
func (ei *EntityIndex) Overlaps(box AABB) bool {
	ei.mu.RLock()
	defer ei.mu.RUnlock()
	for _, b := range ei.boxes {
		if b.Intersects(box) {
			return true
		}
	}
	return false
}

// Colliding идентификаторы сущностей, пересекающих бокс, по возрастанию
func (ei *EntityIndex) Colliding(box AABB) []uint64 {
	ei.mu.RLock()
	var ids []uint64
	for id, b := range ei.boxes {
		if b.Intersects(box) {
			ids = append(ids, id)
		}
	}
	ei.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
