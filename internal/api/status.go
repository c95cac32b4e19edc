package api

import (
	"time"

	"go.uber.org/atomic"

	"github.com/annel0/voxel-world/internal/eventbus"
	vsync "github.com/annel0/voxel-world/internal/sync"
)

// WorldStatus снимок состояния мира и синхронизации.
// Собирается в горутине тика, читается обработчиками HTTP.
type WorldStatus struct {
	LoadedChunks    int                `json:"loaded_chunks"`
	MutationCounter uint64             `json:"mutation_counter"`
	Sync            vsync.ServerStats  `json:"sync"`
	Clients         []vsync.ClientInfo `json:"clients"`
	Bus             eventbus.Stats     `json:"bus"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// StatusBoard хранит последний опубликованный WorldStatus
type StatusBoard struct {
	v atomic.Value
}

// Publish заменяет текущий снимок
func (b *StatusBoard) Publish(s WorldStatus) {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	b.v.Store(s)
}

// Current возвращает последний снимок; ok=false до первой публикации
func (b *StatusBoard) Current() (WorldStatus, bool) {
	s, ok := b.v.Load().(WorldStatus)
	return s, ok
}
