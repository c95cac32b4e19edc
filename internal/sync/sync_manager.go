package sync

import (
	"time"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

// SyncManager координирует репликацию авторитетного потока в шину событий:
// BatchManager публикует мутации, Mirror собирает из них копию мира для чтения.
type SyncManager struct {
	bm     *BatchManager
	mirror *Mirror
}

// SyncConfig параметры репликации
type SyncConfig struct {
	RegionID       string
	Bus            eventbus.EventBus
	BatchSize      int
	FlushEvery     time.Duration
	UseCompression bool
	Registry       *block.Registry
	// Store общее хранилище чанков для зеркала (может быть nil)
	Store world.ChunkStore
}

// NewSyncManager запускает публикацию и зеркало
func NewSyncManager(cfg SyncConfig) (*SyncManager, error) {
	var compressor Compressor
	if cfg.UseCompression {
		zc, err := NewZstdCompressor(512)
		if err != nil {
			return nil, err
		}
		compressor = zc
		logging.Info("🔄 SyncManager: используется zstd-компрессия")
	} else {
		compressor = NewPassthroughCompressor()
		logging.Info("🔄 SyncManager: компрессия отключена")
	}

	mirror, err := NewMirror(cfg.Bus, cfg.Registry, cfg.Store, compressor)
	if err != nil {
		return nil, err
	}
	bm := NewBatchManager(cfg.Bus, cfg.RegionID, cfg.BatchSize, cfg.FlushEvery, compressor)

	logging.Info("✅ SyncManager инициализирован: region=%s, batch=%d, flush=%v",
		cfg.RegionID, cfg.BatchSize, cfg.FlushEvery)

	return &SyncManager{bm: bm, mirror: mirror}, nil
}

// Sink точка подключения к ServerConfig.Sink
func (sm *SyncManager) Sink() MutationSink { return sm.bm }

// Mirror копия мира для чтения
func (sm *SyncManager) Mirror() *Mirror { return sm.mirror }

// Stop отправляет остаток буфера и отписывает зеркало
func (sm *SyncManager) Stop() {
	sm.bm.Stop()
	sm.mirror.Stop()
	logging.Info("🔄 SyncManager остановлен")
}
