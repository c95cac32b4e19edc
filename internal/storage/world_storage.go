package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// WorldStorage хранилище чанков на BadgerDB
type WorldStorage struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
	logger  *logging.Logger
}

// NewWorldStorage открывает хранилище в dataPath/world
func NewWorldStorage(dataPath string) (*WorldStorage, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB
	return openWorldStorage(opts, dbPath)
}

// NewInMemoryWorldStorage открывает хранилище в памяти (тесты, временные миры)
func NewInMemoryWorldStorage() (*WorldStorage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openWorldStorage(opts, ":memory:")
}

func openWorldStorage(opts badger.Options, dbPath string) (*WorldStorage, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	ws := &WorldStorage{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		logger:  logging.GetStorageLogger(),
	}
	ws.logger.Info("💾 BadgerDB открыта: %s", dbPath)
	return ws, nil
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}
	ws.isReady = false
	return ws.db.Close()
}

// SaveChunk сохраняет блоки чанка
func (ws *WorldStorage) SaveChunk(coord vec.Vec3, blocks []block.BlockID) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	data, err := EncodeChunk(blocks)
	if err != nil {
		return fmt.Errorf("ошибка сериализации чанка %v: %w", coord, err)
	}

	err = ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(chunkKey("", coord)), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// LoadChunk загружает блоки чанка; ok=false, если чанк не сохранялся
func (ws *WorldStorage) LoadChunk(coord vec.Vec3) ([]block.BlockID, bool, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, false, fmt.Errorf("хранилище не готово")
	}

	var data []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(chunkKey("", coord)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	blocks, err := DecodeChunk(data)
	if err != nil {
		return nil, false, err
	}
	return blocks, true, nil
}

// DeleteChunk удаляет сохранённый чанк
func (ws *WorldStorage) DeleteChunk(coord vec.Vec3) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	return ws.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(chunkKey("", coord)))
	})
}

// ChunkCount возвращает число сохранённых чанков
func (ws *WorldStorage) ChunkCount() (int, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	count := 0
	err := ws.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("chunk:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// RunGC запускает сборку мусора в логе значений BadgerDB
func (ws *WorldStorage) RunGC() {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return
	}
	for {
		if err := ws.db.RunValueLogGC(0.5); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				ws.logger.Debug("BadgerDB GC: %v", err)
			}
			return
		}
	}
}
