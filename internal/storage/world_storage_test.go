package storage

import (
	"os"
	"testing"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

func setupTestStorage(t *testing.T) (*WorldStorage, string) {
	// Создаем временную директорию для тестов
	tempDir, err := os.MkdirTemp("", "world-storage-test")
	if err != nil {
		t.Fatalf("Не удалось создать временную директорию: %v", err)
	}

	// Инициализируем хранилище
	storage, err := NewWorldStorage(tempDir)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Не удалось создать хранилище: %v", err)
	}

	return storage, tempDir
}

func cleanupTestStorage(storage *WorldStorage, tempDir string) {
	if storage != nil {
		storage.Close()
	}
	if tempDir != "" {
		os.RemoveAll(tempDir)
	}
}

func testBlocks() []block.BlockID {
	blocks := make([]block.BlockID, vec.ChunkVolume)
	blocks[world.BlockIndex(vec.Vec3{X: 5, Y: 5, Z: 5})] = block.WaterBlockID
	blocks[world.BlockIndex(vec.Vec3{X: 8, Y: 3, Z: 0})] = block.GrassBlockID
	blocks[vec.ChunkVolume-1] = block.SpawnerBlockID
	return blocks
}

func TestSaveAndLoadChunk(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer cleanupTestStorage(storage, tempDir)

	coords := vec.Vec3{X: 10, Y: -2, Z: 20}
	blocks := testBlocks()

	if err := storage.SaveChunk(coords, blocks); err != nil {
		t.Fatalf("Ошибка сохранения чанка: %v", err)
	}

	loaded, ok, err := storage.LoadChunk(coords)
	if err != nil {
		t.Fatalf("Ошибка загрузки чанка: %v", err)
	}
	if !ok {
		t.Fatalf("Сохранённый чанк не найден")
	}
	for i := range blocks {
		if loaded[i] != blocks[i] {
			t.Fatalf("Блок %d: ожидался %d, получен %d", i, blocks[i], loaded[i])
		}
	}
}

func TestLoadMissingChunk(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer cleanupTestStorage(storage, tempDir)

	_, ok, err := storage.LoadChunk(vec.Vec3{X: 1, Y: 1, Z: 1})
	if err != nil {
		t.Fatalf("Ошибка загрузки отсутствующего чанка: %v", err)
	}
	if ok {
		t.Fatalf("Отсутствующий чанк не должен находиться")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer os.RemoveAll(tempDir)

	coords := vec.Vec3{X: -1, Y: 0, Z: 3}
	if err := storage.SaveChunk(coords, testBlocks()); err != nil {
		t.Fatalf("Ошибка сохранения чанка: %v", err)
	}
	storage.Close()

	reopened, err := NewWorldStorage(tempDir)
	if err != nil {
		t.Fatalf("Не удалось переоткрыть хранилище: %v", err)
	}
	defer reopened.Close()

	loaded, ok, err := reopened.LoadChunk(coords)
	if err != nil || !ok {
		t.Fatalf("Чанк потерян после переоткрытия: ok=%v err=%v", ok, err)
	}
	if loaded[vec.ChunkVolume-1] != block.SpawnerBlockID {
		t.Fatalf("Неверный блок после переоткрытия: %d", loaded[vec.ChunkVolume-1])
	}

	count, err := reopened.ChunkCount()
	if err != nil || count != 1 {
		t.Fatalf("Ожидался 1 чанк, получено %d (err=%v)", count, err)
	}
}

func TestDeleteChunk(t *testing.T) {
	storage, err := NewInMemoryWorldStorage()
	if err != nil {
		t.Fatalf("Не удалось создать хранилище в памяти: %v", err)
	}
	defer storage.Close()

	a, b := vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 0, Y: 1, Z: 0}
	for _, c := range []vec.Vec3{a, b} {
		if err := storage.SaveChunk(c, testBlocks()); err != nil {
			t.Fatalf("Ошибка сохранения чанка %v: %v", c, err)
		}
	}
	if err := storage.DeleteChunk(a); err != nil {
		t.Fatalf("Ошибка удаления чанка: %v", err)
	}

	if _, ok, _ := storage.LoadChunk(a); ok {
		t.Fatalf("Удалённый чанк всё ещё загружается")
	}
	if count, _ := storage.ChunkCount(); count != 1 {
		t.Fatalf("Ожидался 1 чанк после удаления, получено %d", count)
	}
}

func TestClosedStorageRejectsWrites(t *testing.T) {
	storage, err := NewInMemoryWorldStorage()
	if err != nil {
		t.Fatalf("Не удалось создать хранилище в памяти: %v", err)
	}
	storage.Close()

	if err := storage.SaveChunk(vec.Vec3{}, testBlocks()); err == nil {
		t.Fatalf("Закрытое хранилище должно отклонять запись")
	}
}

func TestWorldSaveThroughBadger(t *testing.T) {
	storage, err := NewInMemoryWorldStorage()
	if err != nil {
		t.Fatalf("Не удалось создать хранилище в памяти: %v", err)
	}
	defer storage.Close()

	w := world.NewWorld(block.DefaultRegistry(), world.Options{Authoritative: true, Store: storage})
	pos := vec.Vec3{X: 17, Y: 1, Z: -3}
	if err := w.SetBlock(pos, block.StoneBlockID); err != nil {
		t.Fatalf("Ошибка записи блока: %v", err)
	}
	w.UnloadChunk(pos.ToChunkCoords())

	w2 := world.NewWorld(block.DefaultRegistry(), world.Options{Authoritative: true, Store: storage})
	w2.LoadChunk(pos.ToChunkCoords())
	if got := w2.GetBlock(pos); got != block.StoneBlockID {
		t.Fatalf("После выгрузки и загрузки ожидался камень, получен %d", got)
	}
}
