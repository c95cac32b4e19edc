package world

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

type recordingListener struct {
	dirty    map[vec.Vec3]uint64
	unloaded []vec.Vec3
}

func newRecordingListener() *recordingListener {
	return &recordingListener{dirty: make(map[vec.Vec3]uint64)}
}

func (l *recordingListener) ChunkDirty(coord vec.Vec3, gen uint64) { l.dirty[coord] = gen }
func (l *recordingListener) ChunkUnloaded(coord vec.Vec3)          { l.unloaded = append(l.unloaded, coord) }

type memStore struct {
	chunks map[vec.Vec3][]block.BlockID
	fail   error
	saves  int
}

func newMemStore() *memStore { return &memStore{chunks: make(map[vec.Vec3][]block.BlockID)} }

func (s *memStore) LoadChunk(coord vec.Vec3) ([]block.BlockID, bool, error) {
	if s.fail != nil {
		return nil, false, s.fail
	}
	raw, ok := s.chunks[coord]
	return raw, ok, nil
}

func (s *memStore) SaveChunk(coord vec.Vec3, blocks []block.BlockID) error {
	if s.fail != nil {
		return s.fail
	}
	s.saves++
	s.chunks[coord] = blocks
	return nil
}

func newTestWorld(authoritative bool) *World {
	return NewWorld(block.DefaultRegistry(), Options{Authoritative: authoritative})
}

func TestLastWriteWins(t *testing.T) {
	w := newTestWorld(false)
	pos := vec.Vec3{X: -7, Y: 33, Z: 100}

	seq := []block.BlockID{block.StoneBlockID, block.DirtBlockID, block.AirBlockID, block.SandBlockID}
	for _, id := range seq {
		require.NoError(t, w.SetBlock(pos, id))
		assert.Equal(t, id, w.GetBlock(pos), "после записи должен читаться последний блок")
	}
}

func TestReadUntouchedDoesNotAllocate(t *testing.T) {
	w := newTestWorld(false)
	assert.Equal(t, block.AirBlockID, w.GetBlock(vec.Vec3{X: 1000, Y: -1000, Z: 5}))
	assert.Equal(t, 0, w.ChunkCount(), "чтение не должно создавать чанки")

	require.NoError(t, w.SetBlock(vec.Vec3{X: 1, Y: 1, Z: 1}, block.AirBlockID))
	assert.Equal(t, 0, w.ChunkCount(), "запись воздуха в пустоту ничего не создаёт")

	require.NoError(t, w.SetBlock(vec.Vec3{X: 1, Y: 1, Z: 1}, block.StoneBlockID))
	require.NoError(t, w.SetBlock(vec.Vec3{X: 2, Y: 1, Z: 1}, block.StoneBlockID))
	assert.Equal(t, 1, w.ChunkCount(), "чанк создаётся один раз")
}

func TestSetBlockErrorsLeaveStateUntouched(t *testing.T) {
	w := NewWorld(block.DefaultRegistry(), Options{
		Authoritative: true,
		Bounds:        &Bounds{Min: vec.Vec3{X: -16, Y: 0, Z: -16}, Max: vec.Vec3{X: 15, Y: 63, Z: 15}},
	})

	err := w.SetBlock(vec.Vec3{}, block.BlockID(9999))
	assert.ErrorIs(t, err, ErrInvalidBlockType)

	err = w.SetBlock(vec.Vec3{Y: -1}, block.StoneBlockID)
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.Equal(t, uint64(0), w.MutationCounter())
	assert.Empty(t, w.DrainOutbox())
	assert.Equal(t, 0, w.ChunkCount())
}

func TestSameValueWriteIsNoop(t *testing.T) {
	w := newTestWorld(true)
	pos := vec.Vec3{X: 3, Y: 3, Z: 3}
	require.NoError(t, w.SetBlock(pos, block.StoneBlockID))
	w.DrainOutbox()
	counter := w.MutationCounter()

	c, _ := w.Chunk(pos.ToChunkCoords())
	w.ClearDirty(c.Coords, c.Generation())
	require.False(t, c.Dirty())

	require.NoError(t, w.SetBlock(pos, block.StoneBlockID))
	assert.Equal(t, counter, w.MutationCounter())
	assert.False(t, c.Dirty())
	assert.Empty(t, w.DrainOutbox())
}

func TestMutationMarksChunkAndBoundaryNeighbors(t *testing.T) {
	w := newTestWorld(false)
	listener := newRecordingListener()
	w.AddDirtyListener(listener)

	// Создаём чанки (0,0,0), (-1,0,0) и (0,1,0)
	require.NoError(t, w.SetBlock(vec.Vec3{X: 5, Y: 5, Z: 5}, block.StoneBlockID))
	require.NoError(t, w.SetBlock(vec.Vec3{X: -5, Y: 5, Z: 5}, block.StoneBlockID))
	require.NoError(t, w.SetBlock(vec.Vec3{X: 5, Y: 20, Z: 5}, block.StoneBlockID))
	for _, coord := range w.LoadedChunks() {
		w.ClearDirty(coord, ^uint64(0))
	}
	listener.dirty = make(map[vec.Vec3]uint64)

	// Внутренняя позиция: соседи не трогаются
	require.NoError(t, w.SetBlock(vec.Vec3{X: 6, Y: 6, Z: 6}, block.DirtBlockID))
	assert.Len(t, listener.dirty, 1)

	// Угол x=0, y=15: соседи -X и +Y
	listener.dirty = make(map[vec.Vec3]uint64)
	require.NoError(t, w.SetBlock(vec.Vec3{X: 0, Y: 15, Z: 7}, block.DirtBlockID))
	assert.Len(t, listener.dirty, 3)
	assert.Contains(t, listener.dirty, vec.Vec3{X: -1})
	assert.Contains(t, listener.dirty, vec.Vec3{Y: 1})

	counter := w.MutationCounter()
	for coord, gen := range listener.dirty {
		assert.Equal(t, counter, gen, "поколение %v должно совпадать со счётчиком", coord)
	}

	nb, _ := w.Chunk(vec.Vec3{X: -1})
	assert.True(t, nb.Dirty())
	assert.Equal(t, []vec.Vec3{{X: -1}, {}, {Y: 1}}, w.DirtyChunks())
}

func TestClearDirtyRespectsGeneration(t *testing.T) {
	w := newTestWorld(false)
	require.NoError(t, w.SetBlock(vec.Vec3{}, block.StoneBlockID))
	c, _ := w.Chunk(vec.Vec3{})
	old := c.Generation()

	require.NoError(t, w.SetBlock(vec.Vec3{X: 1}, block.StoneBlockID))
	assert.False(t, w.ClearDirty(c.Coords, old), "меш по старому поколению не снимает пометку")
	assert.True(t, c.Dirty())
	assert.True(t, w.ClearDirty(c.Coords, c.Generation()))
	assert.False(t, c.Dirty())
}

func TestAuthoritativeOutboxAndCorrection(t *testing.T) {
	w := newTestWorld(true)
	require.NoError(t, w.SetBlock(vec.Vec3{X: 1}, block.StoneBlockID))
	require.NoError(t, w.SetBlock(vec.Vec3{X: 2}, block.SandBlockID))

	corr, err := w.EmitCorrection(vec.Vec3{X: 1})
	require.NoError(t, err)
	assert.Equal(t, Mutation{Pos: vec.Vec3{X: 1}, Block: block.StoneBlockID, Sequence: 3}, corr)

	out := w.DrainOutbox()
	require.Len(t, out, 3)
	for i, m := range out {
		assert.Equal(t, uint64(i+1), m.Sequence)
	}
	assert.Empty(t, w.DrainOutbox())
	assert.Equal(t, uint64(2), w.MutationCounter(), "коррекция не меняет мир")

	client := newTestWorld(false)
	require.NoError(t, client.SetBlock(vec.Vec3{}, block.StoneBlockID))
	assert.Empty(t, client.DrainOutbox(), "клиентский мир не выдаёт номера")
	_, err = client.EmitCorrection(vec.Vec3{})
	assert.ErrorIs(t, err, ErrNotAuthoritative)
}

func TestSnapshotIncludesNeighbors(t *testing.T) {
	w := newTestWorld(false)
	require.NoError(t, w.SetBlock(vec.Vec3{X: 0, Y: 0, Z: 0}, block.StoneBlockID))
	require.NoError(t, w.SetBlock(vec.Vec3{X: -1, Y: 0, Z: 0}, block.SandBlockID))

	n, err := w.Snapshot(vec.Vec3{})
	require.NoError(t, err)
	assert.NotNil(t, n.Neighbors[vec.NegX])
	assert.Nil(t, n.Neighbors[vec.PosX])
	assert.Equal(t, block.SandBlockID, n.BlockAt(vec.Vec3{X: -1}))
	assert.Equal(t, block.AirBlockID, n.BlockAt(vec.Vec3{X: 16}))
	assert.Equal(t, block.StoneBlockID, n.BlockAt(vec.Vec3{}))

	_, err = w.Snapshot(vec.Vec3{X: 50})
	assert.ErrorIs(t, err, ErrChunkNotLoaded)
}

func TestStoreLoadSaveAndFailure(t *testing.T) {
	store := newMemStore()
	raw := make([]block.BlockID, vec.ChunkVolume)
	raw[BlockIndex(vec.Vec3{X: 2, Y: 3, Z: 4})] = block.GrassBlockID
	store.chunks[vec.Vec3{X: 1}] = raw

	w := NewWorld(block.DefaultRegistry(), Options{Store: store})
	assert.Equal(t, block.AirBlockID, w.GetBlock(vec.Vec3{X: 18, Y: 3, Z: 4}), "чтение не подгружает чанк")

	c := w.LoadChunk(vec.Vec3{X: 1})
	assert.Equal(t, 1, c.NonEmptyCount())
	assert.Equal(t, block.GrassBlockID, w.GetBlock(vec.Vec3{X: 18, Y: 3, Z: 4}))
	assert.True(t, c.Dirty())

	require.NoError(t, w.SetBlock(vec.Vec3{X: 18, Y: 3, Z: 4}, block.StoneBlockID))
	w.UnloadChunk(vec.Vec3{X: 1})
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, block.StoneBlockID, store.chunks[vec.Vec3{X: 1}][BlockIndex(vec.Vec3{X: 2, Y: 3, Z: 4})])

	// Ошибка хранилища: чанк считается отсутствующим, мир продолжает работать
	store.fail = errors.New("диск недоступен")
	c = w.LoadChunk(vec.Vec3{X: 1})
	assert.True(t, c.IsEmpty())
	require.NoError(t, w.SetBlock(vec.Vec3{X: 17}, block.StoneBlockID))
	assert.Equal(t, 0, w.SaveAll(), "ошибка сохранения логируется, а не возвращается")
}

func TestLoadChunkDataMarksNeighbors(t *testing.T) {
	w := newTestWorld(false)
	require.NoError(t, w.SetBlock(vec.Vec3{X: 20}, block.StoneBlockID))
	w.ClearDirty(vec.Vec3{X: 1}, ^uint64(0))

	raw := make([]block.BlockID, vec.ChunkVolume)
	raw[0] = block.StoneBlockID
	require.NoError(t, w.LoadChunkData(vec.Vec3{}, raw))

	nb, _ := w.Chunk(vec.Vec3{X: 1})
	assert.True(t, nb.Dirty(), "появление соседа меняет видимость граней")

	assert.ErrorIs(t, w.LoadChunkData(vec.Vec3{}, raw[:10]), ErrBadChunkData)
	raw[1] = 7777
	assert.ErrorIs(t, w.LoadChunkData(vec.Vec3{}, raw), ErrInvalidBlockType)
}

func TestUpdateAnchors(t *testing.T) {
	w := newTestWorld(false)
	listener := newRecordingListener()
	w.AddDirtyListener(listener)

	upd := w.UpdateAnchors([]Anchor{{Position: vec.Vec3{X: 8, Y: 8, Z: 8}, Radius: 1}})
	assert.Len(t, upd.Loaded, 27)
	assert.Empty(t, upd.Unloaded)
	assert.Equal(t, 27, w.ChunkCount())

	upd = w.UpdateAnchors([]Anchor{{Position: vec.Vec3{X: 24, Y: 8, Z: 8}, Radius: 1}})
	assert.Len(t, upd.Loaded, 9)
	assert.Len(t, upd.Unloaded, 9)
	assert.Len(t, listener.unloaded, 9)
	assert.Equal(t, 27, w.ChunkCount())

	upd = w.UpdateAnchors(nil)
	assert.Empty(t, upd.Unloaded, "без якорей ничего не выгружаем")
}

func TestAnchorKeepRadiusHysteresis(t *testing.T) {
	w := newTestWorld(false)
	at := func(chunkX int) []Anchor {
		return []Anchor{{Position: vec.Vec3{X: chunkX*16 + 8, Y: 8, Z: 8}, Radius: 1, MaxRadius: 2}}
	}

	upd := w.UpdateAnchors(at(0))
	assert.Len(t, upd.Loaded, 27)

	// шаг через границу чанка: догружается слой X=2, слой X=-1 ещё удерживается
	upd = w.UpdateAnchors(at(1))
	assert.Len(t, upd.Loaded, 9)
	assert.Empty(t, upd.Unloaded)
	assert.Equal(t, 36, w.ChunkCount())

	// шаг назад ничего не грузит и не выгружает
	upd = w.UpdateAnchors(at(0))
	assert.Empty(t, upd.Loaded)
	assert.Empty(t, upd.Unloaded)

	upd = w.UpdateAnchors(at(3))
	assert.Len(t, upd.Loaded, 18, "слои X=3 и X=4")
	assert.Len(t, upd.Unloaded, 18, "слои X=-1 и X=0 дальше радиуса удержания")
	for _, coord := range upd.Unloaded {
		assert.Less(t, coord.X, 1)
	}

	// радиус удержания меньше радиуса загрузки трактуется как радиус загрузки
	a := Anchor{Radius: 2, MaxRadius: 0}
	assert.True(t, a.Keeps(vec.Vec3{X: 2}))
	assert.False(t, a.Keeps(vec.Vec3{X: 3}))
}

func TestUpdateAnchorsKeepsEditsWithoutStore(t *testing.T) {
	w := newTestWorld(true)
	far := vec.Vec3{X: 100}
	require.NoError(t, w.SetBlock(far, block.StoneBlockID))

	upd := w.UpdateAnchors([]Anchor{{Radius: 1}})
	assert.Equal(t, []vec.Vec3{far.ToChunkCoords()}, upd.Pinned)
	assert.Empty(t, upd.Unloaded)
	assert.Equal(t, block.StoneBlockID, w.GetBlock(far), "правка не теряется при обновлении якорей")

	// опустевший чанк снова можно выгрузить
	require.NoError(t, w.SetBlock(far, block.AirBlockID))
	upd = w.UpdateAnchors([]Anchor{{Radius: 1}})
	assert.Equal(t, []vec.Vec3{far.ToChunkCoords()}, upd.Unloaded)
}

func TestUpdateAnchorsKeepsChunkWhenSaveFails(t *testing.T) {
	store := newMemStore()
	w := NewWorld(block.DefaultRegistry(), Options{Authoritative: true, Store: store})
	far := vec.Vec3{X: 100}
	require.NoError(t, w.SetBlock(far, block.StoneBlockID))

	store.fail = errors.New("диск недоступен")
	upd := w.UpdateAnchors([]Anchor{{Radius: 0}})
	assert.Contains(t, upd.Pinned, far.ToChunkCoords())
	assert.Equal(t, block.StoneBlockID, w.GetBlock(far))

	store.fail = nil
	upd = w.UpdateAnchors([]Anchor{{Radius: 0}})
	assert.Contains(t, upd.Unloaded, far.ToChunkCoords())
	assert.Equal(t, block.StoneBlockID, store.chunks[far.ToChunkCoords()][BlockIndex(far.LocalInChunk())])
}

func TestEnsureLoadedAndDrainLoaded(t *testing.T) {
	store := newMemStore()
	raw := make([]block.BlockID, vec.ChunkVolume)
	raw[0] = block.StoneBlockID
	store.chunks[vec.Vec3{X: 6}] = raw

	w := NewWorld(block.DefaultRegistry(), Options{Authoritative: true, Store: store})
	assert.False(t, w.EnsureLoaded(vec.Vec3{X: 200}), "пустой чанк не создаётся")
	assert.Equal(t, 0, w.ChunkCount())

	assert.True(t, w.EnsureLoaded(vec.Vec3{X: 100}))
	assert.Equal(t, block.StoneBlockID, w.GetBlock(vec.Vec3{X: 96}))

	w.LoadChunk(vec.Vec3{X: -1})
	require.NoError(t, w.SetBlock(vec.Vec3{Y: 40}, block.StoneBlockID))
	assert.Equal(t, []vec.Vec3{{X: -1}, {X: 6}}, w.DrainLoaded(),
		"новый чанк от записи восстанавливается из мутаций и не рассылается")
	assert.Empty(t, w.DrainLoaded())

	// неавторитетный мир ничего не копит
	c := NewWorld(block.DefaultRegistry(), Options{Store: store})
	c.LoadChunk(vec.Vec3{X: 6})
	assert.Empty(t, c.DrainLoaded())
}
