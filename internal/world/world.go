package world

import (
	"fmt"
	"sort"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Mutation единица изменения мира, рассылаемая сервером клиентам.
// Sequence выдаётся только авторитетным миром и строго возрастает.
type Mutation struct {
	Pos      vec.Vec3
	Block    block.BlockID
	Sequence uint64
}

// ChunkStore внешнее хранилище чанков.
// LoadChunk возвращает ok=false, если чанка нет. Ошибки хранилища мир
// логирует и трактует как отсутствие чанка.
type ChunkStore interface {
	LoadChunk(coord vec.Vec3) ([]block.BlockID, bool, error)
	SaveChunk(coord vec.Vec3, blocks []block.BlockID) error
}

// DirtyListener получает уведомления об устаревании мешей чанков
type DirtyListener interface {
	ChunkDirty(coord vec.Vec3, generation uint64)
	ChunkUnloaded(coord vec.Vec3)
}

// BlockReader минимальный интерфейс чтения блоков (для физики и валидации)
type BlockReader interface {
	GetBlock(pos vec.Vec3) block.BlockID
}

// Bounds включительные границы мира в координатах блоков
type Bounds struct {
	Min vec.Vec3
	Max vec.Vec3
}

// Contains проверяет, лежит ли позиция в границах
func (b Bounds) Contains(pos vec.Vec3) bool {
	return pos.X >= b.Min.X && pos.X <= b.Max.X &&
		pos.Y >= b.Min.Y && pos.Y <= b.Max.Y &&
		pos.Z >= b.Min.Z && pos.Z <= b.Max.Z
}

// Options параметры создания мира
type Options struct {
	// Authoritative мир выдаёт номера последовательности и копит исходящие мутации
	Authoritative bool
	// Bounds если задан, запись за его пределами возвращает ErrOutOfRange
	Bounds *Bounds
	// Store хранилище чанков (может быть nil)
	Store ChunkStore
}

// World разреженное хранилище чанков.
// Все методы вызываются из одной горутины логики.
type World struct {
	registry *block.Registry
	chunks   map[vec.Vec3]*Chunk

	mutationCounter uint64
	lastSequence    uint64
	authoritative   bool
	bounds          *Bounds
	outbox          []Mutation
	// loaded чанки, поднятые в память авторитетным миром и ещё не разосланные
	loaded map[vec.Vec3]struct{}

	store     ChunkStore
	listeners []DirtyListener
	logger    *logging.Logger
}

// NewWorld создаёт пустой мир
func NewWorld(registry *block.Registry, opts Options) *World {
	return &World{
		registry:      registry,
		chunks:        make(map[vec.Vec3]*Chunk),
		authoritative: opts.Authoritative,
		bounds:        opts.Bounds,
		loaded:        make(map[vec.Vec3]struct{}),
		store:         opts.Store,
		logger:        logging.GetWorldLogger(),
	}
}

// Registry возвращает реестр блоков мира
func (w *World) Registry() *block.Registry { return w.registry }

// Authoritative сообщает, является ли мир авторитетным
func (w *World) Authoritative() bool { return w.authoritative }

// AddDirtyListener подписывает слушателя на пометки чанков
func (w *World) AddDirtyListener(l DirtyListener) {
	w.listeners = append(w.listeners, l)
}

// InBounds проверяет позицию на соответствие границам мира
func (w *World) InBounds(pos vec.Vec3) bool {
	return w.bounds == nil || w.bounds.Contains(pos)
}

// GetBlock возвращает блок в позиции. Незатронутые чанки читаются как воздух без аллокаций.
func (w *World) GetBlock(pos vec.Vec3) block.BlockID {
	c, ok := w.chunks[pos.ToChunkCoords()]
	if !ok {
		return block.AirBlockID
	}
	return c.GetBlock(pos.LocalInChunk())
}

// SetBlock единственная точка изменения мира.
// Запись того же значения ничего не меняет.
func (w *World) SetBlock(pos vec.Vec3, id block.BlockID) error {
	if !w.registry.IsValidBlockID(id) {
		return fmt.Errorf("%w: %d", ErrInvalidBlockType, id)
	}
	if !w.InBounds(pos) {
		return fmt.Errorf("%w: %v", ErrOutOfRange, pos)
	}

	coord := pos.ToChunkCoords()
	local := pos.LocalInChunk()

	c, ok := w.chunks[coord]
	if !ok {
		c = w.loadFromStore(coord)
		if c == nil {
			if id == block.AirBlockID {
				return nil
			}
			c = w.newChunk(coord)
		}
	}

	if c.GetBlock(local) == id {
		return nil
	}
	c.setBlock(local, id)

	w.mutationCounter++
	w.markDirty(c)
	w.markBoundaryNeighbors(coord, local)

	if w.authoritative {
		w.lastSequence++
		w.outbox = append(w.outbox, Mutation{Pos: pos, Block: id, Sequence: w.lastSequence})
	}
	return nil
}

// EmitCorrection ставит в исходящую очередь текущее значение позиции под новым
// номером последовательности, не меняя состояния блоков. Используется сервером
// для ответа на отклонённые намерения клиентов.
func (w *World) EmitCorrection(pos vec.Vec3) (Mutation, error) {
	if !w.authoritative {
		return Mutation{}, ErrNotAuthoritative
	}
	if w.InBounds(pos) {
		w.EnsureLoaded(pos)
	}
	w.lastSequence++
	m := Mutation{Pos: pos, Block: w.GetBlock(pos), Sequence: w.lastSequence}
	w.outbox = append(w.outbox, m)
	return m, nil
}

// DrainOutbox забирает накопленные исходящие мутации в порядке номеров
func (w *World) DrainOutbox() []Mutation {
	out := w.outbox
	w.outbox = nil
	return out
}

// LastSequence возвращает последний выданный номер последовательности
func (w *World) LastSequence() uint64 { return w.lastSequence }

// MutationCounter возвращает общий счётчик мутаций мира
func (w *World) MutationCounter() uint64 { return w.mutationCounter }

// ChunkCount возвращает число загруженных чанков
func (w *World) ChunkCount() int { return len(w.chunks) }

// Chunk возвращает чанк по координатам
func (w *World) Chunk(coord vec.Vec3) (*Chunk, bool) {
	c, ok := w.chunks[coord]
	return c, ok
}

// ChunkGeneration возвращает поколение чанка
func (w *World) ChunkGeneration(coord vec.Vec3) (uint64, bool) {
	c, ok := w.chunks[coord]
	if !ok {
		return 0, false
	}
	return c.generation, true
}

// LoadedChunks возвращает координаты всех загруженных чанков в детерминированном порядке
func (w *World) LoadedChunks() []vec.Vec3 {
	out := make([]vec.Vec3, 0, len(w.chunks))
	for coord := range w.chunks {
		out = append(out, coord)
	}
	sortCoords(out)
	return out
}

// DirtyChunks возвращает координаты чанков, которым нужен новый меш
func (w *World) DirtyChunks() []vec.Vec3 {
	var out []vec.Vec3
	for coord, c := range w.chunks {
		if c.dirty {
			out = append(out, coord)
		}
	}
	sortCoords(out)
	return out
}

// ClearDirty снимает пометку, если меш построен по актуальному поколению чанка.
// Возвращает true, если пометка снята.
func (w *World) ClearDirty(coord vec.Vec3, generation uint64) bool {
	c, ok := w.chunks[coord]
	if !ok || generation < c.generation {
		return false
	}
	c.dirty = false
	return true
}

// Snapshot снимает неизменяемую копию чанка и его соседей по граням
func (w *World) Snapshot(coord vec.Vec3) (Neighborhood, error) {
	c, ok := w.chunks[coord]
	if !ok {
		return Neighborhood{}, fmt.Errorf("%w: %v", ErrChunkNotLoaded, coord)
	}
	n := Neighborhood{Center: c.Snapshot()}
	for _, dir := range vec.AllDirections {
		if nb, ok := w.chunks[coord.Neighbor(dir)]; ok {
			n.Neighbors[dir] = nb.Snapshot()
		}
	}
	return n, nil
}

// LoadChunk гарантирует наличие чанка: берёт его из хранилища или создаёт пустой
func (w *World) LoadChunk(coord vec.Vec3) *Chunk {
	if c, ok := w.chunks[coord]; ok {
		return c
	}
	if c := w.loadFromStore(coord); c != nil {
		return c
	}
	c := w.newChunk(coord)
	w.noteLoaded(coord)
	return c
}

// EnsureLoaded поднимает чанк позиции из хранилища, если его нет в памяти.
// Пустой чанк не создаётся. Возвращает true, если чанк теперь загружен.
func (w *World) EnsureLoaded(pos vec.Vec3) bool {
	coord := pos.ToChunkCoords()
	if _, ok := w.chunks[coord]; ok {
		return true
	}
	return w.loadFromStore(coord) != nil
}

// DrainLoaded забирает чанки, которые авторитетный мир поднял в память
// (якоря, хранилище) после прошлого вызова. Клиентам нужны их снимки:
// содержимое таких чанков не восстанавливается из потока мутаций.
func (w *World) DrainLoaded() []vec.Vec3 {
	if len(w.loaded) == 0 {
		return nil
	}
	out := make([]vec.Vec3, 0, len(w.loaded))
	for coord := range w.loaded {
		if _, ok := w.chunks[coord]; ok {
			out = append(out, coord)
		}
	}
	clear(w.loaded)
	sortCoords(out)
	return out
}

func (w *World) noteLoaded(coord vec.Vec3) {
	if w.authoritative {
		w.loaded[coord] = struct{}{}
	}
}

// LoadChunkData заменяет содержимое чанка целиком (снимок от сервера)
func (w *World) LoadChunkData(coord vec.Vec3, raw []block.BlockID) error {
	if len(raw) != vec.ChunkVolume {
		return fmt.Errorf("%w: %d", ErrBadChunkData, len(raw))
	}
	for _, id := range raw {
		if !w.registry.IsValidBlockID(id) {
			return fmt.Errorf("%w: %d", ErrInvalidBlockType, id)
		}
	}

	c, ok := w.chunks[coord]
	if !ok {
		c = w.newChunk(coord)
	}
	c.fill(raw)
	w.mutationCounter++
	w.markDirty(c)
	w.markAllNeighbors(coord)
	return nil
}

// UnloadChunk сохраняет (если нужно) и выгружает чанк.
// Соседи помечаются грязными: их грани на общей границе снова открыты.
func (w *World) UnloadChunk(coord vec.Vec3) {
	c, ok := w.chunks[coord]
	if !ok {
		return
	}
	w.saveChunk(c)
	delete(w.chunks, coord)

	for _, l := range w.listeners {
		l.ChunkUnloaded(coord)
	}
	w.mutationCounter++
	w.markAllNeighbors(coord)
}

// SaveAll сохраняет все чанки с несохранёнными изменениями.
// Возвращает число сохранённых чанков.
func (w *World) SaveAll() int {
	saved := 0
	for _, coord := range w.LoadedChunks() {
		if w.saveChunk(w.chunks[coord]) {
			saved++
		}
	}
	return saved
}

func (w *World) saveChunk(c *Chunk) bool {
	if w.store == nil || !c.unsaved {
		return false
	}
	if err := w.store.SaveChunk(c.Coords, c.Blocks()); err != nil {
		w.logger.Warn("Не удалось сохранить чанк %v: %v", c.Coords, err)
		return false
	}
	c.unsaved = false
	return true
}

// loadFromStore пытается поднять чанк из хранилища.
// Ошибка хранилища логируется, чанк считается отсутствующим.
func (w *World) loadFromStore(coord vec.Vec3) *Chunk {
	if w.store == nil {
		return nil
	}
	raw, ok, err := w.store.LoadChunk(coord)
	if err != nil {
		w.logger.Warn("Ошибка загрузки чанка %v, считаем отсутствующим: %v", coord, err)
		return nil
	}
	if !ok {
		return nil
	}
	if len(raw) != vec.ChunkVolume {
		w.logger.Warn("Чанк %v в хранилище повреждён (%d блоков), считаем отсутствующим", coord, len(raw))
		return nil
	}

	c := w.newChunk(coord)
	c.fill(raw)
	w.noteLoaded(coord)
	if !c.IsEmpty() {
		w.mutationCounter++
		w.markDirty(c)
		w.markAllNeighbors(coord)
	}
	w.logger.Trace("Чанк %v загружен из хранилища (%d блоков)", coord, c.nonEmpty)
	return c
}

// newChunk регистрирует пустой чанк. Поколение начинается с текущего счётчика,
// чтобы меш, построенный до выгрузки одноимённого чанка, считался устаревшим.
func (w *World) newChunk(coord vec.Vec3) *Chunk {
	c := NewChunk(coord)
	c.generation = w.mutationCounter
	w.chunks[coord] = c
	return c
}

func (w *World) markDirty(c *Chunk) {
	c.markDirty(w.mutationCounter)
	for _, l := range w.listeners {
		l.ChunkDirty(c.Coords, c.generation)
	}
}

// markBoundaryNeighbors помечает соседей, с которыми граничит локальная позиция
func (w *World) markBoundaryNeighbors(coord, local vec.Vec3) {
	for axis := 0; axis < 3; axis++ {
		switch local.Axis(axis) {
		case 0:
			w.markNeighbor(coord.Neighbor(vec.DirectionFrom(axis, false)))
		case vec.ChunkMask:
			w.markNeighbor(coord.Neighbor(vec.DirectionFrom(axis, true)))
		}
	}
}

func (w *World) markAllNeighbors(coord vec.Vec3) {
	for _, dir := range vec.AllDirections {
		w.markNeighbor(coord.Neighbor(dir))
	}
}

func (w *World) markNeighbor(coord vec.Vec3) {
	if nb, ok := w.chunks[coord]; ok {
		w.markDirty(nb)
	}
}

func sortCoords(coords []vec.Vec3) {
	sort.Slice(coords, func(i, j int) bool {
		a, b := coords[i], coords[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
}
