// Package meshcache хранит меши чанков и перестраивает устаревшие в пуле воркеров.
//
// Состояния записи: Clean → Dirty → Building → Clean. Снимки снимаются и
// результаты фиксируются только в горутине логики (Schedule/Collect);
// воркеры видят лишь неизменяемые снимки.
package meshcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/mesh"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
)

// State состояние записи кеша
type State uint8

const (
	StateClean State = iota
	StateDirty
	StateBuilding
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateBuilding:
		return "building"
	default:
		return "unknown"
	}
}

// Renderer принимает готовые меши. Вызывается только из горутины логики.
type Renderer interface {
	Upload(coord vec.Vec3, m *mesh.Mesh)
	Retire(coord vec.Vec3)
}

// Source источник снимков и поколений чанков, обычно *world.World
type Source interface {
	Snapshot(coord vec.Vec3) (world.Neighborhood, error)
	ChunkGeneration(coord vec.Vec3) (uint64, bool)
	DirtyChunks() []vec.Vec3
	ClearDirty(coord vec.Vec3, generation uint64) bool
}

// MeshBuilder строит меш по снимку; реализация должна быть безопасна для
// одновременного вызова из нескольких горутин
type MeshBuilder interface {
	Build(n world.Neighborhood) (*mesh.Mesh, error)
}

// Config параметры кеша
type Config struct {
	Workers   int // размер пула, по умолчанию 4
	QueueSize int // ёмкость очереди заданий, по умолчанию 64
	// Registerer для метрик Prometheus; nil = метрики не регистрируются
	Registerer prometheus.Registerer
}

// Stats счётчики кеша, безопасны для чтения из любой горутины
type Stats struct {
	Scheduled      uint64
	Committed      uint64
	Stale          uint64
	Failed         uint64
	Uploads        uint64
	SkippedUploads uint64
	InFlight       int
	Entries        int
}

type entry struct {
	mesh       *mesh.Mesh
	generation uint64 // поколение зафиксированного меша
	committed  bool
	digest     uint64
	uploaded   bool

	state    State
	building uint64 // поколение самого нового снимка в работе
}

type job struct {
	coord vec.Vec3
	snap  world.Neighborhood
}

type result struct {
	coord      vec.Vec3
	generation uint64
	mesh       *mesh.Mesh
	err        error
	elapsed    time.Duration
}

// Cache кеш мешей чанков
type Cache struct {
	builder  MeshBuilder
	renderer Renderer
	cfg      Config

	entries  map[vec.Vec3]*entry
	jobs     chan job
	results  chan result
	inFlight int

	group  *errgroup.Group
	cancel context.CancelFunc

	scheduled      atomic.Uint64
	committed      atomic.Uint64
	stale          atomic.Uint64
	failed         atomic.Uint64
	uploads        atomic.Uint64
	skippedUploads atomic.Uint64
	inFlightGauge  atomic.Int64
	entryCount     atomic.Int64

	metrics *cacheMetrics
	logger  *logging.Logger
}

// New создаёт кеш. Воркеры запускаются методом Start.
func New(builder MeshBuilder, renderer Renderer, cfg Config) *Cache {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Cache{
		builder:  builder,
		renderer: renderer,
		cfg:      cfg,
		entries:  make(map[vec.Vec3]*entry),
		jobs:     make(chan job, cfg.QueueSize),
		results:  make(chan result, cfg.QueueSize),
		metrics:  newCacheMetrics(cfg.Registerer),
		logger:   logging.GetMeshLogger(),
	}
}

// Start запускает пул воркеров
func (c *Cache) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		g.Go(func() error { return c.worker(gctx) })
	}
	c.group = g
	c.logger.Info("🧱 Пул мешинга запущен: воркеров=%d, очередь=%d", c.cfg.Workers, c.cfg.QueueSize)
}

// Close останавливает воркеров и ждёт их завершения
func (c *Cache) Close() error {
	if c.group == nil {
		return nil
	}
	c.cancel()
	err := c.group.Wait()
	c.group = nil
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Cache) worker(ctx context.Context) error {
	for {
		select {
		case j := <-c.jobs:
			res := c.run(j)
			select {
			case c.results <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// run строит меш; паника построителя превращается в ошибку задания
func (c *Cache) run(j job) (res result) {
	res = result{coord: j.coord, generation: j.snap.Generation()}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("паника при построении меша %v: %v", j.coord, r)
		}
		res.elapsed = time.Since(start)
	}()
	res.mesh, res.err = c.builder.Build(j.snap)
	return res
}

// ChunkDirty реализует world.DirtyListener
func (c *Cache) ChunkDirty(coord vec.Vec3, _ uint64) {
	if e, ok := c.entries[coord]; ok && e.state == StateClean {
		e.state = StateDirty
	}
}

// ChunkUnloaded реализует world.DirtyListener
func (c *Cache) ChunkUnloaded(coord vec.Vec3) {
	c.Retire(coord)
}

// Retire удаляет меш чанка и снимает его с рендера.
// Результаты построения, пришедшие после этого, отбрасываются.
func (c *Cache) Retire(coord vec.Vec3) {
	e, ok := c.entries[coord]
	if !ok {
		return
	}
	if e.uploaded {
		c.renderer.Retire(coord)
	}
	delete(c.entries, coord)
	c.entryCount.Store(int64(len(c.entries)))
}

// Schedule снимает снимки устаревших чанков и отправляет их воркерам.
// visible ограничивает набор чанков; nil означает "все грязные чанки источника".
// limit > 0 ограничивает число заданий за вызов. Возвращает число отправленных заданий.
func (c *Cache) Schedule(src Source, visible []vec.Vec3, limit int) int {
	return c.schedule(src, visible, limit, nil)
}

func (c *Cache) schedule(src Source, visible []vec.Vec3, limit int, skip map[vec.Vec3]struct{}) int {
	candidates := visible
	if candidates == nil {
		candidates = src.DirtyChunks()
	}

	sent := 0
	for _, coord := range candidates {
		if limit > 0 && sent >= limit {
			break
		}
		if _, skipped := skip[coord]; skipped {
			continue
		}
		gen, ok := src.ChunkGeneration(coord)
		if !ok {
			continue
		}

		e := c.entry(coord)
		if e.committed && e.generation >= gen {
			if e.state == StateDirty {
				e.state = StateClean
			}
			continue
		}
		if e.state == StateBuilding && e.building >= gen {
			continue
		}

		snap, err := src.Snapshot(coord)
		if err != nil {
			c.logger.Warn("Не удалось снять снимок чанка %v: %v", coord, err)
			continue
		}

		select {
		case c.jobs <- job{coord: coord, snap: snap}:
		default:
			// Очередь заполнена, продолжим в следующем цикле
			return sent
		}

		e.state = StateBuilding
		e.building = snap.Generation()
		c.inFlight++
		c.inFlightGauge.Store(int64(c.inFlight))
		c.scheduled.Inc()
		c.metrics.scheduled.Inc()
		sent++
	}
	return sent
}

// Collect фиксирует готовые результаты без ожидания. Возвращает число зафиксированных мешей.
func (c *Cache) Collect(src Source) int {
	n := 0
	for {
		select {
		case res := <-c.results:
			if c.commit(src, res) {
				n++
			}
		default:
			return n
		}
	}
}

// RebuildDirty перестраивает все устаревшие чанки и ждёт результатов.
// Чанк, построение которого упало, в этом вызове повторно не планируется
// и остаётся грязным до следующего цикла.
func (c *Cache) RebuildDirty(ctx context.Context, src Source, visible []vec.Vec3) (int, error) {
	committed := 0
	failed := make(map[vec.Vec3]struct{})
	for {
		sent := c.schedule(src, visible, 0, failed)
		if sent == 0 && c.inFlight == 0 {
			return committed, nil
		}
		select {
		case res := <-c.results:
			if c.commit(src, res) {
				committed++
			} else if res.err != nil {
				failed[res.coord] = struct{}{}
			}
		case <-ctx.Done():
			return committed, ctx.Err()
		}
	}
}

// commit применяет результат; устаревшие и ошибочные результаты отбрасываются,
// чанк при этом остаётся грязным
func (c *Cache) commit(src Source, res result) bool {
	c.inFlight--
	c.inFlightGauge.Store(int64(c.inFlight))
	c.metrics.buildSeconds.Observe(res.elapsed.Seconds())

	e, ok := c.entries[res.coord]
	if !ok {
		return false
	}

	if res.err != nil {
		c.failed.Inc()
		c.metrics.failed.Inc()
		c.logger.Warn("Ошибка построения меша %v (поколение %d): %v", res.coord, res.generation, res.err)
		c.settle(e, res.generation)
		return false
	}

	gen, ok := src.ChunkGeneration(res.coord)
	if !ok || res.generation < gen || (e.committed && res.generation <= e.generation) {
		c.stale.Inc()
		c.metrics.stale.Inc()
		c.logger.Trace("Отброшен устаревший меш %v: поколение %d, актуальное %d", res.coord, res.generation, gen)
		c.settle(e, res.generation)
		return false
	}

	e.mesh = res.mesh
	e.generation = res.generation
	e.committed = true
	src.ClearDirty(res.coord, res.generation)
	if e.building <= res.generation {
		e.state = StateClean
	}
	c.committed.Inc()
	c.metrics.committed.Inc()

	c.upload(res.coord, e)
	return true
}

// settle возвращает запись в Dirty, если отброшенный результат был последним в работе
func (c *Cache) settle(e *entry, generation uint64) {
	if e.state == StateBuilding && e.building == generation {
		e.state = StateDirty
	}
}

func (c *Cache) upload(coord vec.Vec3, e *entry) {
	if e.mesh.Empty() {
		if e.uploaded {
			c.renderer.Retire(coord)
			e.uploaded = false
		}
		e.digest = 0
		return
	}

	digest := e.mesh.Digest()
	if e.uploaded && digest == e.digest {
		c.skippedUploads.Inc()
		return
	}
	c.renderer.Upload(coord, e.mesh)
	e.digest = digest
	e.uploaded = true
	c.uploads.Inc()
	c.metrics.uploads.Inc()
}

func (c *Cache) entry(coord vec.Vec3) *entry {
	e, ok := c.entries[coord]
	if !ok {
		e = &entry{state: StateDirty}
		c.entries[coord] = e
		c.entryCount.Store(int64(len(c.entries)))
	}
	return e
}

// Mesh возвращает последний зафиксированный меш чанка
func (c *Cache) Mesh(coord vec.Vec3) (*mesh.Mesh, bool) {
	e, ok := c.entries[coord]
	if !ok || !e.committed {
		return nil, false
	}
	return e.mesh, true
}

// State возвращает состояние записи; для неизвестного чанка StateDirty, false
func (c *Cache) State(coord vec.Vec3) (State, bool) {
	e, ok := c.entries[coord]
	if !ok {
		return StateDirty, false
	}
	return e.state, true
}

// Stats возвращает снимок счётчиков
func (c *Cache) Stats() Stats {
	return Stats{
		Scheduled:      c.scheduled.Load(),
		Committed:      c.committed.Load(),
		Stale:          c.stale.Load(),
		Failed:         c.failed.Load(),
		Uploads:        c.uploads.Load(),
		SkippedUploads: c.skippedUploads.Load(),
		InFlight:       int(c.inFlightGauge.Load()),
		Entries:        int(c.entryCount.Load()),
	}
}
