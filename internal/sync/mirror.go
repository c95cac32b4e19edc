package sync

import (
	"context"
	"strconv"
	gosync "sync"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

func formatSeq(seq uint64) string { return strconv.FormatUint(seq, 10) }

// readOnlyStore отдаёт чанки хранилища, но ничего в него не пишет
type readOnlyStore struct {
	world.ChunkStore
}

func (readOnlyStore) SaveChunk(vec.Vec3, []block.BlockID) error { return nil }

// Mirror слушает пакеты WorldMutations и поддерживает копию мира для чтения
// из других горутин (REST, инструменты). Копия согласована в конечном счёте:
// мутации применяются строго по номерам, незагруженные чанки поднимаются из
// общего хранилища.
type Mirror struct {
	mu         gosync.RWMutex
	world      *world.World
	seq        *sequencer
	compressor Compressor
	hasStore   bool

	sub    eventbus.Subscription
	logger *logging.Logger
}

// NewMirror подписывает зеркало на шину. store может быть nil.
func NewMirror(bus eventbus.EventBus, registry *block.Registry, store world.ChunkStore, compressor Compressor) (*Mirror, error) {
	if compressor == nil {
		compressor = NewPassthroughCompressor()
	}
	opts := world.Options{}
	if store != nil {
		opts.Store = readOnlyStore{store}
	}
	m := &Mirror{
		world:      world.NewWorld(registry, opts),
		seq:        newSequencer(0),
		compressor: compressor,
		hasStore:   store != nil,
		logger:     logging.GetSyncLogger(),
	}
	sub, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{EventWorldMutations}}, m.handle)
	if err != nil {
		return nil, err
	}
	m.sub = sub
	return m, nil
}

func (m *Mirror) handle(ctx context.Context, ev *eventbus.Envelope) {
	muts, err := DecodeMutations(m.compressor, ev.Payload)
	if err != nil {
		m.logger.Warn("Mirror: пакет %s от %s разобран частично: %v", ev.ID, ev.Source, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mut := range muts {
		run, res := m.seq.offer(mut)
		if res == offerOverflow {
			m.logger.Warn("Mirror: пропуск после #%d не заполнен, продолжаем с буфера", m.seq.last)
			run = m.seq.skipGap()
			if r, again := m.seq.offer(mut); again == offerApplied {
				run = append(run, r...)
			}
		}
		for _, r := range run {
			if err := m.world.SetBlock(r.Pos, r.Block); err != nil {
				m.logger.Warn("Mirror: мутация #%d не применена: %v", r.Sequence, err)
			}
		}
	}
}

// GetBlock читает блок из копии мира
func (m *Mirror) GetBlock(pos vec.Vec3) block.BlockID {
	// чтение может поднять чанк из хранилища, поэтому берём полную блокировку
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.world.Chunk(pos.ToChunkCoords()); !ok && m.hasStore {
		m.world.LoadChunk(pos.ToChunkCoords())
	}
	return m.world.GetBlock(pos)
}

// LastSequence последний применённый номер
func (m *Mirror) LastSequence() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq.last
}

// Waiting число мутаций, ждущих заполнения пропуска
func (m *Mirror) Waiting() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq.pending()
}

// Stop отписывает зеркало от шины
func (m *Mirror) Stop() { m.sub.Unsubscribe() }
