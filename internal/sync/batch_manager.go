package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/protocol"
	"github.com/annel0/voxel-world/internal/world"
)

// EventWorldMutations тип события с пакетом авторитетных мутаций
const EventWorldMutations = "WorldMutations"

// BatchManager копит авторитетные мутации и публикует их пакетами в шину
// событий для зеркал мира. Реализует MutationSink: вызов из тика только
// дописывает в буфер, публикация идёт в собственной горутине.
type BatchManager struct {
	mu       gosync.Mutex
	buf      []world.Mutation
	capacity int

	flushEvery time.Duration
	bus        eventbus.EventBus
	source     string // имя текущего узла/region-id
	compressor Compressor

	kick chan struct{}
	quit chan struct{}
	done chan struct{}

	stopOnce gosync.Once
	logger   *logging.Logger
}

// NewBatchManager создаёт менеджер с указанным размером пакета и интервалом отправки
func NewBatchManager(bus eventbus.EventBus, source string, capacity int, flushEvery time.Duration, compressor Compressor) *BatchManager {
	if compressor == nil {
		compressor = NewPassthroughCompressor()
	}
	if capacity <= 0 {
		capacity = 512
	}
	if flushEvery <= 0 {
		flushEvery = time.Second
	}
	bm := &BatchManager{
		capacity:   capacity,
		flushEvery: flushEvery,
		bus:        bus,
		source:     source,
		compressor: compressor,
		kick:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logging.GetSyncLogger(),
	}
	go bm.loop()
	return bm
}

// PublishMutations добавляет мутации в буфер. Мутации не отбрасываются:
// при заполнении пакета отправка запускается досрочно.
func (bm *BatchManager) PublishMutations(muts []world.Mutation) {
	bm.mu.Lock()
	bm.buf = append(bm.buf, muts...)
	full := len(bm.buf) >= bm.capacity
	bm.mu.Unlock()

	if full {
		select {
		case bm.kick <- struct{}{}:
		default:
		}
	}
}

func (bm *BatchManager) loop() {
	defer close(bm.done)
	ticker := time.NewTicker(bm.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bm.flush()
		case <-bm.kick:
			bm.flush()
		case <-bm.quit:
			bm.flush()
			return
		}
	}
}

// flush отсылает накопленные мутации пакетами не больше capacity
func (bm *BatchManager) flush() {
	bm.mu.Lock()
	if len(bm.buf) == 0 {
		bm.mu.Unlock()
		return
	}
	muts := bm.buf
	bm.buf = nil
	bm.mu.Unlock()

	for len(muts) > 0 {
		n := min(len(muts), bm.capacity)
		bm.publish(muts[:n])
		muts = muts[n:]
	}
}

func (bm *BatchManager) publish(muts []world.Mutation) {
	frames := make([]protocol.Frame, len(muts))
	for i, m := range muts {
		frames[i] = protocol.MutationFrame(m)
	}
	payload, err := bm.compressor.Compress(frames)
	if err != nil {
		bm.logger.Warn("BatchManager compress error: %v", err)
		return
	}

	env := &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    bm.source,
		EventType: EventWorldMutations,
		Version:   1,
		Priority:  5,
		Payload:   payload,
		Metadata: map[string]string{
			"first_seq": formatSeq(muts[0].Sequence),
			"last_seq":  formatSeq(muts[len(muts)-1].Sequence),
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := bm.bus.Publish(ctx, env); err != nil {
		bm.logger.Warn("BatchManager publish error: %v", err)
	}
}

// DecodeMutations разбирает полезную нагрузку события WorldMutations.
// Кадры, не являющиеся мутациями, дают ошибку.
func DecodeMutations(c Compressor, payload []byte) ([]world.Mutation, error) {
	frames, err := c.Decompress(payload)
	if err != nil {
		return nil, err
	}
	out := make([]world.Mutation, 0, len(frames))
	for _, f := range frames {
		m, err := protocol.DecodeMutation(f)
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Stop завершает работу менеджера и отправляет оставшиеся мутации
func (bm *BatchManager) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.quit)
		<-bm.done
	})
}
