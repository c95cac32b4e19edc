package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/protocol"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

type envelopeRecorder struct {
	mu  gosync.Mutex
	evs []*eventbus.Envelope
}

func (r *envelopeRecorder) handle(_ context.Context, ev *eventbus.Envelope) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *envelopeRecorder) all() []*eventbus.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventbus.Envelope(nil), r.evs...)
}

func TestBatchManagerSplitsByCapacity(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()
	rec := &envelopeRecorder{}
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{EventWorldMutations}}, rec.handle)
	require.NoError(t, err)

	bm := NewBatchManager(bus, "region-test", 2, time.Hour, nil)
	var muts []world.Mutation
	for i := 1; i <= 5; i++ {
		muts = append(muts, world.Mutation{Pos: vec.Vec3{X: i}, Block: block.StoneBlockID, Sequence: uint64(i)})
	}
	bm.PublishMutations(muts)
	bm.Stop()

	require.Eventually(t, func() bool { return len(rec.all()) == 3 }, time.Second, 5*time.Millisecond)

	var got []world.Mutation
	for _, ev := range rec.all() {
		assert.Equal(t, "region-test", ev.Source)
		part, err := DecodeMutations(NewPassthroughCompressor(), ev.Payload)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(part), 2, "пакет не больше capacity")
		assert.Equal(t, formatSeq(part[0].Sequence), ev.Metadata["first_seq"])
		assert.Equal(t, formatSeq(part[len(part)-1].Sequence), ev.Metadata["last_seq"])
		got = append(got, part...)
	}
	assert.Equal(t, muts, got, "порядок и состав мутаций сохраняются")
}

func TestBatchManagerFlushesOnTimer(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()
	rec := &envelopeRecorder{}
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, rec.handle)
	require.NoError(t, err)

	bm := NewBatchManager(bus, "r", 100, 10*time.Millisecond, nil)
	defer bm.Stop()
	bm.PublishMutations([]world.Mutation{{Pos: vec.Vec3{}, Block: block.DirtBlockID, Sequence: 1}})

	assert.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDecodeMutationsRejectsForeignFrames(t *testing.T) {
	c := NewPassthroughCompressor()
	payload, err := c.Compress([]protocol.Frame{
		protocol.MutationFrame(world.Mutation{Pos: vec.Vec3{Z: 1}, Block: block.SandBlockID, Sequence: 7}),
		protocol.AckFrame(7),
	})
	require.NoError(t, err)

	muts, err := DecodeMutations(c, payload)
	assert.Error(t, err)
	require.Len(t, muts, 1, "мутации до ошибочного кадра возвращаются")
	assert.Equal(t, uint64(7), muts[0].Sequence)

	_, err = DecodeMutations(c, []byte{0xFF})
	assert.Error(t, err)
}
