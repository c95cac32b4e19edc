package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/world"
)

func mut(seq uint64) world.Mutation { return world.Mutation{Sequence: seq} }

func seqs(run []world.Mutation) []uint64 {
	out := make([]uint64, len(run))
	for i, m := range run {
		out[i] = m.Sequence
	}
	return out
}

func TestSequencerReordersGaps(t *testing.T) {
	s := newSequencer(0)

	run, res := s.offer(mut(1))
	require.Equal(t, offerApplied, res)
	assert.Equal(t, []uint64{1}, seqs(run))

	run, res = s.offer(mut(3))
	assert.Equal(t, offerBuffered, res)
	assert.Empty(t, run, "мутация с пропуском не применяется")

	run, res = s.offer(mut(2))
	require.Equal(t, offerApplied, res)
	assert.Equal(t, []uint64{2, 3}, seqs(run), "пропуск заполнен, хвост применяется по порядку")
	assert.Equal(t, uint64(3), s.last)
	assert.Equal(t, 0, s.pending())
}

func TestSequencerDuplicates(t *testing.T) {
	s := newSequencer(0)
	s.offer(mut(1))
	s.offer(mut(3))

	_, res := s.offer(mut(1))
	assert.Equal(t, offerDuplicate, res, "уже применённый номер")
	_, res = s.offer(mut(3))
	assert.Equal(t, offerDuplicate, res, "уже буферизованный номер")
}

func TestSequencerAdvanceAndOverflow(t *testing.T) {
	s := newSequencer(2)
	s.offer(mut(5))
	s.offer(mut(12))
	_, res := s.offer(mut(13))
	assert.Equal(t, offerOverflow, res)

	run := s.advance(10)
	assert.Empty(t, run)
	assert.Equal(t, uint64(10), s.last)
	assert.Equal(t, 1, s.pending(), "номера до точки начала отброшены")

	run = s.skipGap()
	assert.Equal(t, []uint64{12}, seqs(run))
	assert.Equal(t, uint64(12), s.last)

	assert.Empty(t, s.advance(3), "точка начала не откатывается назад")
	assert.Equal(t, uint64(12), s.last)
}
