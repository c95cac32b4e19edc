package sync

import (
	"sort"

	"github.com/annel0/voxel-world/internal/world"
)

// offerResult итог приёма мутации
type offerResult uint8

const (
	offerApplied   offerResult = iota // мутация и буферизованный хвост готовы к применению
	offerDuplicate                    // номер уже видели
	offerBuffered                     // есть пропуск, мутация отложена
	offerOverflow                     // буфер переполнен, мутация отброшена
)

// sequencer выдаёт мутации строго по возрастанию номеров без пропусков.
// Мутации с пропуском перед ними ждут в буфере, повторы отбрасываются.
type sequencer struct {
	last     uint64
	buffered map[uint64]world.Mutation
	limit    int
}

func newSequencer(limit int) *sequencer {
	if limit <= 0 {
		limit = 4096
	}
	return &sequencer{buffered: make(map[uint64]world.Mutation), limit: limit}
}

// offer принимает мутацию и возвращает непрерывную серию, готовую к применению
func (s *sequencer) offer(m world.Mutation) ([]world.Mutation, offerResult) {
	if m.Sequence <= s.last {
		return nil, offerDuplicate
	}
	if _, ok := s.buffered[m.Sequence]; ok {
		return nil, offerDuplicate
	}
	if m.Sequence > s.last+1 {
		if len(s.buffered) >= s.limit {
			return nil, offerOverflow
		}
		s.buffered[m.Sequence] = m
		return nil, offerBuffered
	}
	s.last = m.Sequence
	return s.drain([]world.Mutation{m}), offerApplied
}

// advance переносит точку начала потока на seq: всё до seq включительно
// считается учтённым. Возвращает ставший непрерывным хвост буфера.
func (s *sequencer) advance(seq uint64) []world.Mutation {
	if seq <= s.last {
		return nil
	}
	s.last = seq
	for n := range s.buffered {
		if n <= seq {
			delete(s.buffered, n)
		}
	}
	return s.drain(nil)
}

// skipGap отказывается от ожидания пропуска и продолжает с наименьшего
// буферизованного номера
func (s *sequencer) skipGap() []world.Mutation {
	if len(s.buffered) == 0 {
		return nil
	}
	nums := make([]uint64, 0, len(s.buffered))
	for n := range s.buffered {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	s.last = nums[0] - 1
	return s.drain(nil)
}

func (s *sequencer) drain(run []world.Mutation) []world.Mutation {
	for {
		next, ok := s.buffered[s.last+1]
		if !ok {
			return run
		}
		delete(s.buffered, s.last+1)
		s.last++
		run = append(run, next)
	}
}

func (s *sequencer) pending() int { return len(s.buffered) }
