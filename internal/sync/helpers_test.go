package sync

import (
	"context"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-world/internal/network"
	"github.com/annel0/voxel-world/internal/protocol"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

// captureSender запоминает отправленные пакеты
type captureSender struct {
	mu      gosync.Mutex
	packets map[network.PeerID][][]byte
	fail    bool
}

func newCaptureSender() *captureSender {
	return &captureSender{packets: make(map[network.PeerID][][]byte)}
}

func (cs *captureSender) SendReliable(_ context.Context, peer network.PeerID, data []byte) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.fail {
		return network.ErrClosed
	}
	cs.packets[peer] = append(cs.packets[peer], data)
	return nil
}

func (cs *captureSender) SendUnreliable(ctx context.Context, peer network.PeerID, data []byte) error {
	return cs.SendReliable(ctx, peer, data)
}

// take забирает и разбирает все пакеты узлу
func (cs *captureSender) take(t *testing.T, peer network.PeerID) []protocol.Frame {
	t.Helper()
	cs.mu.Lock()
	packets := cs.packets[peer]
	delete(cs.packets, peer)
	cs.mu.Unlock()

	var frames []protocol.Frame
	for _, p := range packets {
		fs, err := NewPassthroughCompressor().Decompress(p)
		require.NoError(t, err)
		frames = append(frames, fs...)
	}
	return frames
}

func mutationsOf(t *testing.T, frames []protocol.Frame) []world.Mutation {
	t.Helper()
	var out []world.Mutation
	for _, f := range frames {
		if f.Kind != protocol.KindMutation {
			continue
		}
		m, err := protocol.DecodeMutation(f)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func kindsOf(frames []protocol.Frame) []protocol.Kind {
	out := make([]protocol.Kind, len(frames))
	for i, f := range frames {
		out[i] = f.Kind
	}
	return out
}

func packet(t *testing.T, frames ...protocol.Frame) []byte {
	t.Helper()
	data, err := NewPassthroughCompressor().Compress(frames)
	require.NoError(t, err)
	return data
}

func intent(tempID uint64, pos vec.Vec3, id block.BlockID) protocol.Frame {
	return protocol.IntentFrame(protocol.Intent{TempID: tempID, Pos: pos, Block: id})
}

func mutation(seq uint64, pos vec.Vec3, id block.BlockID) protocol.Frame {
	return protocol.MutationFrame(world.Mutation{Pos: pos, Block: id, Sequence: seq})
}

func newServerWorld() *world.World {
	return world.NewWorld(block.DefaultRegistry(), world.Options{Authoritative: true})
}

func newClientWorld() *world.World {
	return world.NewWorld(block.DefaultRegistry(), world.Options{})
}
