package network

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkManagerRoutesByOwner(t *testing.T) {
	hubA := NewMemoryTransport("hub-a")
	hubB := NewMemoryTransport("hub-b")
	alice := NewMemoryTransport("alice")
	bob := NewMemoryTransport("bob")
	ConnectMemory(hubA, alice)
	ConnectMemory(hubB, bob)

	nm := NewNetworkManager()
	nm.Add("a", hubA)
	nm.Add("b", hubB)
	defer nm.Close()

	ctx := context.Background()
	require.NoError(t, alice.SendReliable(ctx, "hub-a", []byte("от alice")))
	require.NoError(t, bob.SendReliable(ctx, "hub-b", []byte("от bob")))

	events, packets := nm.Poll(0)
	assert.ElementsMatch(t, []PeerEvent{{Peer: "alice", Connected: true}, {Peer: "bob", Connected: true}}, events)
	require.Len(t, packets, 2)
	assert.Equal(t, PeerID("alice"), packets[0].Peer, "транспорты опрашиваются по имени")
	assert.Equal(t, PeerID("bob"), packets[1].Peer)

	require.NoError(t, nm.SendReliable(ctx, "bob", []byte("ответ")))
	p, ok := bob.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "ответ", string(p.Data))
	_, ok = alice.TryReceive()
	assert.False(t, ok, "alice не должна получить пакет bob")

	err := nm.SendUnreliable(ctx, "carol", nil)
	assert.True(t, errors.Is(err, ErrUnknownPeer))
}

func TestNetworkManagerDisconnectAndLimit(t *testing.T) {
	hub := NewMemoryTransport("hub")
	alice := NewMemoryTransport("alice")
	ConnectMemory(hub, alice)

	nm := NewNetworkManager()
	nm.Add("mem", hub)
	defer nm.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, alice.SendReliable(ctx, "hub", []byte{byte(i)}))
	}
	_, packets := nm.Poll(2)
	assert.Len(t, packets, 2)
	_, packets = nm.Poll(2)
	assert.Len(t, packets, 1)

	hub.Disconnect(alice)
	events, _ := nm.Poll(0)
	assert.Equal(t, []PeerEvent{{Peer: "alice", Connected: false}}, events)
	assert.Error(t, nm.SendReliable(ctx, "alice", []byte{1}))
}

func TestNetworkManagerCollector(t *testing.T) {
	hub := NewMemoryTransport("hub")
	alice := NewMemoryTransport("alice")
	ConnectMemory(hub, alice)

	nm := NewNetworkManager()
	nm.Add("mem", hub)
	defer nm.Close()
	nm.Poll(0)
	require.NoError(t, nm.SendReliable(context.Background(), "alice", []byte("abc")))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(nm))
	n, err := testutil.GatherAndCount(reg, "network_packets_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "ожидались серии in и out")
}
