package network

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitEvent(t *testing.T, tr Transport) PeerEvent {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("не дождались события подключения")
		return PeerEvent{}
	}
}

func receive(t *testing.T, tr Transport) Packet {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := tr.Receive(ctx)
	require.NoError(t, err, "пакет не получен")
	return p
}

func TestMemoryTransport(t *testing.T) {
	server := NewMemoryTransport("server")
	client := NewMemoryTransport("client-1")
	defer server.Close()
	defer client.Close()

	ConnectMemory(server, client)
	assert.Equal(t, []PeerID{"client-1"}, server.Peers())

	ctx := context.Background()
	payload := []byte{1, 2, 3}
	require.NoError(t, client.SendReliable(ctx, "server", payload))
	payload[0] = 9 // отправитель может переиспользовать буфер

	p := receive(t, server)
	assert.Equal(t, PeerID("client-1"), p.Peer)
	assert.Equal(t, []byte{1, 2, 3}, p.Data)

	_, ok := server.TryReceive()
	assert.False(t, ok, "очередь должна быть пуста")

	err := server.SendReliable(ctx, "nobody", payload)
	assert.ErrorIs(t, err, ErrUnknownPeer)

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.PacketsSent)
	assert.Equal(t, uint64(3), stats.BytesSent)

	server.Disconnect(client)
	assert.Empty(t, server.Peers())
	assert.ErrorIs(t, client.SendReliable(ctx, "server", payload), ErrUnknownPeer)
}

func TestMemoryTransportClosed(t *testing.T) {
	tr := NewMemoryTransport("a")
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close(), "повторное закрытие безопасно")

	_, err := tr.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tr.SendReliable(context.Background(), "b", nil), ErrClosed)
}

func TestWebSocketTransport(t *testing.T) {
	server := NewWSServer()
	defer server.Close()
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialWS(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"))
	require.NoError(t, err)
	defer client.Close()

	ev := waitEvent(t, server)
	require.True(t, ev.Connected)

	require.NoError(t, client.SendReliable(ctx, ServerPeer, []byte("intent")))
	p := receive(t, server)
	assert.Equal(t, ev.Peer, p.Peer)
	assert.Equal(t, []byte("intent"), p.Data)

	require.NoError(t, server.SendReliable(ctx, ev.Peer, []byte("mutation")))
	assert.Equal(t, []byte("mutation"), receive(t, client).Data)
}

func TestKCPTransport(t *testing.T) {
	server, err := ListenKCP("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialKCP(ctx, server.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	// KCP сессия появляется на сервере после первого пакета
	big := make([]byte, 10000)
	for i := range big {
		big[i] = byte(i)
	}
	require.NoError(t, client.SendReliable(ctx, ServerPeer, big))

	ev := waitEvent(t, server)
	require.True(t, ev.Connected)

	p := receive(t, server)
	assert.Equal(t, big, p.Data, "пакет больше MTU собирается целиком")

	require.NoError(t, server.SendReliable(ctx, p.Peer, []byte{42}))
	assert.Equal(t, []byte{42}, receive(t, client).Data)
}

func TestPeerEventsAreNotDroppedWhenQueueIsFull(t *testing.T) {
	hub := NewMemoryTransport("hub")
	defer hub.Close()

	total := eventQueueSize + 16
	peers := make([]*MemoryTransport, total)
	for i := range peers {
		peers[i] = NewMemoryTransport(PeerID(fmt.Sprintf("peer-%03d", i)))
		defer peers[i].Close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, p := range peers {
			ConnectMemory(hub, p)
		}
	}()

	select {
	case <-done:
		t.Fatal("подключения сверх ёмкости очереди должны ждать читателя")
	case <-time.After(100 * time.Millisecond):
	}

	seen := make(map[PeerID]bool)
	for len(seen) < total {
		ev := waitEvent(t, hub)
		require.True(t, ev.Connected)
		seen[ev.Peer] = true
	}
	<-done
	assert.Len(t, hub.Peers(), total)
}

func TestBlockedPeerEventReleasedOnClose(t *testing.T) {
	hub := NewMemoryTransport("hub")
	for i := 0; i < eventQueueSize; i++ {
		hub.addPeer(PeerID(fmt.Sprintf("peer-%03d", i)), &memoryConn{})
	}

	done := make(chan struct{})
	go func() {
		hub.addPeer("late", &memoryConn{})
		close(done)
	}()

	require.NoError(t, hub.Close())
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("закрытие транспорта должно отпускать ожидающее событие")
	}
}
