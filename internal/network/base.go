package network

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/annel0/voxel-world/internal/logging"
)

// peerConn соединение с одним узлом
type peerConn interface {
	writePacket(ctx context.Context, data []byte) error
	Close() error
}

// baseTransport общая часть транспортов: реестр узлов, входящая очередь,
// события и статистика
type baseTransport struct {
	mu    sync.RWMutex
	peers map[PeerID]peerConn

	inbox  chan Packet
	events chan PeerEvent

	closed    chan struct{}
	closeOnce sync.Once

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	packetsDropped  atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64

	logger *logging.Logger
}

// eventQueueSize ёмкость очереди подключений и отключений
const eventQueueSize = 256

func newBaseTransport(bufferSize int) *baseTransport {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &baseTransport{
		peers:  make(map[PeerID]peerConn),
		inbox:  make(chan Packet, bufferSize),
		events: make(chan PeerEvent, eventQueueSize),
		closed: make(chan struct{}),
		logger: logging.GetNetworkLogger(),
	}
}

func (b *baseTransport) addPeer(id PeerID, c peerConn) {
	b.mu.Lock()
	b.peers[id] = c
	b.mu.Unlock()
	b.emit(PeerEvent{Peer: id, Connected: true})
}

// removePeer удаляет узел; повторный вызов ничего не делает
func (b *baseTransport) removePeer(id PeerID) {
	b.mu.Lock()
	c, ok := b.peers[id]
	delete(b.peers, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	c.Close()
	b.emit(PeerEvent{Peer: id, Connected: false})
}

// emit ждёт места в очереди событий, как deliver для пакетов. Потерянное
// подключение оставило бы узел без курсора, потерянное отключение держало бы
// журнал сервера. Ждёт только горутина соединения, цикл тика не блокируется.
func (b *baseTransport) emit(ev PeerEvent) {
	select {
	case b.events <- ev:
	case <-b.closed:
	}
}

// deliver кладёт входящий пакет в очередь, ожидая места
func (b *baseTransport) deliver(peer PeerID, data []byte) bool {
	select {
	case b.inbox <- Packet{Peer: peer, Data: data}:
		b.packetsReceived.Inc()
		b.bytesReceived.Add(uint64(len(data)))
		return true
	case <-b.closed:
		b.packetsDropped.Inc()
		return false
	}
}

func (b *baseTransport) peer(id PeerID) (peerConn, error) {
	select {
	case <-b.closed:
		return nil, ErrClosed
	default:
	}
	b.mu.RLock()
	c, ok := b.peers[id]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	return c, nil
}

// SendReliable отправляет пакет узлу
func (b *baseTransport) SendReliable(ctx context.Context, id PeerID, data []byte) error {
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w: %d байт", ErrFrameTooLarge, len(data))
	}
	c, err := b.peer(id)
	if err != nil {
		return err
	}
	if err := c.writePacket(ctx, data); err != nil {
		b.packetsDropped.Inc()
		return err
	}
	b.packetsSent.Inc()
	b.bytesSent.Add(uint64(len(data)))
	return nil
}

// SendUnreliable для потоковых соединений совпадает с SendReliable
func (b *baseTransport) SendUnreliable(ctx context.Context, id PeerID, data []byte) error {
	return b.SendReliable(ctx, id, data)
}

// Receive ждёт следующий входящий пакет
func (b *baseTransport) Receive(ctx context.Context) (Packet, error) {
	select {
	case p := <-b.inbox:
		return p, nil
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-b.closed:
		return Packet{}, ErrClosed
	}
}

// TryReceive забирает пакет без ожидания
func (b *baseTransport) TryReceive() (Packet, bool) {
	select {
	case p := <-b.inbox:
		return p, true
	default:
		return Packet{}, false
	}
}

// Events канал подключений и отключений узлов
func (b *baseTransport) Events() <-chan PeerEvent { return b.events }

// Peers возвращает подключённые узлы в порядке сортировки
func (b *baseTransport) Peers() []PeerID {
	b.mu.RLock()
	out := make([]PeerID, 0, len(b.peers))
	for id := range b.peers {
		out = append(out, id)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats возвращает счётчики транспорта
func (b *baseTransport) Stats() ConnectionStats {
	b.mu.RLock()
	peers := len(b.peers)
	b.mu.RUnlock()
	return ConnectionStats{
		PacketsSent:     b.packetsSent.Load(),
		PacketsReceived: b.packetsReceived.Load(),
		PacketsDropped:  b.packetsDropped.Load(),
		BytesSent:       b.bytesSent.Load(),
		BytesReceived:   b.bytesReceived.Load(),
		Peers:           peers,
	}
}

func (b *baseTransport) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

// shutdown закрывает все соединения; возвращает false при повторном вызове
func (b *baseTransport) shutdown() bool {
	first := false
	b.closeOnce.Do(func() {
		first = true
		close(b.closed)
		b.mu.Lock()
		peers := b.peers
		b.peers = make(map[PeerID]peerConn)
		b.mu.Unlock()
		for _, c := range peers {
			c.Close()
		}
	})
	return first
}
