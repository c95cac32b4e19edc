package network

import (
	"context"
	"sync"
)

// MemoryTransport транспорт внутри процесса. Используется в тестах и для
// встроенного клиента в одном процессе с сервером.
type MemoryTransport struct {
	*baseTransport
	id PeerID
}

// NewMemoryTransport создаёт узел с идентификатором id
func NewMemoryTransport(id PeerID) *MemoryTransport {
	return &MemoryTransport{baseTransport: newBaseTransport(4096), id: id}
}

// ID идентификатор узла
func (mt *MemoryTransport) ID() PeerID { return mt.id }

// ConnectMemory соединяет два узла. Каждый видит другого под его ID.
func ConnectMemory(a, b *MemoryTransport) {
	a.addPeer(b.id, &memoryConn{from: a.id, to: b})
	b.addPeer(a.id, &memoryConn{from: b.id, to: a})
}

// Disconnect разрывает связь с узлом с обеих сторон
func (mt *MemoryTransport) Disconnect(other *MemoryTransport) {
	mt.removePeer(other.id)
	other.removePeer(mt.id)
}

// Close закрывает узел
func (mt *MemoryTransport) Close() error {
	mt.shutdown()
	return nil
}

type memoryConn struct {
	from PeerID
	to   *MemoryTransport

	mu     sync.Mutex
	closed bool
}

func (mc *memoryConn) writePacket(ctx context.Context, data []byte) error {
	mc.mu.Lock()
	closed := mc.closed
	mc.mu.Unlock()
	if closed || mc.to.isClosed() {
		return ErrClosed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case mc.to.inbox <- Packet{Peer: mc.from, Data: cp}:
		mc.to.packetsReceived.Inc()
		mc.to.bytesReceived.Add(uint64(len(cp)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mc.to.closed:
		return ErrClosed
	}
}

func (mc *memoryConn) Close() error {
	mc.mu.Lock()
	mc.closed = true
	mc.mu.Unlock()
	return nil
}
