// Package network доставляет закодированные пакеты синхронизации между узлами.
//
// Ядро мира отдаёт транспорту готовые байты и забирает входящие пакеты без
// блокировок; чтение и запись сокетов выполняются в собственных горутинах
// транспорта.
package network

import (
	"context"
	"errors"
)

var (
	// ErrClosed транспорт закрыт
	ErrClosed = errors.New("транспорт закрыт")
	// ErrUnknownPeer пакет адресован неизвестному узлу
	ErrUnknownPeer = errors.New("неизвестный узел")
	// ErrFrameTooLarge пакет превышает допустимый размер
	ErrFrameTooLarge = errors.New("слишком большой пакет")
)

// MaxPacketSize предельный размер одного пакета
const MaxPacketSize = 4 << 20

// PeerID идентификатор удалённого узла
type PeerID string

// Packet входящий пакет
type Packet struct {
	Peer PeerID
	Data []byte
}

// PeerEvent подключение или отключение узла
type PeerEvent struct {
	Peer      PeerID
	Connected bool
}

// Sender отправка пакетов узлу
type Sender interface {
	SendReliable(ctx context.Context, peer PeerID, data []byte) error
	// SendUnreliable допускает потерю пакета; потоковые транспорты
	// доставляют его так же, как надёжный
	SendUnreliable(ctx context.Context, peer PeerID, data []byte) error
}

// Transport двусторонний канал с набором узлов
type Transport interface {
	Sender
	Receive(ctx context.Context) (Packet, error)
	TryReceive() (Packet, bool)
	Events() <-chan PeerEvent
	Peers() []PeerID
	Stats() ConnectionStats
	Close() error
}

// ConnectionStats счётчики транспорта
type ConnectionStats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsDropped  uint64
	BytesSent       uint64
	BytesReceived   uint64
	Peers           int
}
