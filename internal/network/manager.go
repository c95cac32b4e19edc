package network

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-world/internal/logging"
)

// NetworkManager объединяет несколько транспортов (KCP, WebSocket) за одним
// Sender. Узел закрепляется за транспортом, из которого пришло его подключение.
//
// Poll и отправка вызываются из горутины тика; Collect безопасен из любой горутины.
type NetworkManager struct {
	mu         sync.RWMutex
	names      []string
	transports map[string]Transport
	owners     map[PeerID]Transport

	logger *logging.Logger
}

// NewNetworkManager создаёт пустой менеджер
func NewNetworkManager() *NetworkManager {
	return &NetworkManager{
		transports: make(map[string]Transport),
		owners:     make(map[PeerID]Transport),
		logger:     logging.GetNetworkLogger(),
	}
}

// Add подключает транспорт под именем name (метка метрик)
func (nm *NetworkManager) Add(name string, t Transport) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	if _, dup := nm.transports[name]; !dup {
		nm.names = append(nm.names, name)
		sort.Strings(nm.names)
	}
	nm.transports[name] = t
}

// Poll забирает накопленные события подключения и до limit пакетов.
// События транспорта всегда возвращаются раньше его пакетов, поэтому
// пакет нового узла не опережает событие о его подключении.
func (nm *NetworkManager) Poll(limit int) ([]PeerEvent, []Packet) {
	nm.mu.RLock()
	order := make([]Transport, 0, len(nm.names))
	for _, name := range nm.names {
		order = append(order, nm.transports[name])
	}
	nm.mu.RUnlock()

	var events []PeerEvent
	var packets []Packet
	for _, t := range order {
		events = nm.drainEvents(t, events)
		for limit <= 0 || len(packets) < limit {
			p, ok := t.TryReceive()
			if !ok {
				break
			}
			if !nm.owns(t, p.Peer) {
				// подключение могло случиться после drainEvents
				events = nm.drainEvents(t, events)
				if !nm.owns(t, p.Peer) {
					nm.logger.Warn("NetworkManager: пакет от незарегистрированного узла %s отброшен", p.Peer)
					continue
				}
			}
			packets = append(packets, p)
		}
	}
	return events, packets
}

func (nm *NetworkManager) drainEvents(t Transport, out []PeerEvent) []PeerEvent {
	for {
		select {
		case ev := <-t.Events():
			nm.mu.Lock()
			if ev.Connected {
				nm.owners[ev.Peer] = t
			} else if nm.owners[ev.Peer] == t {
				delete(nm.owners, ev.Peer)
			}
			nm.mu.Unlock()
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (nm *NetworkManager) owns(t Transport, peer PeerID) bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.owners[peer] == t
}

func (nm *NetworkManager) owner(peer PeerID) (Transport, error) {
	nm.mu.RLock()
	t, ok := nm.owners[peer]
	nm.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	return t, nil
}

// SendReliable отправляет пакет через транспорт узла
func (nm *NetworkManager) SendReliable(ctx context.Context, peer PeerID, data []byte) error {
	t, err := nm.owner(peer)
	if err != nil {
		return err
	}
	return t.SendReliable(ctx, peer, data)
}

// SendUnreliable отправляет пакет через транспорт узла без гарантии доставки
func (nm *NetworkManager) SendUnreliable(ctx context.Context, peer PeerID, data []byte) error {
	t, err := nm.owner(peer)
	if err != nil {
		return err
	}
	return t.SendUnreliable(ctx, peer, data)
}

// Stats счётчики по транспортам
func (nm *NetworkManager) Stats() map[string]ConnectionStats {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	out := make(map[string]ConnectionStats, len(nm.transports))
	for name, t := range nm.transports {
		out[name] = t.Stats()
	}
	return out
}

// Close закрывает все транспорты
func (nm *NetworkManager) Close() error {
	nm.mu.Lock()
	transports := nm.transports
	nm.transports = make(map[string]Transport)
	nm.names = nil
	nm.owners = make(map[PeerID]Transport)
	nm.mu.Unlock()

	var firstErr error
	for name, t := range transports {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("закрытие %s: %w", name, err)
		}
	}
	return firstErr
}

var (
	descPackets = prometheus.NewDesc("network_packets_total",
		"Пакеты транспорта по направлению.", []string{"transport", "direction"}, nil)
	descBytes = prometheus.NewDesc("network_bytes_total",
		"Байты транспорта по направлению.", []string{"transport", "direction"}, nil)
	descDropped = prometheus.NewDesc("network_packets_dropped_total",
		"Пакеты, потерянные при отправке или закрытии.", []string{"transport"}, nil)
	descPeers = prometheus.NewDesc("network_peers",
		"Подключённые узлы.", []string{"transport"}, nil)
)

// Describe реализует prometheus.Collector
func (nm *NetworkManager) Describe(ch chan<- *prometheus.Desc) {
	ch <- descPackets
	ch <- descBytes
	ch <- descDropped
	ch <- descPeers
}

// Collect реализует prometheus.Collector
func (nm *NetworkManager) Collect(ch chan<- prometheus.Metric) {
	for name, s := range nm.Stats() {
		ch <- prometheus.MustNewConstMetric(descPackets, prometheus.CounterValue, float64(s.PacketsSent), name, "out")
		ch <- prometheus.MustNewConstMetric(descPackets, prometheus.CounterValue, float64(s.PacketsReceived), name, "in")
		ch <- prometheus.MustNewConstMetric(descBytes, prometheus.CounterValue, float64(s.BytesSent), name, "out")
		ch <- prometheus.MustNewConstMetric(descBytes, prometheus.CounterValue, float64(s.BytesReceived), name, "in")
		ch <- prometheus.MustNewConstMetric(descDropped, prometheus.CounterValue, float64(s.PacketsDropped), name)
		ch <- prometheus.MustNewConstMetric(descPeers, prometheus.GaugeValue, float64(s.Peers), name)
	}
}
