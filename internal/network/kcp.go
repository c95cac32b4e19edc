package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xtaci/kcp-go/v5"
)

// ServerPeer под этим ID клиентский транспорт видит сервер
const ServerPeer PeerID = "server"

// KCPTransport надёжный UDP (KCP) в потоковом режиме.
// Пакеты разделяются префиксом длины uint32 big-endian.
type KCPTransport struct {
	*baseTransport
	listener *kcp.Listener
	wg       sync.WaitGroup
}

// tuneSession настраивает KCP параметры для игрового трафика
func tuneSession(conn *kcp.UDPSession) {
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для игр
	conn.SetWindowSize(512, 512) // Увеличиваем окно для пропускной способности
	conn.SetMtu(1400)            // Стандартный MTU для интернета
}

// ListenKCP запускает сервер на addr
func ListenKCP(addr string) (*KCPTransport, error) {
	l, err := kcp.ListenWithOptions(addr, nil, 10, 3)
	if err != nil {
		return nil, fmt.Errorf("не удалось запустить KCP на %s: %w", addr, err)
	}
	kt := &KCPTransport{baseTransport: newBaseTransport(4096), listener: l}
	kt.wg.Add(1)
	go kt.acceptLoop()
	kt.logger.Info("🔌 KCP транспорт слушает %s", l.Addr())
	return kt, nil
}

// DialKCP подключается к серверу; сервер доступен под ID ServerPeer
func DialKCP(ctx context.Context, addr string) (*KCPTransport, error) {
	conn, err := kcp.DialWithOptions(addr, nil, 10, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	tuneSession(conn)

	kt := &KCPTransport{baseTransport: newBaseTransport(4096)}
	kt.attach(ServerPeer, conn)
	kt.logger.Info("KCP channel connected: addr=%s", addr)
	return kt, nil
}

// Addr адрес слушателя (только для сервера)
func (kt *KCPTransport) Addr() net.Addr {
	if kt.listener == nil {
		return nil
	}
	return kt.listener.Addr()
}

func (kt *KCPTransport) acceptLoop() {
	defer kt.wg.Done()
	for {
		conn, err := kt.listener.AcceptKCP()
		if err != nil {
			if kt.isClosed() {
				return
			}
			kt.logger.Warn("Ошибка accept KCP: %v", err)
			continue
		}
		tuneSession(conn)
		id := PeerID(uuid.NewString())
		kt.logger.Info("KCP клиент подключён: %s (%s)", id, conn.RemoteAddr())
		kt.attach(id, conn)
	}
}

func (kt *KCPTransport) attach(id PeerID, conn net.Conn) {
	sc := &streamConn{conn: conn}
	kt.addPeer(id, sc)
	kt.wg.Add(1)
	go kt.readLoop(id, sc)
}

// readLoop читает пакеты с префиксом длины, пока соединение живо
func (kt *KCPTransport) readLoop(id PeerID, sc *streamConn) {
	defer kt.wg.Done()
	defer kt.removePeer(id)

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(sc.conn, header); err != nil {
			if !kt.isClosed() {
				kt.logger.Debug("KCP соединение %s закрыто: %v", id, err)
			}
			return
		}
		n := binary.BigEndian.Uint32(header)
		if n > MaxPacketSize {
			kt.logger.Warn("KCP %s: пакет %d байт превышает лимит, разрываем соединение", id, n)
			return
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(sc.conn, data); err != nil {
			return
		}
		if !kt.deliver(id, data) {
			return
		}
	}
}

// Close останавливает приём и закрывает все сессии
func (kt *KCPTransport) Close() error {
	if !kt.shutdown() {
		return nil
	}
	var err error
	if kt.listener != nil {
		err = kt.listener.Close()
	}
	kt.wg.Wait()
	kt.logger.Info("KCP транспорт остановлен")
	return err
}

// streamConn запись пакетов с префиксом длины в потоковое соединение
type streamConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func (sc *streamConn) writePacket(ctx context.Context, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		sc.conn.SetWriteDeadline(deadline)
	} else {
		sc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	}

	buf := make([]byte, 4, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	_, err := sc.conn.Write(buf)
	return err
}

func (sc *streamConn) Close() error {
	return sc.conn.Close()
}
