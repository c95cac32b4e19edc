package network

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Конфигурация WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // В продакшене следует ограничить доступ
	},
}

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsPingPeriod   = 30 * time.Second
)

// WSTransport транспорт поверх WebSocket; один бинарный кадр = один пакет
type WSTransport struct {
	*baseTransport
	wg sync.WaitGroup
}

// NewWSServer создаёт серверный транспорт; подключения принимает Handler
func NewWSServer() *WSTransport {
	return &WSTransport{baseTransport: newBaseTransport(4096)}
}

// DialWS подключается к серверу по url (ws://host/path); сервер доступен
// под ID ServerPeer
func DialWS(ctx context.Context, url string) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	wt := NewWSServer()
	wt.attach(ServerPeer, conn)
	return wt, nil
}

// Handler обрабатывает новое WebSocket подключение
func (wt *WSTransport) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wt.isClosed() {
			http.Error(w, ErrClosed.Error(), http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			wt.logger.Warn("Error upgrading connection: %v", err)
			return
		}
		id := PeerID(uuid.NewString())
		wt.logger.Info("WS клиент подключён: %s (%s)", id, r.RemoteAddr)
		wt.attach(id, conn)
	})
}

func (wt *WSTransport) attach(id PeerID, conn *websocket.Conn) {
	wc := &wsConn{conn: conn, done: make(chan struct{})}
	wt.addPeer(id, wc)
	wt.wg.Add(2)
	go wt.readPump(id, wc)
	go wt.pingPump(wc)
}

// readPump асинхронно читает пакеты узла
func (wt *WSTransport) readPump(id PeerID, wc *wsConn) {
	defer wt.wg.Done()
	defer wt.removePeer(id)

	wc.conn.SetReadLimit(MaxPacketSize)
	wc.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	wc.conn.SetPongHandler(func(string) error {
		return wc.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		kind, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wt.logger.Debug("WS %s: %v", id, err)
			}
			return
		}
		wc.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if kind != websocket.BinaryMessage {
			continue
		}
		if !wt.deliver(id, data) {
			return
		}
	}
}

func (wt *WSTransport) pingPump(wc *wsConn) {
	defer wt.wg.Done()
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		case <-wc.done:
			return
		}
	}
}

// Close закрывает все соединения
func (wt *WSTransport) Close() error {
	if !wt.shutdown() {
		return nil
	}
	wt.wg.Wait()
	return nil
}

type wsConn struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (wc *wsConn) writePacket(ctx context.Context, data []byte) error {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	wc.conn.SetWriteDeadline(deadline)
	return wc.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (wc *wsConn) ping() error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (wc *wsConn) Close() error {
	var err error
	wc.closeOnce.Do(func() {
		close(wc.done)
		wc.mu.Lock()
		wc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		wc.mu.Unlock()
		err = wc.conn.Close()
	})
	return err
}
