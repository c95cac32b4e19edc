// Package sync синхронизирует авторитетный мир сервера с клиентами.
//
// Сервер ведёт общий журнал мутаций с курсорами клиентов (acked, sent) и
// единолично выдаёт номера последовательности. Клиент применяет свои действия
// сразу (предсказание) и сверяет их с авторитетным потоком по координате.
// Оба участника работают в горутине тика и не блокируются на сети: пакеты
// отдаются транспорту готовыми байтами.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/network"
	"github.com/annel0/voxel-world/internal/physics"
	"github.com/annel0/voxel-world/internal/protocol"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

var (
	// ErrUnknownClient пакет от узла без сессии
	ErrUnknownClient = errors.New("неизвестный клиент")
	// ErrIntentQueueFull очередь внешних намерений переполнена
	ErrIntentQueueFull = errors.New("очередь намерений переполнена")
)

// Причины отклонения намерений (метка метрики)
const (
	RejectUnknownBlock = "unknown_block"
	RejectOutOfBounds  = "out_of_bounds"
	RejectOccupied     = "occupied"
	RejectEmpty        = "empty"
	RejectEntity       = "entity_overlap"
	RejectWorld        = "world_error"
)

// MutationSink получает каждую порцию авторитетных мутаций после тика
// (репликация в шину событий). Вызывается из горутины тика и не должен блокироваться.
type MutationSink interface {
	PublishMutations(muts []world.Mutation)
}

// ServerConfig параметры серверной роли
type ServerConfig struct {
	// ResendAfterTicks через сколько тиков без продвижения подтверждения
	// неподтверждённые мутации отправляются повторно (по умолчанию 30)
	ResendAfterTicks uint64
	// MaxFramesPerPacket предел кадров в одном пакете (по умолчанию 256)
	MaxFramesPerPacket int
	// IntentQueueSize ёмкость очереди SubmitIntent (по умолчанию 256)
	IntentQueueSize int
	Compressor      Compressor
	// Overlap проверка сущностей при установке твёрдых блоков (может быть nil)
	Overlap    physics.OverlapQuery
	Sink       MutationSink
	Registerer prometheus.Registerer
}

// clientCursor состояние доставки одному клиенту
type clientCursor struct {
	peer network.PeerID
	// acked последний номер, подтверждённый клиентом
	acked uint64
	// sent последний отправленный номер
	sent uint64
	// lastProgressTick тик последнего продвижения acked (или начала ожидания)
	lastProgressTick uint64
	// pending кадры вне журнала (точка начала потока, снимки чанков)
	pending     []protocol.Frame
	connectedAt time.Time
}

// externalIntent намерение не от сетевого клиента (REST, консоль)
type externalIntent struct {
	intent protocol.Intent
	source string
}

// ClientInfo сведения о клиенте для диагностики
type ClientInfo struct {
	Peer        network.PeerID
	Acked       uint64
	Sent        uint64
	ConnectedAt time.Time
}

// ServerStats счётчики серверной роли
type ServerStats struct {
	Clients         int
	Head            uint64
	LogLength       int
	IntentsAccepted uint64
	IntentsRejected uint64
	Resends         uint64
	Ticks           uint64
}

// Server серверная роль протокола синхронизации
type Server struct {
	world  *world.World
	sender network.Sender
	cfg    ServerConfig

	// log непрерывный журнал: log[i].Sequence == logBase+1+i
	log     []world.Mutation
	logBase uint64

	clients  map[network.PeerID]*clientCursor
	tick     uint64
	external chan externalIntent

	accepted uint64
	rejected uint64
	resends  uint64

	metrics *serverMetrics
	tracer  trace.Tracer
	logger  *logging.Logger
}

// NewServer создаёт серверную роль поверх авторитетного мира
func NewServer(w *world.World, sender network.Sender, cfg ServerConfig) (*Server, error) {
	if !w.Authoritative() {
		return nil, world.ErrNotAuthoritative
	}
	if cfg.ResendAfterTicks == 0 {
		cfg.ResendAfterTicks = 30
	}
	if cfg.MaxFramesPerPacket <= 0 {
		cfg.MaxFramesPerPacket = 256
	}
	if cfg.IntentQueueSize <= 0 {
		cfg.IntentQueueSize = 256
	}
	if cfg.Compressor == nil {
		cfg.Compressor = NewPassthroughCompressor()
	}

	s := &Server{
		world:    w,
		sender:   sender,
		cfg:      cfg,
		logBase:  w.LastSequence(),
		clients:  make(map[network.PeerID]*clientCursor),
		external: make(chan externalIntent, cfg.IntentQueueSize),
		metrics:  newServerMetrics(cfg.Registerer),
		tracer:   otel.Tracer("github.com/annel0/voxel-world/internal/sync"),
		logger:   logging.GetSyncLogger(),
	}
	return s, nil
}

// head последний номер в журнале
func (s *Server) head() uint64 {
	return s.logBase + uint64(len(s.log))
}

// Connect регистрирует клиента. Клиент получает точку начала потока и снимки
// всех загруженных чанков на текущем номере; дальше ему идут только новые мутации.
func (s *Server) Connect(peer network.PeerID) {
	s.absorb()
	head := s.head()

	c := &clientCursor{
		peer:             peer,
		acked:            head,
		sent:             head,
		lastProgressTick: s.tick,
		connectedAt:      time.Now(),
	}
	c.pending = append(c.pending, protocol.AckFrame(head))
	for _, coord := range s.world.LoadedChunks() {
		c.pending = append(c.pending, s.chunkFrame(coord, head))
	}

	if _, exists := s.clients[peer]; exists {
		s.logger.Warn("Клиент %s переподключился, курсор сброшен", peer)
	}
	s.clients[peer] = c
	s.metrics.clients.Set(float64(len(s.clients)))
	s.logger.Info("🔗 Клиент %s подключён (head=%d, чанков=%d)", peer, head, len(c.pending)-1)
}

// Disconnect удаляет клиента; его курсор больше не держит журнал
func (s *Server) Disconnect(peer network.PeerID) {
	if _, ok := s.clients[peer]; !ok {
		return
	}
	delete(s.clients, peer)
	s.metrics.clients.Set(float64(len(s.clients)))
	s.trim()
	s.logger.Info("Клиент %s отключён", peer)
}

// BroadcastChunks ставит снимки чанков в очередь всем клиентам.
// Tick сам рассылает чанки, поднятые миром из хранилища или якорями.
func (s *Server) BroadcastChunks(coords []vec.Vec3) {
	if len(coords) == 0 || len(s.clients) == 0 {
		return
	}
	s.absorb()
	head := s.head()
	frames := make([]protocol.Frame, 0, len(coords))
	for _, coord := range coords {
		if _, ok := s.world.Chunk(coord); ok {
			frames = append(frames, s.chunkFrame(coord, head))
		}
	}
	for _, c := range s.clients {
		c.pending = append(c.pending, frames...)
	}
}

func (s *Server) chunkFrame(coord vec.Vec3, head uint64) protocol.Frame {
	c, _ := s.world.Chunk(coord)
	return protocol.ChunkDataFrame(head, protocol.ChunkData{Coord: coord, Blocks: c.Blocks()})
}

// HandlePacket разбирает пакет клиента: подтверждения и намерения
func (s *Server) HandlePacket(ctx context.Context, peer network.PeerID, data []byte) error {
	c, ok := s.clients[peer]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, peer)
	}
	frames, err := s.cfg.Compressor.Decompress(data)
	if err != nil {
		return fmt.Errorf("пакет от %s: %w", peer, err)
	}

	for _, f := range frames {
		switch f.Kind {
		case protocol.KindAck:
			s.handleAck(c, f.Sequence)
		case protocol.KindIntent:
			in, err := protocol.DecodeIntent(f)
			if err != nil {
				logging.LogProtocolError(s.logger, string(peer), err, f.Payload)
				continue
			}
			s.applyIntent(in, string(peer))
		default:
			s.logger.Warn("Клиент %s прислал кадр %s, игнорируем", peer, f.Kind)
		}
	}
	return nil
}

func (s *Server) handleAck(c *clientCursor, seq uint64) {
	if seq > s.head() {
		seq = s.head()
	}
	if seq <= c.acked {
		return
	}
	c.acked = seq
	if c.sent < seq {
		c.sent = seq
	}
	c.lastProgressTick = s.tick
}

// SubmitIntent ставит намерение в очередь из любой горутины;
// оно будет применено в начале следующего тика
func (s *Server) SubmitIntent(in protocol.Intent, source string) error {
	select {
	case s.external <- externalIntent{intent: in, source: source}:
		return nil
	default:
		return ErrIntentQueueFull
	}
}

// validateIntent возвращает причину отказа или пустую строку
func (s *Server) validateIntent(in protocol.Intent) string {
	reg := s.world.Registry()
	if !reg.IsValidBlockID(in.Block) {
		return RejectUnknownBlock
	}
	if !s.world.InBounds(in.Pos) {
		return RejectOutOfBounds
	}

	// выгруженный чанк читался бы как воздух
	s.world.EnsureLoaded(in.Pos)
	current := s.world.GetBlock(in.Pos)
	if in.Block == block.AirBlockID {
		if current == block.AirBlockID {
			return RejectEmpty
		}
		return ""
	}
	if current != block.AirBlockID {
		return RejectOccupied
	}
	if s.cfg.Overlap != nil && reg.IsSolid(in.Block) {
		if box, ok := physics.BlockAABB(reg, in.Block, in.Pos); ok && s.cfg.Overlap.Overlaps(box) {
			return RejectEntity
		}
	}
	return ""
}

// applyIntent применяет допустимое намерение или выпускает поправку с
// текущим значением позиции. В обоих случаях в поток уходит ровно одна мутация.
func (s *Server) applyIntent(in protocol.Intent, source string) {
	reason := s.validateIntent(in)
	if reason == "" {
		if err := s.world.SetBlock(in.Pos, in.Block); err != nil {
			s.logger.Warn("Намерение %s#%d в %v не применено: %v", source, in.TempID, in.Pos, err)
			reason = RejectWorld
		} else {
			s.accepted++
			s.metrics.intentsAccepted.Inc()
			return
		}
	}

	s.rejected++
	s.metrics.intentsRejected.WithLabelValues(reason).Inc()
	m, err := s.world.EmitCorrection(in.Pos)
	if err != nil {
		s.logger.Error("Не удалось выпустить поправку для %v: %v", in.Pos, err)
		return
	}
	s.logger.Debug("Намерение %s#%d (%d в %v) отклонено: %s, поправка #%d",
		source, in.TempID, in.Block, in.Pos, reason, m.Sequence)
}

func (s *Server) drainExternal() {
	for {
		select {
		case ext := <-s.external:
			s.applyIntent(ext.intent, ext.source)
		default:
			return
		}
	}
}

// absorb переносит исходящие мутации мира в журнал
func (s *Server) absorb() {
	muts := s.world.DrainOutbox()
	if len(muts) == 0 {
		return
	}
	s.log = append(s.log, muts...)
	if s.cfg.Sink != nil {
		s.cfg.Sink.PublishMutations(muts)
	}
}

// Tick применяет отложенные намерения, рассылает новые мутации, повторяет
// неподтверждённые и укорачивает журнал
func (s *Server) Tick(ctx context.Context) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "sync.Server.Tick")
	defer span.End()

	s.tick++
	s.drainExternal()
	s.absorb()
	s.BroadcastChunks(s.world.DrainLoaded())

	peers := make([]network.PeerID, 0, len(s.clients))
	for peer := range s.clients {
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })

	sent := 0
	for _, peer := range peers {
		sent += s.flushClient(ctx, s.clients[peer])
	}
	s.trim()

	span.SetAttributes(
		attribute.Int("sync.clients", len(peers)),
		attribute.Int("sync.frames_sent", sent),
		attribute.Int64("sync.head", int64(s.head())),
	)
	s.metrics.tickSeconds.Observe(time.Since(start).Seconds())
}

// flushClient отправляет клиенту всё после курсора sent; возвращает число кадров
func (s *Server) flushClient(ctx context.Context, c *clientCursor) int {
	if c.acked < c.sent && s.tick-c.lastProgressTick >= s.cfg.ResendAfterTicks {
		s.logger.Debug("Клиент %s не подтвердил %d..%d, повторяем", c.peer, c.acked+1, c.sent)
		c.sent = c.acked
		c.lastProgressTick = s.tick
		s.resends++
		s.metrics.resends.Inc()
	}

	head := s.head()
	if c.acked == c.sent && head > c.sent {
		// ожидание подтверждения начинается с первой отправки
		c.lastProgressTick = s.tick
	}

	frames := c.pending
	for seq := c.sent + 1; seq <= head; seq++ {
		frames = append(frames, protocol.MutationFrame(s.log[seq-s.logBase-1]))
	}
	if len(frames) == 0 {
		return 0
	}

	total := 0
	for len(frames) > 0 {
		n := min(len(frames), s.cfg.MaxFramesPerPacket)
		chunk := frames[:n]
		data, err := s.cfg.Compressor.Compress(chunk)
		if err == nil {
			err = s.sender.SendReliable(ctx, c.peer, data)
		}
		if err != nil {
			s.metrics.sendErrors.Inc()
			s.logger.Warn("Отправка клиенту %s не удалась: %v", c.peer, err)
			break
		}
		s.metrics.packetsSent.Inc()
		for _, f := range chunk {
			if f.Kind == protocol.KindMutation {
				c.sent = f.Sequence
				s.metrics.mutationsSent.Inc()
			}
		}
		frames = frames[n:]
		total += n
	}

	// неотправленный хвост вне журнала остаётся до следующего тика
	pendingLeft := 0
	for _, f := range frames {
		if f.Kind != protocol.KindMutation {
			pendingLeft++
		}
	}
	if pendingLeft == 0 {
		c.pending = nil
	} else {
		c.pending = c.pending[len(c.pending)-pendingLeft:]
	}
	return total
}

// trim удаляет из журнала мутации, подтверждённые всеми клиентами
func (s *Server) trim() {
	floor := s.head()
	for _, c := range s.clients {
		if c.acked < floor {
			floor = c.acked
		}
	}
	if drop := floor - s.logBase; drop > 0 {
		s.log = append(s.log[:0:0], s.log[drop:]...)
		s.logBase = floor
	}
	s.metrics.logLength.Set(float64(len(s.log)))
}

// Clients возвращает курсоры клиентов в порядке сортировки
func (s *Server) Clients() []ClientInfo {
	out := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, ClientInfo{Peer: c.peer, Acked: c.acked, Sent: c.sent, ConnectedAt: c.connectedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer < out[j].Peer })
	return out
}

// Stats возвращает счётчики сервера. Вызывается из горутины тика.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Clients:         len(s.clients),
		Head:            s.head(),
		LogLength:       len(s.log),
		IntentsAccepted: s.accepted,
		IntentsRejected: s.rejected,
		Resends:         s.resends,
		Ticks:           s.tick,
	}
}
