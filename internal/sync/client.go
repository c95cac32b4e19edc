package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/network"
	"github.com/annel0/voxel-world/internal/protocol"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

// EventReconciliationMismatch тип события расхождения предсказания с сервером
const EventReconciliationMismatch = "ReconciliationMismatch"

// ClientConfig параметры клиентской роли
type ClientConfig struct {
	// PredictionTimeoutTicks через сколько тиков без ответа предсказание
	// откатывается (по умолчанию 120)
	PredictionTimeoutTicks uint64
	// ReorderLimit сколько мутаций можно держать в ожидании пропуска (по умолчанию 4096)
	ReorderLimit int
	Compressor   Compressor
	// Bus шина телеметрии для событий расхождения (может быть nil)
	Bus eventbus.EventBus
	// Source имя источника событий в шине
	Source     string
	Registerer prometheus.Registerer
}

// Prediction локальное неподтверждённое изменение
type Prediction struct {
	TempID uint64
	Pos    vec.Vec3
	Block  block.BlockID
	Tick   uint64
}

// MismatchEvent полезная нагрузка события ReconciliationMismatch
type MismatchEvent struct {
	TempID        uint64        `json:"temp_id"`
	Pos           vec.Vec3      `json:"pos"`
	Predicted     block.BlockID `json:"predicted"`
	Authoritative block.BlockID `json:"authoritative"`
	Sequence      uint64        `json:"sequence"`
}

// ClientStats счётчики клиентской роли
type ClientStats struct {
	Applied    uint64
	Confirmed  uint64
	Mismatches uint64
	Expired    uint64
	Duplicates uint64
	Buffered   uint64
	Pending    int
	LastAcked  uint64
}

// Client клиентская роль: предсказание и сверка с авторитетным потоком
type Client struct {
	world  *world.World
	sender network.Sender
	server network.PeerID
	cfg    ClientConfig

	// pending предсказания в порядке создания
	pending    []Prediction
	nextTempID uint64
	// authoritative последнее известное серверное значение координат,
	// под которыми есть предсказания
	authoritative map[vec.Vec3]block.BlockID

	seq     *sequencer
	ackSent uint64
	intents []protocol.Frame
	tick    uint64

	stats   ClientStats
	metrics *clientMetrics
	logger  *logging.Logger
}

// NewClient создаёт клиентскую роль поверх локального (неавторитетного) мира
func NewClient(w *world.World, sender network.Sender, server network.PeerID, cfg ClientConfig) *Client {
	if cfg.PredictionTimeoutTicks == 0 {
		cfg.PredictionTimeoutTicks = 120
	}
	if cfg.Compressor == nil {
		cfg.Compressor = NewPassthroughCompressor()
	}
	if cfg.Source == "" {
		cfg.Source = "client"
	}
	return &Client{
		world:         w,
		sender:        sender,
		server:        server,
		cfg:           cfg,
		authoritative: make(map[vec.Vec3]block.BlockID),
		seq:           newSequencer(cfg.ReorderLimit),
		metrics:       newClientMetrics(cfg.Registerer),
		logger:        logging.GetSyncLogger(),
	}
}

// PlaceBlock применяет действие игрока сразу и ставит намерение в очередь
// отправки. Возвращает временный идентификатор предсказания.
func (c *Client) PlaceBlock(pos vec.Vec3, id block.BlockID) (uint64, error) {
	if !c.world.Registry().IsValidBlockID(id) {
		return 0, fmt.Errorf("%w: %d", world.ErrInvalidBlockType, id)
	}
	if !c.world.InBounds(pos) {
		return 0, fmt.Errorf("%w: %v", world.ErrOutOfRange, pos)
	}

	baseline, tracked := c.authoritative[pos]
	if !tracked {
		baseline = c.world.GetBlock(pos)
	}
	if err := c.world.SetBlock(pos, id); err != nil {
		return 0, err
	}
	c.authoritative[pos] = baseline

	c.nextTempID++
	p := Prediction{TempID: c.nextTempID, Pos: pos, Block: id, Tick: c.tick}
	c.pending = append(c.pending, p)
	c.intents = append(c.intents, protocol.IntentFrame(protocol.Intent{TempID: p.TempID, Pos: pos, Block: id}))
	c.metrics.pending.Set(float64(len(c.pending)))
	return p.TempID, nil
}

// HandlePacket применяет пакет сервера
func (c *Client) HandlePacket(ctx context.Context, data []byte) error {
	frames, err := c.cfg.Compressor.Decompress(data)
	if err != nil {
		return fmt.Errorf("пакет сервера: %w", err)
	}
	for _, f := range frames {
		c.HandleFrame(ctx, f)
	}
	return nil
}

// HandleFrame применяет один кадр сервера
func (c *Client) HandleFrame(ctx context.Context, f protocol.Frame) {
	switch f.Kind {
	case protocol.KindMutation:
		m, err := protocol.DecodeMutation(f)
		if err != nil {
			logging.LogProtocolError(c.logger, string(c.server), err, f.Payload)
			return
		}
		c.handleMutation(ctx, m)
	case protocol.KindAck:
		// сервер сообщает, что поток для нас начинается после f.Sequence
		c.applyRun(ctx, c.seq.advance(f.Sequence))
	case protocol.KindChunkData:
		cd, err := protocol.DecodeChunkData(f)
		if err != nil {
			logging.LogProtocolError(c.logger, string(c.server), err, f.Payload)
			return
		}
		c.handleChunkData(f.Sequence, cd)
	default:
		c.logger.Warn("Сервер прислал кадр %s, игнорируем", f.Kind)
	}
}

func (c *Client) handleMutation(ctx context.Context, m world.Mutation) {
	run, res := c.seq.offer(m)
	switch res {
	case offerDuplicate:
		c.stats.Duplicates++
		c.metrics.duplicates.Inc()
	case offerBuffered:
		c.stats.Buffered++
		c.metrics.gaps.Inc()
		c.logger.Trace("Мутация #%d ждёт пропуск после #%d", m.Sequence, c.seq.last)
	case offerOverflow:
		c.logger.Warn("Буфер перестановки переполнен, мутация #%d отброшена до повтора", m.Sequence)
	}
	c.applyRun(ctx, run)
}

func (c *Client) applyRun(ctx context.Context, run []world.Mutation) {
	for _, m := range run {
		c.apply(ctx, m)
	}
}

// apply применяет авторитетную мутацию и сверяет её со старейшим
// предсказанием в той же координате. Остальные предсказания не трогаются.
func (c *Client) apply(ctx context.Context, m world.Mutation) {
	c.stats.Applied++
	c.metrics.applied.Inc()

	idx := c.oldestPending(m.Pos)
	if idx < 0 {
		c.setLocal(m.Pos, m.Block)
		return
	}

	p := c.pending[idx]
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
	c.metrics.pending.Set(float64(len(c.pending)))

	if p.Block == m.Block {
		c.stats.Confirmed++
		c.metrics.confirmed.Inc()
	} else {
		c.stats.Mismatches++
		c.metrics.mismatches.Inc()
		c.logger.Debug("Предсказание #%d в %v: ожидали %d, сервер %d (#%d)",
			p.TempID, p.Pos, p.Block, m.Block, m.Sequence)
		c.publishMismatch(ctx, p, m)
	}

	c.authoritative[m.Pos] = m.Block
	c.settle(m.Pos)
}

// settle выставляет в координате новейшее оставшееся предсказание, а если
// их нет, последнее авторитетное значение
func (c *Client) settle(pos vec.Vec3) {
	if i := c.newestPending(pos); i >= 0 {
		c.setLocal(pos, c.pending[i].Block)
		return
	}
	value := c.authoritative[pos]
	delete(c.authoritative, pos)
	c.setLocal(pos, value)
}

func (c *Client) handleChunkData(seq uint64, cd protocol.ChunkData) {
	if seq < c.seq.last {
		c.logger.Debug("Снимок чанка %v на #%d старше применённого #%d, пропускаем", cd.Coord, seq, c.seq.last)
		return
	}
	if err := c.world.LoadChunkData(cd.Coord, cd.Blocks); err != nil {
		c.logger.Warn("Снимок чанка %v не применён: %v", cd.Coord, err)
		return
	}

	// снимок задаёт новую авторитетную базу, предсказания ложатся поверх
	seen := make(map[vec.Vec3]bool)
	for _, p := range c.pending {
		if p.Pos.ToChunkCoords() != cd.Coord || seen[p.Pos] {
			continue
		}
		seen[p.Pos] = true
		c.authoritative[p.Pos] = cd.Blocks[world.BlockIndex(p.Pos.LocalInChunk())]
		c.setLocal(p.Pos, c.pending[c.newestPending(p.Pos)].Block)
	}
}

// Tick откатывает просроченные предсказания и отправляет намерения и
// подтверждение
func (c *Client) Tick(ctx context.Context) error {
	c.tick++
	c.expirePredictions()

	frames := c.intents
	ack := c.seq.last
	if ack > c.ackSent {
		frames = append(frames, protocol.AckFrame(ack))
	}
	if len(frames) == 0 {
		return nil
	}

	data, err := c.cfg.Compressor.Compress(frames)
	if err == nil {
		err = c.sender.SendReliable(ctx, c.server, data)
	}
	if err != nil {
		return fmt.Errorf("отправка серверу: %w", err)
	}
	c.intents = nil
	c.ackSent = ack
	return nil
}

// Hello отправляет текущее подтверждение без условий. Транспорты без
// рукопожатия (KCP) узнают о клиенте только по первому пакету от него.
func (c *Client) Hello(ctx context.Context) error {
	ack := c.seq.last
	data, err := c.cfg.Compressor.Compress([]protocol.Frame{protocol.AckFrame(ack)})
	if err == nil {
		err = c.sender.SendReliable(ctx, c.server, data)
	}
	if err != nil {
		return fmt.Errorf("приветствие серверу: %w", err)
	}
	c.ackSent = ack
	return nil
}

func (c *Client) expirePredictions() {
	if len(c.pending) == 0 || c.tick < c.cfg.PredictionTimeoutTicks {
		return
	}
	deadline := c.tick - c.cfg.PredictionTimeoutTicks

	kept := c.pending[:0]
	var expired []Prediction
	for _, p := range c.pending {
		if p.Tick <= deadline {
			expired = append(expired, p)
			continue
		}
		kept = append(kept, p)
	}
	if len(expired) == 0 {
		return
	}
	c.pending = kept
	c.metrics.pending.Set(float64(len(c.pending)))

	for _, p := range expired {
		c.stats.Expired++
		c.metrics.expired.Inc()
		c.logger.Debug("Предсказание #%d в %v не подтверждено за %d тиков, откат",
			p.TempID, p.Pos, c.cfg.PredictionTimeoutTicks)
		if _, tracked := c.authoritative[p.Pos]; tracked {
			c.settle(p.Pos)
		}
	}
}

func (c *Client) setLocal(pos vec.Vec3, id block.BlockID) {
	if err := c.world.SetBlock(pos, id); err != nil {
		c.logger.Warn("Не удалось применить блок %d в %v: %v", id, pos, err)
	}
}

func (c *Client) oldestPending(pos vec.Vec3) int {
	for i, p := range c.pending {
		if p.Pos == pos {
			return i
		}
	}
	return -1
}

func (c *Client) newestPending(pos vec.Vec3) int {
	for i := len(c.pending) - 1; i >= 0; i-- {
		if c.pending[i].Pos == pos {
			return i
		}
	}
	return -1
}

func (c *Client) publishMismatch(ctx context.Context, p Prediction, m world.Mutation) {
	if c.cfg.Bus == nil {
		return
	}
	payload, err := json.Marshal(MismatchEvent{
		TempID:        p.TempID,
		Pos:           p.Pos,
		Predicted:     p.Block,
		Authoritative: m.Block,
		Sequence:      m.Sequence,
	})
	if err != nil {
		return
	}
	ev := &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    c.cfg.Source,
		EventType: EventReconciliationMismatch,
		Version:   1,
		Priority:  2,
		Payload:   payload,
	}
	if err := c.cfg.Bus.Publish(ctx, ev); err != nil {
		c.logger.Debug("Событие расхождения не опубликовано: %v", err)
	}
}

// Pending копия неподтверждённых предсказаний
func (c *Client) Pending() []Prediction {
	out := make([]Prediction, len(c.pending))
	copy(out, c.pending)
	return out
}

// LastAcked последний применённый номер авторитетного потока
func (c *Client) LastAcked() uint64 { return c.seq.last }

// Stats возвращает счётчики клиента
func (c *Client) Stats() ClientStats {
	s := c.stats
	s.Pending = len(c.pending)
	s.LastAcked = c.seq.last
	return s
}
