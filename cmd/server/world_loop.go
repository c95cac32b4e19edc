package main

import (
	"context"
	"time"

	"github.com/annel0/voxel-world/internal/api"
	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/network"
	vsync "github.com/annel0/voxel-world/internal/sync"
	"github.com/annel0/voxel-world/internal/world"
)

// worldLoop горутина тика: единственный владелец мира и серверной роли
type worldLoop struct {
	cfg     *config.Config
	world   *world.World
	server  *vsync.Server
	network *network.NetworkManager
	board   *api.StatusBoard
	bus     eventbus.EventBus
	gc      func()
	anchors []world.Anchor
	logger  *logging.Logger
}

func (l *worldLoop) run(ctx context.Context) {
	interval := l.cfg.World.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ticksPerSecond := uint64(time.Second / interval)
	if ticksPerSecond == 0 {
		ticksPerSecond = 1
	}
	saveEvery := uint64(l.cfg.World.SaveEverySeconds) * ticksPerSecond
	gcEvery := 600 * ticksPerSecond

	l.refreshAnchors()
	l.logger.Info("🌍 Цикл мира запущен: тик %s, загружено чанков %d", interval, l.world.ChunkCount())

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("🌍 Цикл мира остановлен на тике %d", tick)
			return
		case <-ticker.C:
		}
		tick++

		l.pollNetwork(ctx)
		if tick%ticksPerSecond == 0 {
			l.refreshAnchors()
		}
		l.server.Tick(ctx)

		if saveEvery > 0 && tick%saveEvery == 0 {
			if n := l.world.SaveAll(); n > 0 {
				l.logger.Debug("💾 Сохранено чанков: %d", n)
			}
		}
		if l.gc != nil && tick%gcEvery == 0 {
			l.gc()
		}
		l.publishStatus()
	}
}

// pollNetwork применяет подключения и входящие пакеты
func (l *worldLoop) pollNetwork(ctx context.Context) {
	events, packets := l.network.Poll(0)
	for _, ev := range events {
		if ev.Connected {
			l.server.Connect(ev.Peer)
			l.logger.Info("➕ Клиент %s подключён", ev.Peer)
		} else {
			l.server.Disconnect(ev.Peer)
			l.logger.Info("➖ Клиент %s отключён", ev.Peer)
		}
	}
	for _, p := range packets {
		if err := l.server.HandlePacket(ctx, p.Peer, p.Data); err != nil {
			logging.LogProtocolError(l.logger, string(p.Peer), err, p.Data)
		}
	}
}

// refreshAnchors подгружает чанки вокруг якорей; снимки новых чанков
// клиенты получат на ближайшем тике сервера
func (l *worldLoop) refreshAnchors() {
	upd := l.world.UpdateAnchors(l.anchors)
	if len(upd.Pinned) > 0 {
		l.logger.Debug("Якоря: %d чанков с блоками удержано в памяти", len(upd.Pinned))
	}
}

func (l *worldLoop) publishStatus() {
	l.board.Publish(api.WorldStatus{
		LoadedChunks:    l.world.ChunkCount(),
		MutationCounter: l.world.MutationCounter(),
		Sync:            l.server.Stats(),
		Clients:         l.server.Clients(),
		Bus:             l.bus.Metrics(),
	})
}
