package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/mesh"
	"github.com/annel0/voxel-world/internal/meshcache"
	"github.com/annel0/voxel-world/internal/network"
	vsync "github.com/annel0/voxel-world/internal/sync"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

// Безголовый клиент: предсказывает установку блоков, принимает поток мутаций
// сервера и строит меши видимых чанков в логирующий рендерер.
func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или VOXEL_CONFIG)")
	addr := flag.String("server", "127.0.0.1:7777", "адрес сервера: host:port для KCP или ws://host:port/ws")
	placeEvery := flag.Duration("place-every", time.Second, "период случайной установки блока (0 = не ставить)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed случайных действий")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if err := logging.InitDefaultLoggerWith("client", cfg.Telemetry.LogDir, logging.ParseLevel(cfg.Telemetry.LogLevel)); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	if err := logging.Components().ApplyLevels(cfg.Telemetry.LogLevels); err != nil {
		log.Fatalf("❌ Ошибка в telemetry.log_levels: %v", err)
	}

	registry := block.DefaultRegistry()
	if cfg.World.Catalog != "" {
		registry, err = block.LoadRegistry(cfg.World.Catalog)
		if err != nil {
			log.Fatalf("❌ Ошибка загрузки каталога блоков %s: %v", cfg.World.Catalog, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := dial(ctx, *addr)
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к %s: %v", *addr, err)
	}
	defer transport.Close()
	logging.Info("🔌 Подключено к серверу %s", *addr)

	var bounds *world.Bounds
	if cfg.World.Bounded() {
		bounds = &world.Bounds{
			Min: vec.Vec3{X: cfg.World.MinX, Y: cfg.World.MinY, Z: cfg.World.MinZ},
			Max: vec.Vec3{X: cfg.World.MaxX, Y: cfg.World.MaxY, Z: cfg.World.MaxZ},
		}
	}
	w := world.NewWorld(registry, world.Options{Bounds: bounds})

	bus := eventbus.NewMemoryBus(cfg.EventBus.Capacity)
	defer bus.Close()
	if _, err := eventbus.StartLoggingListener(bus, eventbus.Filter{Types: []string{vsync.EventReconciliationMismatch}}); err != nil {
		logging.Warn("⚠️ LoggingListener не запущен: %v", err)
	}

	compressor := vsync.NewPassthroughCompressor()
	if cfg.Sync.UseCompression {
		if compressor, err = vsync.NewZstdCompressor(cfg.Sync.CompressThreshold); err != nil {
			log.Fatalf("❌ Ошибка создания компрессора: %v", err)
		}
	}
	client := vsync.NewClient(w, transport, network.ServerPeer, vsync.ClientConfig{
		PredictionTimeoutTicks: uint64(cfg.Sync.PredictionTimeoutTicks),
		ReorderLimit:           cfg.Sync.ReorderLimit,
		Compressor:             compressor,
		Bus:                    bus,
		Source:                 "client",
	})

	if err := client.Hello(ctx); err != nil {
		log.Fatalf("❌ Не удалось отправить приветствие серверу: %v", err)
	}

	renderer := newLogRenderer(logging.GetMeshLogger())
	cache := meshcache.New(mesh.NewBuilder(registry), renderer, meshcache.Config{Workers: cfg.Mesh.Workers})
	w.AddDirtyListener(cache)
	cache.Start(ctx)
	defer cache.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	rng := rand.New(rand.NewSource(*seed))
	ids := registry.IDs()
	view := cfg.Mesh.ViewRadius

	ticker := time.NewTicker(cfg.World.TickInterval())
	defer ticker.Stop()
	var placeC <-chan time.Time
	if *placeEvery > 0 {
		placeTicker := time.NewTicker(*placeEvery)
		defer placeTicker.Stop()
		placeC = placeTicker.C
	}

	var lastReport time.Time
	for {
		select {
		case sig := <-sigCh:
			logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
			return
		case <-placeC:
			pos := vec.Vec3{X: rng.Intn(32) - 16, Y: rng.Intn(16), Z: rng.Intn(32) - 16}
			id := ids[rng.Intn(len(ids))]
			if tempID, err := client.PlaceBlock(pos, id); err != nil {
				logging.Debug("Установка %d в %v отклонена локально: %v", id, pos, err)
			} else {
				logging.Debug("🧱 Предсказание #%d: %d в %v", tempID, id, pos)
			}
		case <-ticker.C:
			for {
				p, ok := transport.TryReceive()
				if !ok {
					break
				}
				if err := client.HandlePacket(ctx, p.Data); err != nil {
					logging.LogProtocolError(logging.GetSyncLogger(), string(p.Peer), err, p.Data)
				}
			}
			if err := client.Tick(ctx); err != nil {
				logging.Warn("Отправка серверу не удалась: %v", err)
			}

			cache.Schedule(w, visibleChunks(w, view), cfg.Mesh.BuildsPerTick)
			cache.Collect(w)

			if time.Since(lastReport) >= 10*time.Second {
				lastReport = time.Now()
				cs := client.Stats()
				ms := cache.Stats()
				logging.Info("📊 acked=%d pending=%d mismatches=%d | меши: uploads=%d stale=%d | квадов на экране %d",
					client.LastAcked(), len(client.Pending()), cs.Mismatches, ms.Uploads, ms.Stale, renderer.Quads())
			}
		}
	}
}

// dial выбирает транспорт по схеме адреса
func dial(ctx context.Context, addr string) (network.Transport, error) {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		wt, err := network.DialWS(dctx, addr)
		if err != nil {
			return nil, err
		}
		return wt, nil
	}
	kt, err := network.DialKCP(dctx, addr)
	if err != nil {
		return nil, err
	}
	return kt, nil
}

// visibleChunks загруженные чанки в радиусе view от начала координат
func visibleChunks(w *world.World, view int) []vec.Vec3 {
	var out []vec.Vec3
	for _, c := range w.LoadedChunks() {
		if c.ChebyshevDistance(vec.Vec3{}) <= view {
			out = append(out, c)
		}
	}
	return out
}
