package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/voxel-world/internal/api"
	"github.com/annel0/voxel-world/internal/auth"
	"github.com/annel0/voxel-world/internal/config"
	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/network"
	"github.com/annel0/voxel-world/internal/observability"
	"github.com/annel0/voxel-world/internal/physics"
	"github.com/annel0/voxel-world/internal/storage"
	vsync "github.com/annel0/voxel-world/internal/sync"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или VOXEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := logging.InitDefaultLoggerWith("server", cfg.Telemetry.LogDir, logging.ParseLevel(cfg.Telemetry.LogLevel)); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	if err := logging.Components().ApplyLevels(cfg.Telemetry.LogLevels); err != nil {
		log.Fatalf("❌ Ошибка в telemetry.log_levels: %v", err)
	}

	logging.Info("🎮 Запуск сервера воксельного мира...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === ТРАССИРОВКА ===
	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			SampleRatio: cfg.Telemetry.SampleRatio,
			Insecure:    true,
		})
		if err != nil {
			logging.Warn("⚠️ OpenTelemetry не инициализирован: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	// === РЕЕСТР БЛОКОВ ===
	registry := block.DefaultRegistry()
	if cfg.World.Catalog != "" {
		// нарушение инвариантов реестра фатально
		registry, err = block.LoadRegistry(cfg.World.Catalog)
		if err != nil {
			log.Fatalf("❌ Ошибка загрузки каталога блоков %s: %v", cfg.World.Catalog, err)
		}
	}
	logging.Info("🧱 Реестр блоков: %d типов", registry.Len())

	// === ХРАНИЛИЩЕ ===
	store, closeStore, gc := openStore(cfg.Storage)
	defer closeStore()

	var bounds *world.Bounds
	if cfg.World.Bounded() {
		bounds = &world.Bounds{
			Min: vec.Vec3{X: cfg.World.MinX, Y: cfg.World.MinY, Z: cfg.World.MinZ},
			Max: vec.Vec3{X: cfg.World.MaxX, Y: cfg.World.MaxY, Z: cfg.World.MaxZ},
		}
	}
	w := world.NewWorld(registry, world.Options{Authoritative: true, Bounds: bounds, Store: store})

	// === МЕТРИКИ ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// === ШИНА СОБЫТИЙ ===
	bus := eventbus.NewMemoryBus(cfg.EventBus.Capacity)
	defer bus.Close()
	eventbus.Init(bus)
	if _, err := eventbus.NewMetricsExporter(bus, "local", reg); err != nil {
		logging.Warn("⚠️ Метрики шины не зарегистрированы: %v", err)
	}
	if _, err := eventbus.StartLoggingListener(bus, eventbus.Filter{}); err != nil {
		logging.Warn("⚠️ LoggingListener не запущен: %v", err)
	}
	if cfg.EventBus.URL != "" {
		js, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, time.Duration(cfg.EventBus.Retention)*time.Hour)
		if err != nil {
			logging.Error("❌ JetStream недоступен, события остаются локальными: %v", err)
		} else {
			defer js.Close()
			bridge, err := eventbus.NewBridge(bus, js, eventbus.Filter{}, 2*time.Second)
			if err != nil {
				logging.Error("❌ Мост в JetStream не запущен: %v", err)
			} else {
				defer bridge.Stop()
				if _, err := eventbus.NewMetricsExporter(js, "jetstream", reg); err != nil {
					logging.Warn("⚠️ Метрики JetStream не зарегистрированы: %v", err)
				}
				logging.Info("📨 События пересылаются в JetStream %s (stream=%s)", cfg.EventBus.URL, cfg.EventBus.Stream)
			}
		}
	}

	// === СИНХРОНИЗАЦИЯ ===
	syncMgr, err := vsync.NewSyncManager(vsync.SyncConfig{
		RegionID:       cfg.Sync.RegionID,
		Bus:            bus,
		BatchSize:      cfg.Sync.BatchSize,
		FlushEvery:     time.Duration(cfg.Sync.FlushEveryMillis) * time.Millisecond,
		UseCompression: cfg.Sync.UseCompression,
		Registry:       registry,
		Store:          store,
	})
	if err != nil {
		log.Fatalf("❌ Ошибка создания SyncManager: %v", err)
	}
	defer syncMgr.Stop()

	compressor := vsync.NewPassthroughCompressor()
	if cfg.Sync.UseCompression {
		compressor, err = vsync.NewZstdCompressor(cfg.Sync.CompressThreshold)
		if err != nil {
			log.Fatalf("❌ Ошибка создания компрессора: %v", err)
		}
	}

	nm := network.NewNetworkManager()
	defer nm.Close()
	reg.MustRegister(nm)

	entities := physics.NewEntityIndex()
	server, err := vsync.NewServer(w, nm, vsync.ServerConfig{
		ResendAfterTicks:   uint64(cfg.Sync.ResendAfterTicks),
		MaxFramesPerPacket: cfg.Sync.MaxFramesPerPacket,
		IntentQueueSize:    cfg.Sync.IntentQueueSize,
		Compressor:         compressor,
		Overlap:            entities,
		Sink:               syncMgr.Sink(),
		Registerer:         reg,
	})
	if err != nil {
		log.Fatalf("❌ Ошибка создания сервера синхронизации: %v", err)
	}

	// === ТРАНСПОРТЫ ===
	kcpAddr := cfg.Server.Addr(cfg.Server.GetKCPPort())
	kcpT, err := network.ListenKCP(kcpAddr)
	if err != nil {
		log.Fatalf("❌ Ошибка запуска KCP на %s: %v", kcpAddr, err)
	}
	nm.Add("kcp", kcpT)

	wsT := network.NewWSServer()
	nm.Add("ws", wsT)

	// === REST API ===
	issuer, err := auth.NewTokenIssuer(cfg.Server.GetJWTSecret(), 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Ошибка настройки JWT: %v", err)
	}
	if cfg.Server.GetJWTSecret() == "" {
		if token, err := issuer.Issue("bootstrap", true); err == nil {
			logging.Warn("🔑 Секрет JWT не задан, временный токен администратора: %s", token)
		}
	}

	board := &api.StatusBoard{}
	restAddr := cfg.Server.Addr(cfg.Server.GetRESTPort())
	rest, err := api.NewRestServer(api.Config{
		Addr:       restAddr,
		Issuer:     issuer,
		Intents:    server,
		Blocks:     syncMgr.Mirror(),
		Registry:   registry,
		Status:     board,
		Registerer: reg,
		Gatherer:   reg,
		WSHandler:  wsT.Handler(),
	})
	if err != nil {
		log.Fatalf("❌ Ошибка создания REST API: %v", err)
	}
	go func() {
		if err := rest.Start(); err != nil {
			logging.Error("❌ REST API остановлен с ошибкой: %v", err)
		}
	}()

	var metricsSrv *http.Server
	if port := cfg.Server.GetMetricsPort(); port > 0 {
		metricsSrv = &http.Server{
			Addr:              cfg.Server.Addr(port),
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logging.Info("📈 Prometheus /metrics доступен по адресу %s", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
			}
		}()
	}

	// === ЦИКЛ МИРА ===
	loop := &worldLoop{
		cfg:     cfg,
		world:   w,
		server:  server,
		network: nm,
		board:   board,
		bus:     bus,
		gc:      gc,
		anchors: []world.Anchor{{Position: vec.Vec3{}, Radius: cfg.World.AnchorRadius, MaxRadius: cfg.World.AnchorKeepRadius}},
		logger:  logging.GetWorldLogger(),
	}
	done := make(chan struct{})
	go func() {
		loop.run(ctx)
		close(done)
	}()

	_ = eventbus.Publish(ctx, eventbus.NewEnvelope(cfg.Sync.RegionID, "ServerStarted", 9, []byte(strconv.Itoa(os.Getpid()))))

	logging.Info("✅ Все сервисы запущены и готовы принимать соединения")
	logging.Info("   🎮 KCP: %s", kcpAddr)
	logging.Info("   🔌 WebSocket: ws://%s/ws", restAddr)
	logging.Info("   🌐 REST API: http://%s", restAddr)
	logging.Info("   ❤️  Health check: http://%s/health", restAddr)
	logging.Info("   📋 Логгеры: %s", strings.Join(logging.Components().Levels(), ", "))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	cancel()
	<-done

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := rest.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	saved := w.SaveAll()
	logging.Info("💾 Сохранено чанков при остановке: %d", saved)
	logging.Info("👋 Сервер успешно остановлен")
}

// openStore выбирает хранилище чанков по конфигурации.
// Возвращает хранилище, функцию закрытия и сборщик мусора (может быть nil).
func openStore(cfg config.StorageConfig) (world.ChunkStore, func(), func()) {
	var (
		base    world.ChunkStore
		closeFn = func() {}
		gc      func()
	)

	switch cfg.Backend {
	case "redis":
		rc := storage.DefaultRedisConfig()
		if cfg.RedisAddr != "" {
			rc.Addr = cfg.RedisAddr
		}
		rc.DB = cfg.RedisDB
		rs, err := storage.NewRedisStore(rc)
		if err != nil {
			log.Fatalf("❌ Ошибка подключения к Redis: %v", err)
		}
		base, closeFn = rs, func() { rs.Close() }
	case "memory":
		base = storage.NewMemoryStore()
	default:
		ws, err := storage.NewWorldStorage(cfg.DataPath)
		if err != nil {
			log.Fatalf("❌ Ошибка открытия BadgerDB: %v", err)
		}
		base, closeFn, gc = ws, func() { ws.Close() }, ws.RunGC
	}
	logging.Info("💽 Хранилище чанков: %s", cfg.Backend)

	if !cfg.Generate {
		return base, closeFn, gc
	}
	terrain := storage.DefaultTerrainConfig()
	terrain.Seed = cfg.Seed
	return storage.NewGeneratedStore(base, terrain), closeFn, gc
}
