// Package api отладочная и административная HTTP-поверхность сервера мира.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxel-world/internal/auth"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/middleware"
	"github.com/annel0/voxel-world/internal/protocol"
	vsync "github.com/annel0/voxel-world/internal/sync"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// IntentSubmitter принимает административные намерения (sync.Server)
type IntentSubmitter interface {
	SubmitIntent(in protocol.Intent, source string) error
}

// BlockReader чтение блоков из реплики мира (sync.Mirror)
type BlockReader interface {
	GetBlock(pos vec.Vec3) block.BlockID
	LastSequence() uint64
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr       string // адрес для запуска сервера, например ":8088"
	Issuer     *auth.TokenIssuer
	Intents    IntentSubmitter
	Blocks     BlockReader
	Registry   *block.Registry
	Status     *StatusBoard
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// WSHandler если задан, обслуживает GET /ws (вебсокет-транспорт клиентов)
	WSHandler http.Handler
}

// RestServer представляет REST API сервер
type RestServer struct {
	router  *gin.Engine
	cfg     Config
	metrics *ServerMetrics
	httpSrv *http.Server
	logger  *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BlockRequest тело POST /api/admin/blocks
type BlockRequest struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Block uint16 `json:"block"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) (*RestServer, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}
	if cfg.Status == nil {
		cfg.Status = &StatusBoard{}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	logger := logging.GetComponentLogger("http")
	router.Use(otelgin.Middleware("rest_api"))
	router.Use(middleware.NewRequestLogger(logger).Handler())

	promMw, err := middleware.NewPrometheusMiddleware("rest_api", cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("метрики REST: %w", err)
	}
	router.Use(promMw.Handler())
	middleware.RegisterMetricsEndpoint(router, cfg.Gatherer)

	rs := &RestServer{
		router:  router,
		cfg:     cfg,
		metrics: NewServerMetrics(),
		logger:  logger,
	}
	rs.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)
	if rs.cfg.WSHandler != nil {
		rs.router.GET("/ws", gin.WrapH(rs.cfg.WSHandler))
	}

	api := rs.router.Group("/api")
	api.GET("/registry", rs.handleRegistry)

	if rs.cfg.Issuer == nil {
		rs.logger.Warn("REST: издатель токенов не задан, защищённые маршруты отключены")
		return
	}

	protected := api.Group("/")
	protected.Use(auth.RequireToken(rs.cfg.Issuer))
	{
		protected.GET("/stats", rs.handleStats)
		protected.GET("/blocks", rs.handleGetBlock)

		admin := protected.Group("/admin")
		admin.Use(auth.RequireAdmin())
		{
			admin.POST("/blocks", rs.handlePlaceBlock)
		}
	}
}

// Handler возвращает http.Handler роутера (для httptest)
func (rs *RestServer) Handler() http.Handler { return rs.router }

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleRegistry отдаёт каталог блоков
func (rs *RestServer) handleRegistry(c *gin.Context) {
	if rs.cfg.Registry == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: "Реестр блоков не подключён"})
		return
	}
	blocks := make([]block.Properties, 0, rs.cfg.Registry.Len())
	for _, id := range rs.cfg.Registry.IDs() {
		p, _ := rs.cfg.Registry.Get(id)
		blocks = append(blocks, p)
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Каталог блоков", Data: blocks})
}

// handleStats статистика процесса, мира и синхронизации
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})

	if ws, ok := rs.cfg.Status.Current(); ok {
		stats["world"] = ws
	}
	if rs.cfg.Blocks != nil {
		stats["mirror_sequence"] = rs.cfg.Blocks.LastSequence()
	}

	cpuPercent, _ := rs.metrics.GetCPUUsage()
	rss, _ := rs.metrics.GetRSS()
	stats["server"] = map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"rss_mb":      fmt.Sprintf("%.2f", rss),
		"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
		"server_time": time.Now().Unix(),
	}
	stats["memory_details"] = rs.metrics.GetDetailedMemoryStats()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// handleGetBlock GET /api/blocks?x=&y=&z= читает блок из реплики
func (rs *RestServer) handleGetBlock(c *gin.Context) {
	if rs.cfg.Blocks == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: "Реплика мира не подключена"})
		return
	}
	pos, err := parsePos(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блок получен",
		Data: gin.H{
			"x": pos.X, "y": pos.Y, "z": pos.Z,
			"block":    rs.cfg.Blocks.GetBlock(pos),
			"sequence": rs.cfg.Blocks.LastSequence(),
		},
	})
}

// handlePlaceBlock ставит административное намерение в очередь сервера.
// Ответ 202: применение или отказ произойдут в ближайшем тике.
func (rs *RestServer) handlePlaceBlock(c *gin.Context) {
	if rs.cfg.Intents == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: "Сервер синхронизации не подключён"})
		return
	}
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный формат запроса"})
		return
	}
	if rs.cfg.Registry != nil && !rs.cfg.Registry.IsValidBlockID(block.BlockID(req.Block)) {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: fmt.Sprintf("Неизвестный блок %d", req.Block)})
		return
	}

	claims, _ := auth.ClaimsFrom(c)
	source := "rest"
	if claims != nil {
		source = "rest:" + claims.Operator
	}
	in := protocol.Intent{Pos: vec.Vec3{X: req.X, Y: req.Y, Z: req.Z}, Block: block.BlockID(req.Block)}
	if err := rs.cfg.Intents.SubmitIntent(in, source); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, vsync.ErrIntentQueueFull) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, GenericResponse{Message: err.Error()})
		return
	}
	rs.logger.Info("🧱 %s: намерение %d в %v поставлено в очередь", source, req.Block, in.Pos)
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Намерение принято"})
}

func parsePos(c *gin.Context) (vec.Vec3, error) {
	var out [3]int
	for i, key := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(c.Query(key))
		if err != nil {
			return vec.Vec3{}, fmt.Errorf("параметр %s: %w", key, err)
		}
		out[i] = v
	}
	return vec.Vec3{X: out[0], Y: out[1], Z: out[2]}, nil
}

// Start запускает HTTP сервер; блокируется до Stop
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.cfg.Addr)
	err := rs.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop корректно останавливает сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.httpSrv.Shutdown(ctx)
}
