package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера и клиента.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Sync      SyncConfig      `yaml:"sync"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// WorldConfig параметры мира
type WorldConfig struct {
	// Catalog путь к YAML-каталогу блоков; пусто: встроенный каталог
	Catalog string `yaml:"catalog"`
	// Границы мира в блоках (включительно). Нулевые границы: мир без ограничений.
	MinX int `yaml:"min_x"`
	MinY int `yaml:"min_y"`
	MinZ int `yaml:"min_z"`
	MaxX int `yaml:"max_x"`
	MaxY int `yaml:"max_y"`
	MaxZ int `yaml:"max_z"`
	// TickRate тиков в секунду
	TickRate     int `yaml:"tick_rate"`
	AnchorRadius int `yaml:"anchor_radius"`
	// AnchorKeepRadius радиус удержания загруженных чанков (не меньше AnchorRadius)
	AnchorKeepRadius int `yaml:"anchor_keep_radius"`
	// SaveEverySeconds период сохранения чанков
	SaveEverySeconds int `yaml:"save_every_seconds"`
}

// Bounded сообщает, заданы ли границы мира
func (w WorldConfig) Bounded() bool {
	return w.MinX != 0 || w.MinY != 0 || w.MinZ != 0 || w.MaxX != 0 || w.MaxY != 0 || w.MaxZ != 0
}

// TickInterval длительность одного тика
func (w WorldConfig) TickInterval() time.Duration {
	if w.TickRate <= 0 {
		return time.Second / 20
	}
	return time.Second / time.Duration(w.TickRate)
}

// MeshConfig параметры пайплайна мешей (клиент)
type MeshConfig struct {
	Workers       int `yaml:"workers"`
	BuildsPerTick int `yaml:"builds_per_tick"`
	ViewRadius    int `yaml:"view_radius"`
}

// SyncConfig параметры протокола синхронизации
type SyncConfig struct {
	RegionID               string `yaml:"region_id"`
	ResendAfterTicks       int    `yaml:"resend_after_ticks"`
	MaxFramesPerPacket     int    `yaml:"max_frames_per_packet"`
	IntentQueueSize        int    `yaml:"intent_queue_size"`
	PredictionTimeoutTicks int    `yaml:"prediction_timeout_ticks"`
	ReorderLimit           int    `yaml:"reorder_limit"`
	CompressThreshold      int    `yaml:"compress_threshold"`
	BatchSize              int    `yaml:"batch_size"`
	FlushEveryMillis       int    `yaml:"flush_every_millis"`
	UseCompression         bool   `yaml:"use_compression"`
}

// ServerConfig сетевые порты и доступ к админке.
// WebSocket-клиенты подключаются к REST-порту по пути /ws.
type ServerConfig struct {
	Host        string `yaml:"host"`
	KCPPort     int    `yaml:"kcp_port"`
	RESTPort    int    `yaml:"rest_port"`
	MetricsPort int    `yaml:"metrics_port"`
	JWTSecret   string `yaml:"jwt_secret"`
}

// GetKCPPort возвращает KCP порт с поддержкой fallback значений
func (s *ServerConfig) GetKCPPort() int {
	return getPortWithEnvFallback(s.KCPPort, "VOXEL_KCP_PORT", 7777)
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "VOXEL_REST_PORT", 8088)
}

// GetMetricsPort возвращает порт отдельного /metrics; 0: метрики только на REST
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "VOXEL_METRICS_PORT", 0)
}

// GetJWTSecret секрет подписи админских токенов: config -> env -> пусто
func (s *ServerConfig) GetJWTSecret() string {
	if s.JWTSecret != "" {
		return s.JWTSecret
	}
	return os.Getenv("VOXEL_JWT_SECRET")
}

// Addr собирает адрес host:port
func (s *ServerConfig) Addr(port int) string {
	return fmt.Sprintf("%s:%d", s.Host, port)
}

// StorageConfig хранилище чанков
type StorageConfig struct {
	// Backend: badger | redis | memory
	Backend   string `yaml:"backend"`
	DataPath  string `yaml:"data_path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	Seed      int64  `yaml:"seed"`
	// Generate включает генерацию рельефа для отсутствующих чанков
	Generate bool `yaml:"generate"`
}

// EventBusConfig внешний брокер событий; пустой URL: только локальная шина
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Capacity  int    `yaml:"capacity"`
}

// TelemetryConfig трассировка OpenTelemetry
type TelemetryConfig struct {
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
	LogLevel     string  `yaml:"log_level"`
	LogDir       string  `yaml:"log_dir"`
	// LogLevels пороги отдельных компонентов поверх LogLevel, например sync: debug
	LogLevels map[string]string `yaml:"log_levels"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		World: WorldConfig{
			MinX: -4096, MinY: -64, MinZ: -4096,
			MaxX: 4095, MaxY: 255, MaxZ: 4095,
			TickRate:         20,
			AnchorRadius:     2,
			AnchorKeepRadius: 3,
			SaveEverySeconds: 30,
		},
		Mesh: MeshConfig{Workers: 4, BuildsPerTick: 8, ViewRadius: 2},
		Sync: SyncConfig{
			RegionID:               "region-0",
			ResendAfterTicks:       30,
			MaxFramesPerPacket:     256,
			IntentQueueSize:        256,
			PredictionTimeoutTicks: 120,
			ReorderLimit:           4096,
			CompressThreshold:      512,
			BatchSize:              256,
			FlushEveryMillis:       250,
			UseCompression:         true,
		},
		Storage: StorageConfig{Backend: "badger", DataPath: "data", Seed: 1, Generate: true},
		EventBus: EventBusConfig{
			Stream:    "VOXEL",
			Retention: 24,
			Capacity:  1024,
		},
		Telemetry: TelemetryConfig{ServiceName: "voxel-world", SampleRatio: 1, LogLevel: "info", LogDir: "logs"},
	}
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// Load читает YAML файл поверх значений Default().
// Если path == "", пытается прочитать путь из ENV VOXEL_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}
	return cfg, nil
}
